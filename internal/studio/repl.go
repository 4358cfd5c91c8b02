package studio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// handleCommand handles slash commands; it reports whether to quit
func (s *Studio) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/clear":
		s.Clear()
		fmt.Fprintln(s.out, "Conversation cleared")
		return false, nil

	case "/health":
		if s.Health(ctx) {
			fmt.Fprintln(s.out, "Assistant service is up")
		} else {
			fmt.Fprintln(s.out, "Assistant service is unreachable")
		}
		return false, nil

	case "/show":
		fmt.Fprintln(s.out, s.editor.Source())
		return false, nil

	case "/save":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /save <path>")
		}
		if err := os.WriteFile(parts[1], []byte(s.editor.Source()), 0o644); err != nil {
			return false, fmt.Errorf("failed to save template: %w", err)
		}
		fmt.Fprintf(s.out, "Saved editor content to %s\n", parts[1])
		return false, nil

	case "/templates":
		if s.templates == nil {
			fmt.Fprintln(s.out, "Template store is not configured.")
			return false, nil
		}
		list, err := s.templates.List(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list templates: %w", err)
		}
		if len(list) == 0 {
			fmt.Fprintln(s.out, "No saved templates.")
			return false, nil
		}
		fmt.Fprintln(s.out, "\nSaved templates:")
		for i, t := range list {
			fmt.Fprintf(s.out, "%d. %s  %s  %s\n", i+1, t.ID, t.CreatedAt.Format("2006-01-02 15:04:05"), t.Digest[:12])
		}
		fmt.Fprintln(s.out)
		return false, nil

	case "/help":
		fmt.Fprintln(s.out, "Available commands:")
		fmt.Fprintln(s.out, "  /quit, /exit   - Exit the studio")
		fmt.Fprintln(s.out, "  /clear         - Clear the conversation")
		fmt.Fprintln(s.out, "  /health        - Check the assistant service")
		fmt.Fprintln(s.out, "  /show          - Print the editor content")
		fmt.Fprintln(s.out, "  /save <path>   - Write the editor content to a file")
		fmt.Fprintln(s.out, "  /templates     - List saved templates")
		fmt.Fprintln(s.out, "  /help          - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s", parts[0])
	}
}

// lineReader scans input in its own goroutine so the prompt can also
// wait on cancellation. err is set before lines is closed.
type lineReader struct {
	lines chan string
	err   error
}

func readLines(in io.Reader, stop <-chan struct{}) *lineReader {
	r := &lineReader{lines: make(chan string)}
	go func() {
		defer close(r.lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case r.lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		r.err = scanner.Err()
	}()
	return r
}

// Run reads prompts from in until EOF, /quit, an interrupt at the prompt,
// or ctx is done. Each prompt streams its reply before the next line is
// read; an interrupt while streaming cancels only that reply.
func (s *Studio) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.out, "=== Template Studio ===")
	fmt.Fprintf(s.out, "Conversation: %s\n", s.conv.ID)
	fmt.Fprintln(s.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(s.out)

	stop := make(chan struct{})
	defer close(stop)
	reader := readLines(in, stop)

	var readErr error
loop:
	for {
		fmt.Fprint(s.out, "You: ")

		var line string
		select {
		case l, ok := <-reader.lines:
			if !ok {
				readErr = reader.err
				break loop
			}
			line = l
		case <-s.interrupts:
			fmt.Fprintln(s.out)
			break loop
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return ctx.Err()
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := s.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(s.out, "Error: %v\n", err)
				s.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break loop
			}
			continue
		}

		sess, err := s.Submit(ctx, input)
		if errors.Is(err, ErrTurnInProgress) {
			fmt.Fprintln(s.out, "Please wait for the current reply to finish.")
			continue
		}
		if err != nil {
			return err
		}

		fmt.Fprint(s.out, "Assistant: ")
		select {
		case <-sess.Done():
			fmt.Fprintln(s.out)
		case <-s.interrupts:
			s.Cancel()
			fmt.Fprintln(s.out, "\nReply cancelled.")
		case <-ctx.Done():
			s.Cancel()
			fmt.Fprintln(s.out)
			return ctx.Err()
		}
	}

	if readErr != nil {
		return fmt.Errorf("failed to read input: %w", readErr)
	}
	s.Cancel()
	fmt.Fprintln(s.out, "Goodbye!")
	return nil
}
