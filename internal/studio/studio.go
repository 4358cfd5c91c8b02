package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"TemplateStudio/internal/api"
	"TemplateStudio/internal/backend"
	"TemplateStudio/internal/editor"
	"TemplateStudio/internal/session"
	"TemplateStudio/internal/stream"
	"TemplateStudio/internal/template"
)

// ErrTurnInProgress is returned when input is submitted while a reply is
// still streaming
var ErrTurnInProgress = errors.New("a reply is still streaming")

// TimeoutMessage is shown when a turn runs past its deadline
const TimeoutMessage = "The assistant took too long to reply"

// Assistant is the backend the studio talks to
type Assistant interface {
	stream.Opener
	Send(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
	Health(ctx context.Context) bool
}

// Templates persists finished documents
type Templates interface {
	Save(ctx context.Context, conversationID, html string) (template.Template, error)
	List(ctx context.Context) ([]template.Template, error)
}

// Studio is the chat side of the template editor. It allows one streaming
// turn at a time, feeds in-progress documents to the editor preview and
// replaces the editor content when a complete document arrives.
type Studio struct {
	assistant  Assistant
	controller *stream.Controller
	boundary   stream.Boundary
	conv       *session.Conversation
	editor     *editor.Editor
	templates  Templates
	logger     *slog.Logger
	out        io.Writer

	turnTimeout time.Duration
	interrupts  <-chan os.Signal

	mu      sync.Mutex
	active  *stream.Session
	sending bool
}

// Options holds the collaborators of a Studio
type Options struct {
	Assistant    Assistant
	Controller   *stream.Controller
	Boundary     stream.Boundary // defaults to stream.HTMLBoundary
	Conversation *session.Conversation
	Editor       *editor.Editor
	Templates    Templates // optional
	Logger       *slog.Logger
	Out          io.Writer // chat transcript; defaults to io.Discard

	// TurnTimeout bounds each turn, streamed or not. Zero disables it.
	TurnTimeout time.Duration
	// Interrupts cancels the streaming turn in Run, or ends Run when idle
	Interrupts <-chan os.Signal
}

// New creates a Studio
func New(opts Options) (*Studio, error) {
	if opts.Assistant == nil {
		return nil, fmt.Errorf("assistant cannot be nil")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if opts.Conversation == nil {
		return nil, fmt.Errorf("conversation cannot be nil")
	}
	if err := opts.Conversation.Params.Validate(); err != nil {
		return nil, err
	}

	s := &Studio{
		assistant:  opts.Assistant,
		controller: opts.Controller,
		boundary:   opts.Boundary,
		conv:       opts.Conversation,
		editor:     opts.Editor,
		templates:  opts.Templates,
		logger:     opts.Logger,
		out:        opts.Out,

		turnTimeout: opts.TurnTimeout,
		interrupts:  opts.Interrupts,
	}
	if s.boundary == nil {
		s.boundary = stream.HTMLBoundary
	}
	if s.editor == nil {
		s.editor = editor.New()
	}
	if s.out == nil {
		s.out = io.Discard
	}
	if s.controller == nil {
		c, err := stream.NewController(opts.Assistant, opts.Logger, stream.WithBoundary(s.boundary))
		if err != nil {
			return nil, fmt.Errorf("failed to create stream controller: %w", err)
		}
		s.controller = c
	}
	return s, nil
}

// Editor returns the editor the studio writes into
func (s *Studio) Editor() *editor.Editor {
	return s.editor
}

// Conversation returns the chat history
func (s *Studio) Conversation() *session.Conversation {
	return s.conv
}

// Submit starts a streaming turn for content. It refuses to overlap turns.
func (s *Studio) Submit(ctx context.Context, content string) (*stream.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busyLocked() {
		return nil, ErrTurnInProgress
	}

	turn := s.conv.NewTurn(content)
	s.logger.Info("submitting turn", "conversation_id", s.conv.ID, "turn_id", turn.ID, "messages", len(turn.Messages))

	turnCtx, cancel := s.turnContext(ctx)
	sess := s.controller.SubmitTurn(turnCtx, turn, s.conv, &turnView{studio: s})
	go func() {
		<-sess.Done()
		cancel()
	}()
	s.active = sess
	return sess, nil
}

// turnContext applies the per-turn deadline, if any
func (s *Studio) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.turnTimeout > 0 {
		return context.WithTimeout(ctx, s.turnTimeout)
	}
	return context.WithCancel(ctx)
}

// Cancel abandons the streaming turn, if any
func (s *Studio) Cancel() {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	if running(active) {
		active.Cancel()
		<-active.Done()
		s.editor.Discard()
		s.logger.Info("turn cancelled", "turn_id", active.ID())
	}
}

// Busy reports whether a turn is in flight
func (s *Studio) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyLocked()
}

func (s *Studio) busyLocked() bool {
	return s.sending || running(s.active)
}

func running(sess *stream.Session) bool {
	if sess == nil {
		return false
	}
	select {
	case <-sess.Done():
		return false
	default:
		return true
	}
}

// Send runs a turn on the non-streaming path and returns the reply
func (s *Studio) Send(ctx context.Context, content string) (string, error) {
	s.mu.Lock()
	if s.busyLocked() {
		s.mu.Unlock()
		return "", ErrTurnInProgress
	}
	s.sending = true
	turn := s.conv.NewTurn(content)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
	}()

	turn.Stream = false
	ctx, cancel := s.turnContext(ctx)
	defer cancel()

	resp, err := s.assistant.Send(ctx, backend.NewChatRequest(turn))
	if err != nil {
		s.logger.Error("failed to send message", "turn_id", turn.ID, "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from assistant")
	}

	text := resp.Choices[0].Message.Content
	if err := s.conv.Commit(turn.ID, text); err != nil {
		s.logger.Error("failed to commit assistant message", "turn_id", turn.ID, "error", err)
	}
	if s.boundary.Ready(text) {
		s.documentReady(ctx, text)
	}
	return text, nil
}

// Health reports whether the assistant service is reachable
func (s *Studio) Health(ctx context.Context) bool {
	return s.assistant.Health(ctx)
}

// Clear drops the chat history
func (s *Studio) Clear() {
	s.conv.Clear()
	s.logger.Info("conversation cleared", "conversation_id", s.conv.ID)
}

func (s *Studio) documentReady(ctx context.Context, text string) {
	s.editor.Replace(text)
	if s.templates == nil {
		return
	}
	if _, err := s.templates.Save(ctx, s.conv.ID, text); err != nil {
		s.logger.Error("failed to save template", "conversation_id", s.conv.ID, "error", err)
	}
}

// turnView renders one streaming turn into the transcript and editor
type turnView struct {
	studio *Studio
}

func (v *turnView) OnChunk(p stream.Progress) {
	if p.Delta != "" {
		fmt.Fprint(v.studio.out, p.Delta)
	}
}

func (v *turnView) OnPartialDocument(text string) {
	v.studio.editor.Preview(text)
}

func (v *turnView) OnDocumentReady(text string) {
	v.studio.documentReady(context.Background(), text)
}

func (v *turnView) OnError(err error) {
	// shown in the transcript only, never committed to history
	msg := api.Message(err)
	if errors.Is(err, context.DeadlineExceeded) {
		msg = TimeoutMessage
	}
	fmt.Fprintf(v.studio.out, "\nError: %s\n", msg)
	v.studio.editor.Discard()
}

func (v *turnView) OnComplete(c stream.Completion) {
	if !c.Document {
		v.studio.editor.Discard()
	}
	fmt.Fprintln(v.studio.out)
	v.studio.logger.Info("turn completed", "turn_id", c.TurnID, "length", len(c.Text), "document", c.Document)
}
