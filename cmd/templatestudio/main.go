package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"TemplateStudio/internal/config"
	"TemplateStudio/internal/template"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "templatestudio",
		Short:         "Author HTML templates by chatting with an assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("env-file", ".env", "Environment file to load before reading settings")
	flags.String("api-url", "", "Assistant service base URL")
	flags.String("model", "", "Model name sent with every request")
	flags.Float32("temperature", config.DefaultTemperature, "Sampling temperature")
	flags.Int("max-tokens", config.DefaultMaxTokens, "Maximum tokens per reply")
	flags.String("system", "", "System prompt prepended to every request")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-dir", "", "Directory for logs, traces and metrics")
	flags.String("db", "", "Template database path")
	flags.Duration("timeout", 0, "Deadline for each request, streamed replies included (0 disables)")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session with live preview",
		RunE:  runChat,
	}
	chatCmd.Flags().String("preview-addr", "", "Live preview listen address (empty uses the configured default)")
	chatCmd.Flags().Bool("no-preview", false, "Disable the live preview server")

	sendCmd := &cobra.Command{
		Use:   "send <prompt>",
		Short: "Send one prompt without streaming and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSend,
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the assistant service is reachable",
		RunE:  runHealth,
	}

	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect saved templates",
	}
	templatesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved templates",
		RunE:  runTemplatesList,
	})
	templatesCmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Print a saved template (latest when no ID is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTemplatesShow,
	})

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Write assistant settings to the environment file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("env-file")
			return runSetup(cmd.InOrStdin(), cmd.OutOrStdout(), path)
		},
	}

	rootCmd.AddCommand(chatCmd, sendCmd, healthCmd, templatesCmd, setupCmd)
	return rootCmd
}

// loadConfig reads the environment file and environment, then applies
// any flags set on the command line
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.BaseURL, _ = flags.GetString("api-url")
	}
	if flags.Changed("model") {
		cfg.Model, _ = flags.GetString("model")
	}
	if flags.Changed("temperature") {
		cfg.Temperature, _ = flags.GetFloat32("temperature")
	}
	if flags.Changed("max-tokens") {
		cfg.MaxTokens, _ = flags.GetInt("max-tokens")
	}
	if flags.Changed("system") {
		cfg.SystemPrompt, _ = flags.GetString("system")
	}
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("log-dir") {
		cfg.LogDir, _ = flags.GetString("log-dir")
	}
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Lookup("preview-addr") != nil && flags.Changed("preview-addr") {
		cfg.PreviewAddr, _ = flags.GetString("preview-addr")
	}
	if flags.Lookup("no-preview") != nil {
		if off, _ := flags.GetBool("no-preview"); off {
			cfg.PreviewAddr = ""
		}
	}
	return cfg, nil
}

func setupApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	out := cmd.OutOrStdout()
	st, err := a.newStudio(out, sigs)
	if err != nil {
		return err
	}

	stopPreview, err := a.servePreview(st.Editor())
	if err != nil {
		return err
	}
	defer stopPreview()
	if a.cfg.PreviewAddr != "" {
		fmt.Fprintf(out, "Live preview at http://%s\n", displayAddr(a.cfg.PreviewAddr))
	}

	if !a.client.Health(cmd.Context()) {
		fmt.Fprintln(out, "Warning: assistant service is not reachable at", a.cfg.BaseURL)
	}

	err = st.Run(cmd.Context(), cmd.InOrStdin())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runSend(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.newStudio(io.Discard, nil)
	if err != nil {
		return err
	}

	reply, err := st.Send(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := a.requestContext(cmd.Context())
	defer cancel()

	if !a.client.Health(ctx) {
		return fmt.Errorf("assistant service is unreachable at %s", a.cfg.BaseURL)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Assistant service is up")
	return nil
}

func runTemplatesList(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	list, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No saved templates.")
		return nil
	}
	for _, t := range list {
		fmt.Fprintf(out, "%s\t%s\t%s\n", t.ID, t.CreatedAt.Format(time.RFC3339), t.Digest[:12])
	}
	return nil
}

func runTemplatesShow(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openStore()
	if err != nil {
		return err
	}

	var t template.Template
	if len(args) == 1 {
		t, err = store.Get(cmd.Context(), args[0])
	} else {
		t, err = store.Latest(cmd.Context())
	}
	if errors.Is(err, template.ErrNotFound) {
		return fmt.Errorf("no such template")
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), t.HTML)
	return nil
}

// runSetup prompts for the assistant settings and writes them to path
func runSetup(in io.Reader, out io.Writer, path string) error {
	reader := bufio.NewReader(in)

	prompt := func(label, def string) string {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
		line, _ := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
		return def
	}

	baseURL := prompt("Assistant service URL", config.DefaultBaseURL)
	model := prompt("Model", config.DefaultModel)

	cfg := config.Default()
	cfg.BaseURL, cfg.Model = baseURL, model
	if err := cfg.Validate(); err != nil {
		return err
	}

	envContent := fmt.Sprintf("%s=%s\n%s=%s\n", config.EnvBaseURL, baseURL, config.EnvModel, model)
	if err := os.WriteFile(path, []byte(envContent), 0o600); err != nil {
		return fmt.Errorf("error creating %s file: %w", path, err)
	}

	fmt.Fprintf(out, "Settings saved to %s\n", path)
	return nil
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
