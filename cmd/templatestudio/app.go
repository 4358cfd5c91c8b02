package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"TemplateStudio/internal/api"
	"TemplateStudio/internal/config"
	"TemplateStudio/internal/editor"
	"TemplateStudio/internal/preview"
	"TemplateStudio/internal/session"
	"TemplateStudio/internal/stream"
	"TemplateStudio/internal/studio"
	"TemplateStudio/internal/telemetry"
	"TemplateStudio/internal/template"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// app holds the process-wide dependencies shared by the commands
type app struct {
	cfg    config.Config
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter
	client *api.Client
	store  *template.Store

	closers []func()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { closeLog() })

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.tracer, a.meter = tracer, meter
	a.closers = append(a.closers, shutdown)

	a.client, err = api.NewClient(cfg.BaseURL, logger, api.WithTracer(tracer), api.WithMeter(meter))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create assistant client: %w", err)
	}

	return a, nil
}

// openStore opens the template database on first use
func (a *app) openStore() (*template.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := template.Open(a.cfg.DBPath, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open template store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			a.logger.Error("failed to close template store", "error", err)
		}
	})
	return store, nil
}

// newStudio wires a studio against the assistant client and template store.
// interrupts may be nil when no interactive session runs.
func (a *app) newStudio(out io.Writer, interrupts <-chan os.Signal) (*studio.Studio, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}

	controller, err := stream.NewController(a.client, a.logger,
		stream.WithTracer(a.tracer),
		stream.WithMetrics(stream.NewMetrics(a.meter)),
	)
	if err != nil {
		return nil, err
	}

	conv := session.NewConversation(session.Params{
		Model:       a.cfg.Model,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}, a.cfg.SystemPrompt)
	a.logger.Info("created new conversation", "conversation_id", conv.ID, "model", a.cfg.Model)

	return studio.New(studio.Options{
		Assistant:    a.client,
		Controller:   controller,
		Conversation: conv,
		Editor:       editor.New(),
		Templates:    store,
		Logger:       a.logger,
		Out:          out,
		TurnTimeout:  a.cfg.RequestTimeout,
		Interrupts:   interrupts,
	})
}

// servePreview starts the live preview for ed. The returned func stops it.
func (a *app) servePreview(ed *editor.Editor) (func(), error) {
	if a.cfg.PreviewAddr == "" {
		return func() {}, nil
	}

	hub, err := preview.NewHub(a.logger, preview.DefaultTimeouts, ed.Content)
	if err != nil {
		return nil, err
	}
	ed.Subscribe(hub.Broadcast)

	var docs preview.Documents
	if a.store != nil {
		docs = a.store
	}

	srv := &http.Server{
		Addr:              a.cfg.PreviewAddr,
		Handler:           preview.NewServer(hub, ed.Content, docs, a.logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.logger.Info("preview server listening", "addr", a.cfg.PreviewAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("preview server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown preview server", "error", err)
		}
	}, nil
}

// requestContext bounds a health check by the configured timeout
func (a *app) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// Close releases everything in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
