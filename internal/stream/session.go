package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"TemplateStudio/internal/backend"
	"TemplateStudio/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultReadSize = 4096

var (
	// ErrSessionRetired is returned when a session that already ran is run again
	ErrSessionRetired = errors.New("stream session already used")
	// ErrStreamInterrupted wraps a transport failure after the body was opened
	ErrStreamInterrupted = errors.New("stream interrupted")
)

// State is the lifecycle state of a Session
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateErrored
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored || s == StateCancelled
}

// Opener opens the response body for a streaming chat request
type Opener interface {
	OpenStream(ctx context.Context, req backend.ChatRequest) (io.ReadCloser, error)
}

// Committer receives the finalized assistant text of a turn
type Committer interface {
	Commit(turnID, content string) error
}

// Progress is delivered for every data frame
type Progress struct {
	TurnID string
	Chunk  backend.StreamChunk
	Delta  string
	Text   string // accumulated reply so far
}

// Completion is delivered once when a turn finishes normally
type Completion struct {
	TurnID   string
	Text     string
	Document bool
}

// Handler receives session callbacks. For one session, OnChunk calls come
// first, followed by exactly one of OnError or OnComplete.
type Handler interface {
	OnChunk(p Progress)
	OnError(err error)
	OnComplete(c Completion)
}

// DocumentHandler is an optional extension of Handler for live preview.
// OnPartialDocument receives the whole buffer on every growth once a
// document has started; OnDocumentReady fires before OnComplete when the
// final reply is a document.
type DocumentHandler interface {
	OnPartialDocument(text string)
	OnDocumentReady(text string)
}

// Session owns one request/response lifecycle. Its buffer is never shared.
type Session struct {
	turn      session.Turn
	opener    Opener
	committer Committer
	handler   Handler
	docs      DocumentHandler
	boundary  Boundary
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	readSize  int

	mu     sync.Mutex
	state  State
	body   io.ReadCloser
	cancel context.CancelFunc
	done   chan struct{}
}

// ID returns the turn ID this session serves
func (s *Session) ID() string {
	return s.turn.ID
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session reaches a terminal state
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session is terminal and returns its state
func (s *Session) Wait() State {
	<-s.done
	return s.State()
}

// Start runs the session in its own goroutine
func (s *Session) Start(ctx context.Context) {
	go func() {
		if err := s.Run(ctx); err != nil {
			s.logger.Debug("session not started", "turn_id", s.turn.ID, "error", err)
		}
	}()
}

// Cancel abandons the session. The body is closed, nothing is committed,
// and no callback is dispatched after Cancel returns. A callback already
// running when Cancel is called is allowed to finish.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	wasIdle := s.state == StateIdle
	s.state = StateCancelled
	body, cancel := s.body, s.cancel
	s.mu.Unlock()

	s.logger.Debug("session cancelled", "turn_id", s.turn.ID)
	if cancel != nil {
		cancel()
	}
	if body != nil {
		body.Close()
	}
	if wasIdle {
		close(s.done)
	}
}

// Run executes the turn synchronously. The returned error is only
// ErrSessionRetired; every other outcome is reported through the handler.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionRetired
	}
	s.state = StateRequesting
	s.cancel = cancel
	s.mu.Unlock()
	defer close(s.done)

	ctx, span := s.tracer.Start(ctx, "stream.session",
		trace.WithAttributes(attribute.String("turn_id", s.turn.ID)))
	defer span.End()

	start := time.Now()
	s.logger.Debug("session requesting", "turn_id", s.turn.ID, "messages", len(s.turn.Messages))

	body, err := s.opener.OpenStream(ctx, backend.NewChatRequest(s.turn))
	if err != nil {
		if s.cancelledBy(ctx) {
			s.metrics.turn(ctx, StateCancelled)
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.fail(ctx, err)
		return nil
	}
	defer body.Close()

	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		s.metrics.turn(ctx, StateCancelled)
		return nil
	}
	s.state = StateStreaming
	s.body = body
	s.mu.Unlock()
	s.logger.Debug("session streaming", "turn_id", s.turn.ID)

	decoder := NewFrameDecoder()
	parser := NewParser(s.logger, func(string, error) { s.metrics.malformedFrame(ctx) })
	acc := NewAccumulator(s.boundary)
	first := true

	buf := make([]byte, s.readSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			for _, payload := range decoder.Decode(buf[:n]) {
				ev, ok := parser.Parse(payload)
				if !ok {
					continue
				}
				if ev.Kind == EventDone {
					s.complete(ctx, acc)
					return nil
				}
				if first {
					first = false
					s.metrics.timeToFirstDelta(ctx, time.Since(start))
				}
				s.metrics.dataFrame(ctx)
				if !s.deliver(ev, acc) {
					s.metrics.turn(ctx, StateCancelled)
					return nil
				}
			}
		}

		if rerr == nil {
			continue
		}
		if s.cancelledBy(ctx) {
			s.metrics.turn(ctx, StateCancelled)
			return nil
		}
		if errors.Is(rerr, io.EOF) {
			if dropped := decoder.Reset(); dropped > 0 {
				s.logger.Debug("discarding unterminated trailing line", "turn_id", s.turn.ID, "bytes", dropped)
			}
			s.complete(ctx, acc)
			return nil
		}
		span.RecordError(rerr)
		span.SetStatus(codes.Error, rerr.Error())
		s.fail(ctx, fmt.Errorf("%w: %w", ErrStreamInterrupted, rerr))
		return nil
	}
}

// deliver forwards one data event; false means the session was cancelled
func (s *Session) deliver(ev Event, acc *Accumulator) bool {
	upd := acc.Append(ev.Delta.Content)

	progress := Progress{
		TurnID: s.turn.ID,
		Chunk:  ev.Chunk,
		Delta:  upd.Delta,
		Text:   upd.Text,
	}
	if !s.dispatch("OnChunk", func() { s.handler.OnChunk(progress) }) {
		return false
	}

	if upd.Document && upd.Grew && s.docs != nil {
		if !s.dispatch("OnPartialDocument", func() { s.docs.OnPartialDocument(upd.Text) }) {
			return false
		}
	}
	return true
}

func (s *Session) complete(ctx context.Context, acc *Accumulator) {
	res := acc.Finalize()
	if !s.finish(StateCompleted) {
		return
	}
	s.metrics.turn(ctx, StateCompleted)
	s.logger.Debug("session completed", "turn_id", s.turn.ID, "length", len(res.Text), "document", res.Document)

	if s.committer != nil {
		if err := s.committer.Commit(s.turn.ID, res.Text); err != nil {
			s.logger.Error("failed to commit assistant message", "turn_id", s.turn.ID, "error", err)
		}
	}
	if res.Document && s.docs != nil {
		s.safeCall("OnDocumentReady", func() { s.docs.OnDocumentReady(res.Text) })
	}
	s.safeCall("OnComplete", func() {
		s.handler.OnComplete(Completion{TurnID: s.turn.ID, Text: res.Text, Document: res.Document})
	})
}

func (s *Session) fail(ctx context.Context, err error) {
	if !s.finish(StateErrored) {
		return
	}
	s.metrics.turn(ctx, StateErrored)
	s.logger.Error("session failed", "turn_id", s.turn.ID, "error", err)
	s.safeCall("OnError", func() { s.handler.OnError(err) })
}

// finish moves a live session into a terminal state exactly once
func (s *Session) finish(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = to
	return true
}

func (s *Session) cancelledBy(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCancelled {
		return true
	}
	// a deadline is a failure, only an explicit cancel abandons the turn
	if errors.Is(ctx.Err(), context.Canceled) && !s.state.Terminal() {
		s.state = StateCancelled
		return true
	}
	return false
}

// dispatch runs a progress callback unless the session was cancelled
func (s *Session) dispatch(name string, fn func()) bool {
	if s.State() == StateCancelled {
		return false
	}
	s.safeCall(name, fn)
	return true
}

func (s *Session) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream callback panicked", "turn_id", s.turn.ID, "callback", name, "panic", r)
		}
	}()
	fn()
}

// Controller creates stream sessions against one backend
type Controller struct {
	opener   Opener
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	boundary Boundary
	readSize int
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithBoundary replaces the document boundary strategy
func WithBoundary(b Boundary) ControllerOption {
	return func(c *Controller) { c.boundary = b }
}

// WithTracer sets the tracer for session spans
func WithTracer(t trace.Tracer) ControllerOption {
	return func(c *Controller) { c.tracer = t }
}

// WithMetrics sets the stream instruments
func WithMetrics(m *Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithReadSize sets the size of body reads
func WithReadSize(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// NewController creates a controller for opener
func NewController(opener Opener, logger *slog.Logger, opts ...ControllerOption) (*Controller, error) {
	if opener == nil {
		return nil, fmt.Errorf("opener cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	c := &Controller{
		opener:   opener,
		logger:   logger,
		tracer:   noop.NewTracerProvider().Tracer("stream"),
		boundary: HTMLBoundary,
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewSession prepares a session for turn without starting it. committer
// may be nil; handler may additionally implement DocumentHandler.
func (c *Controller) NewSession(turn session.Turn, committer Committer, handler Handler) *Session {
	s := &Session{
		turn:      turn,
		opener:    c.opener,
		committer: committer,
		handler:   handler,
		boundary:  c.boundary,
		logger:    c.logger,
		tracer:    c.tracer,
		metrics:   c.metrics,
		readSize:  c.readSize,
		done:      make(chan struct{}),
	}
	if docs, ok := handler.(DocumentHandler); ok {
		s.docs = docs
	}
	return s
}

// SubmitTurn starts a session for turn in the background and returns it.
// It fires zero or more progress callbacks then exactly one of OnComplete
// or OnError, unless the session is cancelled first.
func (c *Controller) SubmitTurn(ctx context.Context, turn session.Turn, committer Committer, handler Handler) *Session {
	s := c.NewSession(turn, committer, handler)
	s.Start(ctx)
	return s
}
