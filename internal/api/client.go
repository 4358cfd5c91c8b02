package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"TemplateStudio/internal/backend"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	chatPath   = "/chat"
	healthPath = "/health"

	// GenericErrorMessage is reported when a rejection carries no error text
	GenericErrorMessage = "Failed to send message"
	// TransportErrorMessage is reported when the service cannot be reached
	TransportErrorMessage = "Failed to reach assistant service"

	instrumentationName = "TemplateStudio/internal/api"
)

// APIError is a non-success response from the assistant backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// TransportError means the request never produced a response
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return TransportErrorMessage
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client talks to the assistant backend chat and health endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTracer sets the tracer used for outbound calls
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithMeter sets the meter used for request duration metrics
func WithMeter(m metric.Meter) Option {
	return func(c *Client) { c.duration = newDurationHistogram(m) }
}

// NewClient creates a client for the backend rooted at baseURL
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No timeout: streamed bodies stay open for the whole reply
		httpClient: &http.Client{Timeout: 0},
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		duration:   newDurationHistogram(otel.Meter(instrumentationName)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newDurationHistogram(m metric.Meter) metric.Float64Histogram {
	h, err := m.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		slog.Warn("failed to create histogram", "error", err)
		return nil
	}
	return h
}

// OpenStream posts a streaming chat request and returns the response body
// once a success status has been received. The caller owns the body.
func (c *Client) OpenStream(ctx context.Context, req backend.ChatRequest) (io.ReadCloser, error) {
	ctx, span := c.tracer.Start(ctx, "assistant.chat_stream")
	defer span.End()

	req.Stream = true
	resp, err := c.post(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.Body, nil
}

// Send posts a non-streaming chat request and decodes the full reply
func (c *Client) Send(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
	ctx, span := c.tracer.Start(ctx, "assistant.chat")
	defer span.End()

	req.Stream = false
	resp, err := c.post(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var out backend.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &out, nil
}

// Health reports whether the backend answers its health endpoint with a
// success status. It never returns an error.
func (c *Client) Health(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, "assistant.health")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		c.logger.Warn("failed to create health request", "error", err)
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	span.SetAttributes(attribute.Bool("healthy", ok))
	return ok
}

func (c *Client) post(ctx context.Context, body backend.ChatRequest) (*http.Response, error) {
	start := time.Now()

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("failed to send request", "error", err, "stream", body.Stream)
		return nil, &TransportError{Err: err}
	}

	if c.duration != nil {
		c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.Bool("stream", body.Stream)))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := decodeError(resp)
		c.logger.Warn("assistant rejected request", "status", resp.StatusCode, "error", apiErr.Message)
		return nil, apiErr
	}
	return resp, nil
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: GenericErrorMessage}

	var payload backend.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return apiErr
}

// Message returns the user-facing text for an error returned by this package
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return TransportErrorMessage
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
