package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"TemplateStudio/internal/backend"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBackend struct {
	lastRequest backend.ChatRequest
	status      int
	body        string
	healthy     bool
}

func (f *fakeBackend) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ai/chat", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.lastRequest); err != nil {
			http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
			return
		}
		if f.lastRequest.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(f.status)
		io.WriteString(w, f.body)
	}).Methods(http.MethodPost)
	r.HandleFunc("/ai/health", func(w http.ResponseWriter, r *http.Request) {
		if !f.healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func newTestClient(t *testing.T, fb *fakeBackend) *Client {
	t.Helper()
	server := httptest.NewServer(fb.router())
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL+"/ai/", discardLogger())
	require.NoError(t, err)
	return c
}

func testRequest() backend.ChatRequest {
	return backend.ChatRequest{
		Messages:    []backend.ChatMessage{{Role: "user", Content: "welcome email"}},
		Model:       "gpt-3.5-turbo",
		Temperature: 0.7,
		MaxTokens:   1000,
	}
}

func TestOpenStream(t *testing.T) {
	fb := &fakeBackend{status: http.StatusOK, body: "data: [DONE]\n"}
	c := newTestClient(t, fb)

	body, err := c.OpenStream(context.Background(), testRequest())
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: [DONE]\n", string(data))

	assert.True(t, fb.lastRequest.Stream)
	assert.Equal(t, "gpt-3.5-turbo", fb.lastRequest.Model)
	assert.Equal(t, 1000, fb.lastRequest.MaxTokens)
	require.Len(t, fb.lastRequest.Messages, 1)
	assert.Equal(t, "welcome email", fb.lastRequest.Messages[0].Content)
}

func TestOpenStreamRejected(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"structured error", http.StatusTooManyRequests, `{"error":"rate limited"}`, "rate limited"},
		{"empty error field", http.StatusInternalServerError, `{"error":""}`, GenericErrorMessage},
		{"not json", http.StatusBadGateway, `upstream down`, GenericErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeBackend{status: tt.status, body: tt.body})

			_, err := c.OpenStream(context.Background(), testRequest())

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.message, Message(err))
		})
	}
}

func TestTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c, err := NewClient(url, discardLogger())
	require.NoError(t, err)

	_, err = c.OpenStream(context.Background(), testRequest())

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Error(t, tErr.Unwrap())
	assert.Equal(t, TransportErrorMessage, Message(err))
}

func TestSend(t *testing.T) {
	fb := &fakeBackend{status: http.StatusOK, body: `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-3.5-turbo",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4}
	}`}
	c := newTestClient(t, fb)

	req := testRequest()
	req.Stream = true
	resp, err := c.Send(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, fb.lastRequest.Stream, "send always disables streaming")
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello", resp.Choices[0].Message.Content)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
}

func TestSendRejected(t *testing.T) {
	c := newTestClient(t, &fakeBackend{status: http.StatusBadRequest, body: `{"error":"messages required"}`})

	_, err := c.Send(context.Background(), testRequest())

	assert.EqualError(t, err, "messages required")
}

func TestHealth(t *testing.T) {
	assert.True(t, newTestClient(t, &fakeBackend{healthy: true}).Health(context.Background()))
	assert.False(t, newTestClient(t, &fakeBackend{healthy: false}).Health(context.Background()))

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	c, err := NewClient(url, discardLogger())
	require.NoError(t, err)
	assert.False(t, c.Health(context.Background()), "transport failure is unhealthy")
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("http://localhost", nil)
	assert.Error(t, err)

	_, err = NewClient("", discardLogger())
	assert.Error(t, err)
}
