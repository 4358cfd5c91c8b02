package backend

import (
	"TemplateStudio/internal/session"

	"github.com/sashabaranov/go-openai"
)

// ChatMessage is one entry of the messages array sent to the chat endpoint
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the request body for the chat endpoint.
// Stream is always serialised so the server can tell the two paths apart.
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Model       string        `json:"model"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// ChatResponse is the non-streaming reply; it shares the OpenAI shape.
type ChatResponse = openai.ChatCompletionResponse

// StreamChunk is the JSON payload of one streamed data frame.
type StreamChunk = openai.ChatCompletionStreamResponse

// ErrorResponse is the error envelope returned on non-success statuses
type ErrorResponse struct {
	Error string `json:"error"`
}

// DeltaOf returns the first choice's delta of a chunk, if any
func DeltaOf(chunk StreamChunk) (openai.ChatCompletionStreamChoiceDelta, bool) {
	if len(chunk.Choices) == 0 {
		return openai.ChatCompletionStreamChoiceDelta{}, false
	}
	return chunk.Choices[0].Delta, true
}

// NewChatRequest converts a turn into the wire request
func NewChatRequest(turn session.Turn) ChatRequest {
	msgs := make([]ChatMessage, len(turn.Messages))
	for i, m := range turn.Messages {
		msgs[i] = ChatMessage{Role: m.Role, Content: m.Content}
	}
	return ChatRequest{
		Messages:    msgs,
		Model:       turn.Params.Model,
		Temperature: turn.Params.Temperature,
		MaxTokens:   turn.Params.MaxTokens,
		Stream:      turn.Stream,
	}
}
