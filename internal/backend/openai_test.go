package backend

import (
	"encoding/json"
	"testing"

	"TemplateStudio/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatRequest(t *testing.T) {
	conv := session.NewConversation(session.Params{Model: "gpt-3.5-turbo", Temperature: 0.7, MaxTokens: 1000}, "You write HTML.")
	turn := conv.NewTurn("welcome email")

	req := NewChatRequest(turn)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, ChatMessage{Role: session.RoleSystem, Content: "You write HTML."}, req.Messages[0])
	assert.Equal(t, ChatMessage{Role: session.RoleUser, Content: "welcome email"}, req.Messages[1])
	assert.Equal(t, "gpt-3.5-turbo", req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	assert.Equal(t, 1000, req.MaxTokens)
	assert.True(t, req.Stream)
}

func TestChatRequestAlwaysCarriesStream(t *testing.T) {
	data, err := json.Marshal(ChatRequest{Model: "m"})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, false, fields["stream"])
	assert.Contains(t, fields, "temperature")
	assert.Contains(t, fields, "max_tokens")
}

func TestDeltaOf(t *testing.T) {
	var chunk StreamChunk
	require.NoError(t, json.Unmarshal([]byte(`{"choices":[{"index":0,"delta":{"role":"assistant","content":"Hi"}}]}`), &chunk))

	delta, ok := DeltaOf(chunk)
	require.True(t, ok)
	assert.Equal(t, "Hi", delta.Content)
	assert.Equal(t, "assistant", delta.Role)

	_, ok = DeltaOf(StreamChunk{})
	assert.False(t, ok)
}
