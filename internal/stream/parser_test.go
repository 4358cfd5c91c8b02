package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDone(t *testing.T) {
	p := NewParser(nil, nil)

	ev, ok := p.Parse(DoneSentinel)

	require.True(t, ok)
	assert.Equal(t, EventDone, ev.Kind)
}

func TestParseDelta(t *testing.T) {
	p := NewParser(nil, nil)

	ev, ok := p.Parse(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`)

	require.True(t, ok)
	assert.Equal(t, EventData, ev.Kind)
	assert.Equal(t, "assistant", ev.Delta.Role)
	assert.Equal(t, "Hel", ev.Delta.Content)
	assert.Equal(t, "c1", ev.Chunk.ID)
}

func TestParseWithoutChoices(t *testing.T) {
	p := NewParser(nil, nil)

	ev, ok := p.Parse(`{"choices":[]}`)

	require.True(t, ok)
	assert.Equal(t, EventData, ev.Kind)
	assert.Empty(t, ev.Delta.Content)
}

func TestParseMalformed(t *testing.T) {
	var skipped []string
	p := NewParser(nil, func(payload string, err error) {
		assert.Error(t, err)
		skipped = append(skipped, payload)
	})

	for _, payload := range []string{`{"choices":[`, `not json`, ``} {
		_, ok := p.Parse(payload)
		assert.False(t, ok, "payload %q", payload)
	}

	assert.Equal(t, 3, p.Malformed())
	assert.Len(t, skipped, 3)
}

func TestMalformedFrameDoesNotDisturbNeighbours(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {broken\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n" +
		"data: [DONE]\n"

	d := NewFrameDecoder()
	p := NewParser(nil, nil)

	var events []Event
	for _, payload := range d.Decode([]byte(input)) {
		if ev, ok := p.Parse(payload); ok {
			events = append(events, ev)
		}
	}

	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Delta.Content)
	assert.Equal(t, "b", events[1].Delta.Content)
	assert.Equal(t, EventDone, events[2].Kind)
}

// Any split of a well-formed stream yields the same events as the unsplit stream.
func TestPipelineIndependentOfChunking(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"<!DOCTYPE html>\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"<p>Grüße ✓</p>\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"</html>\"}}]}\n" +
		"data: [DONE]\n"
	raw := []byte(input)

	collect := func(chunks [][]byte) []Event {
		d := NewFrameDecoder()
		p := NewParser(nil, nil)
		var events []Event
		for _, c := range chunks {
			for _, payload := range d.Decode(c) {
				if ev, ok := p.Parse(payload); ok {
					events = append(events, ev)
				}
			}
		}
		return events
	}

	want := collect([][]byte{raw})
	require.Len(t, want, 4)

	for i := 1; i < len(raw); i++ {
		for j := i; j < len(raw); j += 7 {
			got := collect([][]byte{raw[:i], raw[i:j], raw[j:]})
			require.Len(t, got, len(want), "split at %d/%d", i, j)
			for k := range want {
				assert.Equal(t, want[k].Kind, got[k].Kind)
				assert.Equal(t, want[k].Delta.Content, got[k].Delta.Content)
			}
		}
	}
}
