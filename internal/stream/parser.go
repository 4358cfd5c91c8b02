package stream

import (
	"encoding/json"
	"log/slog"

	"TemplateStudio/internal/backend"
)

// DoneSentinel is the payload that terminates a stream
const DoneSentinel = "[DONE]"

// EventKind classifies a parsed frame
type EventKind int

const (
	EventData EventKind = iota
	EventDone
)

// Delta is the incremental content carried by one data frame
type Delta struct {
	Role    string
	Content string
}

// Event is a classified frame
type Event struct {
	Kind  EventKind
	Delta Delta
	Chunk backend.StreamChunk
}

// Parser classifies candidate frames. Malformed payloads are logged and
// dropped; they never end the stream.
type Parser struct {
	logger      *slog.Logger
	onMalformed func(payload string, err error)
	malformed   int
}

// NewParser creates a parser. onMalformed may be nil.
func NewParser(logger *slog.Logger, onMalformed func(payload string, err error)) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger, onMalformed: onMalformed}
}

// Parse classifies one trimmed payload. ok is false for a malformed frame.
func (p *Parser) Parse(payload string) (Event, bool) {
	if payload == DoneSentinel {
		return Event{Kind: EventDone}, true
	}

	var chunk backend.StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		p.malformed++
		p.logger.Warn("skipping malformed stream frame", "payload", payload, "error", err)
		if p.onMalformed != nil {
			p.onMalformed(payload, err)
		}
		return Event{}, false
	}

	ev := Event{Kind: EventData, Chunk: chunk}
	if delta, ok := backend.DeltaOf(chunk); ok {
		ev.Delta = Delta{Role: delta.Role, Content: delta.Content}
	}
	return ev, true
}

// Malformed returns how many frames were skipped so far
func (p *Parser) Malformed() int {
	return p.malformed
}
