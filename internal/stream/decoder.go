package stream

import (
	"bytes"
	"strings"
)

// DataPrefix marks an event-data line in the response stream
const DataPrefix = "data: "

var dataPrefix = []byte(DataPrefix)

// FrameDecoder turns raw body chunks into candidate frame payloads.
//
// Chunks may split a line anywhere, including inside the prefix or inside a
// multi-byte character. Lines are cut on '\n' at the byte level and only
// complete lines are converted to text; since '\n' never occurs inside a
// UTF-8 sequence, a split character simply waits in the carry-over with the
// rest of its line.
type FrameDecoder struct {
	pending []byte
}

// NewFrameDecoder returns an empty decoder
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

// Decode consumes one chunk and returns the payloads of every data line it
// completed, in order, with the prefix stripped and whitespace trimmed.
func (d *FrameDecoder) Decode(chunk []byte) []string {
	d.pending = append(d.pending, chunk...)

	var frames []string
	start := 0
	for {
		i := bytes.IndexByte(d.pending[start:], '\n')
		if i < 0 {
			break
		}
		line := d.pending[start : start+i]
		start += i + 1

		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		frames = append(frames, strings.TrimSpace(string(line[len(dataPrefix):])))
	}

	n := copy(d.pending, d.pending[start:])
	d.pending = d.pending[:n]
	return frames
}

// Pending returns the number of carried-over bytes not yet terminated by a newline
func (d *FrameDecoder) Pending() int {
	return len(d.pending)
}

// Reset discards any carry-over. Called at end of input: an unterminated
// trailing line is never emitted.
func (d *FrameDecoder) Reset() int {
	n := len(d.pending)
	d.pending = d.pending[:0]
	return n
}
