package stream

import "strings"

// Update is a snapshot of the running buffer after one append
type Update struct {
	Delta    string
	Text     string
	Document bool // the buffer has started a document
	Grew     bool
}

// Result is the finalized reply of a turn
type Result struct {
	Text     string
	Document bool // the final text is a complete document
}

// Accumulator owns the running response buffer of one session.
// The document flag latches: once a document has started it stays started
// for the rest of the turn, so partial signals only ever grow.
type Accumulator struct {
	buf      strings.Builder
	boundary Boundary
	document bool
	scanned  int // bytes already checked for a start marker
}

// NewAccumulator creates an empty accumulator. A nil boundary uses HTMLBoundary.
func NewAccumulator(boundary Boundary) *Accumulator {
	if boundary == nil {
		boundary = HTMLBoundary
	}
	return &Accumulator{boundary: boundary}
}

// Append adds a fragment and re-evaluates the boundary until a document
// has started
func (a *Accumulator) Append(fragment string) Update {
	if fragment != "" {
		a.buf.WriteString(fragment)
		if !a.document {
			a.document = a.boundary.InProgress(a.scanWindow())
		}
	}
	return Update{
		Delta:    fragment,
		Text:     a.buf.String(),
		Document: a.document,
		Grew:     fragment != "",
	}
}

// scanWindow returns the part of the buffer a start marker could newly
// complete in. A marker split across fragments ends in the new fragment and
// begins at most MaxMarkerLen-1 bytes before it.
func (a *Accumulator) scanWindow() string {
	text := a.buf.String()
	w, ok := a.boundary.(MarkerWindow)
	if !ok {
		return text
	}
	start := a.scanned - (max(w.MaxMarkerLen(), 1) - 1)
	a.scanned = len(text)
	if start <= 0 {
		return text
	}
	return text[start:]
}

// Text returns the current buffer content
func (a *Accumulator) Text() string {
	return a.buf.String()
}

// Finalize returns the final reply and resets the buffer
func (a *Accumulator) Finalize() Result {
	text := a.buf.String()
	res := Result{Text: text, Document: a.boundary.Ready(text)}
	a.Reset()
	return res
}

// Reset empties the buffer
func (a *Accumulator) Reset() {
	a.buf.Reset()
	a.document = false
	a.scanned = 0
}
