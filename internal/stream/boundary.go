package stream

import "strings"

// Boundary decides when accumulated assistant text is a renderable document
// rather than ordinary chat text. Ready sees the whole buffer. InProgress sees
// the whole buffer too, unless the boundary also implements MarkerWindow.
type Boundary interface {
	// InProgress reports whether the buffer has started a document
	InProgress(text string) bool
	// Ready reports whether the final buffer is a complete document
	Ready(text string) bool
}

// MarkerWindow is implemented by boundaries whose InProgress only matches
// markers of at most MaxMarkerLen bytes. The accumulator then scans just the
// new fragment plus the preceding MaxMarkerLen-1 bytes on each append.
type MarkerWindow interface {
	MaxMarkerLen() int
}

// MarkerBoundary detects documents by substring markers
type MarkerBoundary struct {
	StartMarkers []string
	ReadyMarkers []string
}

// HTMLBoundary streams anything that opened an HTML document and treats a
// reply carrying a doctype as a finished template.
var HTMLBoundary = MarkerBoundary{
	StartMarkers: []string{"<!DOCTYPE html>", "<html>"},
	ReadyMarkers: []string{"<!DOCTYPE html>"},
}

func (b MarkerBoundary) InProgress(text string) bool {
	return containsAny(text, b.StartMarkers)
}

func (b MarkerBoundary) Ready(text string) bool {
	return containsAny(text, b.ReadyMarkers)
}

// MaxMarkerLen returns the length of the longest start marker
func (b MarkerBoundary) MaxMarkerLen() int {
	n := 0
	for _, m := range b.StartMarkers {
		n = max(n, len(m))
	}
	return n
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}
