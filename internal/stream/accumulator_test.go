package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulatorAppends(t *testing.T) {
	acc := NewAccumulator(nil)

	first := acc.Append("Hel")
	second := acc.Append("lo")

	assert.Equal(t, "Hel", first.Text)
	assert.Equal(t, "Hello", second.Text)
	assert.False(t, second.Document)

	res := acc.Finalize()
	assert.Equal(t, "Hello", res.Text)
	assert.False(t, res.Document)
	assert.Empty(t, acc.Text(), "finalize resets the buffer")
}

func TestAccumulatorEmptyFragment(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Append("x")

	upd := acc.Append("")

	assert.False(t, upd.Grew)
	assert.Equal(t, "x", upd.Text)
}

func TestAccumulatorMarkerSplitAcrossFragments(t *testing.T) {
	acc := NewAccumulator(nil)

	assert.False(t, acc.Append("Here you go: <!DOC").Document)
	assert.False(t, acc.Append("TYPE ht").Document)
	assert.True(t, acc.Append("ml>").Document, "marker completed by this fragment")
	assert.True(t, acc.Append("<body>").Document)

	res := acc.Finalize()
	assert.True(t, res.Document)
}

func TestAccumulatorDocumentSignalsGrowMonotonically(t *testing.T) {
	acc := NewAccumulator(nil)
	fragments := []string{"Sure. ", "<html>", "<body>", "<h1>Hi</h1>", "</body>", "</html>"}

	var partials []string
	for _, f := range fragments {
		if upd := acc.Append(f); upd.Document && upd.Grew {
			partials = append(partials, upd.Text)
		}
	}

	assert.Len(t, partials, 5)
	for i := 1; i < len(partials); i++ {
		assert.True(t, strings.HasPrefix(partials[i], partials[i-1]))
		assert.Greater(t, len(partials[i]), len(partials[i-1]))
	}

	// <html> alone streams but is not a finished template
	assert.False(t, acc.Finalize().Document)
}

func TestAccumulatorEmptyFinalize(t *testing.T) {
	acc := NewAccumulator(nil)

	res := acc.Finalize()

	assert.Equal(t, "", res.Text)
	assert.False(t, res.Document)
}

type flipBoundary struct{ calls int }

func (b *flipBoundary) InProgress(string) bool {
	b.calls++
	return b.calls == 1
}

func (b *flipBoundary) Ready(string) bool { return false }

func TestAccumulatorLatchesDocument(t *testing.T) {
	acc := NewAccumulator(&flipBoundary{})

	assert.True(t, acc.Append("a").Document)
	assert.True(t, acc.Append("b").Document, "a started document stays started")
}

func TestMarkerBoundary(t *testing.T) {
	b := MarkerBoundary{StartMarkers: []string{"<mjml>"}, ReadyMarkers: []string{"</mjml>"}}

	assert.True(t, b.InProgress("x <mjml> y"))
	assert.False(t, b.Ready("x <mjml> y"))
	assert.True(t, b.Ready("<mjml></mjml>"))
	assert.False(t, MarkerBoundary{}.InProgress("anything"))
}

type recordingBoundary struct {
	MarkerBoundary
	scanned []string
}

func (b *recordingBoundary) InProgress(text string) bool {
	b.scanned = append(b.scanned, text)
	return b.MarkerBoundary.InProgress(text)
}

func TestAccumulatorScansBoundedWindow(t *testing.T) {
	b := &recordingBoundary{MarkerBoundary: HTMLBoundary}
	acc := NewAccumulator(b)
	window := HTMLBoundary.MaxMarkerLen() - 1

	chat := strings.Repeat("plain chat text ", 8)
	for i := 0; i < 50; i++ {
		assert.False(t, acc.Append(chat).Document)
	}
	for _, s := range b.scanned {
		assert.LessOrEqual(t, len(s), len(chat)+window)
	}

	assert.False(t, acc.Append("<!DOCTY").Document)
	assert.True(t, acc.Append("PE html>").Document, "split marker is still found")
	last := b.scanned[len(b.scanned)-1]
	assert.True(t, strings.HasSuffix(last, "<!DOCTYPE html>"))
	assert.LessOrEqual(t, len(last), len("PE html>")+window)

	acc.Reset()
	assert.True(t, acc.Append("<html>").Document)
	assert.Equal(t, "<html>", b.scanned[len(b.scanned)-1], "reset starts a fresh window")
}

func TestMarkerBoundaryMaxMarkerLen(t *testing.T) {
	assert.Equal(t, len("<!DOCTYPE html>"), HTMLBoundary.MaxMarkerLen())
	assert.Equal(t, 0, MarkerBoundary{}.MaxMarkerLen())

	acc := NewAccumulator(MarkerBoundary{})
	assert.False(t, acc.Append("a").Document)
	assert.False(t, acc.Append("b").Document)
}
