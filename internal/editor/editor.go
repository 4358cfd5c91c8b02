package editor

import "sync"

// DefaultSource is the content of a fresh editor
const DefaultSource = "<html></html>"

// ChangeKind describes why the visible content changed
type ChangeKind string

const (
	ChangePartial  ChangeKind = "partial"  // in-progress document from the assistant
	ChangeReady    ChangeKind = "ready"    // assistant delivered a complete document
	ChangeEdit     ChangeKind = "edit"     // manual edit
	ChangeSnapshot ChangeKind = "snapshot" // current content sent to a new subscriber
)

// Change is sent to subscribers on every update
type Change struct {
	Kind    ChangeKind `json:"type"`
	Content string     `json:"content"`
}

// Editor holds the template source and an optional in-progress preview
type Editor struct {
	mu          sync.RWMutex
	source      string
	preview     string
	previewing  bool
	subscribers []func(Change)
}

// New creates an editor holding DefaultSource
func New() *Editor {
	return &Editor{source: DefaultSource}
}

// Subscribe registers fn for every change. fn runs synchronously.
func (e *Editor) Subscribe(fn func(Change)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// Preview shows in-progress content without replacing the committed source
func (e *Editor) Preview(partial string) {
	e.mu.Lock()
	e.preview = partial
	e.previewing = true
	e.mu.Unlock()
	e.notify(Change{Kind: ChangePartial, Content: partial})
}

// Replace commits a complete document as the new source
func (e *Editor) Replace(doc string) {
	e.mu.Lock()
	e.source = doc
	e.preview = ""
	e.previewing = false
	e.mu.Unlock()
	e.notify(Change{Kind: ChangeReady, Content: doc})
}

// Set is a manual edit of the source
func (e *Editor) Set(source string) {
	e.mu.Lock()
	e.source = source
	e.preview = ""
	e.previewing = false
	e.mu.Unlock()
	e.notify(Change{Kind: ChangeEdit, Content: source})
}

// Discard drops an in-progress preview and falls back to the source
func (e *Editor) Discard() {
	e.mu.Lock()
	if !e.previewing {
		e.mu.Unlock()
		return
	}
	e.preview = ""
	e.previewing = false
	source := e.source
	e.mu.Unlock()
	e.notify(Change{Kind: ChangeEdit, Content: source})
}

// Source returns the committed source
func (e *Editor) Source() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.source
}

// Content returns what should be rendered: the preview while one is active
func (e *Editor) Content() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.previewing {
		return e.preview
	}
	return e.source
}

func (e *Editor) notify(c Change) {
	e.mu.RLock()
	subs := make([]func(Change), len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.RUnlock()

	for _, fn := range subs {
		fn(c)
	}
}
