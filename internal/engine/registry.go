package engine

import (
	"sort"
	"strings"
)

// Paragraph is the smallest unit of translatable text. Paragraphs are
// created once at ingest and never reordered or mutated.
type Paragraph struct {
	ID    string `json:"id"`
	Index int    `json:"index"` // 0-based ordinal, defines document order
	Text  string `json:"text"`
}

// Registry holds the ordered paragraph sequence for the current session
// and tracks which paragraphs have a recorded translation.
//
// The registry is owned by the engine goroutine and is not safe for
// concurrent use on its own.
type Registry struct {
	ordered   []Paragraph
	byID      map[string]int // id -> position in ordered
	completed map[string]string
}

// NewRegistry builds a registry from an ordered paragraph sequence.
// Paragraphs are re-sorted by Index defensively; ids already present in
// existing (with non-blank text) are marked completed.
func NewRegistry(paragraphs []Paragraph, existing map[string]string) *Registry {
	ordered := make([]Paragraph, len(paragraphs))
	copy(ordered, paragraphs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	r := &Registry{
		ordered:   ordered,
		byID:      make(map[string]int, len(ordered)),
		completed: make(map[string]string),
	}
	for i, p := range ordered {
		r.byID[p.ID] = i
	}
	for id, text := range existing {
		if _, ok := r.byID[id]; !ok {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		r.completed[id] = text
	}
	return r
}

// Len returns the number of paragraphs in the document.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Get returns the paragraph with the given id.
func (r *Registry) Get(id string) (Paragraph, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Paragraph{}, false
	}
	return r.ordered[i], true
}

// At returns the paragraph at the given ordinal position.
func (r *Registry) At(ordinal int) (Paragraph, bool) {
	if ordinal < 0 || ordinal >= len(r.ordered) {
		return Paragraph{}, false
	}
	return r.ordered[ordinal], true
}

// IsCompleted reports whether the paragraph has a recorded translation.
func (r *Registry) IsCompleted(id string) bool {
	_, ok := r.completed[id]
	return ok
}

// MarkCompleted records a translation for the paragraph. A blank
// translation never completes a paragraph; it reports false so the
// caller can treat it as a failure.
func (r *Registry) MarkCompleted(id, translation string) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	if strings.TrimSpace(translation) == "" {
		return false
	}
	r.completed[id] = translation
	return true
}

// ForceRetry removes the paragraph from the completed set, making it
// eligible for re-queueing.
func (r *Registry) ForceRetry(id string) {
	delete(r.completed, id)
}

// Translation returns the recorded translation for a paragraph, if any.
func (r *Registry) Translation(id string) (string, bool) {
	t, ok := r.completed[id]
	return t, ok
}

// CompletedCount returns the size of the completed set.
func (r *Registry) CompletedCount() int {
	return len(r.completed)
}

// AllCompleted reports whether every paragraph has a translation.
func (r *Registry) AllCompleted() bool {
	return len(r.completed) == len(r.ordered)
}

// FirstIncomplete returns the lowest ordinal without a translation,
// or -1 if the document is fully translated.
func (r *Registry) FirstIncomplete() int {
	for i, p := range r.ordered {
		if _, ok := r.completed[p.ID]; !ok {
			return i
		}
	}
	return -1
}
