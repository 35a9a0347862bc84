// Package metrics tracks token usage and timing for translation calls.
package metrics

import (
	"sync"
	"time"
)

// Usage is the accumulated usage for one document.
type Usage struct {
	DocumentID       string  `json:"document_id"`
	Provider         string  `json:"provider,omitempty"`
	Model            string  `json:"model,omitempty"`
	Requests         int     `json:"requests"`
	Failures         int     `json:"failures"`
	Paragraphs       int     `json:"paragraphs"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	ExecutionSeconds float64 `json:"execution_seconds"`
}

// Sample is one translation call's worth of usage.
type Sample struct {
	Provider         string
	Model            string
	Paragraphs       int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ExecutionTime    time.Duration
	Success          bool
}

// Recorder accumulates usage per document. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	usage map[string]*Usage
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{usage: make(map[string]*Usage)}
}

// Record folds a sample into the document's running totals.
func (r *Recorder) Record(documentID string, s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.usage[documentID]
	if !ok {
		u = &Usage{DocumentID: documentID}
		r.usage[documentID] = u
	}

	u.Requests++
	if !s.Success {
		u.Failures++
		return
	}
	if s.Provider != "" {
		u.Provider = s.Provider
	}
	if s.Model != "" {
		u.Model = s.Model
	}
	u.Paragraphs += s.Paragraphs
	u.PromptTokens += s.PromptTokens
	u.CompletionTokens += s.CompletionTokens
	u.TotalTokens += s.TotalTokens
	u.ExecutionSeconds += s.ExecutionTime.Seconds()
}

// Get returns a copy of the usage for one document.
func (r *Recorder) Get(documentID string) (Usage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.usage[documentID]
	if !ok {
		return Usage{}, false
	}
	return *u, true
}

// All returns a copy of every document's usage.
func (r *Recorder) All() []Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Usage, 0, len(r.usage))
	for _, u := range r.usage {
		out = append(out, *u)
	}
	return out
}

// Forget drops a document's accumulated usage.
func (r *Recorder) Forget(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.usage, documentID)
}
