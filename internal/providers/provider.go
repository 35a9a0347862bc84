package providers

import (
	"context"
	"time"
)

// Translator is the interface the engine dispatches batches through.
// Implementations accept an ordered run of source segments plus the
// immediately surrounding context and return translations positionally.
//
// The result length is expected to match the segment count but is not
// guaranteed; callers must map positionally and treat missing entries
// as per-segment failures.
type Translator interface {
	// TranslateBatch translates an ordered batch of segments.
	TranslateBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error)

	// Name returns the provider identifier (e.g. "openrouter", "openai").
	Name() string
}

// Segment is one paragraph inside a batch request.
type Segment struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// BatchRequest is a single translate call covering a contiguous run of
// paragraphs.
type BatchRequest struct {
	Segments []Segment `json:"segments"`

	// Context surrounding the run. Either may be empty at document edges.
	PrevContext string `json:"prev_context,omitempty"`
	NextContext string `json:"next_context,omitempty"`

	// Document-level metadata for translation coherence.
	DocumentTitle string `json:"document_title,omitempty"`
	SourceLang    string `json:"source_lang,omitempty"`
	TargetLang    string `json:"target_lang,omitempty"`

	// Request tracking
	RequestID string `json:"-"`
}

// BatchResult is the positional response to a BatchRequest. Entries
// align with the request segments; a short slice or an empty string at
// a position means that segment failed.
type BatchResult struct {
	Translations []string `json:"translations"`

	// Token counts
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Timing
	ExecutionTime time.Duration `json:"execution_time"`

	// Provider info
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	// Request tracking
	RequestID string `json:"request_id"`
}
