package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockTranslator is a Translator for testing.
type MockTranslator struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailFirst  int64 // fail the first N requests, then succeed (0 = never)

	// EmptyPositions lists zero-based positions to leave blank in every
	// response, simulating positional-empty failures.
	EmptyPositions []int

	// ShortBy truncates every response slice by N entries, simulating a
	// length-mismatch anomaly.
	ShortBy int

	// Translate overrides the default uppercase echo when set.
	Translate func(seg Segment) string

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	batchSizes   []int
}

// NewMockTranslator creates a mock with instant uppercase-echo behavior.
func NewMockTranslator() *MockTranslator {
	return &MockTranslator{}
}

// Name returns the provider identifier.
func (m *MockTranslator) Name() string {
	return MockName
}

// RequestCount returns how many batches have been submitted.
func (m *MockTranslator) RequestCount() int64 {
	return m.requestCount.Load()
}

// BatchSizes returns the sizes of all submitted batches in order.
func (m *MockTranslator) BatchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.batchSizes))
	copy(out, m.batchSizes)
	return out
}

// TranslateBatch responds positionally per the configured behavior.
func (m *MockTranslator) TranslateBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	count := m.requestCount.Add(1)

	m.mu.Lock()
	m.batchSizes = append(m.batchSizes, len(req.Segments))
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}

	if m.ShouldFail || count <= m.FailFirst {
		return nil, fmt.Errorf("mock translator failure (request %d)", count)
	}

	translations := make([]string, len(req.Segments))
	for i, seg := range req.Segments {
		if m.Translate != nil {
			translations[i] = m.Translate(seg)
		} else {
			translations[i] = strings.ToUpper(seg.Text)
		}
	}
	for _, pos := range m.EmptyPositions {
		if pos >= 0 && pos < len(translations) {
			translations[pos] = ""
		}
	}
	if m.ShortBy > 0 {
		keep := len(translations) - m.ShortBy
		if keep < 0 {
			keep = 0
		}
		translations = translations[:keep]
	}

	return &BatchResult{
		Translations: translations,
		Provider:     MockName,
		ModelUsed:    "mock-model",
		RequestID:    fmt.Sprintf("mock-%d", count),
	}, nil
}

// Verify interface compliance
var _ Translator = (*MockTranslator)(nil)
