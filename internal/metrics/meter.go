package metrics

import (
	"context"

	"github.com/jackzampolin/folio/internal/providers"
)

// meteredTranslator wraps a translator and records usage per call.
type meteredTranslator struct {
	inner      providers.Translator
	recorder   *Recorder
	documentID string
}

// Meter returns a translator that records each call's usage against
// the given document.
func Meter(inner providers.Translator, recorder *Recorder, documentID string) providers.Translator {
	return &meteredTranslator{inner: inner, recorder: recorder, documentID: documentID}
}

func (m *meteredTranslator) Name() string { return m.inner.Name() }

func (m *meteredTranslator) TranslateBatch(ctx context.Context, req *providers.BatchRequest) (*providers.BatchResult, error) {
	result, err := m.inner.TranslateBatch(ctx, req)
	if err != nil {
		m.recorder.Record(m.documentID, Sample{
			Provider:   m.inner.Name(),
			Paragraphs: len(req.Segments),
			Success:    false,
		})
		return nil, err
	}

	m.recorder.Record(m.documentID, Sample{
		Provider:         result.Provider,
		Model:            result.ModelUsed,
		Paragraphs:       len(req.Segments),
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.TotalTokens,
		ExecutionTime:    result.ExecutionTime,
		Success:          true,
	})
	return result, nil
}
