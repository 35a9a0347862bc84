package engine

// Status is the engine-level lifecycle state.
type Status string

const (
	// StatusIdle means no queued or in-flight work remains, or the
	// engine has not been started yet.
	StatusIdle Status = "idle"

	// StatusTranslating means the engine is processing batches or
	// waiting for more visibility signals.
	StatusTranslating Status = "translating"

	// StatusPaused means the user suspended dispatch. Queue and
	// in-flight bookkeeping are preserved.
	StatusPaused Status = "paused"
)

// Progress is a point-in-time snapshot of engine state.
type Progress struct {
	Status          Status `json:"status"`
	Total           int    `json:"total"`
	Completed       int    `json:"completed"`
	Queued          int    `json:"queued"`
	InFlight        int    `json:"in_flight"`
	InFlightBatches int    `json:"in_flight_batches"`
}

// Callbacks are the outbound notification hooks. All fields are optional.
// Callbacks are invoked from the engine goroutine; implementations must
// not call back into the engine synchronously.
type Callbacks struct {
	// OnTranslationComplete fires once per paragraph with its translated text.
	OnTranslationComplete func(paragraphID, translatedText string)

	// OnTranslationError fires once per paragraph that failed. The
	// paragraph stays untranslated and becomes re-eligible for selection.
	OnTranslationError func(paragraphID string, err error)

	// OnStatusChange fires on every lifecycle transition.
	OnStatusChange func(status Status)

	// OnBatchStart fires when a batch is dispatched, with the ordinal
	// range and paragraph count.
	OnBatchStart func(firstOrdinal, lastOrdinal, count int)

	// OnLog receives free-form diagnostic messages.
	OnLog func(message string)
}
