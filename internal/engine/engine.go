// Package engine implements the viewport-aware translation scheduler.
//
// One Engine instance owns one reading session. All mutable state
// (queue, in-flight set, completed set) lives on a single goroutine fed
// by a command channel; visibility signals, lifecycle operations, and
// batch resolutions are all commands, so no lock is needed and batch
// resolutions may interleave in any order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/providers"
)

// Config holds engine tuning knobs. Zero values select defaults.
type Config struct {
	// MaxConcurrentBatches bounds simultaneously in-flight batch
	// requests (default 3).
	MaxConcurrentBatches int

	// MaxBatchParagraphs bounds paragraphs per batch (default 4).
	MaxBatchParagraphs int

	// MaxBatchChars bounds cumulative source characters per batch
	// (default 1400).
	MaxBatchChars int

	// LookAhead is how many paragraphs past the visible one are queued
	// on each visibility signal (default 20). Forward only.
	LookAhead int

	// InitialPrefix is how many untranslated paragraphs are queued on
	// Start, beginning at the earliest incomplete ordinal (default 20).
	InitialPrefix int

	// TickInterval is the scheduling tick period (default 200ms).
	// Mutating events also trigger an immediate dispatch.
	TickInterval time.Duration

	// FailureBackoffBase / FailureBackoffMax shape the cool-down before
	// a failed paragraph is automatically re-enqueued (defaults 2s/60s).
	// MaxAutoRetries caps automatic re-enqueues per paragraph
	// (default 5); manual Retry always works and resets the count.
	FailureBackoffBase time.Duration
	FailureBackoffMax  time.Duration
	MaxAutoRetries     int

	// DocumentTitle and language pair flow into every batch request.
	DocumentTitle string
	SourceLang    string
	TargetLang    string

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = 3
	}
	if c.MaxBatchParagraphs <= 0 {
		c.MaxBatchParagraphs = 4
	}
	if c.MaxBatchChars <= 0 {
		c.MaxBatchChars = 1400
	}
	if c.LookAhead <= 0 {
		c.LookAhead = 20
	}
	if c.InitialPrefix <= 0 {
		c.InitialPrefix = 20
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 200 * time.Millisecond
	}
	if c.FailureBackoffBase <= 0 {
		c.FailureBackoffBase = 2 * time.Second
	}
	if c.FailureBackoffMax <= 0 {
		c.FailureBackoffMax = 60 * time.Second
	}
	if c.MaxAutoRetries <= 0 {
		c.MaxAutoRetries = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// failureState tracks automatic-retry bookkeeping for one paragraph.
type failureState struct {
	attempts     int
	nextEligible time.Time
}

// command kinds processed by the engine goroutine.
type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdPause
	cmdResume
	cmdRetry
	cmdVisible
	cmdReconcile
	cmdResolve
	cmdProgress
	cmdClose
)

type command struct {
	kind cmdKind

	paragraphID  string            // cmdRetry, cmdVisible
	translations map[string]string // cmdReconcile

	// cmdResolve
	batch  *batch
	gen    uint64
	result *providers.BatchResult
	err    error

	// cmdProgress
	reply chan Progress
}

// Engine is the translation scheduler for one reading session.
type Engine struct {
	cfg        Config
	registry   *Registry
	translator providers.Translator
	callbacks  Callbacks
	logger     *slog.Logger

	cmds chan command
	done chan struct{}

	// Owned by the run goroutine.
	queue           *workQueue
	inFlight        map[string]uint64 // id -> generation of the owning batch
	batchSeq        uint64
	inFlightBatches int
	started         bool
	paused          bool
	status          Status
	failures        map[string]*failureState
}

// New creates an engine for a document session. The engine runs until
// Close is called or ctx is cancelled.
func New(ctx context.Context, paragraphs []Paragraph, existing map[string]string, translator providers.Translator, callbacks Callbacks, cfg Config) *Engine {
	cfg.applyDefaults()

	e := &Engine{
		cfg:        cfg,
		registry:   NewRegistry(paragraphs, existing),
		translator: translator,
		callbacks:  callbacks,
		logger:     cfg.Logger.With("component", "engine"),
		cmds:       make(chan command, 64),
		done:       make(chan struct{}),
		queue:      newWorkQueue(),
		inFlight:   make(map[string]uint64),
		status:     StatusIdle,
		failures:   make(map[string]*failureState),
	}
	go e.run(ctx)
	return e
}

// Start begins translation. Before Start, visibility signals are ignored.
func (e *Engine) Start() { e.send(command{kind: cmdStart}) }

// Pause suspends new dispatch. Queue and in-flight bookkeeping are kept.
func (e *Engine) Pause() { e.send(command{kind: cmdPause}) }

// Resume lifts a pause and immediately re-attempts dispatch.
func (e *Engine) Resume() { e.send(command{kind: cmdResume}) }

// Retry forces a paragraph out of completed/in-flight into a
// high-priority queue slot and dispatches immediately.
func (e *Engine) Retry(paragraphID string) {
	e.send(command{kind: cmdRetry, paragraphID: paragraphID})
}

// ObserveVisible is the visibility signal: the paragraph entered the
// read vicinity. Ignored until Start.
func (e *Engine) ObserveVisible(paragraphID string) {
	e.send(command{kind: cmdVisible, paragraphID: paragraphID})
}

// ReconcileTranslations folds externally persisted translations into
// the completed set (e.g. after a storage load).
func (e *Engine) ReconcileTranslations(translations map[string]string) {
	e.send(command{kind: cmdReconcile, translations: translations})
}

// Progress returns a snapshot of engine state.
func (e *Engine) Progress() Progress {
	reply := make(chan Progress, 1)
	select {
	case e.cmds <- command{kind: cmdProgress, reply: reply}:
		select {
		case p := <-reply:
			return p
		case <-e.done:
		}
	case <-e.done:
	}
	return Progress{Status: StatusIdle, Total: e.registry.Len()}
}

// Close tears the session down. In-flight requests are not aborted but
// their resolutions are discarded.
func (e *Engine) Close() {
	select {
	case e.cmds <- command{kind: cmdClose}:
	case <-e.done:
	}
}

// Done is closed when the engine goroutine has exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) send(c command) {
	select {
	case e.cmds <- c:
	case <-e.done:
	}
}

// run is the single goroutine owning all mutable scheduling state.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return

		case c := <-e.cmds:
			if c.kind == cmdClose {
				e.teardown()
				return
			}
			e.handle(ctx, c)

		case <-ticker.C:
			e.requeueEligibleFailures()
			e.dispatch(ctx)
		}
	}
}

func (e *Engine) teardown() {
	e.queue.clear()
	e.inFlight = make(map[string]uint64)
	e.log("engine closed")
}

func (e *Engine) handle(ctx context.Context, c command) {
	switch c.kind {
	case cmdStart:
		e.handleStart()
	case cmdPause:
		e.handlePause()
	case cmdResume:
		e.handleResume()
	case cmdRetry:
		e.handleRetry(c.paragraphID)
	case cmdVisible:
		e.handleVisible(c.paragraphID)
	case cmdReconcile:
		e.handleReconcile(c.translations)
	case cmdResolve:
		e.handleResolve(c)
	case cmdProgress:
		c.reply <- Progress{
			Status:          e.status,
			Total:           e.registry.Len(),
			Completed:       e.registry.CompletedCount(),
			Queued:          e.queue.len(),
			InFlight:        len(e.inFlight),
			InFlightBatches: e.inFlightBatches,
		}
		return // read-only, no dispatch
	}
	// Every mutating command doubles as an immediate tick.
	e.dispatch(ctx)
}

func (e *Engine) handleStart() {
	if e.started {
		return
	}
	e.started = true
	e.log("engine started")

	// Queue the initial prefix from the earliest untranslated ordinal,
	// so work begins before the viewport reports anything. Supports
	// resume-from-middle for partially translated documents.
	first := e.registry.FirstIncomplete()
	if first < 0 {
		return
	}
	e.enqueueWindow(first, e.cfg.InitialPrefix)
}

func (e *Engine) handlePause() {
	if !e.started || e.paused {
		return
	}
	e.paused = true
	e.setStatus(StatusPaused)
	e.log("engine paused")
}

func (e *Engine) handleResume() {
	if !e.paused {
		return
	}
	e.paused = false
	e.log("engine resumed")
	e.recomputeStatus()
}

func (e *Engine) handleRetry(id string) {
	p, ok := e.registry.Get(id)
	if !ok {
		e.log(fmt.Sprintf("retry ignored: unknown paragraph %s", id))
		return
	}

	e.registry.ForceRetry(id)
	delete(e.inFlight, id) // a live resolution for this id is discarded
	delete(e.failures, id)
	e.queue.remove(id)
	e.queue.insert(queueItem{
		id:         id,
		ordinal:    p.Index,
		priority:   priorityHigh,
		enqueuedAt: time.Now(),
	})
	e.log(fmt.Sprintf("retry queued for paragraph %d", p.Index))
	if !e.paused && e.started {
		e.setStatus(StatusTranslating)
	}
}

func (e *Engine) handleVisible(id string) {
	if !e.started {
		return // no background work before the user opts in
	}
	p, ok := e.registry.Get(id)
	if !ok {
		e.log(fmt.Sprintf("visibility signal for unknown paragraph %s", id))
		return
	}
	// Visible paragraph plus the forward look-ahead window.
	e.enqueueWindow(p.Index, 1+e.cfg.LookAhead)
}

// enqueueWindow queues up to count eligible paragraphs at normal
// priority starting at the given ordinal, skipping anything already
// queued, in-flight, completed, or cooling down after a failure.
func (e *Engine) enqueueWindow(start, count int) {
	now := time.Now()
	added := 0
	for ord := start; ord < start+count; ord++ {
		p, ok := e.registry.At(ord)
		if !ok {
			break
		}
		if !e.eligible(p.ID, now) {
			continue
		}
		e.queue.insert(queueItem{
			id:         p.ID,
			ordinal:    ord,
			priority:   priorityNormal,
			enqueuedAt: now,
		})
		added++
	}
	if added > 0 && e.started && !e.paused {
		e.setStatus(StatusTranslating)
	}
}

// eligible reports whether a paragraph may be enqueued right now.
func (e *Engine) eligible(id string, now time.Time) bool {
	if e.queue.contains(id) || e.registry.IsCompleted(id) {
		return false
	}
	if _, ok := e.inFlight[id]; ok {
		return false
	}
	if f, ok := e.failures[id]; ok {
		if f.attempts > e.cfg.MaxAutoRetries {
			return false // parked until manual retry
		}
		if now.Before(f.nextEligible) {
			return false
		}
	}
	return true
}

// requeueEligibleFailures re-enqueues failed paragraphs whose cool-down
// has elapsed. Runs on the interval tick only.
func (e *Engine) requeueEligibleFailures() {
	if !e.started || e.paused {
		return
	}
	now := time.Now()
	for id, f := range e.failures {
		if f.attempts > e.cfg.MaxAutoRetries || now.Before(f.nextEligible) {
			continue
		}
		p, ok := e.registry.Get(id)
		if !ok {
			delete(e.failures, id)
			continue
		}
		if !e.eligible(id, now) {
			continue
		}
		e.queue.insert(queueItem{
			id:         id,
			ordinal:    p.Index,
			priority:   priorityNormal,
			enqueuedAt: now,
		})
	}
}

func (e *Engine) handleReconcile(translations map[string]string) {
	for id, text := range translations {
		if strings.TrimSpace(text) == "" {
			continue
		}
		if _, ok := e.inFlight[id]; ok {
			continue // let the live batch resolve on its own
		}
		if e.registry.MarkCompleted(id, text) {
			e.queue.remove(id)
			delete(e.failures, id)
		}
	}
	e.recomputeStatus()
}

// dispatch fills spare concurrency with new batches. This is the
// scheduling tick; mutating commands call it immediately and the
// interval ticker calls it as a backstop.
func (e *Engine) dispatch(ctx context.Context) {
	if !e.started || e.paused {
		return
	}
	for e.inFlightBatches < e.cfg.MaxConcurrentBatches {
		b := buildBatch(e.queue, e.registry, e.cfg.MaxBatchParagraphs, e.cfg.MaxBatchChars)
		if b == nil {
			break
		}
		e.launch(ctx, b)
	}
	e.recomputeStatus()
}

// launch marks the batch in-flight and dispatches it asynchronously.
// Each batch gets a generation number; membership stamped with it is
// only consumable by that batch's own resolution, so a retry that
// re-dispatches a paragraph orphans the older batch's claim on it.
func (e *Engine) launch(ctx context.Context, b *batch) {
	e.batchSeq++
	gen := e.batchSeq
	for _, id := range b.ids() {
		e.inFlight[id] = gen
	}
	e.inFlightBatches++

	first, last, count := b.first(), b.last(), len(b.paragraphs)
	if e.callbacks.OnBatchStart != nil {
		e.callbacks.OnBatchStart(first, last, count)
	}
	e.log(fmt.Sprintf("dispatching batch [%d..%d] (%d paragraphs)", first, last, count))

	req := e.buildRequest(b)
	go func() {
		result, err := e.translator.TranslateBatch(ctx, req)
		select {
		case e.cmds <- command{kind: cmdResolve, batch: b, gen: gen, result: result, err: err}:
		case <-e.done:
			// Torn down: discard the resolution.
		}
	}()
}

func (e *Engine) buildRequest(b *batch) *providers.BatchRequest {
	segments := make([]providers.Segment, len(b.paragraphs))
	for i, p := range b.paragraphs {
		segments[i] = providers.Segment{ID: p.ID, Text: p.Text}
	}
	req := &providers.BatchRequest{
		Segments:      segments,
		DocumentTitle: e.cfg.DocumentTitle,
		SourceLang:    e.cfg.SourceLang,
		TargetLang:    e.cfg.TargetLang,
		RequestID:     uuid.New().String(),
	}
	if prev, ok := e.registry.At(b.first() - 1); ok {
		req.PrevContext = prev.Text
	}
	if next, ok := e.registry.At(b.last() + 1); ok {
		req.NextContext = next.Text
	}
	return req
}

// handleResolve reconciles one batch resolution. The in-flight counter
// is released exactly once here on every path.
func (e *Engine) handleResolve(c command) {
	e.inFlightBatches--

	if c.err != nil {
		// Batch-level failure: every member reverts to untranslated.
		e.log(fmt.Sprintf("batch [%d..%d] failed: %v", c.batch.first(), c.batch.last(), c.err))
		for _, p := range c.batch.paragraphs {
			if !e.dropInFlight(p.ID, c.gen) {
				continue // retried or torn down meanwhile
			}
			e.recordFailure(p.ID)
			if e.callbacks.OnTranslationError != nil {
				e.callbacks.OnTranslationError(p.ID, c.err)
			}
		}
		return
	}

	translations := c.result.Translations
	if len(translations) != len(c.batch.paragraphs) {
		e.logger.Warn("batch length mismatch",
			"requested", len(c.batch.paragraphs),
			"returned", len(translations),
		)
		e.log(fmt.Sprintf("batch [%d..%d]: length mismatch (%d requested, %d returned)",
			c.batch.first(), c.batch.last(), len(c.batch.paragraphs), len(translations)))
	}

	// Positional mapping: entries beyond the returned length and blank
	// entries are per-paragraph failures; siblings still complete.
	for i, p := range c.batch.paragraphs {
		if !e.dropInFlight(p.ID, c.gen) {
			continue
		}
		var text string
		if i < len(translations) {
			text = translations[i]
		}
		if e.registry.MarkCompleted(p.ID, text) {
			delete(e.failures, p.ID)
			if e.callbacks.OnTranslationComplete != nil {
				e.callbacks.OnTranslationComplete(p.ID, text)
			}
			continue
		}
		e.recordFailure(p.ID)
		if e.callbacks.OnTranslationError != nil {
			e.callbacks.OnTranslationError(p.ID, fmt.Errorf("empty translation at batch position %d", i))
		}
	}
}

// dropInFlight removes the id from the in-flight set, reporting whether
// it was still claimed by the batch of generation gen. Manual retry
// during flight removes membership, and a re-dispatch stamps a newer
// generation; either way the stale resolution is a no-op for that id.
func (e *Engine) dropInFlight(id string, gen uint64) bool {
	owner, ok := e.inFlight[id]
	if !ok || owner != gen {
		return false
	}
	delete(e.inFlight, id)
	return true
}

// recordFailure bumps the failure count and sets the cool-down before
// automatic re-enqueue: base * 2^(attempts-1), capped.
func (e *Engine) recordFailure(id string) {
	f := e.failures[id]
	if f == nil {
		f = &failureState{}
		e.failures[id] = f
	}
	f.attempts++
	backoff := e.cfg.FailureBackoffBase << uint(f.attempts-1)
	if backoff > e.cfg.FailureBackoffMax || backoff <= 0 {
		backoff = e.cfg.FailureBackoffMax
	}
	f.nextEligible = time.Now().Add(backoff)
	if f.attempts > e.cfg.MaxAutoRetries {
		e.log(fmt.Sprintf("paragraph %s parked after %d failed attempts", id, f.attempts))
	}
}

func (e *Engine) recomputeStatus() {
	if e.paused {
		e.setStatus(StatusPaused)
		return
	}
	if !e.started {
		e.setStatus(StatusIdle)
		return
	}
	if e.queue.len() == 0 && e.inFlightBatches == 0 && e.registry.AllCompleted() {
		e.setStatus(StatusIdle)
		return
	}
	e.setStatus(StatusTranslating)
}

func (e *Engine) setStatus(s Status) {
	if e.status == s {
		return
	}
	e.status = s
	e.logger.Debug("status change", "status", s)
	if e.callbacks.OnStatusChange != nil {
		e.callbacks.OnStatusChange(s)
	}
}

func (e *Engine) log(msg string) {
	e.logger.Debug(msg)
	if e.callbacks.OnLog != nil {
		e.callbacks.OnLog(msg)
	}
}
