package store

import (
	"context"
	"log/slog"
	"sync"
)

// WriteOp is one asynchronous persistence operation.
type WriteOp struct {
	// Delete removes the translation instead of saving it.
	Delete bool

	DocumentID  string
	ParagraphID string
	Text        string
	Provider    string
}

// Sink serializes translation writes onto a single goroutine so engine
// callbacks never block on disk. Ops are applied in send order.
type Sink struct {
	store  *Store
	ops    chan WriteOp
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewSink creates and starts a sink. Call Close to drain and stop.
func NewSink(store *Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		store:  store,
		ops:    make(chan WriteOp, 256),
		logger: logger.With("component", "store-sink"),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sink) run() {
	defer close(s.done)
	ctx := context.Background()
	for op := range s.ops {
		var err error
		if op.Delete {
			err = s.store.DeleteTranslation(ctx, op.ParagraphID)
		} else {
			err = s.store.SaveTranslation(ctx, op.DocumentID, op.ParagraphID, op.Text, op.Provider)
		}
		if err != nil {
			// The translation stays in memory; a future save or manual
			// retry will write again.
			s.logger.Warn("async write failed",
				"paragraph_id", op.ParagraphID,
				"delete", op.Delete,
				"error", err,
			)
		}
	}
}

// Send queues an op without blocking. Ops are dropped with a warning
// if the buffer is full.
func (s *Sink) Send(op WriteOp) {
	select {
	case s.ops <- op:
	default:
		s.logger.Warn("sink buffer full, dropping write", "paragraph_id", op.ParagraphID)
	}
}

// Close drains pending ops and stops the sink.
func (s *Sink) Close() {
	s.closeOnce.Do(func() { close(s.ops) })
	<-s.done
}
