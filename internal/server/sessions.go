package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackzampolin/folio/internal/engine"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/store"
)

// session is a live translation run for one document. Translated
// paragraphs are persisted through the write sink as the engine
// reports them.
type session struct {
	documentID string
	engine     *engine.Engine
	createdAt  time.Time
}

var errNoSession = errors.New("no active session for document")

// createSession loads the document and its persisted translations,
// builds an engine around them, and registers the session. Creating a
// session for a document that already has one is an error.
func (s *Server) createSession(ctx context.Context, documentID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[documentID]; ok {
		return nil, fmt.Errorf("session already exists for document %s", documentID)
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	paragraphs, err := s.store.Paragraphs(ctx, documentID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.Translations(ctx, documentID)
	if err != nil {
		return nil, err
	}

	translator := s.registry.Get()
	if translator == nil {
		return nil, errors.New("no translation provider configured")
	}

	cfg := engine.Config{
		DocumentTitle: doc.Title,
		SourceLang:    doc.SourceLang,
		TargetLang:    doc.TargetLang,
		Logger:        s.logger.With("document", documentID),
	}
	if s.configMgr != nil {
		ec := s.configMgr.Get().ToEngineConfig()
		ec.DocumentTitle = cfg.DocumentTitle
		ec.SourceLang = cfg.SourceLang
		ec.TargetLang = cfg.TargetLang
		ec.Logger = cfg.Logger
		cfg = ec
	}

	callbacks := engine.Callbacks{
		OnTranslationComplete: func(paragraphID, text string) {
			s.sink.Send(store.WriteOp{
				DocumentID:  documentID,
				ParagraphID: paragraphID,
				Text:        text,
				Provider:    translator.Name(),
			})
		},
		OnTranslationError: func(paragraphID string, err error) {
			s.logger.Warn("paragraph translation failed",
				"document", documentID, "paragraph", paragraphID, "error", err)
		},
		OnStatusChange: func(status engine.Status) {
			s.logger.Info("session status changed", "document", documentID, "status", status)
		},
		OnBatchStart: func(first, last, count int) {
			s.logger.Debug("batch dispatched",
				"document", documentID, "first", first, "last", last, "count", count)
		},
	}

	metered := metrics.Meter(translator, s.recorder, documentID)

	// Session lifetime is governed by Close, not by the request context.
	sess := &session{
		documentID: documentID,
		engine:     engine.New(context.Background(), paragraphs, existing, metered, callbacks, cfg),
		createdAt:  time.Now(),
	}
	s.sessions[documentID] = sess
	return sess, nil
}

func (s *Server) getSession(documentID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[documentID]
	if !ok {
		return nil, errNoSession
	}
	return sess, nil
}

// destroySession closes the engine and removes the session. In-flight
// requests are not aborted; their late results are discarded.
func (s *Server) destroySession(documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[documentID]
	if !ok {
		return errNoSession
	}
	sess.engine.Close()
	delete(s.sessions, documentID)
	return nil
}
