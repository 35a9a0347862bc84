package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackzampolin/folio/internal/ingest"
	"github.com/jackzampolin/folio/internal/store"
)

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /documents/{id}/metrics", s.handleDocumentMetrics)

	mux.HandleFunc("POST /documents", s.handleCreateDocument)
	mux.HandleFunc("GET /documents", s.handleListDocuments)
	mux.HandleFunc("GET /documents/{id}", s.handleGetDocument)
	mux.HandleFunc("GET /documents/{id}/paragraphs", s.handleGetParagraphs)
	mux.HandleFunc("DELETE /documents/{id}", s.handleDeleteDocument)

	mux.HandleFunc("POST /documents/{id}/session", s.handleCreateSession)
	mux.HandleFunc("GET /documents/{id}/session", s.handleSessionProgress)
	mux.HandleFunc("DELETE /documents/{id}/session", s.handleDestroySession)
	mux.HandleFunc("POST /documents/{id}/session/pause", s.handlePause)
	mux.HandleFunc("POST /documents/{id}/session/resume", s.handleResume)
	mux.HandleFunc("POST /documents/{id}/session/retry", s.handleRetry)
	mux.HandleFunc("POST /documents/{id}/session/visible", s.handleVisible)
	mux.HandleFunc("POST /documents/{id}/session/reconcile", s.handleReconcile)
}

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"usage": s.recorder.All()})
}

func (s *Server) handleDocumentMetrics(w http.ResponseWriter, r *http.Request) {
	usage, ok := s.recorder.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no usage recorded for document")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// CreateDocumentRequest is the body for document ingestion.
type CreateDocumentRequest struct {
	Text       string `json:"text"`
	Title      string `json:"title,omitempty"`
	Filename   string `json:"filename,omitempty"`
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang,omitempty"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := ingest.Ingest(ingest.Request{
		Text:       req.Text,
		Title:      req.Title,
		Filename:   req.Filename,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc := store.Document{
		ID:             result.DocumentID,
		Title:          result.Title,
		SourceLang:     req.SourceLang,
		TargetLang:     req.TargetLang,
		ParagraphCount: len(result.Paragraphs),
	}
	if err := s.store.CreateDocument(r.Context(), doc, result.Paragraphs); err != nil {
		s.logger.Error("failed to create document", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store document")
		return
	}

	s.logger.Info("document created", "id", doc.ID, "title", doc.Title, "paragraphs", doc.ParagraphCount)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ParagraphView pairs a source paragraph with its translation, if any.
type ParagraphView struct {
	ID          string `json:"id"`
	Index       int    `json:"index"`
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
}

func (s *Server) handleGetParagraphs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	paragraphs, err := s.store.Paragraphs(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load paragraphs")
		return
	}
	if len(paragraphs) == 0 {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	translations, err := s.store.Translations(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load translations")
		return
	}

	views := make([]ParagraphView, len(paragraphs))
	for i, p := range paragraphs {
		views[i] = ParagraphView{
			ID:          p.ID,
			Index:       p.Index,
			Text:        p.Text,
			Translation: translations[p.ID],
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"paragraphs": views})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// A live session holds the document's paragraphs in memory.
	_ = s.destroySession(id)
	s.recorder.Forget(id)
	if err := s.store.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.createSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	sess.engine.Start()
	writeJSON(w, http.StatusCreated, sess.engine.Progress())
}

func (s *Server) handleSessionProgress(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.engine.Progress())
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	if err := s.destroySession(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	sess.engine.Pause()
	writeJSON(w, http.StatusOK, sess.engine.Progress())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	sess.engine.Resume()
	writeJSON(w, http.StatusOK, sess.engine.Progress())
}

// ParagraphRequest names a single paragraph in a session operation.
type ParagraphRequest struct {
	ParagraphID string `json:"paragraph_id"`
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.getSession(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req ParagraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParagraphID == "" {
		writeError(w, http.StatusBadRequest, "paragraph_id is required")
		return
	}
	// Drop the persisted row now, so a failed retry or a restart before
	// the new result lands cannot resurrect the discarded text.
	s.sink.Send(store.WriteOp{Delete: true, DocumentID: id, ParagraphID: req.ParagraphID})
	sess.engine.Retry(req.ParagraphID)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleVisible(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req ParagraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParagraphID == "" {
		writeError(w, http.StatusBadRequest, "paragraph_id is required")
		return
	}
	sess.engine.ObserveVisible(req.ParagraphID)
	w.WriteHeader(http.StatusAccepted)
}

// handleReconcile re-reads persisted translations and folds them into
// the live session, so edits made outside the engine are respected.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.getSession(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	translations, err := s.store.Translations(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load translations")
		return
	}
	sess.engine.ReconcileTranslations(translations)
	w.WriteHeader(http.StatusAccepted)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
