package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/engine"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/store"
)

// newTestServer builds a server over an in-memory database with the
// mock translator wired in.
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	srv, err := New(Config{DatabasePath: ":memory:"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.registry.Reload(providers.RegistryConfig{Provider: providers.MockName}); err != nil {
		t.Fatalf("registry reload: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.mu.Lock()
		for id, sess := range srv.sessions {
			sess.engine.Close()
			delete(srv.sessions, id)
		}
		srv.mu.Unlock()
		srv.sink.Close()
		srv.store.Close()
	})
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func createTestDocument(t *testing.T, baseURL string, paragraphs int) store.Document {
	t.Helper()
	text := ""
	for i := 0; i < paragraphs; i++ {
		text += fmt.Sprintf("paragraph number %d\n\n", i)
	}
	resp := postJSON(t, baseURL+"/documents", CreateDocumentRequest{
		Text:       text,
		Title:      "Test Novel",
		SourceLang: "Japanese",
		TargetLang: "English",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create document status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	return decodeBody[store.Document](t, resp)
}

func TestServer_HealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	health := decodeBody[HealthResponse](t, resp)
	if health.Status != "ok" {
		t.Errorf("health.Status = %q, want %q", health.Status, "ok")
	}
}

func TestServer_DocumentLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	doc := createTestDocument(t, ts.URL, 5)
	if doc.ParagraphCount != 5 {
		t.Errorf("ParagraphCount = %d, want 5", doc.ParagraphCount)
	}

	t.Run("list", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/documents")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		body := decodeBody[struct {
			Documents []store.Document `json:"documents"`
		}](t, resp)
		if len(body.Documents) != 1 {
			t.Fatalf("got %d documents, want 1", len(body.Documents))
		}
		if body.Documents[0].Title != "Test Novel" {
			t.Errorf("title = %q", body.Documents[0].Title)
		}
	})

	t.Run("get", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/documents/" + doc.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		got := decodeBody[store.Document](t, resp)
		if got.ID != doc.ID {
			t.Errorf("id = %q, want %q", got.ID, doc.ID)
		}
	})

	t.Run("paragraphs", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/documents/" + doc.ID + "/paragraphs")
		if err != nil {
			t.Fatalf("paragraphs: %v", err)
		}
		body := decodeBody[struct {
			Paragraphs []ParagraphView `json:"paragraphs"`
		}](t, resp)
		if len(body.Paragraphs) != 5 {
			t.Fatalf("got %d paragraphs, want 5", len(body.Paragraphs))
		}
		for i, p := range body.Paragraphs {
			if p.Index != i {
				t.Errorf("paragraph %d has index %d", i, p.Index)
			}
			if p.Translation != "" {
				t.Errorf("paragraph %d unexpectedly translated", i)
			}
		}
	})

	t.Run("delete", func(t *testing.T) {
		resp := doRequest(t, http.MethodDelete, ts.URL+"/documents/"+doc.ID)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("delete status = %d, want %d", resp.StatusCode, http.StatusNoContent)
		}

		getResp, err := http.Get(ts.URL + "/documents/" + doc.ID)
		if err != nil {
			t.Fatalf("get after delete: %v", err)
		}
		getResp.Body.Close()
		if getResp.StatusCode != http.StatusNotFound {
			t.Errorf("get after delete status = %d, want %d", getResp.StatusCode, http.StatusNotFound)
		}
	})
}

func TestServer_SessionLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	doc := createTestDocument(t, ts.URL, 6)
	sessionURL := ts.URL + "/documents/" + doc.ID + "/session"

	resp := postJSON(t, sessionURL, struct{}{})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	progress := decodeBody[engine.Progress](t, resp)
	if progress.Total != 6 {
		t.Errorf("progress.Total = %d, want 6", progress.Total)
	}

	t.Run("duplicate_session_rejected", func(t *testing.T) {
		resp := postJSON(t, sessionURL, struct{}{})
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("duplicate session status = %d, want %d", resp.StatusCode, http.StatusConflict)
		}
	})

	t.Run("translates_to_completion", func(t *testing.T) {
		deadline := time.Now().Add(5 * time.Second)
		for {
			resp := doRequest(t, http.MethodGet, sessionURL)
			progress := decodeBody[engine.Progress](t, resp)
			if progress.Completed == 6 && progress.Status == engine.StatusIdle {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("session did not converge: %+v", progress)
			}
			time.Sleep(20 * time.Millisecond)
		}
	})

	t.Run("translations_persisted", func(t *testing.T) {
		deadline := time.Now().Add(5 * time.Second)
		for {
			resp, err := http.Get(ts.URL + "/documents/" + doc.ID + "/paragraphs")
			if err != nil {
				t.Fatalf("paragraphs: %v", err)
			}
			body := decodeBody[struct {
				Paragraphs []ParagraphView `json:"paragraphs"`
			}](t, resp)
			done := true
			for _, p := range body.Paragraphs {
				if p.Translation == "" {
					done = false
					break
				}
			}
			if done {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("translations never persisted")
			}
			time.Sleep(20 * time.Millisecond)
		}
	})

	t.Run("pause_resume", func(t *testing.T) {
		resp := postJSON(t, sessionURL+"/pause", struct{}{})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("pause status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		resp = postJSON(t, sessionURL+"/resume", struct{}{})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("resume status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	t.Run("reconcile", func(t *testing.T) {
		resp := postJSON(t, sessionURL+"/reconcile", struct{}{})
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("reconcile status = %d, want %d", resp.StatusCode, http.StatusAccepted)
		}
	})

	t.Run("usage_recorded", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/documents/" + doc.ID + "/metrics")
		if err != nil {
			t.Fatalf("metrics: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("metrics status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		usage := decodeBody[metrics.Usage](t, resp)
		if usage.Requests == 0 {
			t.Error("expected at least one recorded request")
		}
		if usage.Paragraphs != 6 {
			t.Errorf("usage.Paragraphs = %d, want 6", usage.Paragraphs)
		}
	})

	t.Run("destroy", func(t *testing.T) {
		resp := doRequest(t, http.MethodDelete, sessionURL)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("destroy status = %d, want %d", resp.StatusCode, http.StatusNoContent)
		}

		getResp := doRequest(t, http.MethodGet, sessionURL)
		getResp.Body.Close()
		if getResp.StatusCode != http.StatusNotFound {
			t.Errorf("progress after destroy status = %d, want %d", getResp.StatusCode, http.StatusNotFound)
		}
	})
}

func TestServer_RetryDropsPersistedTranslation(t *testing.T) {
	srv, ts := newTestServer(t)
	doc := createTestDocument(t, ts.URL, 3)
	sessionURL := ts.URL + "/documents/" + doc.ID + "/session"

	// Succeed until the document converges, then answer blank so the
	// retried paragraph fails and nothing re-saves it.
	var failNow atomic.Bool
	mock := srv.registry.Get().(*providers.MockTranslator)
	mock.Translate = func(seg providers.Segment) string {
		if failNow.Load() {
			return ""
		}
		return strings.ToUpper(seg.Text)
	}

	resp := postJSON(t, sessionURL, struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}

	fetchParagraphs := func() []ParagraphView {
		resp, err := http.Get(ts.URL + "/documents/" + doc.ID + "/paragraphs")
		if err != nil {
			t.Fatalf("paragraphs: %v", err)
		}
		body := decodeBody[struct {
			Paragraphs []ParagraphView `json:"paragraphs"`
		}](t, resp)
		return body.Paragraphs
	}

	var target ParagraphView
	deadline := time.Now().Add(5 * time.Second)
	for {
		views := fetchParagraphs()
		persisted := 0
		for _, p := range views {
			if p.Translation != "" {
				persisted++
			}
		}
		if persisted == 3 {
			target = views[1]
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("translations never persisted")
		}
		time.Sleep(20 * time.Millisecond)
	}

	failNow.Store(true)
	resp = postJSON(t, sessionURL+"/retry", ParagraphRequest{ParagraphID: target.ID})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("retry status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	// The stored row is deleted up front; with the provider now failing
	// there is no fresh result to resurrect it.
	deadline = time.Now().Add(5 * time.Second)
	for {
		views := fetchParagraphs()
		if views[1].Translation == "" {
			if views[0].Translation == "" || views[2].Translation == "" {
				t.Fatal("retry removed a sibling's persisted translation")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("retried paragraph's stored translation was never removed")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestServer_SessionRequiresDocument(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/documents/no-such-doc/session", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestServer_ParagraphIDRequired(t *testing.T) {
	_, ts := newTestServer(t)
	doc := createTestDocument(t, ts.URL, 3)
	sessionURL := ts.URL + "/documents/" + doc.ID + "/session"

	resp := postJSON(t, sessionURL, struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}

	for _, path := range []string{"/retry", "/visible"} {
		t.Run(path, func(t *testing.T) {
			resp := postJSON(t, sessionURL+path, map[string]string{})
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
		})
	}
}

func TestServer_EmptyDocumentRejected(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/documents", CreateDocumentRequest{Text: "   \n\n  "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
