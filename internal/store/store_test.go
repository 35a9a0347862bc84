package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/engine"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "folio.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedDocument(t *testing.T, s *Store, id string, n int) []engine.Paragraph {
	t.Helper()
	paragraphs := make([]engine.Paragraph, n)
	for i := range paragraphs {
		paragraphs[i] = engine.Paragraph{
			ID:    id + "-p" + string(rune('a'+i)),
			Index: i,
			Text:  "paragraph text",
		}
	}
	err := s.CreateDocument(context.Background(), Document{
		ID:         id,
		Title:      "Test Novel",
		SourceLang: "fr",
		TargetLang: "en",
	}, paragraphs)
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	return paragraphs
}

func TestStore_DocumentRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	paragraphs := seedDocument(t, s, "doc1", 3)

	doc, err := s.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.Title != "Test Novel" || doc.ParagraphCount != 3 {
		t.Errorf("document = %+v", doc)
	}

	got, err := s.Paragraphs(ctx, "doc1")
	if err != nil {
		t.Fatalf("Paragraphs() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("paragraphs = %d, want 3", len(got))
	}
	for i, p := range got {
		if p.Index != i || p.ID != paragraphs[i].ID {
			t.Errorf("paragraph %d = %+v", i, p)
		}
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("documents = %d, want 1", len(docs))
	}

	if _, err := s.GetDocument(ctx, "missing"); err == nil {
		t.Error("expected error for missing document")
	}
}

func TestStore_TranslationUpsertAndDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	paragraphs := seedDocument(t, s, "doc1", 2)
	pid := paragraphs[0].ID

	if err := s.SaveTranslation(ctx, "doc1", pid, "first version", "mock"); err != nil {
		t.Fatalf("SaveTranslation() error = %v", err)
	}
	if err := s.SaveTranslation(ctx, "doc1", pid, "second version", "mock"); err != nil {
		t.Fatalf("SaveTranslation() upsert error = %v", err)
	}

	got, err := s.Translations(ctx, "doc1")
	if err != nil {
		t.Fatalf("Translations() error = %v", err)
	}
	if got[pid] != "second version" {
		t.Errorf("translation = %q, want upserted value", got[pid])
	}
	if len(got) != 1 {
		t.Errorf("translations = %d, want 1", len(got))
	}

	if err := s.DeleteTranslation(ctx, pid); err != nil {
		t.Fatalf("DeleteTranslation() error = %v", err)
	}
	got, _ = s.Translations(ctx, "doc1")
	if len(got) != 0 {
		t.Errorf("translations after delete = %d, want 0", len(got))
	}
}

func TestStore_DeleteDocumentCascades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	paragraphs := seedDocument(t, s, "doc1", 2)
	s.SaveTranslation(ctx, "doc1", paragraphs[0].ID, "text", "mock")

	if err := s.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}

	if _, err := s.GetDocument(ctx, "doc1"); err == nil {
		t.Error("document still present after delete")
	}
	got, _ := s.Paragraphs(ctx, "doc1")
	if len(got) != 0 {
		t.Error("paragraphs still present after delete")
	}
	tr, _ := s.Translations(ctx, "doc1")
	if len(tr) != 0 {
		t.Error("translations still present after delete")
	}
}

func TestSink_AppliesOpsInOrder(t *testing.T) {
	s := testStore(t)
	paragraphs := seedDocument(t, s, "doc1", 1)
	pid := paragraphs[0].ID

	sink := NewSink(s, slog.Default())
	sink.Send(WriteOp{DocumentID: "doc1", ParagraphID: pid, Text: "v1", Provider: "mock"})
	sink.Send(WriteOp{DocumentID: "doc1", ParagraphID: pid, Text: "v2", Provider: "mock"})
	sink.Send(WriteOp{ParagraphID: pid, Delete: true})
	sink.Send(WriteOp{DocumentID: "doc1", ParagraphID: pid, Text: "v3", Provider: "mock"})
	sink.Close()

	got, err := s.Translations(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("Translations() error = %v", err)
	}
	if got[pid] != "v3" {
		t.Errorf("translation = %q, want v3 (ops applied in order)", got[pid])
	}
}

func TestSink_CloseIsIdempotent(t *testing.T) {
	s := testStore(t)
	sink := NewSink(s, nil)

	done := make(chan struct{})
	go func() {
		sink.Close()
		sink.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() blocked")
	}
}
