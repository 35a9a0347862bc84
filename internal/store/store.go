// Package store persists documents, paragraphs, and translations in an
// embedded SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jackzampolin/folio/internal/engine"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Document is a stored novel.
type Document struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	SourceLang     string    `json:"source_lang"`
	TargetLang     string    `json:"target_lang"`
	ParagraphCount int       `json:"paragraph_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// Open opens (creating if needed) the database at path and runs
// migrations. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:"
	// databases from fragmenting across the pool.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		source_lang TEXT NOT NULL DEFAULT '',
		target_lang TEXT NOT NULL DEFAULT '',
		paragraph_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS paragraphs (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		text TEXT NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id),
		UNIQUE(document_id, ordinal)
	);

	CREATE TABLE IF NOT EXISTS translations (
		paragraph_id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		text TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (paragraph_id) REFERENCES paragraphs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_paragraphs_document ON paragraphs(document_id, ordinal);
	CREATE INDEX IF NOT EXISTS idx_translations_document ON translations(document_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateDocument stores a document and its paragraphs in one
// transaction.
func (s *Store) CreateDocument(ctx context.Context, doc Document, paragraphs []engine.Paragraph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, source_lang, target_lang, paragraph_count) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.SourceLang, doc.TargetLang, len(paragraphs),
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO paragraphs (id, document_id, ordinal, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare paragraph insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range paragraphs {
		if _, err := stmt.ExecContext(ctx, p.ID, doc.ID, p.Index, p.Text); err != nil {
			return fmt.Errorf("insert paragraph %d: %w", p.Index, err)
		}
	}

	return tx.Commit()
}

// GetDocument returns a stored document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, source_lang, target_lang, paragraph_count, created_at FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Title, &doc.SourceLang, &doc.TargetLang, &doc.ParagraphCount, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns all stored documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, source_lang, target_lang, paragraph_count, created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.SourceLang, &doc.TargetLang, &doc.ParagraphCount, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Paragraphs returns a document's paragraphs in ordinal order.
func (s *Store) Paragraphs(ctx context.Context, documentID string) ([]engine.Paragraph, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ordinal, text FROM paragraphs WHERE document_id = ? ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list paragraphs: %w", err)
	}
	defer rows.Close()

	var out []engine.Paragraph
	for rows.Next() {
		var p engine.Paragraph
		if err := rows.Scan(&p.ID, &p.Index, &p.Text); err != nil {
			return nil, fmt.Errorf("scan paragraph: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Translations returns a document's stored translations keyed by
// paragraph id.
func (s *Store) Translations(ctx context.Context, documentID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT paragraph_id, text FROM translations WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list translations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		out[id] = text
	}
	return out, rows.Err()
}

// SaveTranslation upserts one paragraph's translation.
func (s *Store) SaveTranslation(ctx context.Context, documentID, paragraphID, text, provider string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO translations (paragraph_id, document_id, text, provider, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(paragraph_id) DO UPDATE SET
			text = excluded.text,
			provider = excluded.provider,
			updated_at = CURRENT_TIMESTAMP`,
		paragraphID, documentID, text, provider,
	)
	if err != nil {
		return fmt.Errorf("save translation: %w", err)
	}
	return nil
}

// DeleteTranslation removes one paragraph's translation (manual retry).
func (s *Store) DeleteTranslation(ctx context.Context, paragraphID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM translations WHERE paragraph_id = ?`, paragraphID); err != nil {
		return fmt.Errorf("delete translation: %w", err)
	}
	return nil
}

// DeleteDocument removes a document with its paragraphs and
// translations.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM translations WHERE document_id = ?`,
		`DELETE FROM paragraphs WHERE document_id = ?`,
		`DELETE FROM documents WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, documentID); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
	}
	return tx.Commit()
}
