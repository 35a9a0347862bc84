// Package ingest turns raw novel text into an ordered paragraph
// sequence ready for the translation engine.
package ingest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/engine"
)

// Request contains the parameters for ingesting a document.
type Request struct {
	Text       string // raw document text
	Title      string // optional, derived from Filename if empty
	Filename   string // original filename, used for title derivation
	SourceLang string
	TargetLang string
}

// Result is a segmented document ready to store.
type Result struct {
	DocumentID string
	Title      string
	Paragraphs []engine.Paragraph
}

var blankLines = regexp.MustCompile(`\n[ \t\r]*\n+`)

// Ingest segments the text into paragraphs on blank lines, assigns
// ordinals and ids, and returns a document record.
func Ingest(req Request) (*Result, error) {
	text := strings.ReplaceAll(req.Text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document is empty")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = deriveTitle(req.Filename)
	}

	var paragraphs []engine.Paragraph
	for _, block := range blankLines.Split(text, -1) {
		body := normalize(block)
		if body == "" {
			continue
		}
		paragraphs = append(paragraphs, engine.Paragraph{
			ID:    uuid.New().String(),
			Index: len(paragraphs),
			Text:  body,
		})
	}
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("document contains no paragraphs")
	}

	return &Result{
		DocumentID: uuid.New().String(),
		Title:      title,
		Paragraphs: paragraphs,
	}, nil
}

var innerSpace = regexp.MustCompile(`[ \t]+`)

// normalize collapses hard-wrapped lines inside a paragraph into one
// flowing line.
func normalize(block string) string {
	lines := strings.Split(block, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(innerSpace.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(strings.Join(lines, " "))
}

// deriveTitle turns a filename into a readable title.
func deriveTitle(filename string) string {
	if filename == "" {
		return "Untitled"
	}
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.TrimSpace(base)
}
