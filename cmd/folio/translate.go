package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/engine"
	"github.com/jackzampolin/folio/internal/ingest"
	"github.com/jackzampolin/folio/internal/providers"
)

var (
	translateSource string
	translateTarget string
	translateOut    string
)

var translateCmd = &cobra.Command{
	Use:   "translate <file>",
	Short: "Translate a document in one shot",
	Long: `Translate a plain-text document from the command line.

All paragraphs are queued up front and translated with the same batching
and concurrency limits the server uses. The translated document is
written to stdout, or to --out if given.

Examples:
  folio translate novel.txt --target English
  folio translate novel.txt --source Japanese --out novel.en.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		cfgMgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cfgMgr.Get()

		sourceLang := translateSource
		if sourceLang == "" {
			sourceLang = cfg.Translator.SourceLang
		}
		targetLang := translateTarget
		if targetLang == "" {
			targetLang = cfg.Translator.TargetLang
		}

		result, err := ingest.Ingest(ingest.Request{
			Text:       string(raw),
			Filename:   filepath.Base(args[0]),
			SourceLang: sourceLang,
			TargetLang: targetLang,
		})
		if err != nil {
			return err
		}

		translator, err := providers.New(cfg.ToRegistryConfig())
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))

		return runTranslation(ctx, result, translator, cfg, logger)
	},
}

// runTranslation drives an engine over all paragraphs and writes the
// assembled translation when it converges.
func runTranslation(ctx context.Context, doc *ingest.Result, translator providers.Translator, cfg *config.Config, logger *slog.Logger) error {
	translations := make(map[string]string, len(doc.Paragraphs))
	idle := make(chan struct{}, 1)

	callbacks := engine.Callbacks{
		OnTranslationComplete: func(paragraphID, text string) {
			translations[paragraphID] = text
		},
		OnTranslationError: func(paragraphID string, err error) {
			logger.Warn("paragraph failed", "paragraph", paragraphID, "error", err)
		},
		OnStatusChange: func(status engine.Status) {
			if status == engine.StatusIdle {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		},
	}

	ec := cfg.ToEngineConfig()
	ec.DocumentTitle = doc.Title
	// Queue the whole document up front; there is no viewport here.
	ec.InitialPrefix = len(doc.Paragraphs)
	ec.Logger = logger

	eng := engine.New(ctx, doc.Paragraphs, nil, translator, callbacks, ec)
	defer eng.Close()
	eng.Start()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
			// Callbacks run on the engine goroutine; once idle is
			// observed no further map writes happen.
			return writeTranslation(doc, translations)
		case <-ticker.C:
			p := eng.Progress()
			fmt.Fprintf(os.Stderr, "translated %d/%d (%d queued, %d in flight)\n",
				p.Completed, p.Total, p.Queued, p.InFlight)
		}
	}
}

func writeTranslation(doc *ingest.Result, translations map[string]string) error {
	var b strings.Builder
	for i, p := range doc.Paragraphs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if text, ok := translations[p.ID]; ok {
			b.WriteString(text)
		} else {
			// Keep the source text for anything that never translated.
			b.WriteString(p.Text)
		}
	}
	b.WriteString("\n")

	if translateOut == "" {
		_, err := os.Stdout.WriteString(b.String())
		return err
	}
	if err := os.WriteFile(translateOut, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", translateOut, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", translateOut)
	return nil
}

func init() {
	translateCmd.Flags().StringVar(&translateSource, "source", "", "Source language (default: auto-detect)")
	translateCmd.Flags().StringVar(&translateTarget, "target", "", "Target language (default: from config)")
	translateCmd.Flags().StringVar(&translateOut, "out", "", "Output file (default: stdout)")

	rootCmd.AddCommand(translateCmd)
}
