package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Engine.MaxConcurrentBatches != 3 {
		t.Errorf("expected 3 concurrent batches, got %d", cfg.Engine.MaxConcurrentBatches)
	}
	if cfg.Engine.MaxBatchParagraphs != 4 {
		t.Errorf("expected 4 paragraphs per batch, got %d", cfg.Engine.MaxBatchParagraphs)
	}
	if cfg.Translator.Provider != "openrouter" {
		t.Errorf("expected openrouter provider, got %s", cfg.Translator.Provider)
	}
}

func TestManagerDefaults(t *testing.T) {
	resetViper(t)

	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := m.Get()
	if cfg.Engine.LookAhead != 20 {
		t.Errorf("expected look_ahead 20, got %d", cfg.Engine.LookAhead)
	}
	if cfg.Engine.TickIntervalMs != 200 {
		t.Errorf("expected tick_interval_ms 200, got %d", cfg.Engine.TickIntervalMs)
	}
}

func TestManagerLoadsFile(t *testing.T) {
	resetViper(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  port: "9090"
engine:
  max_concurrent_batches: 5
translator:
  provider: mock
  target_lang: German
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := m.Get()
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Engine.MaxConcurrentBatches != 5 {
		t.Errorf("expected 5 concurrent batches, got %d", cfg.Engine.MaxConcurrentBatches)
	}
	if cfg.Translator.Provider != "mock" {
		t.Errorf("expected mock provider, got %s", cfg.Translator.Provider)
	}
	// Unset keys keep defaults.
	if cfg.Engine.MaxBatchChars != 1400 {
		t.Errorf("expected default max_batch_chars 1400, got %d", cfg.Engine.MaxBatchChars)
	}
}

func TestToEngineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Translator.SourceLang = "Japanese"
	cfg.Translator.TargetLang = "English"

	ec := cfg.ToEngineConfig()
	if ec.TickInterval != 200*time.Millisecond {
		t.Errorf("expected 200ms tick, got %v", ec.TickInterval)
	}
	if ec.SourceLang != "Japanese" || ec.TargetLang != "English" {
		t.Errorf("language pair not carried over: %q -> %q", ec.SourceLang, ec.TargetLang)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("FOLIO_TEST_KEY", "sk-12345")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"expands var", "${FOLIO_TEST_KEY}", "sk-12345"},
		{"plain string untouched", "literal-key", "literal-key"},
		{"missing var becomes empty", "${FOLIO_TEST_MISSING}", ""},
		{"embedded var", "prefix-${FOLIO_TEST_KEY}", "prefix-sk-12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveEnvVars(tt.input); got != tt.want {
				t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
