package providers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RegistryConfig selects and configures the active translator.
type RegistryConfig struct {
	Provider   string  // "openrouter", "openai", or "mock"
	APIKey     string
	Model      string
	BaseURL    string
	RateLimit  float64
	MaxRetries int
	TimeoutSec int
}

// Registry holds the active translator and supports hot reload when
// config changes.
type Registry struct {
	mu         sync.RWMutex
	translator Translator
	logger     *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// SetLogger sets the logger used during reloads.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger != nil {
		r.logger = logger
	}
}

// Get returns the active translator, or nil if none is configured.
func (r *Registry) Get() Translator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.translator
}

// Reload replaces the active translator from config. Engine sessions
// already holding the previous translator keep it until they end.
func (r *Registry) Reload(cfg RegistryConfig) error {
	t, err := New(cfg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.translator = t
	logger := r.logger
	r.mu.Unlock()
	logger.Info("translator configured", "provider", t.Name(), "model", cfg.Model)
	return nil
}

// New builds a translator from config.
func New(cfg RegistryConfig) (Translator, error) {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	switch cfg.Provider {
	case OpenRouterName, "":
		return NewOpenRouterClient(OpenRouterConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
			Timeout:    timeout,
		}), nil
	case OpenAIName:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
			Timeout:    timeout,
		}), nil
	case MockName:
		return NewMockTranslator(), nil
	default:
		return nil, fmt.Errorf("unknown translator provider: %s", cfg.Provider)
	}
}
