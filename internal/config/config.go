// Package config loads and hot-reloads folio configuration via viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/jackzampolin/folio/internal/engine"
	"github.com/jackzampolin/folio/internal/providers"
)

// Config is the full folio configuration tree.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Translator TranslatorConfig `mapstructure:"translator"`
	Engine     EngineConfig     `mapstructure:"engine"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// TranslatorConfig selects and tunes the remote translation provider.
type TranslatorConfig struct {
	Provider       string  `mapstructure:"provider"` // openrouter, openai, mock
	APIKey         string  `mapstructure:"api_key"`  // supports ${ENV_VAR}
	Model          string  `mapstructure:"model"`
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"` // requests per second
	MaxRetries     int     `mapstructure:"max_retries"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	SourceLang     string  `mapstructure:"source_lang"`
	TargetLang     string  `mapstructure:"target_lang"`
}

// EngineConfig holds scheduling knobs for the translation engine.
type EngineConfig struct {
	MaxConcurrentBatches int     `mapstructure:"max_concurrent_batches"`
	MaxBatchParagraphs   int     `mapstructure:"max_batch_paragraphs"`
	MaxBatchChars        int     `mapstructure:"max_batch_chars"`
	LookAhead            int     `mapstructure:"look_ahead"`
	InitialPrefix        int     `mapstructure:"initial_prefix"`
	TickIntervalMs       int     `mapstructure:"tick_interval_ms"`
	PreloadFraction      float64 `mapstructure:"preload_fraction"` // of viewport height, consumed by the reading client
}

// DefaultConfig returns the defaults seeded into viper.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Translator: TranslatorConfig{
			Provider:       "openrouter",
			APIKey:         "${OPENROUTER_API_KEY}",
			RateLimit:      1.0,
			MaxRetries:     3,
			TimeoutSeconds: 120,
			TargetLang:     "English",
		},
		Engine: EngineConfig{
			MaxConcurrentBatches: 3,
			MaxBatchParagraphs:   4,
			MaxBatchChars:        1400,
			LookAhead:            20,
			InitialPrefix:        20,
			TickIntervalMs:       200,
			PreloadFraction:      0.8,
		},
	}
}

// ToRegistryConfig converts the translator section for the provider
// registry, expanding ${ENV_VAR} references in the API key.
func (c *Config) ToRegistryConfig() providers.RegistryConfig {
	return providers.RegistryConfig{
		Provider:   c.Translator.Provider,
		APIKey:     ResolveEnvVars(c.Translator.APIKey),
		Model:      c.Translator.Model,
		BaseURL:    c.Translator.BaseURL,
		RateLimit:  c.Translator.RateLimit,
		MaxRetries: c.Translator.MaxRetries,
		TimeoutSec: c.Translator.TimeoutSeconds,
	}
}

// ToEngineConfig converts the engine section into engine.Config.
func (c *Config) ToEngineConfig() engine.Config {
	return engine.Config{
		MaxConcurrentBatches: c.Engine.MaxConcurrentBatches,
		MaxBatchParagraphs:   c.Engine.MaxBatchParagraphs,
		MaxBatchChars:        c.Engine.MaxBatchChars,
		LookAhead:            c.Engine.LookAhead,
		InitialPrefix:        c.Engine.InitialPrefix,
		TickInterval:         time.Duration(c.Engine.TickIntervalMs) * time.Millisecond,
		SourceLang:           c.Translator.SourceLang,
		TargetLang:           c.Translator.TargetLang,
	}
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	m := &Manager{}
	if err := m.initViper(cfgFile); err != nil {
		return nil, err
	}
	cfg, err := m.load()
	if err != nil {
		return nil, err
	}
	m.config = cfg
	return m, nil
}

func (m *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("server", defaults.Server)
	viper.SetDefault("translator", defaults.Translator)
	viper.SetDefault("engine", defaults.Engine)

	viper.SetEnvPrefix("FOLIO")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.folio")
	}

	// The config file is optional.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func (m *Manager) load() (*Config, error) {
	// Start from defaults so keys absent from the file keep their
	// default values even when a sibling key is set.
	cfg := *DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnChange registers a callback for config changes.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (m *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := m.load()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.config = cfg
		callbacks := make([]func(*Config), len(m.callbacks))
		copy(callbacks, m.callbacks)
		m.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
