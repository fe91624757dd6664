// Package config loads profilestack settings from a JSON config file, a
// .env file and PROFILESTACK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// AI providers.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Auth    AuthConfig
	AI      AIConfig
	Events  EventsConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
	// URL is where clients reach the server.
	URL string
}

type StorageConfig struct {
	Driver  string
	DataDir string
	DSN     string
}

type AuthConfig struct {
	GoogleClientID string
	SessionTTL     string
}

type AIConfig struct {
	Provider         string
	Model            string
	GeminiAPIKey     string
	OpenRouterAPIKey string
	OllamaURL        string
}

type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 5000,
			URL:  "http://127.0.0.1:5000",
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
		},
		Auth: AuthConfig{
			SessionTTL: "168h",
		},
		AI: AIConfig{
			Provider:  ProviderGemini,
			OllamaURL: "http://localhost:11434",
		},
		Events: EventsConfig{
			Exchange: "profile_events",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration. A .env file in the working directory is loaded
// into the environment first, without overriding variables already set.
// The JSON file at ConfigFilePath is applied over the defaults, then
// PROFILESTACK_* environment variables override both. Secrets are read from
// the environment only.
func Load() (Config, error) {
	if err := loadDotenv(".env"); err != nil {
		return Config{}, err
	}
	b, err := newFileBackend(ConfigFilePath())
	if err != nil {
		return Config{}, err
	}
	return loadWith(b)
}

func loadDotenv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings shared by the client and the server.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid storage.driver %q: want sqlite or postgres", c.Storage.Driver)
	}
	switch c.AI.Provider {
	case ProviderGemini, ProviderOpenRouter, ProviderOllama:
	default:
		return fmt.Errorf("invalid ai.provider %q: want gemini, openrouter or ollama", c.AI.Provider)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	if _, err := c.SessionTTL(); err != nil {
		return err
	}
	return nil
}

// ValidateServer checks the settings only the server needs.
func (c Config) ValidateServer() error {
	var missing []string
	if c.Auth.GoogleClientID == "" {
		missing = append(missing, "auth.google_client_id (PROFILESTACK_AUTH_GOOGLE_CLIENT_ID)")
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		missing = append(missing, "storage.dsn (PROFILESTACK_STORAGE_DSN)")
	}
	switch c.AI.Provider {
	case ProviderGemini:
		if c.AI.GeminiAPIKey == "" {
			missing = append(missing, "ai.gemini_api_key (PROFILESTACK_GEMINI_API_KEY)")
		}
	case ProviderOpenRouter:
		if c.AI.OpenRouterAPIKey == "" {
			missing = append(missing, "ai.openrouter_api_key (PROFILESTACK_OPENROUTER_API_KEY)")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required server config: %v", missing)
	}
	return nil
}

// SessionTTL parses auth.session_ttl.
func (c Config) SessionTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Auth.SessionTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid auth.session_ttl %q: %w", c.Auth.SessionTTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("auth.session_ttl must be positive, got %s", d)
	}
	return d, nil
}

// DevicePath returns the path of a device-local state file under the data dir.
func (c Config) DevicePath(name string) string {
	return filepath.Join(c.Storage.DataDir, "device", name)
}

// EnsureDataDir creates the data directory.
func (c Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	return nil
}
