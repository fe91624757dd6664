package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every PROFILESTACK_* variable for the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func mustBackend(t *testing.T, path string) *fileBackend {
	t.Helper()
	b, err := newFileBackend(path)
	if err != nil {
		t.Fatalf("opening config file: %v", err)
	}
	return b
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies all default values are applied when no config file exists.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mustBackend(t, filepath.Join(t.TempDir(), "missing.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.URL != "http://127.0.0.1:5000" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.AI.Provider != ProviderGemini {
		t.Errorf("AI.Provider = %q, want gemini", cfg.AI.Provider)
	}
	if cfg.Events.Exchange != "profile_events" {
		t.Errorf("Events.Exchange = %q", cfg.Events.Exchange)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	ttl, err := cfg.SessionTTL()
	if err != nil || ttl != 168*time.Hour {
		t.Errorf("SessionTTL = %v, %v; want 168h", ttl, err)
	}
}

// TestFileParsing verifies that fields are read from the JSON config file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{
  "server.port": 8080,
  "server.url": "https://profiles.example.com",
  "storage.driver": "postgres",
  "storage.data_dir": "/tmp/profilestack-test",
  "auth.google_client_id": "client-123.apps.googleusercontent.com",
  "auth.session_ttl": "24h",
  "ai.provider": "openrouter",
  "ai.model": "openai/gpt-4o",
  "log.level": "debug"
}`)

	cfg, err := loadWith(mustBackend(t, path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.URL != "https://profiles.example.com" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DataDir != "/tmp/profilestack-test" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Auth.GoogleClientID != "client-123.apps.googleusercontent.com" {
		t.Errorf("Auth.GoogleClientID = %q", cfg.Auth.GoogleClientID)
	}
	if cfg.AI.Provider != ProviderOpenRouter || cfg.AI.Model != "openai/gpt-4o" {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

// TestSecretsIgnoredInFile verifies secrets are only read from the environment.
func TestSecretsIgnoredInFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"ai.gemini_api_key": "file-key", "storage.dsn": "postgres://file"}`)

	cfg, err := loadWith(mustBackend(t, path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AI.GeminiAPIKey != "" || cfg.Storage.DSN != "" {
		t.Errorf("secrets read from file: key=%q dsn=%q", cfg.AI.GeminiAPIKey, cfg.Storage.DSN)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"server.port": 8080, "ai.provider": "openrouter"}`)

	t.Setenv("PROFILESTACK_SERVER_PORT", "9090")
	t.Setenv("PROFILESTACK_AI_PROVIDER", "gemini")
	t.Setenv("PROFILESTACK_GEMINI_API_KEY", "env-key")

	cfg, err := loadWith(mustBackend(t, path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.AI.Provider != ProviderGemini {
		t.Errorf("AI.Provider = %q, want gemini", cfg.AI.Provider)
	}
	if cfg.AI.GeminiAPIKey != "env-key" {
		t.Errorf("AI.GeminiAPIKey = %q, want env-key", cfg.AI.GeminiAPIKey)
	}
}

func TestEnvOverride_BadInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROFILESTACK_SERVER_PORT", "lots")

	cfg, err := loadWith(mustBackend(t, filepath.Join(t.TempDir(), "missing.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want default 5000", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(c *Config){
		"driver":   func(c *Config) { c.Storage.Driver = "mysql" },
		"provider": func(c *Config) { c.AI.Provider = "anthropic" },
		"level":    func(c *Config) { c.Log.Level = "verbose" },
		"ttl":      func(c *Config) { c.Auth.SessionTTL = "a week" },
		"zero ttl": func(c *Config) { c.Auth.SessionTTL = "0s" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := defaults()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := defaults().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestValidateServer(t *testing.T) {
	cfg := defaults()
	err := cfg.ValidateServer()
	if err == nil {
		t.Fatal("expected error for missing server config")
	}
	for _, want := range []string{"auth.google_client_id", "ai.gemini_api_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	cfg.Auth.GoogleClientID = "client"
	cfg.AI.GeminiAPIKey = "key"
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.AI.Provider = ProviderOllama
	cfg.AI.GeminiAPIKey = ""
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("ollama needs no key, got %v", err)
	}

	cfg.Storage.Driver = "postgres"
	if err := cfg.ValidateServer(); err == nil || !strings.Contains(err.Error(), "storage.dsn") {
		t.Errorf("expected storage.dsn error, got %v", err)
	}
}

func TestSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	b := mustBackend(t, path)

	if err := setKeyWith(b, "server.port", "7070"); err != nil {
		t.Fatalf("setting server.port: %v", err)
	}
	if err := setKeyWith(b, "ai.provider", "ollama"); err != nil {
		t.Fatalf("setting ai.provider: %v", err)
	}
	if err := setKeyWith(b, "server.port", "seventy"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, "ai.gemini_api_key", "k"); err == nil || !strings.Contains(err.Error(), "PROFILESTACK_GEMINI_API_KEY") {
		t.Errorf("expected secret rejection, got %v", err)
	}
	if err := setKeyWith(b, "nope", "x"); err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Errorf("expected unknown key error listing valid keys, got %v", err)
	}
	if err := setKeyWith(b, "ai.provider", "anthropic"); err == nil {
		t.Error("expected error for invalid provider")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	clearEnv(t)
	cfg, err := loadWith(mustBackend(t, path))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 || cfg.AI.Provider != ProviderOllama {
		t.Errorf("reloaded config = %+v", cfg)
	}
}

func TestUnsetKey(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"server.port": 8080, "log.level": "debug"}`)
	b := mustBackend(t, path)

	if err := unsetKeyWith(b, "server.port"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if err := unsetKeyWith(b, "server.port"); err != nil {
		t.Errorf("unsetting an absent key should be a no-op, got %v", err)
	}
	if err := unsetKeyWith(b, "nope"); err == nil {
		t.Error("expected error for unknown key")
	}

	cfg, err := loadWith(mustBackend(t, path))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want default after unset", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, other keys should survive", cfg.Log.Level)
	}
}

func TestFileBackend_Malformed(t *testing.T) {
	path := writeTempConfig(t, `{"server.port": `)
	if _, err := newFileBackend(path); err == nil {
		t.Error("expected parse error for malformed config file")
	}

	path = writeTempConfig(t, `{"server.port": 80.5}`)
	if _, err := loadWith(mustBackend(t, path)); err == nil {
		t.Error("expected error for non-integer port")
	}

	path = writeTempConfig(t, `{"server.port": "8081"}`)
	clearEnv(t)
	cfg, err := loadWith(mustBackend(t, path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("Server.Port = %d, want 8081 from quoted integer", cfg.Server.Port)
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.AI.GeminiAPIKey = "super-secret"
	for _, ki := range ShowAll(cfg) {
		if strings.Contains(ki.Value, "super-secret") {
			t.Errorf("secret shown for %s", ki.Key)
		}
	}
	clearEnv(t)
	t.Setenv("PROFILESTACK_LOG_LEVEL", "debug")
	for _, ki := range ShowAll(cfg) {
		if ki.FromEnv != (ki.Key == "log.level") {
			t.Errorf("%s FromEnv = %v", ki.Key, ki.FromEnv)
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Errorf("ShowAll lists %d keys, ValidKeys %d", len(ShowAll(cfg)), len(ValidKeys()))
	}
}

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PROFILESTACK_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PROFILESTACK_LOG_LEVEL", "")
	os.Unsetenv("PROFILESTACK_LOG_LEVEL")

	if err := loadDotenv(path); err != nil {
		t.Fatalf("loadDotenv: %v", err)
	}
	if got := os.Getenv("PROFILESTACK_LOG_LEVEL"); got != "debug" {
		t.Errorf("PROFILESTACK_LOG_LEVEL = %q, want debug", got)
	}

	if err := loadDotenv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestDevicePath(t *testing.T) {
	cfg := defaults()
	cfg.Storage.DataDir = "/var/lib/profilestack"
	if got := cfg.DevicePath("guest.json"); got != filepath.Join("/var/lib/profilestack", "device", "guest.json") {
		t.Errorf("DevicePath = %q", got)
	}
}
