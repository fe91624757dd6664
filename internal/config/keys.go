package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PROFILESTACK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.url", typ: kString, env: "PROFILESTACK_SERVER_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.URL },
	},
	{
		key: "storage.driver", typ: kString, env: "PROFILESTACK_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PROFILESTACK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.dsn", typ: kString, env: "PROFILESTACK_STORAGE_DSN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Storage.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DSN },
	},
	{
		key: "auth.google_client_id", typ: kString, env: "PROFILESTACK_AUTH_GOOGLE_CLIENT_ID",
		apply:   func(cfg *Config, v any) { cfg.Auth.GoogleClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.GoogleClientID },
	},
	{
		key: "auth.session_ttl", typ: kString, env: "PROFILESTACK_AUTH_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Auth.SessionTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.SessionTTL },
	},
	{
		key: "ai.provider", typ: kString, env: "PROFILESTACK_AI_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.AI.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Provider },
	},
	{
		key: "ai.model", typ: kString, env: "PROFILESTACK_AI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Model },
	},
	{
		key: "ai.gemini_api_key", typ: kString, env: "PROFILESTACK_GEMINI_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.AI.GeminiAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.GeminiAPIKey },
	},
	{
		key: "ai.openrouter_api_key", typ: kString, env: "PROFILESTACK_OPENROUTER_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.AI.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.OpenRouterAPIKey },
	},
	{
		key: "ai.ollama_url", typ: kString, env: "PROFILESTACK_AI_OLLAMA_URL",
		apply:   func(cfg *Config, v any) { cfg.AI.OllamaURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.OllamaURL },
	},
	{
		key: "events.amqp_url", typ: kString, env: "PROFILESTACK_EVENTS_AMQP_URL",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Events.AMQPURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Events.AMQPURL },
	},
	{
		key: "events.exchange", typ: kString, env: "PROFILESTACK_EVENTS_EXCHANGE",
		apply:   func(cfg *Config, v any) { cfg.Events.Exchange = v.(string) },
		extract: func(cfg Config) any { return cfg.Events.Exchange },
	},
	{
		key: "log.level", typ: kString, env: "PROFILESTACK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
