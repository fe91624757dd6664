package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// KeyInfo describes one setting for display.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	// FromEnv is set when the environment variable overrides the file.
	FromEnv bool
}

// ShowAll returns the effective value of every non-secret key.
func ShowAll(cfg Config) []KeyInfo {
	out := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		if s.secret {
			continue
		}
		out = append(out, KeyInfo{
			Key:     s.key,
			EnvVar:  s.env,
			Value:   fmt.Sprint(s.extract(cfg)),
			FromEnv: os.Getenv(s.env) != "",
		})
	}
	return out
}

// SetKey validates value and writes it to the config file.
func SetKey(key, value string) error {
	b, err := newFileBackend(ConfigFilePath())
	if err != nil {
		return err
	}
	return setKeyWith(b, key, value)
}

// UnsetKey removes key from the config file so its default applies again.
func UnsetKey(key string) error {
	b, err := newFileBackend(ConfigFilePath())
	if err != nil {
		return err
	}
	return unsetKeyWith(b, key)
}

func lookupSpec(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key == key {
			return s, nil
		}
	}
	return keySpec{}, fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
}

func setKeyWith(b ConfigBackend, key, value string) error {
	s, err := lookupSpec(key)
	if err != nil {
		return err
	}
	if s.secret {
		return fmt.Errorf("%s is a secret; set it in the environment as %s", key, s.env)
	}

	// Reject values Load would refuse later.
	cfg := defaults()
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		s.apply(&cfg, i)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return b.SetInt(key, i)
	default:
		s.apply(&cfg, value)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return b.SetString(key, value)
	}
}

func unsetKeyWith(b ConfigBackend, key string) error {
	if _, err := lookupSpec(key); err != nil {
		return err
	}
	return b.Delete(key)
}

// ValidKeys returns the names of the keys that can be set in the file.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
