package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"
)

// Load reads the config file (YAML or JSON), overlays credentials from
// the environment and validates the result.
//
// A .env file next to the config is loaded first, so secrets can be
// kept out of the config file:
//
//	NYAA_TELEGRAM_TOKEN, NYAA_SMTP_PASSWORD, NYAA_PUSH_TOKEN
func Load(path string) (*Config, error) {
	// Best-effort; a missing .env is fine.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	jsonBytes, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, fmt.Errorf("parse config (%s): %w", format, err)
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config (%s): %w", format, err)
	}

	cfg.overlayEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(cfg.Destinations) == 0 && strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, errNoDestinations
	}
	return &cfg, nil
}

func (c *Config) overlayEnv() {
	if v := os.Getenv("NYAA_TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	for i := range c.Destinations {
		d := &c.Destinations[i]
		if d.Email != nil {
			if v := os.Getenv("NYAA_SMTP_PASSWORD"); v != "" && d.Email.Password == "" {
				d.Email.Password = v
			}
		}
		if d.Push != nil {
			if v := os.Getenv("NYAA_PUSH_TOKEN"); v != "" && d.Push.Token == "" {
				d.Push.Token = v
			}
		}
	}
}

// coerceToJSONBytes converts YAML config to JSON bytes so the strict
// JSON decoder (DisallowUnknownFields) serves both formats.
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, "json", nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}

	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// normalizeYAML ensures all map keys are strings so the result can be
// JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
