// Package config loads runtime settings from an optional YAML file with
// environment overrides for broker credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPaperBaseURL = "https://paper-api.alpaca.markets"
	DefaultLiveBaseURL  = "https://api.alpaca.markets"
)

// Duration parses YAML values like "10s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

type Credentials struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

type Config struct {
	DatabasePath string        `yaml:"database_path"`
	RunLogPath   string        `yaml:"runlog_path"`
	Settle       Duration      `yaml:"settle"`
	UseMargin    bool          `yaml:"use_margin"`
	LogLevel     string        `yaml:"log_level"`

	Paper Credentials `yaml:"paper"`
	Live  Credentials `yaml:"live"`
}

// Load reads the YAML file at path (optional: an empty path or a
// missing file yields defaults), applies .env and environment
// credential overrides, and validates the result.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabasePath: "marana.db",
		RunLogPath:   "runlog.ndjson",
		Settle:       Duration(10 * time.Second),
		LogLevel:     "info",
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	// Environment wins over file contents for credentials. The paper
	// variables follow the Alpaca SDK's conventional names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Paper.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Paper.APISecret = v
	}
	if v := os.Getenv("MARANA_LIVE_KEY_ID"); v != "" {
		cfg.Live.APIKey = v
	}
	if v := os.Getenv("MARANA_LIVE_SECRET_KEY"); v != "" {
		cfg.Live.APISecret = v
	}

	if cfg.Paper.BaseURL == "" {
		cfg.Paper.BaseURL = DefaultPaperBaseURL
	}
	if cfg.Live.BaseURL == "" {
		cfg.Live.BaseURL = DefaultLiveBaseURL
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if cfg.Settle <= 0 {
		return fmt.Errorf("settle must be > 0")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", cfg.LogLevel)
	}
	return nil
}
