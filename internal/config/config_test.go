package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marana.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "marana.db", cfg.DatabasePath)
	assert.Equal(t, "runlog.ndjson", cfg.RunLogPath)
	assert.Equal(t, 10*time.Second, time.Duration(cfg.Settle))
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultPaperBaseURL, cfg.Paper.BaseURL)
	assert.Equal(t, DefaultLiveBaseURL, cfg.Live.BaseURL)
	assert.False(t, cfg.UseMargin)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "marana.db", cfg.DatabasePath)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
database_path: /var/lib/marana/marana.db
runlog_path: /var/log/marana/runlog.ndjson
settle: 30s
use_margin: true
log_level: debug
paper:
  api_key: file-key
  api_secret: file-secret
live:
  base_url: https://example.invalid
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/marana/marana.db", cfg.DatabasePath)
	assert.Equal(t, "/var/log/marana/runlog.ndjson", cfg.RunLogPath)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Settle))
	assert.True(t, cfg.UseMargin)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "file-key", cfg.Paper.APIKey)
	assert.Equal(t, "https://example.invalid", cfg.Live.BaseURL)
	assert.Equal(t, DefaultPaperBaseURL, cfg.Paper.BaseURL)
}

func TestEnvironmentOverridesFileCredentials(t *testing.T) {
	path := writeConfig(t, `
paper:
  api_key: file-key
  api_secret: file-secret
`)
	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("APCA_API_SECRET_KEY", "env-secret")
	t.Setenv("MARANA_LIVE_KEY_ID", "live-key")
	t.Setenv("MARANA_LIVE_SECRET_KEY", "live-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Paper.APIKey)
	assert.Equal(t, "env-secret", cfg.Paper.APISecret)
	assert.Equal(t, "live-key", cfg.Live.APIKey)
	assert.Equal(t, "live-secret", cfg.Live.APISecret)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad duration", "settle: soon"},
		{"zero settle", "settle: 0s"},
		{"empty database path", `database_path: ""`},
		{"bad log level", "log_level: loud"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}
