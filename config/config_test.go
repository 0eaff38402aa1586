package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "localhost", cfg.Hostname)
	assert.True(t, cfg.SMTP.Start)
	assert.Equal(t, ":25", cfg.SMTP.Addr)
	assert.Equal(t, "stderr", cfg.Logging.Output)

	timeout, err := cfg.Classifier.GetTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, timeout)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
hostname = "mail.example.com"

[database.write]
host = "db.internal"
name = "okapi"
user = "okapi"

[smtp]
addr = ":2525"

[classifier]
enabled = true
url = "https://llm.internal/v1/chat/completions"
timeout = "5s"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "mail.example.com", cfg.Hostname)
	assert.Equal(t, ":2525", cfg.SMTP.Addr)
	// Untouched defaults survive the overlay.
	assert.True(t, cfg.SMTP.Start)
	assert.Equal(t, "stderr", cfg.Logging.Output)

	timeout, err := cfg.Classifier.GetTimeout()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Error(t, cfg.Validate(), "missing database endpoint must fail")

	cfg.Database.Write = &DatabaseEndpointConfig{Host: "localhost", Name: "okapi"}
	assert.NoError(t, cfg.Validate())

	cfg.Classifier.Enabled = true
	assert.Error(t, cfg.Validate(), "enabled classifier needs a url")

	cfg.Classifier.URL = "https://llm.internal"
	assert.NoError(t, cfg.Validate())

	cfg.Classifier.Timeout = "not-a-duration"
	assert.Error(t, cfg.Validate())
}
