package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "packrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 500, cfg.Query.MaxLimit)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, 30*time.Second, cfg.SampleInterval())
}

func TestLoadFile_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_OverridesOnlyGivenFields(t *testing.T) {
	path := writeConfig(t, `
relay:
  name: test relay
query:
  max_limit: 50
log:
  format: json
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "test relay", cfg.Relay.Name)
	assert.Equal(t, "Compressed event relay", cfg.Relay.Description, "unset fields keep defaults")
	assert.Equal(t, 50, cfg.Query.MaxLimit)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1024, cfg.Ingest.QueueSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_ExpandsStoragePath(t *testing.T) {
	t.Setenv("PACKRELAY_DATA", "/var/lib/packrelay")
	path := writeConfig(t, `
storage:
  path: ${PACKRELAY_DATA}/events.db
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/packrelay/events.db", cfg.Storage.Path)
}

func TestLoadFile_ExpandsDefaultValue(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: ${PACKRELAY_UNSET_FOR_TEST:-/tmp}/events.db
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/events.db", cfg.Storage.Path)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadFile(writeConfig(t, "query: [not, a, map]"))
	require.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"empty listen", func(c *Config) { c.Server.Listen = "" }, "server.listen"},
		{"zero read limit", func(c *Config) { c.Server.ReadLimit = 0 }, "server.read_limit"},
		{"bad shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = "soon" }, "server.shutdown_timeout"},
		{"empty db path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"zero max limit", func(c *Config) { c.Query.MaxLimit = 0 }, "query.max_limit"},
		{"negative queue", func(c *Config) { c.Ingest.QueueSize = -1 }, "ingest.queue_size"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad sample interval", func(c *Config) { c.Metrics.SampleInterval = "0s" }, "metrics.sample_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Query.MaxLimit = -1
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query.max_limit")
	assert.Contains(t, err.Error(), "log.format")
}

func TestValidate_SampleIntervalIgnoredWhenMetricsDisabled(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Enabled = false
	cfg.Metrics.SampleInterval = ""
	require.NoError(t, cfg.Validate())
}
