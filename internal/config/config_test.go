package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CHATLOG_SOURCE", "")
	t.Setenv("CHATLOG_DRIVER", "")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, DriverJSONL, cfg.Driver)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, time.Second, cfg.ResetDelay())
	assert.Equal(t, 100*time.Millisecond, cfg.ReinitDelay())
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
source = "history.jsonl"
driver = "jsonl"
page_size = 5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "history.jsonl", cfg.Source)
	assert.Equal(t, 5, cfg.PageSize)
	assert.Equal(t, 1000, cfg.ResetDelayMs, "unset keys keep defaults")

	t.Setenv("CHATLOG_SOURCE", "/data/history.db")
	t.Setenv("CHATLOG_DRIVER", "sqlite")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/history.db", cfg.Source)
	assert.Equal(t, DriverSQLite, cfg.Driver)
}

func TestLoad_BadTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("page_size = ["), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyKVOverrides(t *testing.T) {
	got := ApplyKVOverrides(Default(), []string{
		"source=a.jsonl",
		"page_size=7",
		"reset_delay_ms=nope",
		"retry_delay_ms=-3",
		"malformed",
		"unknown=1",
	})
	assert.Equal(t, "a.jsonl", got.Source)
	assert.Equal(t, 7, got.PageSize)
	assert.Equal(t, 1000, got.ResetDelayMs)
	assert.Equal(t, 100, got.RetryDelayMs)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "source required")

	cfg.Source = "x.jsonl"
	assert.NoError(t, cfg.Validate())

	cfg.Driver = "postgres"
	assert.Error(t, cfg.Validate())

	cfg.Driver = DriverSQLite
	cfg.PageSize = 0
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := Default()
	cfg.Source = "history.db"
	cfg.Driver = DriverSQLite

	require.NoError(t, Save(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "history.db", got.Source)
	assert.Equal(t, DriverSQLite, got.Driver)
}
