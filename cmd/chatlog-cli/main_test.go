package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"chatlog-cli/internal/activity"
	"chatlog-cli/internal/config"
	"chatlog-cli/internal/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const historyJSONL = `{"content":"second","transcriptOriginalMessageId":"20","from":{"user":{"displayName":"Agent"}}}
not json
{"content":"first","transcriptOriginalMessageId":"10","from":{"application":{"displayName":"Customer"}}}
{"content":"{}","botContentType":"azurebotservice.adaptivecard","transcriptOriginalMessageId":"30","from":{"application":{"displayName":"Customer"}}}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	base := []string{
		"--config", filepath.Join(dir, "config.toml"),
		"-c", "log_path=" + filepath.Join(dir, "chatlog.log"),
	}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeHistory(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(historyJSONL), 0o600))
	return path
}

func TestConvertWritesOrderedActivities(t *testing.T) {
	out, err := execute(t, "convert", writeHistory(t))
	require.NoError(t, err)

	var acts []activity.Activity
	require.NoError(t, json.Unmarshal([]byte(out), &acts))
	require.Len(t, acts, 2)
	assert.Equal(t, "first", acts[0].Text)
	assert.Equal(t, activity.RoleUser, acts[0].From.Role)
	assert.Equal(t, int64(10), acts[0].ChannelData.SequenceID)
	assert.Equal(t, "second", acts[1].Text)
	assert.Equal(t, activity.RoleBot, acts[1].From.Role)
}

func TestConvertEmptySourceWritesEmptyArray(t *testing.T) {
	out, err := execute(t, "convert", filepath.Join(t.TempDir(), "missing.jsonl"))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestConvertToFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.json")
	_, err := execute(t, "convert", "--pretty", "-o", target, writeHistory(t))
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {")
}

func TestImportIntoSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	out, err := execute(t, "import", writeHistory(t), db)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 of 3 messages (3 stored)")

	src, err := history.OpenSQLite(db)
	require.NoError(t, err)
	defer src.Close()
	page, err := src.Page(t.Context(), 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.True(t, page.More)
	assert.Equal(t, int64(20), page.Next)
}

func TestImportRequiresTwoArgs(t *testing.T) {
	_, err := execute(t, "import", "only-one")
	require.Error(t, err)
}

func TestConfigShowAppliesOverrides(t *testing.T) {
	out, err := execute(t, "-c", "page_size=5", "-c", "driver=sqlite", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "page_size = 5")
	assert.Contains(t, out, "driver = 'sqlite'")
}

func TestConfigSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--config", path,
		"-c", "log_path=" + filepath.Join(dir, "chatlog.log"),
		"-c", "source=/tmp/history.db",
		"-c", "reset_delay_ms=250",
		"config", "save",
	})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "saved "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/history.db", cfg.Source)
	assert.Equal(t, 250, cfg.ResetDelayMs)
}

func TestViewRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, "-c", "source=", "view")
	require.Error(t, err)
}
