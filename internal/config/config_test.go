package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "https://x.com", cfg.BaseURL)
	assert.Equal(t, "localhost", cfg.Store.Host)
	assert.Equal(t, 5432, cfg.Store.Port)
	assert.Equal(t, 24, cfg.Harvest.HoursWindow)
	assert.Equal(t, 15, cfg.Harvest.MaxPostsReturned)
	assert.Equal(t, 40, cfg.Harvest.MaxScrolls)
	assert.True(t, cfg.Harvest.ExpandTruncated)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 6, cfg.Cache.TTLHours)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2, cfg.Pause.MinSeconds)
	assert.Equal(t, 35, cfg.Pause.MaxSeconds)
}

func TestLoadNoPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rookery.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverlay(t *testing.T) {
	path := writeConfig(t, `
base_url = "https://example.net"

[store]
host = "db.internal"
password = "hunter2"

[harvest]
hours_window = 48
shuffle = true

[pause]
min_seconds = 1
max_seconds = 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.net", cfg.BaseURL)
	assert.Equal(t, "db.internal", cfg.Store.Host)
	assert.Equal(t, "hunter2", cfg.Store.Password)
	assert.Equal(t, 5432, cfg.Store.Port, "unset fields keep defaults")
	assert.Equal(t, 48, cfg.Harvest.HoursWindow)
	assert.True(t, cfg.Harvest.Shuffle)
	assert.Equal(t, 15, cfg.Harvest.MaxPostsReturned)
	assert.Equal(t, 1, cfg.Pause.MinSeconds)
	assert.Equal(t, 5, cfg.Pause.MaxSeconds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadInvalidPauseRange(t *testing.T) {
	path := writeConfig(t, `
[pause]
min_seconds = 10
max_seconds = 2
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadInvalidLoopBounds(t *testing.T) {
	path := writeConfig(t, `
[harvest]
max_scrolls = 0
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadBadTOML(t *testing.T) {
	path := writeConfig(t, "base_url = [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}
