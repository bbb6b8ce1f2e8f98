package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "dark", cfg.Theme)
	assert.Equal(t, 10000, cfg.Scrollback)
	assert.False(t, cfg.Web.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
theme = "light"
scrollback = 500

[activity]
warmup_ms = 100
idle_timeout_ms = 250

[web]
enabled = true
listen_addr = "127.0.0.1:9000"

[sessions.agent1]
cwd = "/work"
command = "claude"
agent = true

[sessions.agent1.env]
FOO = "bar"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "light", cfg.Theme)
	assert.Equal(t, 500, cfg.Scrollback)
	assert.True(t, cfg.Web.Enabled)
	assert.Equal(t, "127.0.0.1:9000", cfg.Web.ListenAddr)

	def, ok := cfg.Sessions["agent1"]
	require.True(t, ok)
	assert.Equal(t, "/work", def.Cwd)
	assert.True(t, def.Agent)
	assert.Equal(t, "bar", def.Env["FOO"])

	warmup, suppression, idle := cfg.ActivityDurations()
	assert.Equal(t, 100*time.Millisecond, warmup)
	assert.Equal(t, 200*time.Millisecond, suppression) // unset, default
	assert.Equal(t, 250*time.Millisecond, idle)
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("theme = [broken"), 0644))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestDirEnvOverride(t *testing.T) {
	t.Setenv(dirEnv, "/tmp/termdeck-test")
	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/termdeck-test", dir)

	path, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/termdeck-test", FileName), path)
}

func TestResolveTheme(t *testing.T) {
	assert.Equal(t, "dark", (&Config{Theme: "dark"}).ResolveTheme())
	assert.Equal(t, "light", (&Config{Theme: "light"}).ResolveTheme())
	assert.Equal(t, "dark", (&Config{Theme: "weird"}).ResolveTheme())
}
