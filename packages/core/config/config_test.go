package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAndLoadConfig(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := FindAndLoadConfig(t.TempDir())
		require.NoError(t, err)
		assert.True(t, cfg.IsDefault())
	})

	t.Run("json", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".hitplan.config.json", `{"parallelism": 4, "bail": true, "variables": {"base": "http://localhost"}}`)
		cfg, err := FindAndLoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Parallelism)
		assert.True(t, cfg.GetBail())
		assert.Equal(t, "http://localhost", cfg.Variables["base"])
		assert.Equal(t, []string{"console"}, cfg.Reporters)
	})

	t.Run("yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "hitplan.yaml", "startRate: 2.5\nreporters: [json, junit]\nlog:\n  level: debug\n  format: json\n")
		cfg, err := FindAndLoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, 2.5, cfg.StartRate)
		assert.Equal(t, []string{"json", "junit"}, cfg.Reporters)
		assert.Equal(t, "debug", cfg.LogConfig().Level)
		assert.Equal(t, "stderr", cfg.LogConfig().Output)
	})

	t.Run("malformed", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "hitplan.config.json", `{"parallelism": "many"}`)
		_, err := FindAndLoadConfig(dir)
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HITPLAN_PARALLELISM": "8",
		"HITPLAN_BAIL":        "true",
		"HITPLAN_LOG_LEVEL":   "error",
		"HITPLAN_DATABASE":    "file::memory:",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg, err := DefaultConfig().ApplyEnv(lookup)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Parallelism)
	assert.True(t, cfg.GetBail())
	assert.Equal(t, "error", cfg.LogConfig().Level)
	assert.Equal(t, "file::memory:", cfg.Database)

	env["HITPLAN_START_RATE"] = "fast"
	_, err = DefaultConfig().ApplyEnv(lookup)
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Bail = BoolPtr(true)
	base.Variables = map[string]any{"a": 1, "b": 2}

	merged := base.Merge(&Config{
		Bail:      BoolPtr(false),
		Variables: map[string]any{"b": 3},
		Reporters: []string{"tap"},
	})
	assert.False(t, merged.GetBail(), "explicit false overrides")
	assert.Equal(t, map[string]any{"a": 1, "b": 3}, merged.Variables)
	assert.Equal(t, []string{"tap"}, merged.Reporters)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, base.Variables, "receiver untouched")

	assert.Same(t, base, base.Merge(nil))
	kept := base.Merge(&Config{})
	assert.True(t, kept.GetBail(), "nil pointer keeps the value")
}

func TestSaveConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Parallelism = 3

	for _, name := range []string{"out.json", "out.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, cfg.SaveConfig(path))
		loaded, err := loadConfigFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 3, loaded.Parallelism)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
