package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DialectTyped, cfg.Dialect)
	require.Equal(t, ProviderHash, cfg.Embedding.Provider)
	require.Equal(t, 20, cfg.MaxDepth)
	require.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
	require.False(t, cfg.Watch.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
workspace: /srv/project
db_path: /srv/project/.graph.db
dialect: raw
max_depth: 5
watch:
  enabled: true
  debounce_ms: 50
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/srv/project", cfg.Workspace)
	require.Equal(t, DialectRaw, cfg.Dialect)
	require.Equal(t, 5, cfg.MaxDepth)
	require.True(t, cfg.Watch.Enabled)
	require.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoadRejectsUnknownDialect(t *testing.T) {
	path := writeConfig(t, "dialect: graphql\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadOpenAINeedsKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, "embedding:\n  provider: openai\n")
	_, err := Load(path)
	require.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sk-test", cfg.Embedding.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
