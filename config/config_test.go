package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TASKTREE_ADDR", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TASKTREE_ADDR", "")

	path := filepath.Join(t.TempDir(), "tasktree.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr = ":8080"
database_url = "postgres://localhost/tasktree"
task_limit = 25
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "postgres://localhost/tasktree", cfg.DatabaseURL)
	assert.Equal(t, 25, cfg.TaskLimit)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TASKTREE_ADDR", "")

	path := filepath.Join(t.TempDir(), "tasktree.toml")
	require.NoError(t, os.WriteFile(path, []byte(`addr = ":9999"`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 100, cfg.TaskLimit)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasktree.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr = ":8080"
database_url = "postgres://file/db"
`), 0o644))

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("TASKTREE_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, ":7070", cfg.Addr)
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasktree.toml")
	require.NoError(t, os.WriteFile(path, []byte(`addr = [unclosed`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
