package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	cfg := New()
	require.Equal(t, "worker", cfg.Mode)
	require.Equal(t, "sqlite", cfg.Storage.Adapter)
	require.Equal(t, 16, cfg.Cluster.MaxJobs)
	require.Equal(t, 1.0, cfg.Cluster.Probability)
}

func TestLoadMergesRecursiveIncludes(t *testing.T) {
	dir := t.TempDir()

	base := "mode: server\ncache:\n  addr: base:6379\n  namespace: base:\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yml"), []byte(base), 0o644))

	overlay := "include:\n  - base.yml\nstorage:\n  adapter: postgres\n  dsn: postgres://x\n"
	top := filepath.Join(dir, "top.yml")
	require.NoError(t, os.WriteFile(top, []byte(overlay), 0o644))

	cfg, err := Load(top)
	require.NoError(t, err)
	require.Equal(t, "server", cfg.Mode)
	require.Equal(t, "base:6379", cfg.Cache.Addr)
	require.Equal(t, "postgres", cfg.Storage.Adapter)
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yml")
	b := filepath.Join(dir, "b.yml")
	require.NoError(t, os.WriteFile(a, []byte("include:\n  - b.yml\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("include:\n  - a.yml\n"), 0o644))

	_, err := Load(a)
	require.Error(t, err)
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	dir := t.TempDir()
	top := filepath.Join(dir, "top.yml")
	require.NoError(t, os.WriteFile(top, []byte("mode: worker\n"), 0o644))

	t.Setenv("CHOMP_MODE", "server")
	cfg, err := Load(top)
	require.NoError(t, err)
	require.Equal(t, "server", cfg.Mode)
}
