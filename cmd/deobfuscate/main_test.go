package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	deobfuscator "github.com/wagiedev/deobfuscator-go"
)

func TestChunk(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e"}

	batches := chunk(lines, 2)
	require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, batches)

	require.Nil(t, chunk(nil, 2))
	require.Equal(t, [][]string{lines}, chunk(lines, 10))
}

func TestLoadSettings_Defaults(t *testing.T) {
	cfg, err := loadSettings("")
	require.NoError(t, err)

	require.Equal(t, deobfuscator.DefaultPoolSize, cfg.PoolSize)
	require.Equal(t, 2000, cfg.BatchSize)
	require.Empty(t, cfg.Worker)
}

func TestLoadSettings_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool_size: 8\nworker: /opt/bin/worker\n"), 0o600))

	cfg, err := loadSettings(path)
	require.NoError(t, err)

	require.Equal(t, 8, cfg.PoolSize)
	require.Equal(t, "/opt/bin/worker", cfg.Worker)
	require.Equal(t, 2000, cfg.BatchSize)
}

func TestLoadSettings_MissingFileIgnored(t *testing.T) {
	cfg, err := loadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, deobfuscator.DefaultPoolSize, cfg.PoolSize)
}

func TestLoadSettings_EnvOverride(t *testing.T) {
	t.Setenv("DEOBFUSCATE_POOL_SIZE", "6")
	t.Setenv("DEOBFUSCATE_WORKER", "/opt/bin/worker")

	cfg, err := loadSettings("")
	require.NoError(t, err)
	require.Equal(t, 6, cfg.PoolSize)
	require.Equal(t, "/opt/bin/worker", cfg.Worker)
}

func TestLoadSettings_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool_size: 8\n"), 0o600))

	t.Setenv("DEOBFUSCATE_POOL_SIZE", "3")

	cfg, err := loadSettings(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.PoolSize)
}
