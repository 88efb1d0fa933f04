package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mna/loxvm/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, 0, cfg.MaxCallDepth)
	require.False(t, cfg.GCStress)
}

func TestLoadFileProvidesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loxvm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_call_depth: 128\ngc_stress: true\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 128, cfg.MaxCallDepth)
	require.True(t, cfg.GCStress)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loxvm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_call_depth: 128\n"), 0o600))

	t.Setenv("LOXVM_MAX_CALL_DEPTH", "256")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 256, cfg.MaxCallDepth)
}
