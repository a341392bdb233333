package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigHasSaneBounds(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "standard", cfg.ModeDefault)
	require.Equal(t, 5, cfg.MaxWave1Agents)
	require.Equal(t, 2, cfg.MaxReviewIterations)
	require.False(t, cfg.NoWeb)
}

func TestLoadFallsBackToDefaultsWhenSettingsFileMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().MaxWave1Agents, cfg.MaxWave1Agents)
}

func TestLoadAppliesSettingsFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_wave1_agents": 9, "mode_default": "deep"}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.MaxWave1Agents)
	require.Equal(t, "deep", cfg.ModeDefault)
}

func TestEnvOverridesWinOverSettingsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_wave1_agents": 9}`), 0o644))

	t.Setenv("PAI_DR_MAX_WAVE1_AGENTS", "12")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 12, cfg.MaxWave1Agents)
}

func TestEnvOverridesBoolAndEnum(t *testing.T) {
	t.Setenv("PAI_DR_NO_WEB", "true")
	t.Setenv("PAI_DR_CITATION_VALIDATION_TIER", "thorough")

	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.NoWeb)
	require.Equal(t, "thorough", cfg.CitationValidationTier)
}

func TestSaveWritesReadableJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	cfg := DefaultConfig()
	cfg.RunsRoot = "/tmp/runs"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/runs", loaded.RunsRoot)
}
