package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noeta/internal/tms"
)

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 65536, cfg.KB.GlobalCapacity)
	assert.Equal(t, 4, cfg.Reasoning.DepthLimit)
	assert.False(t, cfg.Reasoning.BroadcastInputAssertions)
	assert.Equal(t, "prefer_old", cfg.Reasoning.ContradictionPolicy)
	assert.Equal(t, 60000, cfg.Query.TimeoutMs)
}

func TestEnvOverrides_Reasoning(t *testing.T) {
	t.Setenv("NOETA_REASONING_DEPTH_LIMIT", "7")
	t.Setenv("NOETA_BROADCAST_INPUT_ASSERTIONS", "true")
	t.Setenv("NOETA_CONTRADICTION_POLICY", "flag_both")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, 7, cfg.Reasoning.DepthLimit)
	assert.True(t, cfg.Reasoning.BroadcastInputAssertions)
	assert.Equal(t, "flag_both", cfg.Reasoning.ContradictionPolicy)
	assert.Equal(t, tms.FlagBoth, cfg.ContradictionPolicy())
}

func TestEnvOverrides_KBAndQuery(t *testing.T) {
	t.Setenv("NOETA_GLOBAL_KB_CAPACITY", "1024")
	t.Setenv("NOETA_NOTE_KB_CAPACITY", "256")
	t.Setenv("NOETA_QUERY_TIMEOUT_MS", "5000")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, 1024, cfg.KB.GlobalCapacity)
	assert.Equal(t, 256, cfg.KB.NoteCapacity)
	assert.Equal(t, 5000, cfg.Query.TimeoutMs)
}

func TestEnvOverrideIgnoredWhenUnset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.Equal(t, DefaultConfig().KB.GlobalCapacity, cfg.KB.GlobalCapacity)
}

func TestContradictionPolicyDefaultsToPreferOldOnUnknownValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reasoning.ContradictionPolicy = "nonsense"
	require.Equal(t, tms.PreferOld, cfg.ContradictionPolicy())
}

func TestLoadOverlaysYAMLOnTopOfJSON(t *testing.T) {
	t.Chdir(t.TempDir())

	require.NoError(t, Save(DefaultConfig()))

	yamlPath := filepath.Join(t.TempDir(), "unused")
	dir, err := WorkspaceDir()
	require.NoError(t, err)
	yamlPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("reasoning:\n  depth_limit: 12\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Reasoning.DepthLimit)
	assert.Equal(t, DefaultConfig().KB.GlobalCapacity, cfg.KB.GlobalCapacity)
}

func TestLoadFallsBackToDefaultsWhenNoFilesExist(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
