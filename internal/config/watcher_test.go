package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnConfigFileWrite(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, Save(DefaultConfig()))

	reloaded := make(chan Config, 1)
	w, err := NewWatcher(func(cfg Config, err error) {
		require.NoError(t, err)
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	edited := DefaultConfig()
	edited.Reasoning.ContradictionPolicy = "prefer_new"
	require.NoError(t, Save(edited))

	select {
	case cfg := <-reloaded:
		require.Equal(t, "prefer_new", cfg.Reasoning.ContradictionPolicy)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload callback")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, Save(DefaultConfig()))

	calls := make(chan struct{}, 4)
	w, err := NewWatcher(func(cfg Config, err error) {
		calls <- struct{}{}
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	dir, err := WorkspaceDir()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot.json"), []byte("{}"), 0644))

	select {
	case <-calls:
		t.Fatal("watcher reloaded on a write to an unrelated file")
	case <-time.After(500 * time.Millisecond):
	}
}
