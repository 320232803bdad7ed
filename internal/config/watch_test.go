package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherSignalsOnSettingsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))

	w, err := NewWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)
	changes, err := w.Start()
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{"name":"Alice"}`), 0o600))
	}

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("expected change notification")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	w, err := NewWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)
	changes, err := w.Start()
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o600))

	select {
	case <-changes:
		t.Fatal("unexpected change notification")
	case <-time.After(200 * time.Millisecond):
	}
}
