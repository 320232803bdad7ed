package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPath(t *testing.T) {
	stateHome := t.TempDir()
	home := t.TempDir()
	t.Setenv("HOME", home)

	t.Setenv("XDG_STATE_HOME", stateHome)
	path, err := Path()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(stateHome, "raindrop", "log.jsonl"), path)

	t.Setenv("XDG_STATE_HOME", "  ")
	path, err = Path()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state", "raindrop", "log.jsonl"), path)
}

func TestLevel(t *testing.T) {
	require.Equal(t, slog.LevelInfo, Level(false))
	require.Equal(t, slog.LevelDebug, Level(true))
}

func TestNewWritesPrivateJSONLines(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	rt, err := New(slog.LevelInfo)
	require.NoError(t, err)

	rt.Logger.Info("relay open", "port", 2001)
	rt.Logger.Debug("dropped-debug-line")
	require.NoError(t, rt.Close())

	contents, err := os.ReadFile(rt.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"msg":"relay open"`)
	require.Contains(t, string(contents), `"port":2001`)
	require.Contains(t, string(contents), fmt.Sprintf(`"pid":%d`, os.Getpid()))
	require.NotContains(t, string(contents), "dropped-debug-line")

	stat, err := os.Stat(rt.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestNewAppends(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	for _, msg := range []string{"first", "second"} {
		rt, err := New(Level(true))
		require.NoError(t, err)
		rt.Logger.Debug(msg)
		require.NoError(t, rt.Close())
	}

	path, err := Path()
	require.NoError(t, err)
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"msg":"first"`)
	require.Contains(t, string(contents), `"msg":"second"`)
	require.Contains(t, string(contents), `"level":"DEBUG"`)
}

func TestCloseZeroRuntime(t *testing.T) {
	require.NoError(t, Runtime{}.Close())
}
