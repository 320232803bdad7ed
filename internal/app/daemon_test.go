package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/raindrop/internal/ipc"
	"github.com/rbright/raindrop/internal/testutil"
)

func TestHelperProcess(t *testing.T) { testutil.HelperMain() }

func TestRunnerDaemonServesAndPersistsSettings(t *testing.T) {
	paths := setupRunnerEnv(t)
	socketPath := filepath.Join(paths.runtimeDir, "raindrop.sock")
	record := filepath.Join(t.TempDir(), "helpers.jsonl")

	daemon := Runner{
		Stdout:         &bytes.Buffer{},
		Stderr:         &bytes.Buffer{},
		CommandFactory: testutil.HelperCommand("wait", record),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int, 1)
	go func() {
		done <- daemon.Execute(ctx, []string{"--config", paths.configPath, "daemon"})
	}()

	require.Eventually(t, func() bool {
		alive, _ := ipc.Probe(context.Background(), socketPath, 200*time.Millisecond)
		return alive
	}, 10*time.Second, 50*time.Millisecond)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	client := Runner{Stdout: &stdout, Stderr: &stderr}

	require.Equal(t, 0, client.Execute(context.Background(), []string{"status"}), stderr.String())
	require.Contains(t, stdout.String(), "relay: open\n")
	require.Contains(t, stdout.String(), "name: Anonymous\n")

	require.Eventually(t, func() bool {
		records, err := testutil.ReadRecords(record)
		return err == nil && len(testutil.Starts(records)) == 1
	}, 10*time.Second, 50*time.Millisecond)

	stdout.Reset()
	require.Equal(t, 0, client.Execute(context.Background(), []string{"set", "name", "Desk"}), stderr.String())
	require.Equal(t, "identity applied\n", stdout.String())

	data, err := os.ReadFile(paths.configPath)
	require.NoError(t, err)
	require.Contains(t, string(data), `"Desk"`)

	stdout.Reset()
	require.Equal(t, 0, client.Execute(context.Background(), []string{"status"}), stderr.String())
	require.Contains(t, stdout.String(), "name: Desk\n")

	var starts []testutil.Record
	require.Eventually(t, func() bool {
		records, err := testutil.ReadRecords(record)
		starts = testutil.Starts(records)
		return err == nil && len(starts) == 2
	}, 10*time.Second, 50*time.Millisecond)
	require.Contains(t, starts[1].Args, "Desk")

	cancel()
	select {
	case code := <-done:
		require.Equal(t, 0, code)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	_, statErr := os.Stat(socketPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerDaemonRefusesSecondOwner(t *testing.T) {
	paths := setupRunnerEnv(t)
	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "raindrop.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "open"}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}
	require.Equal(t, 1, runner.Execute(context.Background(), []string{"--config", paths.configPath, "daemon"}))
	require.Contains(t, stderr.String(), "already running")
}
