package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/raindrop/internal/ipc"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "raindrop")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteWrongArgCountIsUsageError(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"accept"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "accepts 1 arg(s)")
}

func TestRunnerStatusStoppedWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "stopped\n", stdout.String())
	require.Empty(t, stderr.String())

	stdout.Reset()
	exitCode = runner.Execute(context.Background(), []string{"status", "--json"})
	require.Equal(t, 0, exitCode)
	var st ipc.Status
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &st))
	require.Equal(t, "stopped", st.Relay)
}

func TestRunnerCommandWithoutDaemonFails(t *testing.T) {
	setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"accept", "/tmp/in"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no running raindrop daemon")
}

func TestRunnerStatusTreatsStaleSocketAsStopped(t *testing.T) {
	paths := setupRunnerEnv(t)
	socketPath := filepath.Join(paths.runtimeDir, "raindrop.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "stopped\n", stdout.String())
}

func TestRunnerForwardsCommandsToDaemon(t *testing.T) {
	paths := setupRunnerEnv(t)

	var mu sync.Mutex
	var got []ipc.Request
	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "raindrop.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		if req.Command == ipc.CommandStatus {
			return ipc.Response{OK: true, State: "open"}
		}
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
		switch req.Command {
		case ipc.CommandToggle:
			return ipc.Response{OK: true, State: "closed"}
		case ipc.CommandDecline:
			return ipc.Response{OK: false, Error: "no pending offer"}
		default:
			return ipc.Response{OK: true, Message: req.Command + " handled"}
		}
	})
	defer shutdown()

	cases := []struct {
		args   []string
		code   int
		stdout string
		stderr string
	}{
		{args: []string{"scan"}, stdout: "scan handled\n"},
		{args: []string{"toggle"}, stdout: "closed\n"},
		{args: []string{"set", "name", "Desk"}, stdout: "set handled\n"},
		{args: []string{"write", "hello", "there"}, stdout: "write handled\n"},
		{args: []string{"decline"}, code: 1, stderr: "error: no pending offer\n"},
	}
	for _, tc := range cases {
		var stdout bytes.Buffer
		var stderr bytes.Buffer
		runner := Runner{Stdout: &stdout, Stderr: &stderr}

		exitCode := runner.Execute(context.Background(), tc.args)
		require.Equal(t, tc.code, exitCode, tc.args)
		require.Equal(t, tc.stdout, stdout.String(), tc.args)
		require.Equal(t, tc.stderr, stderr.String(), tc.args)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, len(cases))
	require.Equal(t, ipc.Request{Command: ipc.CommandSet, Args: []string{"name", "Desk"}}, got[2])
	require.Equal(t, ipc.Request{Command: ipc.CommandWrite, Args: []string{"hello", "there"}}, got[3])
}

func TestRunnerSendResolvesAbsolutePaths(t *testing.T) {
	paths := setupRunnerEnv(t)

	requests := make(chan ipc.Request, 1)
	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "raindrop.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		if req.Command == ipc.CommandStatus {
			return ipc.Response{OK: true, State: "open"}
		}
		requests <- req
		return ipc.Response{OK: true, Message: "sending 2 file(s) to 10.0.0.5"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}
	exitCode := runner.Execute(context.Background(), []string{"send", "10.0.0.5", "a.txt", "/abs/b.txt"})
	require.Equal(t, 0, exitCode)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	req := <-requests
	require.Equal(t, []string{"10.0.0.5", filepath.Join(cwd, "a.txt"), "/abs/b.txt"}, req.Args)
	require.Equal(t, "sending 2 file(s) to 10.0.0.5\n", stdout.String())
}

func TestRunnerStatusAndPeersFormatting(t *testing.T) {
	paths := setupRunnerEnv(t)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "raindrop.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		switch req.Command {
		case ipc.CommandStatus:
			return ipc.Response{OK: true, State: "open", Status: &ipc.Status{
				Relay:      "open",
				Handshake:  "offer-received",
				OfferFrom:  "Bob",
				OfferFiles: 2,
				Name:       "Alice",
				ListenPort: 2001,
				TargetPort: 2002,
			}}
		case ipc.CommandPeers:
			return ipc.Response{OK: true, Peers: []ipc.Peer{
				{Address: "10.0.0.5", Name: "Bob"},
				{Address: "10.0.0.6"},
			}}
		}
		return ipc.Response{OK: false, Error: "unsupported"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	require.Equal(t, 0, runner.Execute(context.Background(), []string{"status"}))
	require.Contains(t, stdout.String(), "relay: open\n")
	require.Contains(t, stdout.String(), "offer: Bob (2 file(s))\n")
	require.Contains(t, stdout.String(), "adapter: (any)\n")

	stdout.Reset()
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"status", "--json"}))
	var st ipc.Status
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &st))
	require.Equal(t, 2002, st.TargetPort)

	stdout.Reset()
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"peers"}))
	require.Equal(t, "10.0.0.5\tBob\n10.0.0.6\t-\n", stdout.String())

	stdout.Reset()
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"peers", "--json"}))
	var list []ipc.Peer
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &list))
	require.Len(t, list, 2)
}

func TestRunnerWatchPrintsEvents(t *testing.T) {
	paths := setupRunnerEnv(t)
	socketPath := filepath.Join(paths.runtimeDir, "raindrop.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(func(context.Context, ipc.Request) ipc.Response {
			return ipc.Response{OK: true}
		}), func(_ context.Context, send func(any) error) error {
			return send(map[string]any{"kind": "status", "message": "Saved a.txt"})
		})
	}()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"watch"}))
	require.JSONEq(t, `{"kind":"status","message":"Saved a.txt"}`, stdout.String())

	cancel()
	require.NoError(t, <-done)
}

func TestRunnerWatchWithoutDaemon(t *testing.T) {
	setupRunnerEnv(t)

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}
	require.Equal(t, 1, runner.Execute(context.Background(), []string{"watch"}))
	require.Contains(t, stderr.String(), "no running raindrop daemon")
}

func TestRunnerInterfacesJSON(t *testing.T) {
	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	require.Equal(t, 0, runner.Execute(context.Background(), []string{"interfaces", "--json"}))
	var list []Interface
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &list))

	sawLoopback := false
	for _, iface := range list {
		if iface.Loopback {
			sawLoopback = true
		}
	}
	require.True(t, sawLoopback)
}

func TestRunnerDoctorPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t)
	t.Setenv("PATH", t.TempDir())

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "[OK] config: loaded")
	require.Contains(t, stdout.String(), "helper.relay")
	require.Contains(t, stderr.String(), "doctor checks failed")
}

func TestAbsolutePathsKeepsAddress(t *testing.T) {
	out, err := absolutePaths([]string{"10.0.0.5", "/a", "b"})
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", out[0])
	require.Equal(t, "/a", out[1])
	require.True(t, filepath.IsAbs(out[2]))
}

type runnerPaths struct {
	configPath string
	runtimeDir string
}

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	xdgStateHome := t.TempDir()
	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{}\n"), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	require.Eventually(t, func() bool {
		alive, _ := ipc.Probe(context.Background(), socketPath, 200*time.Millisecond)
		return alive
	}, 5*time.Second, 20*time.Millisecond)

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}
