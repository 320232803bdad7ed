package discovery

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rbright/raindrop/internal/config"
	"github.com/rbright/raindrop/internal/events"
	"github.com/rbright/raindrop/internal/frame"
	"github.com/rbright/raindrop/internal/supervisor"
	"github.com/rbright/raindrop/internal/testutil"
)

func TestHelperProcess(t *testing.T) { testutil.HelperMain() }

type fakeProcess struct {
	spawns     [][]string
	interrupts int
	spawnErr   error
	current    uuid.UUID
}

func (p *fakeProcess) Spawn(args []string) (uuid.UUID, error) {
	if p.spawnErr != nil {
		return uuid.Nil, p.spawnErr
	}
	p.spawns = append(p.spawns, args)
	p.current = uuid.New()
	return p.current, nil
}

func (p *fakeProcess) Interrupt() error {
	p.interrupts++
	return nil
}

func identity() config.Identity {
	return config.Identity{DisplayName: "Alice", ListenPort: 2001, TargetPort: 2002, Adapter: "eth0"}
}

func TestStartScanArgs(t *testing.T) {
	tests := []struct {
		name        string
		includeSelf bool
		dev         bool
		want        []string
	}{
		{name: "plain", want: []string{"--msgpack", "--port", "2002", "--dev", "eth0", "scan"}},
		{name: "include self", includeSelf: true, want: []string{"--msgpack", "--port", "2002", "--dev", "eth0", "--include", "scan"}},
		{name: "dev override", dev: true, want: []string{"--msgpack", "--port", "2002", "--dev", "eth0", "--include", "scan"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProcess{}
			c := New(p, nil)
			started, err := c.StartScan(identity(), tc.includeSelf, tc.dev)
			require.NoError(t, err)
			require.True(t, started)
			require.Equal(t, [][]string{tc.want}, p.spawns)
		})
	}
}

func TestStartScanWhileScanningIsNoop(t *testing.T) {
	p := &fakeProcess{}
	c := New(p, nil)

	_, err := c.StartScan(identity(), false, false)
	require.NoError(t, err)
	lifetime := c.Lifetime()

	started, err := c.StartScan(identity(), true, true)
	require.NoError(t, err)
	require.False(t, started)
	require.True(t, c.Scanning())
	require.Equal(t, lifetime, c.Lifetime())
	require.Len(t, p.spawns, 1)
}

func TestStartScanSpawnFailure(t *testing.T) {
	boom := errors.New("boom")
	c := New(&fakeProcess{spawnErr: boom}, nil)

	started, err := c.StartScan(identity(), false, false)
	require.ErrorIs(t, err, boom)
	require.False(t, started)
	require.False(t, c.Scanning())
}

func TestStopScan(t *testing.T) {
	p := &fakeProcess{}
	c := New(p, nil)

	require.NoError(t, c.StopScan())
	require.Equal(t, 0, p.interrupts)

	_, err := c.StartScan(identity(), false, false)
	require.NoError(t, err)
	require.NoError(t, c.StopScan())
	require.Equal(t, 1, p.interrupts)
	require.True(t, c.Scanning(), "flag clears only on close")
}

func TestHandleEventMapping(t *testing.T) {
	p := &fakeProcess{}
	c := New(p, nil)
	_, err := c.StartScan(identity(), false, false)
	require.NoError(t, err)

	peer, err := frame.Encode("PEER", "10.0.0.5", false)
	require.NoError(t, err)
	evs := c.HandleEvent(supervisor.Event{Lifetime: p.current, Kind: supervisor.EventOutput, Envelope: frame.Decode(peer, false)})
	require.Equal(t, []events.Event{events.PeerDiscovered("10.0.0.5", "")}, evs)

	evs = c.HandleEvent(supervisor.Event{Lifetime: p.current, Kind: supervisor.EventOutput, Envelope: frame.Decode([]byte("??"), false)})
	require.Equal(t, events.KindError, evs[0].Kind)
	require.Equal(t, frame.DecodeErrorTitle, evs[0].Title)

	require.Empty(t, c.HandleEvent(supervisor.Event{Lifetime: uuid.New(), Kind: supervisor.EventClosed}))
	require.True(t, c.Scanning())

	evs = c.HandleEvent(supervisor.Event{Lifetime: p.current, Kind: supervisor.EventClosed})
	require.Equal(t, []events.Event{events.ScanFinished()}, evs)
	require.False(t, c.Scanning())
}

// Scan helper emits two peers then exits: both peers, then exactly one scan-finished.
func TestScanScenarioWithHelperProcess(t *testing.T) {
	record := filepath.Join(t.TempDir(), "record.jsonl")
	sup := supervisor.New("scan", "fire_linux",
		supervisor.WithCommandFactory(testutil.HelperCommand("out PEER 10.0.0.5; out PEER 10.0.0.9; exit 0", record)))
	t.Cleanup(sup.Close)

	c := New(sup, nil)
	started, err := c.StartScan(identity(), false, false)
	require.NoError(t, err)
	require.True(t, started)

	var got []events.Event
	for c.Scanning() {
		select {
		case ev := <-sup.Events():
			got = append(got, c.HandleEvent(ev)...)
		case <-time.After(10 * time.Second):
			t.Fatal("scan never finished")
		}
	}

	require.Len(t, got, 3)
	require.ElementsMatch(t, []string{"10.0.0.5", "10.0.0.9"}, []string{got[0].Address, got[1].Address})
	require.Equal(t, events.KindScanFinished, got[2].Kind)

	started, err = c.StartScan(identity(), false, false)
	require.NoError(t, err)
	require.True(t, started)
}
