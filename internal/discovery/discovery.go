// Package discovery runs at most one scan helper at a time and reports what it finds.
package discovery

import (
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rbright/raindrop/internal/config"
	"github.com/rbright/raindrop/internal/events"
	"github.com/rbright/raindrop/internal/supervisor"
	"github.com/rbright/raindrop/internal/wire"
)

// Process is the supervisor surface the coordinator drives.
type Process interface {
	Spawn(args []string) (uuid.UUID, error)
	Interrupt() error
}

// Coordinator owns the in-flight scan flag. Methods must be called from one control flow.
type Coordinator struct {
	proc     Process
	logger   *slog.Logger
	scanning bool
	lifetime uuid.UUID
}

// New builds an idle coordinator.
func New(proc Process, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{proc: proc, logger: logger}
}

// Args builds the scan argument vector.
func Args(id config.Identity, include bool) []string {
	return wire.ScanArgs(wire.Common{Port: id.TargetPort, Adapter: id.Adapter}, include)
}

// Scanning reports whether a scan process is in flight.
func (c *Coordinator) Scanning() bool { return c.scanning }

// Lifetime returns the in-flight scan lifetime, or uuid.Nil.
func (c *Coordinator) Lifetime() uuid.UUID {
	if !c.scanning {
		return uuid.Nil
	}
	return c.lifetime
}

// StartScan spawns a scan unless one is already in flight, in which case it returns
// false and changes nothing.
func (c *Coordinator) StartScan(id config.Identity, includeSelf, devOverride bool) (bool, error) {
	if c.scanning {
		c.logger.Debug("scan already in flight", "lifetime", c.lifetime)
		return false, nil
	}
	lifetime, err := c.proc.Spawn(Args(id, includeSelf || devOverride))
	if err != nil {
		return false, err
	}
	c.scanning = true
	c.lifetime = lifetime
	return true, nil
}

// StopScan interrupts the active scan. The scan stays in flight until its close arrives.
func (c *Coordinator) StopScan() error {
	if !c.scanning {
		return nil
	}
	return c.proc.Interrupt()
}

// HandleEvent maps scan output to events. Discovered peers carry only an address;
// the caller resolves names.
func (c *Coordinator) HandleEvent(ev supervisor.Event) []events.Event {
	if !c.scanning || ev.Lifetime != c.lifetime {
		c.logger.Debug("ignoring event from stale scan", "lifetime", ev.Lifetime)
		return nil
	}

	if ev.Kind == supervisor.EventClosed {
		c.scanning = false
		c.lifetime = uuid.Nil
		return []events.Event{events.ScanFinished()}
	}

	env := ev.Envelope
	if env.IsError {
		return []events.Event{events.FromFailure(events.SourceScan, env)}
	}
	if addr, ok := env.Action.String(); ok && strings.TrimSpace(addr) != "" {
		return []events.Event{events.PeerDiscovered(strings.TrimSpace(addr), "")}
	}
	return []events.Event{events.Action(events.SourceScan, env.Title, env.Action.Data)}
}
