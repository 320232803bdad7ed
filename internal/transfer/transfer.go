// Package transfer runs the send helper and tracks whether a send is active.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rbright/raindrop/internal/config"
	"github.com/rbright/raindrop/internal/events"
	"github.com/rbright/raindrop/internal/supervisor"
	"github.com/rbright/raindrop/internal/wire"
)

var (
	ErrSendActive = errors.New("a send is already in progress")
	ErrNoFiles    = errors.New("no files selected")
	ErrNoAddress  = errors.New("destination address is required")
)

// RefusedStatus replaces connection-refused errors from the send helper.
const RefusedStatus = "could not connect to host"

var refusedMarkers = []string{"actively refused", "connection refused"}

// Process is the supervisor surface the coordinator drives.
type Process interface {
	Spawn(args []string) (uuid.UUID, error)
	Interrupt() error
}

// Coordinator owns the active-send flag. Methods must be called from one control flow.
type Coordinator struct {
	proc     Process
	logger   *slog.Logger
	sending  bool
	lifetime uuid.UUID
}

// New builds an idle coordinator.
func New(proc Process, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{proc: proc, logger: logger}
}

// Args builds the send argument vector.
func Args(id config.Identity, address string, files []File) []string {
	return wire.SendArgs(wire.Common{Port: id.TargetPort, Adapter: id.Adapter}, id.DisplayName, address, Paths(files))
}

// Sending reports whether a send process has not yet closed.
func (c *Coordinator) Sending() bool { return c.sending }

// Send spawns the send helper for files.
func (c *Coordinator) Send(files []File, address string, id config.Identity) error {
	if c.sending {
		return ErrSendActive
	}
	if len(files) == 0 {
		return ErrNoFiles
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrNoAddress
	}

	lifetime, err := c.proc.Spawn(Args(id, address, files))
	if err != nil {
		return err
	}
	c.sending = true
	c.lifetime = lifetime
	c.logger.Info("send started", "address", address, "files", len(files), "lifetime", lifetime)
	return nil
}

// Cancel interrupts the active send.
func (c *Coordinator) Cancel() error {
	if !c.sending {
		return nil
	}
	return c.proc.Interrupt()
}

// HandleEvent maps send output to events. Close clears the flag whatever the exit.
func (c *Coordinator) HandleEvent(ev supervisor.Event) []events.Event {
	if !c.sending || ev.Lifetime != c.lifetime {
		return nil
	}

	if ev.Kind == supervisor.EventClosed {
		c.sending = false
		c.lifetime = uuid.Nil
		if ev.ExitErr != nil {
			c.logger.Info("send helper exited", "error", ev.ExitErr.Error())
		}
		return nil
	}

	env := ev.Envelope
	if env.IsError {
		if !env.IsDecodeError() && IsRefused(env.Failure.Message()) {
			return []events.Event{events.Status(events.SourceSend, RefusedStatus)}
		}
		return []events.Event{events.FromFailure(events.SourceSend, env)}
	}
	return []events.Event{events.Status(events.SourceSend, statusText(env.Action.Data))}
}

// IsRefused reports whether msg says the destination refused the connection.
func IsRefused(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range refusedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func statusText(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
