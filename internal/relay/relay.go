// Package relay supervises the long-lived listener helper and dispatches its frames.
package relay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rbright/raindrop/internal/config"
	"github.com/rbright/raindrop/internal/events"
	"github.com/rbright/raindrop/internal/frame"
	"github.com/rbright/raindrop/internal/fsm"
	"github.com/rbright/raindrop/internal/handshake"
	"github.com/rbright/raindrop/internal/supervisor"
	"github.com/rbright/raindrop/internal/wire"
)

// ErrNoActiveOffer is returned by Accept and Decline when no offer awaits an answer.
var ErrNoActiveOffer = errors.New("no inbound offer is waiting")

// Error titles raised by the relay itself.
const (
	TitleOfferRejected = "offer-rejected"
	TitleOfferInvalid  = "offer-invalid"
	TitleHandshake     = "handshake-error"
)

// FilesWrittenStatus is published when FILE_WRITTEN carries no message of its own.
const FilesWrittenStatus = "Files written"

// Process is the supervisor surface the relay drives.
type Process interface {
	Spawn(args []string) (uuid.UUID, error)
	Restart(args []string) (uuid.UUID, error)
	Interrupt() error
	Write(text string) error
	Current() uuid.UUID
}

// State is the relay's user-facing toggle state.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Relay is the Open/Closed listener. All methods must be called from one control flow.
type Relay struct {
	proc     Process
	logger   *slog.Logger
	identity config.Identity
	open     bool
	active   *handshake.Session
}

// New builds a closed relay. Call Start to spawn the listener.
func New(proc Process, identity config.Identity, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Relay{proc: proc, identity: identity, logger: logger}
}

// Args builds the listener argument vector for identity.
func Args(id config.Identity) []string {
	return wire.RelayArgs(wire.Common{Port: id.ListenPort, Adapter: id.Adapter}, id.DisplayName)
}

func (r *Relay) State() State {
	if r.open {
		return StateOpen
	}
	return StateClosed
}

func (r *Relay) Open() bool                { return r.open }
func (r *Relay) Identity() config.Identity { return r.identity }

// Start spawns the listener and opens the relay. Spawn errors are fatal to the caller.
func (r *Relay) Start() error {
	if _, err := r.proc.Spawn(Args(r.identity)); err != nil {
		return err
	}
	r.open = true
	return nil
}

// Toggle flips Open and Closed. Opening while the previous lifetime is still shutting
// down chains a new lifetime behind it.
func (r *Relay) Toggle() (State, error) {
	if r.open {
		r.open = false
		if err := r.proc.Interrupt(); err != nil {
			return r.State(), fmt.Errorf("close relay: %w", err)
		}
		return r.State(), nil
	}
	if _, err := r.proc.Restart(Args(r.identity)); err != nil {
		return r.State(), err
	}
	r.abandon("relay reopened")
	r.open = true
	return r.State(), nil
}

// Restart restarts the listener with the current identity and leaves the relay Open.
func (r *Relay) Restart() error {
	if _, err := r.proc.Restart(Args(r.identity)); err != nil {
		return err
	}
	r.abandon("relay restarted")
	r.open = true
	return nil
}

// ApplyIdentity stores id and, when Open, restarts exactly once.
func (r *Relay) ApplyIdentity(id config.Identity) (restarted bool, err error) {
	r.identity = id
	if !r.open {
		return false, nil
	}
	if _, err := r.proc.Restart(Args(id)); err != nil {
		return false, err
	}
	r.abandon("identity changed")
	return true, nil
}

// Write forwards raw text to the listener.
func (r *Relay) Write(text string) error {
	return r.proc.Write(text)
}

// Handshake returns the active handshake state, or Idle when none is active.
func (r *Relay) Handshake() (fsm.State, wire.Offer) {
	if r.active == nil {
		return fsm.StateIdle, wire.Offer{}
	}
	return r.active.State(), r.active.Offer()
}

// Accept answers the pending offer.
func (r *Relay) Accept(dir string) error {
	s, err := r.pending()
	if err != nil {
		return err
	}
	return s.Accept(dir)
}

// Decline refuses the pending offer and clears the handshake.
func (r *Relay) Decline() error {
	s, err := r.pending()
	if err != nil {
		return err
	}
	if err := s.Decline(); err != nil {
		return err
	}
	r.active = nil
	return nil
}

// abandon drops the handshake of a lifetime that is gone.
func (r *Relay) abandon(reason string) {
	if r.active == nil {
		return
	}
	r.logger.Info("handshake abandoned", "reason", reason, "state", string(r.active.State()), "lifetime", r.active.Lifetime())
	r.active = nil
}

func (r *Relay) pending() (*handshake.Session, error) {
	if r.active == nil || r.active.State() != fsm.StateOfferReceived {
		return nil, ErrNoActiveOffer
	}
	if r.active.Lifetime() != r.proc.Current() {
		r.logger.Info("dropping offer from replaced relay lifetime", "lifetime", r.active.Lifetime())
		r.active = nil
		return nil, ErrNoActiveOffer
	}
	return r.active, nil
}

// HandleEvent interprets one supervisor event. sending is the transfer coordinator's
// active-send flag; devMode suppresses auto-decline.
func (r *Relay) HandleEvent(ev supervisor.Event, sending, devMode bool) []events.Event {
	if ev.Kind == supervisor.EventClosed {
		if ev.Lifetime != r.proc.Current() {
			r.logger.Debug("replaced relay lifetime closed", "lifetime", ev.Lifetime)
			return nil
		}
		r.abandon("relay closed")
		r.open = false
		return []events.Event{events.RelayClosed()}
	}

	env := ev.Envelope
	if env.IsError {
		return []events.Event{events.FromFailure(events.SourceRelay, env)}
	}

	switch env.Title {
	case wire.TitleAcceptFile:
		return r.handleOffer(ev.Lifetime, env, sending, devMode)
	case wire.TitleFileDestination, wire.TitleFileWritten:
		return r.handleProgress(ev.Lifetime, env)
	default:
		return []events.Event{events.Action(events.SourceRelay, env.Title, actionData(env))}
	}
}

func (r *Relay) handleOffer(lifetime uuid.UUID, env frame.Envelope, sending, devMode bool) []events.Event {
	var offer wire.Offer
	if err := env.Action.DecodeData(&offer); err != nil {
		r.logger.Warn("malformed offer; declining", "error", err.Error())
		if werr := r.proc.Write(wire.DeclineToken); werr != nil {
			r.logger.Warn("decline write failed", "error", werr.Error())
		}
		return []events.Event{events.Error(events.SourceRelay, TitleOfferInvalid, err.Error(), actionData(env))}
	}

	if r.active != nil && !r.active.Terminal() {
		if r.active.Lifetime() == lifetime {
			r.logger.Warn("second concurrent offer rejected", "from", offer.From, "active_from", r.active.Offer().From)
			return []events.Event{events.Error(events.SourceRelay, TitleOfferRejected,
				fmt.Sprintf("offer from %s arrived while another offer is in progress", offer.From), nil)}
		}
		r.logger.Info("abandoning handshake from replaced relay lifetime",
			"lifetime", r.active.Lifetime(), "state", string(r.active.State()))
		r.active = nil
	}

	if sending && !devMode {
		r.logger.Info("auto-declining offer while sending", "from", offer.From)
		if err := r.proc.Write(wire.DeclineToken); err != nil {
			return []events.Event{events.Error(events.SourceRelay, TitleHandshake, err.Error(), nil)}
		}
		return []events.Event{events.Status(events.SourceRelay,
			fmt.Sprintf("Declined files from %s while sending", offer.From))}
	}

	s := handshake.New(r.proc, lifetime)
	if err := s.Receive(offer); err != nil {
		return []events.Event{events.Error(events.SourceRelay, TitleHandshake, err.Error(), nil)}
	}
	r.active = s
	return []events.Event{events.InboundOffer(offer)}
}

func (r *Relay) handleProgress(lifetime uuid.UUID, env frame.Envelope) []events.Event {
	if r.active != nil && r.active.Lifetime() == lifetime {
		step, err := r.active.Observe(env)
		if err != nil {
			return []events.Event{events.Error(events.SourceRelay, TitleHandshake, err.Error(), nil)}
		}
		switch step {
		case handshake.StepDestinationSent:
			return nil
		case handshake.StepCompleted:
			r.active = nil
			return []events.Event{events.Status(events.SourceRelay, writtenStatus(env))}
		}
	}

	if env.Title == wire.TitleFileWritten {
		return []events.Event{events.Status(events.SourceRelay, writtenStatus(env))}
	}
	return []events.Event{events.Action(events.SourceRelay, env.Title, actionData(env))}
}

func writtenStatus(env frame.Envelope) string {
	if env.Action != nil {
		if msg, ok := env.Action.String(); ok && msg != "" {
			return msg
		}
	}
	return FilesWrittenStatus
}

func actionData(env frame.Envelope) any {
	if env.Action == nil {
		return nil
	}
	return env.Action.Data
}
