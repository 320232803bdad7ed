// Package handshake drives one inbound transfer offer from notification to completion.
package handshake

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rbright/raindrop/internal/frame"
	"github.com/rbright/raindrop/internal/fsm"
	"github.com/rbright/raindrop/internal/wire"
)

// ErrEmptyDestination is returned by Accept without a directory.
var ErrEmptyDestination = errors.New("destination directory is required")

// Writer is the relay stdin the session answers on.
type Writer interface {
	Write(text string) error
}

// Step reports what Observe did with an envelope.
type Step int

const (
	// StepIgnored means the envelope was not the expected next frame.
	StepIgnored Step = iota
	// StepDestinationSent means the destination line was written.
	StepDestinationSent
	// StepCompleted means the files were written and the session is done.
	StepCompleted
)

// Session is one handshake bound to the relay lifetime that offered it.
type Session struct {
	w           Writer
	lifetime    uuid.UUID
	state       fsm.State
	offer       wire.Offer
	destination string
}

// New returns an idle session answering on w.
func New(w Writer, lifetime uuid.UUID) *Session {
	return &Session{w: w, lifetime: lifetime, state: fsm.StateIdle}
}

func (s *Session) State() fsm.State    { return s.state }
func (s *Session) Offer() wire.Offer   { return s.offer }
func (s *Session) Lifetime() uuid.UUID { return s.lifetime }
func (s *Session) Destination() string { return s.destination }
func (s *Session) Terminal() bool      { return fsm.Terminal(s.state) }

// Receive records the offer.
func (s *Session) Receive(offer wire.Offer) error {
	next, err := fsm.Transition(s.state, fsm.EventOffer)
	if err != nil {
		return err
	}
	s.offer = offer
	s.state = next
	return nil
}

// Accept answers the offer and remembers dir for the destination request.
func (s *Session) Accept(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return ErrEmptyDestination
	}
	if err := s.advance(fsm.EventAccept, wire.AcceptToken); err != nil {
		return err
	}
	s.destination = dir
	return nil
}

// Decline refuses the offer. The session is terminal afterwards.
func (s *Session) Decline() error {
	return s.advance(fsm.EventDecline, wire.DeclineToken)
}

// Observe feeds one relay envelope to the session. Envelopes that are not the
// expected next step are ignored.
func (s *Session) Observe(env frame.Envelope) (Step, error) {
	if env.IsError {
		return StepIgnored, nil
	}
	switch {
	case env.Title == wire.TitleFileDestination && s.state == fsm.StateAccepted:
		if err := s.advance(fsm.EventDestinationRequested, wire.DestinationLine(s.destination)); err != nil {
			return StepIgnored, err
		}
		return StepDestinationSent, nil
	case env.Title == wire.TitleFileWritten && s.state == fsm.StateDestinationSent:
		if err := s.advance(fsm.EventFilesWritten, ""); err != nil {
			return StepIgnored, err
		}
		return StepCompleted, nil
	default:
		return StepIgnored, nil
	}
}

// advance validates the transition, writes reply, and only then moves state.
func (s *Session) advance(event fsm.Event, reply string) error {
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		return err
	}
	if reply != "" {
		if err := s.w.Write(reply); err != nil {
			return fmt.Errorf("handshake %s: %w", event, err)
		}
	}
	s.state = next
	return nil
}
