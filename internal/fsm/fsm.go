// Package fsm defines the inbound transfer handshake transition table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle            State = "idle"
	StateOfferReceived   State = "offer-received"
	StateDeclined        State = "declined"
	StateAccepted        State = "accepted"
	StateDestinationSent State = "destination-sent"
	StateCompleted       State = "completed"
)

const (
	EventOffer                Event = "offer"
	EventDecline              Event = "decline"
	EventAccept               Event = "accept"
	EventDestinationRequested Event = "destination-requested"
	EventFilesWritten         Event = "files-written"
)

// States lists every state in protocol order.
func States() []State {
	return []State{StateIdle, StateOfferReceived, StateDeclined, StateAccepted, StateDestinationSent, StateCompleted}
}

// Events lists every event.
func Events() []Event {
	return []Event{EventOffer, EventDecline, EventAccept, EventDestinationRequested, EventFilesWritten}
}

// Terminal reports whether no further transition is possible from s.
func Terminal(s State) bool {
	return s == StateDeclined || s == StateCompleted
}

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventOffer:
			return StateOfferReceived, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateOfferReceived:
		switch event {
		case EventDecline:
			return StateDeclined, nil
		case EventAccept:
			return StateAccepted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAccepted:
		switch event {
		case EventDestinationRequested:
			return StateDestinationSent, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDestinationSent:
		switch event {
		case EventFilesWritten:
			return StateCompleted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDeclined, StateCompleted:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
