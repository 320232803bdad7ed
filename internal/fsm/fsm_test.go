package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTransitionAcceptPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventOffer)
	require.NoError(t, err)
	require.Equal(t, StateOfferReceived, next)

	next, err = Transition(next, EventAccept)
	require.NoError(t, err)
	require.Equal(t, StateAccepted, next)

	next, err = Transition(next, EventDestinationRequested)
	require.NoError(t, err)
	require.Equal(t, StateDestinationSent, next)

	next, err = Transition(next, EventFilesWritten)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, next)
	require.True(t, Terminal(next))
}

func TestTransitionDeclineIsTerminal(t *testing.T) {
	next, err := Transition(StateOfferReceived, EventDecline)
	require.NoError(t, err)
	require.Equal(t, StateDeclined, next)
	require.True(t, Terminal(next))

	for _, event := range Events() {
		after, err := Transition(next, event)
		require.Error(t, err)
		require.Equal(t, StateDeclined, after)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle accept invalid", state: StateIdle, event: EventAccept, want: StateIdle, wantErr: true},
		{name: "idle files written invalid", state: StateIdle, event: EventFilesWritten, want: StateIdle, wantErr: true},
		{name: "offer destination invalid", state: StateOfferReceived, event: EventDestinationRequested, want: StateOfferReceived, wantErr: true},
		{name: "offer files written invalid", state: StateOfferReceived, event: EventFilesWritten, want: StateOfferReceived, wantErr: true},
		{name: "accepted files written invalid", state: StateAccepted, event: EventFilesWritten, want: StateAccepted, wantErr: true},
		{name: "accepted decline invalid", state: StateAccepted, event: EventDecline, want: StateAccepted, wantErr: true},
		{name: "destination sent accept invalid", state: StateDestinationSent, event: EventAccept, want: StateDestinationSent, wantErr: true},
		{name: "completed offer invalid", state: StateCompleted, event: EventOffer, want: StateCompleted, wantErr: true},
		{name: "accepted destination valid", state: StateAccepted, event: EventDestinationRequested, want: StateDestinationSent, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventOffer)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}

// Any accepted event sequence that ends in Completed visits the protocol states in order,
// and no sequence through Declined reaches DestinationSent.
func TestTransitionOrderingProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		events := rapid.SliceOfN(rapid.SampledFrom(Events()), 0, 12).Draw(rt, "events")

		state := StateIdle
		visited := []State{state}
		for _, ev := range events {
			next, err := Transition(state, ev)
			if err != nil {
				require.Equal(rt, state, next)
				continue
			}
			state = next
			visited = append(visited, state)
		}

		if state == StateCompleted {
			require.Equal(rt, []State{StateIdle, StateOfferReceived, StateAccepted, StateDestinationSent, StateCompleted}, visited)
		}
		for i, s := range visited {
			if s == StateDeclined {
				require.Equal(rt, len(visited)-1, i)
				require.NotContains(rt, visited, StateDestinationSent)
			}
		}
	})
}
