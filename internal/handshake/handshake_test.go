package handshake

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/rbright/raindrop/internal/frame"
	"github.com/rbright/raindrop/internal/fsm"
	"github.com/rbright/raindrop/internal/wire"
)

type fakeWriter struct {
	lines []string
	err   error
}

func (w *fakeWriter) Write(text string) error {
	if w.err != nil {
		return w.err
	}
	w.lines = append(w.lines, text)
	return nil
}

func action(title string) frame.Envelope {
	return frame.Envelope{Title: title, Action: &frame.ActionData{Title: title}}
}

func bobOffer() wire.Offer {
	return wire.Offer{From: "Bob", Files: []wire.OfferedFile{{Filename: "a.txt", Size: 120}}}
}

func TestAcceptFlowWritesTokensInOrder(t *testing.T) {
	w := &fakeWriter{}
	s := New(w, uuid.New())

	require.NoError(t, s.Receive(bobOffer()))
	require.Equal(t, fsm.StateOfferReceived, s.State())
	require.Equal(t, "Bob", s.Offer().From)

	require.NoError(t, s.Accept("/tmp/in"))
	require.Equal(t, fsm.StateAccepted, s.State())
	require.Equal(t, []string{"y\n"}, w.lines)

	step, err := s.Observe(action(wire.TitleFileDestination))
	require.NoError(t, err)
	require.Equal(t, StepDestinationSent, step)
	require.Equal(t, []string{"y\n", "/tmp/in\n"}, w.lines)

	step, err = s.Observe(action(wire.TitleFileWritten))
	require.NoError(t, err)
	require.Equal(t, StepCompleted, step)
	require.Equal(t, fsm.StateCompleted, s.State())
	require.True(t, s.Terminal())
	require.Len(t, w.lines, 2)
}

func TestDeclineIsTerminal(t *testing.T) {
	w := &fakeWriter{}
	s := New(w, uuid.New())
	require.NoError(t, s.Receive(bobOffer()))

	require.NoError(t, s.Decline())
	require.Equal(t, []string{"n\n"}, w.lines)
	require.True(t, s.Terminal())

	step, err := s.Observe(action(wire.TitleFileDestination))
	require.NoError(t, err)
	require.Equal(t, StepIgnored, step)
	require.Equal(t, fsm.StateDeclined, s.State())
	require.Error(t, s.Accept("/tmp/in"))
	require.Len(t, w.lines, 1)
}

func TestUnexpectedTitlesAreIgnored(t *testing.T) {
	w := &fakeWriter{}
	s := New(w, uuid.New())
	require.NoError(t, s.Receive(bobOffer()))

	for _, title := range []string{wire.TitleFileDestination, wire.TitleFileWritten, "SOMETHING_NEW"} {
		step, err := s.Observe(action(title))
		require.NoError(t, err)
		require.Equal(t, StepIgnored, step)
	}
	require.Equal(t, fsm.StateOfferReceived, s.State())

	require.NoError(t, s.Accept("/tmp/in"))
	step, err := s.Observe(action(wire.TitleFileWritten))
	require.NoError(t, err)
	require.Equal(t, StepIgnored, step)
	require.Equal(t, fsm.StateAccepted, s.State())

	errEnv := frame.Envelope{Title: wire.TitleFileDestination, IsError: true, Failure: &frame.ErrorData{}}
	step, err = s.Observe(errEnv)
	require.NoError(t, err)
	require.Equal(t, StepIgnored, step)
}

func TestAcceptRequiresDestination(t *testing.T) {
	w := &fakeWriter{}
	s := New(w, uuid.New())
	require.NoError(t, s.Receive(bobOffer()))

	require.ErrorIs(t, s.Accept("  "), ErrEmptyDestination)
	require.Equal(t, fsm.StateOfferReceived, s.State())
	require.Empty(t, w.lines)
}

func TestWriteFailureKeepsState(t *testing.T) {
	boom := errors.New("broken pipe")
	w := &fakeWriter{err: boom}
	s := New(w, uuid.New())
	require.NoError(t, s.Receive(bobOffer()))

	require.ErrorIs(t, s.Accept("/tmp/in"), boom)
	require.Equal(t, fsm.StateOfferReceived, s.State())
	require.Empty(t, s.Destination())
}

func TestActionsBeforeOfferFail(t *testing.T) {
	s := New(&fakeWriter{}, uuid.New())
	require.Error(t, s.Decline())
	require.Error(t, s.Accept("/tmp"))
	require.Equal(t, fsm.StateIdle, s.State())
}

func TestRepliesFollowProtocolProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := &fakeWriter{}
		s := New(w, uuid.New())

		ops := rapid.SliceOfN(rapid.IntRange(0, 4), 0, 20).Draw(t, "ops")
		for _, op := range ops {
			switch op {
			case 0:
				_ = s.Receive(bobOffer())
			case 1:
				_ = s.Accept("/in")
			case 2:
				_ = s.Decline()
			case 3:
				_, _ = s.Observe(action(wire.TitleFileDestination))
			case 4:
				_, _ = s.Observe(action(wire.TitleFileWritten))
			}
		}

		accepted := []string{"y\n", "/in\n"}
		declined := []string{"n\n"}
		switch {
		case len(w.lines) == 0:
		case w.lines[0] == "n\n":
			if len(w.lines) != len(declined) {
				t.Fatalf("writes after decline: %q", w.lines)
			}
		default:
			if len(w.lines) > len(accepted) || w.lines[0] != accepted[0] || (len(w.lines) == 2 && w.lines[1] != accepted[1]) {
				t.Fatalf("unexpected replies: %q", w.lines)
			}
		}
		if s.State() == fsm.StateCompleted && len(w.lines) != 2 {
			t.Fatalf("completed without destination: %q", w.lines)
		}
	})
}
