package indicator

import (
	"fmt"
	"math"
	"time"

	"github.com/jfreymuth/pulse"
)

type cueKind int

const (
	cueOffer cueKind = iota + 1
	cueComplete
	cueError
)

const (
	cueSampleRate = 16000
	cueVolume     = 0.18
	cueGap        = 22 * time.Millisecond
	cueRamp       = 5 * time.Millisecond
)

// note is one tone of a cue.
type note struct {
	hz  float64
	dur time.Duration
}

// Offers rise, completions resolve upward, errors fall.
var cueNotes = map[cueKind][]note{
	cueOffer:    {{hz: 880, dur: 70 * time.Millisecond}, {hz: 1175, dur: 70 * time.Millisecond}},
	cueComplete: {{hz: 740, dur: 65 * time.Millisecond}, {hz: 988, dur: 90 * time.Millisecond}},
	cueError:    {{hz: 480, dur: 75 * time.Millisecond}, {hz: 360, dur: 90 * time.Millisecond}},
}

var renderedCues = func() map[cueKind][]int16 {
	out := make(map[cueKind][]int16, len(cueNotes))
	for kind, notes := range cueNotes {
		out[kind] = renderCue(notes)
	}
	return out
}()

func emitCue(kind cueKind) error {
	pcm := renderedCues[kind]
	if len(pcm) == 0 {
		return nil
	}
	return playPCM(pcm)
}

// playPCM plays mono 16-bit samples through the pulse server and waits for the drain.
func playPCM(pcm []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("raindrop"),
		pulse.ClientApplicationIconName("folder-download"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	stream, err := client.NewPlayback(
		pulse.Int16Reader(pcmSource(pcm)),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("raindrop transfer cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue: %w", err)
	}
	return nil
}

// pcmSource yields pcm once, then reports end of data.
func pcmSource(pcm []int16) func([]int16) (int, error) {
	rest := pcm
	return func(buf []int16) (int, error) {
		n := copy(buf, rest)
		rest = rest[n:]
		if len(rest) == 0 {
			return n, pulse.EndOfData
		}
		return n, nil
	}
}

func renderCue(notes []note) []int16 {
	var pcm []int16
	for i, nt := range notes {
		if i > 0 {
			pcm = append(pcm, make([]int16, sampleCount(cueGap))...)
		}
		pcm = append(pcm, renderNote(nt)...)
	}
	return pcm
}

// renderNote is a sine at cueVolume with linear ramps of at most cueRamp on both ends.
func renderNote(nt note) []int16 {
	n := sampleCount(nt.dur)
	if n == 0 || nt.hz <= 0 {
		return nil
	}
	ramp := float64(min(max(n/10, 1), sampleCount(cueRamp)))

	out := make([]int16, n)
	for i := range out {
		gain := min(1, float64(i)/ramp, float64(n-1-i)/ramp)
		phase := 2 * math.Pi * nt.hz * float64(i) / cueSampleRate
		out[i] = int16(math.Round(math.Sin(phase) * cueVolume * gain * math.MaxInt16))
	}
	return out
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
