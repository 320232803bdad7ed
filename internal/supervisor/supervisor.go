// Package supervisor owns the lifecycle of one external helper process at a time.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/raindrop/internal/frame"
)

var (
	// ErrSpawn marks a helper that could not be started. Callers treat it as fatal.
	ErrSpawn = errors.New("spawn helper process")
	// ErrRunning is returned by Spawn while the previous lifetime has not closed.
	ErrRunning = errors.New("process already running")
	// ErrNotRunning is returned by Write when no process is alive.
	ErrNotRunning = errors.New("process not running")
)

// DefaultRestartGrace is how long Restart waits for the old process before SIGKILL.
const DefaultRestartGrace = 5 * time.Second

// EventKind discriminates supervisor events.
type EventKind int

const (
	// EventOutput carries one decoded envelope from stdout or stderr.
	EventOutput EventKind = iota + 1
	// EventClosed fires exactly once per lifetime after both streams drain.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOutput:
		return "output"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is published on Events for every envelope and every close.
type Event struct {
	Source   string
	Lifetime uuid.UUID
	Kind     EventKind
	Envelope frame.Envelope
	ExitErr  error
}

// CommandFactoryFunc builds the command for a spawn. Tests substitute helper processes.
type CommandFactoryFunc func(name string, args ...string) *exec.Cmd

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCommandFactory overrides exec.Command.
func WithCommandFactory(fn CommandFactoryFunc) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.newCommand = fn
		}
	}
}

// WithRestartGrace overrides DefaultRestartGrace.
func WithRestartGrace(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.grace = d
		}
	}
}

// Supervisor runs one process per lifetime. Lifetimes are strictly ordered: a new
// lifetime forwards nothing until the previous lifetime's close has been published.
type Supervisor struct {
	name       string
	binary     string
	logger     *slog.Logger
	newCommand CommandFactoryFunc
	grace      time.Duration

	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	current *handle
	args    []string
	spawns  int
}

// New creates a supervisor for binary. Nothing is started until Spawn.
func New(name, binary string, opts ...Option) *Supervisor {
	s := &Supervisor{
		name:       name,
		binary:     binary,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		newCommand: exec.Command,
		grace:      DefaultRestartGrace,
		events:     make(chan Event, 64),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the supervisor name used as Event.Source.
func (s *Supervisor) Name() string { return s.name }

// Binary returns the resolved executable path.
func (s *Supervisor) Binary() string { return s.binary }

// Events returns the event stream. It is never closed.
func (s *Supervisor) Events() <-chan Event { return s.events }

// Spawn starts a new lifetime with args. It fails with ErrRunning until the
// previous process has exited; by the time its close event is received that is
// always the case.
func (s *Supervisor) Spawn(args []string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && !s.current.hasExited() {
		return uuid.Nil, ErrRunning
	}
	return s.spawnLocked(args)
}

// Restart interrupts the current lifetime, if any, and spawns a new one. Nil args
// reuse the previous argument vector. The old lifetime's close is published before
// any output of the new one.
func (s *Supervisor) Restart(args []string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if args == nil {
		args = s.args
	}
	if old := s.current; old != nil && !old.hasExited() {
		if err := old.signal(interruptSignal); err != nil {
			s.logger.Warn("restart interrupt failed", "source", s.name, "lifetime", old.id, "error", err.Error())
		}
		go s.escalate(old)
	}
	return s.spawnLocked(args)
}

// Kill signals the current lifetime. Killing an exited or never-started process is a no-op.
func (s *Supervisor) Kill(sig os.Signal) error {
	s.mu.Lock()
	h := s.current
	s.mu.Unlock()

	if h == nil || h.hasExited() {
		return nil
	}
	s.logger.Info("signal helper", "source", s.name, "lifetime", h.id, "signal", sig.String())
	return h.signal(sig)
}

// Interrupt requests graceful termination.
func (s *Supervisor) Interrupt() error {
	return s.Kill(interruptSignal)
}

// Write sends text to the current lifetime's stdin.
func (s *Supervisor) Write(text string) error {
	s.mu.Lock()
	h := s.current
	s.mu.Unlock()

	if h == nil || h.hasExited() {
		return ErrNotRunning
	}
	if _, err := io.WriteString(h.stdin, text); err != nil {
		return fmt.Errorf("write %s stdin: %w", s.name, err)
	}
	return nil
}

// Running reports whether the current lifetime has not yet published its close.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.current.isClosed()
}

// Current returns the newest lifetime id, or uuid.Nil before the first spawn.
func (s *Supervisor) Current() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return uuid.Nil
	}
	return s.current.id
}

// Args returns a copy of the last argument vector.
func (s *Supervisor) Args() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.args...)
}

// Spawns counts successful spawns.
func (s *Supervisor) Spawns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawns
}

// Close kills the current lifetime and stops all event delivery.
func (s *Supervisor) Close() {
	s.mu.Lock()
	h := s.current
	s.mu.Unlock()

	if h != nil && !h.hasExited() {
		_ = h.signal(killSignal)
	}
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Supervisor) spawnLocked(args []string) (uuid.UUID, error) {
	args = append([]string(nil), args...)
	cmd := s.newCommand(s.binary, args...)
	configureCommand(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s: stdin: %v", ErrSpawn, s.binary, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s: stdout: %v", ErrSpawn, s.binary, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s: stderr: %v", ErrSpawn, s.binary, err)
	}
	if err := cmd.Start(); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s: %v", ErrSpawn, s.binary, err)
	}

	after := closedChan
	if s.current != nil {
		after = s.current.closed
	}
	h := &handle{
		id:     uuid.New(),
		cmd:    cmd,
		stdin:  stdin,
		after:  after,
		exited: make(chan struct{}),
		closed: make(chan struct{}),
	}
	s.current = h
	s.args = args
	s.spawns++

	s.logger.Info("helper spawned",
		"source", s.name,
		"binary", s.binary,
		"args", args,
		"lifetime", h.id,
		"pid", cmd.Process.Pid,
	)

	go s.run(h, stdout, stderr)
	return h.id, nil
}

// run owns one lifetime: a pump per stream, then Wait, then the close event.
func (s *Supervisor) run(h *handle, stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)
	go s.streamOutput(h, stdout, false, &wg)
	go s.streamOutput(h, stderr, true, &wg)
	wg.Wait()

	exitErr := h.cmd.Wait()
	close(h.exited)

	select {
	case <-h.after:
	case <-s.stop:
	}

	h.closeOnce.Do(func() {
		s.logger.Info("helper closed", "source", s.name, "lifetime", h.id, "exit", exitText(exitErr))
		s.emit(Event{Source: s.name, Lifetime: h.id, Kind: EventClosed, ExitErr: exitErr})
		close(h.closed)
	})
}

// streamOutput decodes one stream in arrival order. Nothing is forwarded until the
// previous lifetime has closed.
func (s *Supervisor) streamOutput(h *handle, r io.Reader, isError bool, wg *sync.WaitGroup) {
	defer wg.Done()

	select {
	case <-h.after:
	case <-s.stop:
		_, _ = io.Copy(io.Discard, r)
		return
	}

	fr := frame.NewReader(r, isError)
	for {
		env, err := fr.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("helper stream ended", "source", s.name, "lifetime", h.id, "stderr", isError, "error", err.Error())
			}
			return
		}
		if env.IsDecodeError() {
			s.logger.Warn("helper frame decode failed", "source", s.name, "lifetime", h.id, "stderr", isError, "error", env.Failure.Message())
		}
		s.emit(Event{Source: s.name, Lifetime: h.id, Kind: EventOutput, Envelope: env})
	}
}

func (s *Supervisor) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.stop:
	}
}

func (s *Supervisor) escalate(h *handle) {
	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-h.closed:
	case <-s.stop:
	case <-timer.C:
		s.logger.Warn("helper ignored interrupt; killing", "source", s.name, "lifetime", h.id)
		_ = h.signal(killSignal)
	}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type handle struct {
	id        uuid.UUID
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	after     <-chan struct{}
	exited    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func (h *handle) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

func (h *handle) hasExited() bool {
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

func (h *handle) signal(sig os.Signal) error {
	if h.cmd.Process == nil {
		return nil
	}
	err := signalProcess(h.cmd.Process, sig)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func exitText(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
