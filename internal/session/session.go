// Package session owns the single control flow that drives the relay, scan, and send
// coordinators and answers control commands.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/raindrop/internal/config"
	"github.com/rbright/raindrop/internal/discovery"
	"github.com/rbright/raindrop/internal/events"
	"github.com/rbright/raindrop/internal/fsm"
	"github.com/rbright/raindrop/internal/ipc"
	"github.com/rbright/raindrop/internal/peers"
	"github.com/rbright/raindrop/internal/pubsub"
	"github.com/rbright/raindrop/internal/relay"
	"github.com/rbright/raindrop/internal/supervisor"
	"github.com/rbright/raindrop/internal/transfer"
)

// ErrStopped is returned to commands submitted after the control loop exited.
var ErrStopped = errors.New("session is not running")

const (
	defaultLookupTimeout = 2 * time.Second
	indicatorTimeout     = 2 * time.Second
)

// Process is the supervisor surface the controller needs for one helper.
type Process interface {
	Spawn(args []string) (uuid.UUID, error)
	Restart(args []string) (uuid.UUID, error)
	Interrupt() error
	Write(text string) error
	Current() uuid.UUID
	Events() <-chan supervisor.Event
	Close()
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowOffer(ctx context.Context, from string, files int)
	ShowStatus(ctx context.Context, text string)
	ShowError(ctx context.Context, text string)
	CueOffer(context.Context)
	CueComplete(context.Context)
	CueError(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowOffer(context.Context, string, int) {}
func (noopIndicator) ShowStatus(context.Context, string)     {}
func (noopIndicator) ShowError(context.Context, string)      {}
func (noopIndicator) CueOffer(context.Context)               {}
func (noopIndicator) CueComplete(context.Context)            {}
func (noopIndicator) CueError(context.Context)               {}

// Options wires a Controller.
type Options struct {
	Logger    *slog.Logger
	Config    config.Config
	Relay     Process
	Scan      Process
	Send      Process
	Resolver  peers.Resolver
	Indicator Indicator
	// Save persists identity changes made through the set command. Nil skips persistence.
	Save func(config.Identity) error
}

// forgetter is implemented by resolvers that cache names.
type forgetter interface {
	Forget()
}

type command struct {
	run   func(context.Context) ipc.Response
	reply chan ipc.Response
}

type lookupResult struct {
	gen     int
	address string
	name    string
}

// Controller serializes every coordinator mutation onto the Run loop.
type Controller struct {
	logger    *slog.Logger
	cfg       config.Config
	relayProc Process
	scanProc  Process
	sendProc  Process
	resolver  peers.Resolver
	indicator Indicator
	save      func(config.Identity) error

	lookupTimeout time.Duration

	relay     *relay.Relay
	scan      *discovery.Coordinator
	send      *transfer.Coordinator
	directory peers.Directory
	broker    *pubsub.Broker[events.Event]

	commands chan command
	lookups  chan lookupResult
	done     chan struct{}
	notifyWG sync.WaitGroup

	scanGen       int
	pending       int
	finishPending bool
	fatal         error
}

// New builds a controller. Run must be called before commands are answered.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ind := opts.Indicator
	if ind == nil {
		ind = noopIndicator{}
	}
	lookupTimeout := opts.Config.Peers.LookupTimeout
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}

	return &Controller{
		logger:    logger,
		cfg:       opts.Config,
		relayProc: opts.Relay,
		scanProc:  opts.Scan,
		sendProc:  opts.Send,
		resolver:  opts.Resolver,
		indicator: ind,
		save:      opts.Save,

		lookupTimeout: lookupTimeout,

		relay:     relay.New(opts.Relay, opts.Config.Identity, logger.With("component", "relay")),
		scan:      discovery.New(opts.Scan, logger.With("component", "scan")),
		send:      transfer.New(opts.Send, logger.With("component", "send")),
		broker:    pubsub.NewBroker[events.Event](),
		commands:  make(chan command),
		lookups:   make(chan lookupResult, 16),
		done:      make(chan struct{}),
	}
}

// Subscribe returns collaborator events until ctx ends or the controller stops.
func (c *Controller) Subscribe(ctx context.Context) <-chan pubsub.Event[events.Event] {
	return c.broker.Subscribe(ctx)
}

// Watch forwards collaborator events to send until ctx ends, send fails, or the controller stops.
func (c *Controller) Watch(ctx context.Context, send func(any) error) error {
	sub := c.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			out, ok := ev.Payload.Encodable()
			if !ok {
				c.logger.Warn("event payload not encodable; sending as text", "kind", string(out.Kind), "title", out.Title)
			}
			if err := send(out); err != nil {
				return err
			}
		}
	}
}

// Done is closed once Run has returned and every helper was closed.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run starts the relay and processes commands and helper events until ctx ends.
// A helper that cannot be spawned ends the loop with an error wrapping supervisor.ErrSpawn.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.shutdown()

	if err := c.relay.Start(); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}
	c.logger.Info("relay open", "name", c.cfg.Identity.DisplayName, "port", c.cfg.Identity.ListenPort)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.relayProc.Events():
			c.handleRelay(ev)
		case ev := <-c.scanProc.Events():
			c.handleScan(ctx, ev)
		case ev := <-c.sendProc.Events():
			c.publish(c.send.HandleEvent(ev)...)
		case res := <-c.lookups:
			c.handleLookup(res)
		case cmd := <-c.commands:
			cmd.reply <- cmd.run(ctx)
		}

		if c.fatal != nil {
			return c.fatal
		}
	}
}

func (c *Controller) shutdown() {
	c.relayProc.Close()
	c.scanProc.Close()
	c.sendProc.Close()
	c.notifyWG.Wait()
	c.broker.Close()
}

// Handle answers one control request on the Run loop.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.submit(ctx, c.status)
	case ipc.CommandScan:
		return c.submit(ctx, func(context.Context) ipc.Response { return c.startScan() })
	case ipc.CommandStopScan:
		return c.submit(ctx, func(context.Context) ipc.Response { return c.result(c.scan.StopScan(), "scan stopping") })
	case ipc.CommandSend:
		if len(req.Args) < 2 {
			return ipc.Failure(errors.New("usage: send <address> <path>..."))
		}
		files, err := transfer.Stat(req.Args[1:]...)
		if err != nil {
			return ipc.Failure(err)
		}
		var sel transfer.Selection
		sel.Add(files...)
		return c.submit(ctx, func(context.Context) ipc.Response { return c.sendFiles(&sel, req.Args[0]) })
	case ipc.CommandCancelSend:
		return c.submit(ctx, func(context.Context) ipc.Response { return c.result(c.send.Cancel(), "send cancelling") })
	case ipc.CommandAccept:
		if len(req.Args) != 1 || strings.TrimSpace(req.Args[0]) == "" {
			return ipc.Failure(errors.New("usage: accept <directory>"))
		}
		return c.submit(ctx, func(context.Context) ipc.Response { return c.result(c.relay.Accept(req.Args[0]), "offer accepted") })
	case ipc.CommandDecline:
		return c.submit(ctx, func(context.Context) ipc.Response { return c.result(c.relay.Decline(), "offer declined") })
	case ipc.CommandToggle:
		return c.submit(ctx, func(context.Context) ipc.Response { return c.toggle() })
	case ipc.CommandRestart:
		return c.submit(ctx, func(context.Context) ipc.Response { return c.restart() })
	case ipc.CommandSet:
		if len(req.Args) != 2 {
			return ipc.Failure(errors.New("usage: set <key> <value>"))
		}
		return c.submit(ctx, func(context.Context) ipc.Response { return c.set(req.Args[0], req.Args[1]) })
	case ipc.CommandPeers:
		return c.submit(ctx, func(context.Context) ipc.Response {
			return ipc.Response{OK: true, Peers: toIPCPeers(c.directory.List())}
		})
	case ipc.CommandWrite:
		if len(req.Args) == 0 {
			return ipc.Failure(errors.New("usage: write <text>"))
		}
		text := strings.Join(req.Args, " ")
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		return c.submit(ctx, func(context.Context) ipc.Response { return c.result(c.relay.Write(text), "written") })
	default:
		return ipc.Failure(fmt.Errorf("unknown command %q", req.Command))
	}
}

// ApplyIdentity replaces the live identity without persisting it. An unchanged
// identity is a no-op.
func (c *Controller) ApplyIdentity(ctx context.Context, id config.Identity) error {
	resp := c.submit(ctx, func(context.Context) ipc.Response { return c.applyIdentity(id) })
	if !resp.OK {
		return errors.New(resp.Error)
	}
	return nil
}

func (c *Controller) submit(ctx context.Context, fn func(context.Context) ipc.Response) ipc.Response {
	cmd := command{run: fn, reply: make(chan ipc.Response, 1)}
	select {
	case c.commands <- cmd:
	case <-c.done:
		return ipc.Failure(ErrStopped)
	case <-ctx.Done():
		return ipc.Failure(ctx.Err())
	}
	select {
	case resp := <-cmd.reply:
		return resp
	case <-ctx.Done():
		return ipc.Failure(ctx.Err())
	}
}

func (c *Controller) status(context.Context) ipc.Response {
	snap := c.snapshot()
	return ipc.Response{OK: true, State: snap.Relay, Status: &snap}
}

func (c *Controller) snapshot() ipc.Status {
	state, offer := c.relay.Handshake()
	id := c.relay.Identity()
	return ipc.Status{
		Relay:      string(c.relay.State()),
		Scanning:   c.scan.Scanning(),
		Sending:    c.send.Sending(),
		Handshake:  string(state),
		OfferFrom:  offer.From,
		OfferFiles: len(offer.Files),
		Name:       id.DisplayName,
		ListenPort: id.ListenPort,
		TargetPort: id.TargetPort,
		Adapter:    id.Adapter,
		DevMode:    c.cfg.DevMode,
	}
}

func (c *Controller) startScan() ipc.Response {
	started, err := c.scan.StartScan(c.relay.Identity(), c.cfg.IncludeSelf, c.cfg.DevMode)
	if err != nil {
		return c.spawnFailure("scan", err)
	}
	if !started {
		return ipc.Response{OK: true, Message: "scan already in progress"}
	}

	if c.finishPending {
		c.publishNow(events.ScanFinished())
	}
	c.scanGen++
	c.pending = 0
	c.finishPending = false
	c.directory.Reset()
	c.logger.Info("scan started", "lifetime", c.scan.Lifetime())
	return ipc.Response{OK: true, Message: "scan started"}
}

func (c *Controller) sendFiles(sel *transfer.Selection, address string) ipc.Response {
	if err := c.send.Send(sel.Files(), address, c.relay.Identity()); err != nil {
		return c.spawnFailure("send", err)
	}
	c.logger.Info("send started", "address", address, "files", sel.Len(), "bytes", sel.TotalSize())
	return ipc.Response{OK: true, Message: fmt.Sprintf("sending %d file(s) to %s", sel.Len(), address)}
}

func (c *Controller) toggle() ipc.Response {
	state, err := c.relay.Toggle()
	if err != nil {
		return c.spawnFailure("relay", err)
	}
	c.logger.Info("relay toggled", "state", string(state))
	return ipc.Response{OK: true, State: string(state)}
}

func (c *Controller) restart() ipc.Response {
	if err := c.relay.Restart(); err != nil {
		return c.spawnFailure("relay", err)
	}
	c.logger.Info("relay restarted")
	return ipc.Response{OK: true, State: string(c.relay.State())}
}

func (c *Controller) set(key, value string) ipc.Response {
	id, err := c.relay.Identity().With(key, value)
	if err != nil {
		return ipc.Failure(err)
	}
	if c.save != nil {
		if err := c.save(id); err != nil {
			return ipc.Failure(fmt.Errorf("save settings: %w", err))
		}
	}
	return c.applyIdentity(id)
}

func (c *Controller) applyIdentity(id config.Identity) ipc.Response {
	if err := id.Validate(); err != nil {
		return ipc.Failure(err)
	}
	if id == c.relay.Identity() {
		return ipc.Response{OK: true, State: string(c.relay.State()), Message: "identity unchanged"}
	}

	prev := c.relay.Identity()
	restarted, err := c.relay.ApplyIdentity(id)
	if err != nil {
		return c.spawnFailure("relay", err)
	}
	if f, ok := c.resolver.(forgetter); ok && (prev.TargetPort != id.TargetPort || prev.Adapter != id.Adapter) {
		f.Forget()
	}
	c.cfg.Identity = id
	c.logger.Info("identity applied", "name", id.DisplayName, "port", id.ListenPort,
		"target_port", id.TargetPort, "adapter", id.Adapter, "restarted", restarted)
	return ipc.Response{OK: true, State: string(c.relay.State()), Message: "identity applied"}
}

// spawnFailure answers a failed helper operation. Only supervisor.ErrSpawn is fatal.
func (c *Controller) spawnFailure(helper string, err error) ipc.Response {
	if !errors.Is(err, supervisor.ErrSpawn) {
		c.logger.Warn("helper operation failed", "helper", helper, "error", err.Error())
		return ipc.Failure(err)
	}
	c.logger.Error("helper spawn failed", "helper", helper, "error", err.Error())
	c.fatal = fmt.Errorf("%s helper: %w", helper, err)
	return ipc.Failure(err)
}

func (c *Controller) result(err error, message string) ipc.Response {
	if err != nil {
		return ipc.Failure(err)
	}
	return ipc.Response{OK: true, Message: message}
}

func (c *Controller) handleRelay(ev supervisor.Event) {
	before, _ := c.relay.Handshake()
	out := c.relay.HandleEvent(ev, c.send.Sending(), c.cfg.DevMode)
	after, _ := c.relay.Handshake()
	if before == fsm.StateDestinationSent && after == fsm.StateIdle {
		c.notify(c.indicator.CueComplete)
	}
	c.publish(out...)
}

func (c *Controller) handleScan(ctx context.Context, ev supervisor.Event) {
	for _, out := range c.scan.HandleEvent(ev) {
		switch out.Kind {
		case events.KindPeerDiscovered:
			c.directory.Add(peers.Peer{Address: out.Address})
			if c.resolver == nil {
				c.publish(out)
				continue
			}
			c.pending++
			go c.lookup(ctx, c.scanGen, out.Address, c.relay.Identity().TargetPort)
		case events.KindScanFinished:
			if c.pending > 0 {
				c.finishPending = true
				continue
			}
			c.publish(out)
		default:
			c.publish(out)
		}
	}
}

func (c *Controller) lookup(ctx context.Context, gen int, address string, port int) {
	lookupCtx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	name := c.resolver.Resolve(lookupCtx, address, port)
	select {
	case c.lookups <- lookupResult{gen: gen, address: address, name: name}:
	case <-c.done:
	case <-ctx.Done():
	}
}

func (c *Controller) handleLookup(res lookupResult) {
	if res.gen != c.scanGen {
		c.logger.Debug("dropping peer name from earlier scan", "address", res.address)
		return
	}
	c.pending--
	c.directory.SetName(res.address, res.name)
	c.publish(events.PeerDiscovered(res.address, res.name))

	if c.pending == 0 && c.finishPending {
		c.finishPending = false
		c.publish(events.ScanFinished())
	}
}

func (c *Controller) publish(out ...events.Event) {
	for _, ev := range out {
		c.publishNow(ev)
		c.indicate(ev)
	}
}

func (c *Controller) publishNow(ev events.Event) {
	c.logger.Debug("event", "kind", string(ev.Kind), "source", ev.Source, "title", ev.Title)
	c.broker.Publish(pubsub.EventType(ev.Kind), ev)
}

func (c *Controller) indicate(ev events.Event) {
	switch ev.Kind {
	case events.KindInboundOffer:
		from, count := ev.From, len(ev.Files)
		c.notify(c.indicator.CueOffer)
		c.notify(func(ctx context.Context) { c.indicator.ShowOffer(ctx, from, count) })
	case events.KindStatus:
		text := ev.Message
		c.notify(func(ctx context.Context) { c.indicator.ShowStatus(ctx, text) })
	case events.KindError:
		text := ev.Message
		if text == "" {
			text = ev.Title
		}
		c.notify(c.indicator.CueError)
		c.notify(func(ctx context.Context) { c.indicator.ShowError(ctx, text) })
	}
}

// notify runs an indicator call off the loop so a slow backend cannot stall it.
func (c *Controller) notify(fn func(context.Context)) {
	c.notifyWG.Add(1)
	go func() {
		defer c.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), indicatorTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func toIPCPeers(list []peers.Peer) []ipc.Peer {
	out := make([]ipc.Peer, 0, len(list))
	for _, p := range list {
		out = append(out, ipc.Peer{Address: p.Address, Name: p.Name})
	}
	return out
}
