package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/raindrop/internal/cli"
	"github.com/rbright/raindrop/internal/ipc"
)

const (
	forwardTimeout      = 5 * time.Second
	watchConnectTimeout = 2 * time.Second
	stoppedState        = "stopped"
)

// Forward sends one control request to the running daemon and prints its answer.
// status reports "stopped" instead of failing when no daemon is running.
func (r Runner) Forward(ctx context.Context, opts cli.Options, req ipc.Request) error {
	if req.Command == ipc.CommandSend {
		args, err := absolutePaths(req.Args)
		if err != nil {
			return err
		}
		req.Args = args
	}

	socketPath, err := r.socketPath()
	if err != nil {
		if req.Command == ipc.CommandStatus {
			return r.printStopped(opts.JSON)
		}
		return err
	}

	resp, err := ipc.Send(ctx, socketPath, req, forwardTimeout)
	if err != nil {
		if ipc.IsUnavailable(err) {
			if req.Command == ipc.CommandStatus {
				return r.printStopped(opts.JSON)
			}
			return errNoDaemon
		}
		return fmt.Errorf("forward command %q: %w", req.Command, err)
	}
	if !resp.OK {
		return errors.New(resp.Error)
	}

	switch req.Command {
	case ipc.CommandStatus:
		return r.printStatus(resp, opts.JSON)
	case ipc.CommandPeers:
		return r.printPeers(resp.Peers, opts.JSON)
	}
	switch {
	case resp.Message != "":
		fmt.Fprintln(r.Stdout, resp.Message)
	case resp.State != "":
		fmt.Fprintln(r.Stdout, resp.State)
	}
	return nil
}

// Watch prints daemon events as JSON lines until ctx ends or the daemon stops.
func (r Runner) Watch(ctx context.Context, _ cli.Options) error {
	socketPath, err := r.socketPath()
	if err != nil {
		return err
	}
	err = ipc.Watch(ctx, socketPath, watchConnectTimeout, func(line []byte) error {
		_, err := fmt.Fprintln(r.Stdout, string(line))
		return err
	})
	if ipc.IsUnavailable(err) {
		return errNoDaemon
	}
	return err
}

// absolutePaths keeps the address and resolves every file against the client's
// working directory, since the daemon runs elsewhere.
func absolutePaths(args []string) ([]string, error) {
	out := append([]string(nil), args...)
	for i := 1; i < len(out); i++ {
		abs, err := filepath.Abs(out[i])
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", out[i], err)
		}
		out[i] = abs
	}
	return out, nil
}

func (r Runner) printStopped(asJSON bool) error {
	if asJSON {
		return r.printJSON(ipc.Status{Relay: stoppedState})
	}
	fmt.Fprintln(r.Stdout, stoppedState)
	return nil
}

func (r Runner) printStatus(resp ipc.Response, asJSON bool) error {
	if resp.Status == nil {
		state := resp.State
		if state == "" {
			state = stoppedState
		}
		if asJSON {
			return r.printJSON(ipc.Status{Relay: state})
		}
		fmt.Fprintln(r.Stdout, state)
		return nil
	}
	st := *resp.Status
	if asJSON {
		return r.printJSON(st)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "relay: %s\n", st.Relay)
	fmt.Fprintf(&b, "handshake: %s\n", st.Handshake)
	if st.OfferFrom != "" {
		fmt.Fprintf(&b, "offer: %s (%d file(s))\n", st.OfferFrom, st.OfferFiles)
	}
	fmt.Fprintf(&b, "scanning: %s\n", yesNo(st.Scanning))
	fmt.Fprintf(&b, "sending: %s\n", yesNo(st.Sending))
	fmt.Fprintf(&b, "name: %s\n", st.Name)
	fmt.Fprintf(&b, "port: %d\n", st.ListenPort)
	fmt.Fprintf(&b, "target_port: %d\n", st.TargetPort)
	adapter := st.Adapter
	if adapter == "" {
		adapter = "(any)"
	}
	fmt.Fprintf(&b, "adapter: %s\n", adapter)
	if st.DevMode {
		b.WriteString("dev_mode: on\n")
	}
	fmt.Fprint(r.Stdout, b.String())
	return nil
}

func (r Runner) printPeers(list []ipc.Peer, asJSON bool) error {
	if asJSON {
		if list == nil {
			list = []ipc.Peer{}
		}
		return r.printJSON(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(r.Stdout, "no peers found")
		return nil
	}
	for _, p := range list {
		name := p.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(r.Stdout, "%s\t%s\n", p.Address, name)
	}
	return nil
}

func (r Runner) printJSON(v any) error {
	enc := json.NewEncoder(r.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
