package app

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/rbright/raindrop/internal/cli"
)

// Interface describes one network adapter usable as the adapter setting.
type Interface struct {
	Name      string   `json:"name"`
	Up        bool     `json:"up"`
	Loopback  bool     `json:"loopback"`
	Addresses []string `json:"addresses"`
}

// Interfaces lists the host's network adapters.
func (r Runner) Interfaces(_ context.Context, opts cli.Options) error {
	list, err := listInterfaces()
	if err != nil {
		return err
	}
	if opts.JSON {
		return r.printJSON(list)
	}
	for _, iface := range list {
		state := "down"
		if iface.Up {
			state = "up"
		}
		addrs := strings.Join(iface.Addresses, ",")
		if addrs == "" {
			addrs = "-"
		}
		fmt.Fprintf(r.Stdout, "%s\t%s\t%s\n", iface.Name, state, addrs)
	}
	return nil
}

func listInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		entry := Interface{
			Name:      iface.Name,
			Up:        iface.Flags&net.FlagUp != 0,
			Loopback:  iface.Flags&net.FlagLoopback != 0,
			Addresses: []string{},
		}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				entry.Addresses = append(entry.Addresses, addr.String())
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
