// Package cli defines the raindrop command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rbright/raindrop/internal/ipc"
)

// Options are the global flags shared by every command.
type Options struct {
	ConfigPath string
	Debug      bool
	JSON       bool
}

// Handlers executes parsed commands.
type Handlers interface {
	Daemon(ctx context.Context, opts Options) error
	Forward(ctx context.Context, opts Options, req ipc.Request) error
	Watch(ctx context.Context, opts Options) error
	Interfaces(ctx context.Context, opts Options) error
	Doctor(ctx context.Context, opts Options) error
}

// UsageError marks argument and flag mistakes.
type UsageError struct {
	Err error
}

func (e UsageError) Error() string { return e.Err.Error() }
func (e UsageError) Unwrap() error { return e.Err }

// IsUsageError reports whether err came from bad command-line input.
func IsUsageError(err error) bool {
	var usage UsageError
	if errors.As(err, &usage) {
		return true
	}
	return err != nil && strings.HasPrefix(err.Error(), "unknown command")
}

type forwardDef struct {
	use     string
	short   string
	long    string
	command string
	args    cobra.PositionalArgs
	json    bool
}

var forwardCommands = []forwardDef{
	{use: "status", short: "Print relay, scan, send, and handshake state", command: ipc.CommandStatus, args: cobra.NoArgs, json: true},
	{use: "scan", short: "Discover peers on the local network", command: ipc.CommandScan, args: cobra.NoArgs},
	{use: "stop-scan", short: "Interrupt the running scan", command: ipc.CommandStopScan, args: cobra.NoArgs},
	{use: "peers", short: "List peers found by the last scan", command: ipc.CommandPeers, args: cobra.NoArgs, json: true},
	{use: "send <address> <path>...", short: "Send files to a peer", command: ipc.CommandSend, args: cobra.MinimumNArgs(2)},
	{use: "cancel-send", short: "Interrupt the running send", command: ipc.CommandCancelSend, args: cobra.NoArgs},
	{use: "accept <directory>", short: "Accept the pending offer into directory", command: ipc.CommandAccept, args: cobra.ExactArgs(1)},
	{use: "decline", short: "Decline the pending offer", command: ipc.CommandDecline, args: cobra.NoArgs},
	{use: "toggle", short: "Open or close the relay", command: ipc.CommandToggle, args: cobra.NoArgs},
	{use: "restart", short: "Restart the relay with the current identity", command: ipc.CommandRestart, args: cobra.NoArgs},
	{
		use:     "set <key> <value>",
		short:   "Change one identity setting and persist it",
		long:    "Keys: name, port, target_port, adapter. An open relay restarts once with the new identity.",
		command: ipc.CommandSet,
		args:    cobra.ExactArgs(2),
	},
	{use: "write <text>...", short: "Write a raw line to the relay", command: ipc.CommandWrite, args: cobra.MinimumNArgs(1)},
}

// NewRootCmd builds the command tree bound to h.
func NewRootCmd(h Handlers, versionText string) *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "raindrop",
		Short:         "LAN file sharing daemon and control client",
		Version:       versionText,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return UsageError{Err: err}
	})
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "settings file path (default: $XDG_CONFIG_HOME/raindrop/settings.json)")
	root.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "log at debug level")

	root.AddCommand(&cobra.Command{
		Use:   "daemon",
		Short: "Run the relay and serve control commands",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.Daemon(cmd.Context(), *opts)
		},
	})

	for _, def := range forwardCommands {
		root.AddCommand(forwardCmd(h, opts, def))
	}

	root.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events as JSON lines",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.Watch(cmd.Context(), *opts)
		},
	})

	interfaces := &cobra.Command{
		Use:   "interfaces",
		Short: "List network adapters usable with the adapter setting",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.Interfaces(cmd.Context(), *opts)
		},
	}
	interfaces.Flags().BoolVar(&opts.JSON, "json", false, "print JSON")
	root.AddCommand(interfaces)

	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Run configuration and environment checks",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.Doctor(cmd.Context(), *opts)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), versionText)
			return err
		},
	})

	return root
}

func forwardCmd(h Handlers, opts *Options, def forwardDef) *cobra.Command {
	cmd := &cobra.Command{
		Use:   def.use,
		Short: def.short,
		Long:  def.long,
		Args:  usageArgs(def.args),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.Forward(cmd.Context(), *opts, ipc.Request{Command: def.command, Args: args})
		},
	}
	if def.json {
		cmd.Flags().BoolVar(&opts.JSON, "json", false, "print JSON")
	}
	return cmd
}

func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return UsageError{Err: err}
		}
		return nil
	}
}
