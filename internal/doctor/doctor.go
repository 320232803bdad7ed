// Package doctor runs runtime readiness diagnostics for config, helpers, network, and indicator.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/raindrop/internal/config"
	"github.com/rbright/raindrop/internal/hypr"
	"github.com/rbright/raindrop/internal/indicator"
	"github.com/rbright/raindrop/internal/ipc"
	"github.com/rbright/raindrop/internal/supervisor"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Options overrides environment lookups for tests.
type Options struct {
	AppDir     string
	SocketPath string
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded, opts Options) Report {
	checks := []Check{checkConfig(cfg)}

	appDir := opts.AppDir
	if appDir == "" {
		appDir = cfg.Config.AppDir
	}
	if appDir == "" {
		appDir = supervisor.DefaultAppDir()
	}
	checks = append(checks,
		checkHelper(appDir, supervisor.KindRelay),
		checkHelper(appDir, supervisor.KindFire),
		checkAdapter(cfg.Config.Identity.Adapter),
		checkRuntimeDir(),
		checkDaemon(ctx, opts.SocketPath),
	)
	checks = append(checks, checkIndicator(ctx, cfg.Config.Indicator)...)

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", cfg.Path)}
	}
	if err := cfg.Config.Identity.Validate(); err != nil {
		return Check{Name: "config", Pass: false, Message: err.Error()}
	}
	id := cfg.Config.Identity
	return Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q (name=%q port=%d target_port=%d)", cfg.Path, id.DisplayName, id.ListenPort, id.TargetPort),
	}
}

// checkHelper resolves one helper binary the way spawn will.
func checkHelper(appDir string, kind supervisor.Kind) Check {
	name := "helper." + string(kind)
	path, err := supervisor.ResolveKind(appDir, kind)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if filepath.IsAbs(path) {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("found at %s", path)}
	}
	check := checkBinary(path, fmt.Sprintf("%s helper", kind))
	check.Name = name
	return check
}

// checkAdapter validates the configured adapter names a local interface.
func checkAdapter(adapter string) Check {
	adapter = strings.TrimSpace(adapter)
	if adapter == "" {
		return Check{Name: "adapter", Pass: true, Message: "not set; helpers choose the interface"}
	}
	iface, err := net.InterfaceByName(adapter)
	if err != nil {
		return Check{Name: "adapter", Pass: false, Message: fmt.Sprintf("interface %q not found (see `raindrop interfaces`)", adapter)}
	}
	if iface.Flags&net.FlagUp == 0 {
		return Check{Name: "adapter", Pass: false, Message: fmt.Sprintf("interface %q is down", adapter)}
	}
	return Check{Name: "adapter", Pass: true, Message: fmt.Sprintf("interface %q is up", adapter)}
}

func checkRuntimeDir() Check {
	dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if dir == "" {
		return Check{Name: "XDG_RUNTIME_DIR", Pass: false, Message: "XDG_RUNTIME_DIR is not set"}
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Check{Name: "XDG_RUNTIME_DIR", Pass: false, Message: fmt.Sprintf("%s is not a directory", dir)}
	}
	return Check{Name: "XDG_RUNTIME_DIR", Pass: true, Message: dir}
}

// checkDaemon reports whether a daemon answers on the control socket. Not running is not a failure.
func checkDaemon(ctx context.Context, socketPath string) Check {
	if socketPath == "" {
		path, err := ipc.SocketPath()
		if err != nil {
			return Check{Name: "daemon", Pass: true, Message: "not running"}
		}
		socketPath = path
	}
	alive, err := ipc.Probe(ctx, socketPath, 300*time.Millisecond)
	if err != nil {
		return Check{Name: "daemon", Pass: false, Message: err.Error()}
	}
	if !alive {
		return Check{Name: "daemon", Pass: true, Message: "not running"}
	}
	return Check{Name: "daemon", Pass: true, Message: fmt.Sprintf("running at %s", socketPath)}
}

func checkIndicator(ctx context.Context, cfg config.IndicatorConfig) []Check {
	if !cfg.Enable {
		return nil
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), indicator.BackendHypr) {
		return []Check{
			checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
				return strings.TrimSpace(v) != ""
			}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"),
			checkHyprctl(ctx),
		}
	}
	return []Check{checkBinary("busctl", "desktop indicator backend")}
}

// checkHyprctl requires hyprctl in PATH and a compositor that answers it.
func checkHyprctl(ctx context.Context) Check {
	check := checkBinary("hyprctl", "hypr indicator backend")
	if !check.Pass {
		return check
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	v, err := hypr.QueryVersion(queryCtx)
	if err != nil {
		return Check{Name: "hyprctl", Pass: false, Message: err.Error()}
	}
	return Check{Name: "hyprctl", Pass: true, Message: fmt.Sprintf("Hyprland %s (%s)", v.Tag, v.Branch)}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}
