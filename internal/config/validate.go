package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := cfg.Identity.Validate(); err != nil {
		return nil, err
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.TimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.timeout_ms must be >= 0")
	}
	if cfg.Peers.LookupTimeout < 0 {
		return nil, fmt.Errorf("peers.lookup_timeout must be >= 0")
	}
	if cfg.Peers.CacheTTL < 0 {
		return nil, fmt.Errorf("peers.cache_ttl must be >= 0")
	}

	if cfg.DevMode {
		warnings = append(warnings, Warning{Message: "dev_mode is on: inbound offers are not auto-declined while sending"})
	}
	if cfg.Identity.ListenPort == cfg.Identity.TargetPort && cfg.IncludeSelf {
		warnings = append(warnings, Warning{Message: "include_self with equal ports lists this machine as a peer"})
	}

	return warnings, nil
}
