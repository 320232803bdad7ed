package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvConfigPath names a settings file that overrides the XDG location.
const EnvConfigPath = EnvPrefix + "_CONFIG"

const settingsFile = "settings.json"

// ResolvePath picks the settings file: the explicit path, then $RAINDROP_CONFIG,
// then $XDG_CONFIG_HOME/raindrop/settings.json, then ~/.config/raindrop/settings.json.
func ResolvePath(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(EnvConfigPath)} {
		if p := strings.TrimSpace(candidate); p != "" {
			return expandHome(p)
		}
	}

	configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "raindrop", settingsFile), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
