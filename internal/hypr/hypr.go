// Package hypr wraps the hyprctl commands used for on-screen notifications.
package hypr

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Version is the subset of `hyprctl -j version` the doctor reports.
type Version struct {
	Tag    string `json:"tag"`
	Branch string `json:"branch"`
}

// Notify sends a Hyprland notification payload.
func Notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if strings.TrimSpace(color) == "" {
		color = "rgb(89b4fa)"
	}
	return runHyprctl(
		ctx,
		"--quiet",
		"dispatch",
		"notify",
		strconv.Itoa(icon),
		strconv.Itoa(timeoutMS),
		color,
		text,
	)
}

// DismissNotify dismisses active Hyprland notifications.
func DismissNotify(ctx context.Context) error {
	return runHyprctl(ctx, "--quiet", "dispatch", "dismissnotify")
}

// QueryVersion asks the running compositor for its version.
func QueryVersion(ctx context.Context) (Version, error) {
	output, err := runHyprctlOutput(ctx, "-j", "version")
	if err != nil {
		return Version{}, err
	}
	var v Version
	if err := json.Unmarshal(output, &v); err != nil {
		return Version{}, fmt.Errorf("decode hyprctl version json: %w", err)
	}
	v.Tag = strings.TrimSpace(v.Tag)
	if v.Tag == "" {
		return Version{}, fmt.Errorf("hyprctl version returned empty tag")
	}
	return v, nil
}

func runHyprctl(ctx context.Context, args ...string) error {
	_, err := runHyprctlOutput(ctx, args...)
	return err
}

func runHyprctlOutput(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "hyprctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("hyprctl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return out, nil
}
