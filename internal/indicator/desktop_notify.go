package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notificationsDest = "org.freedesktop.Notifications"
	notificationsPath = "/org/freedesktop/Notifications"
)

// desktopNotification is one org.freedesktop.Notifications.Notify call.
type desktopNotification struct {
	AppName   string
	ReplaceID uint32
	Icon      string
	Summary   string
	// Urgency is the urgency hint byte ("0".."2"); empty sends no hints.
	Urgency   string
	TimeoutMS int
}

func (d desktopNotification) args() []string {
	args := []string{
		d.AppName,
		strconv.FormatUint(uint64(d.ReplaceID), 10),
		d.Icon,
		d.Summary,
		"",  // body
		"0", // actions
	}
	if d.Urgency != "" {
		args = append(args, "1", "urgency", "y", d.Urgency)
	} else {
		args = append(args, "0")
	}
	return append(args, strconv.Itoa(d.TimeoutMS))
}

// sendDesktop shows d and returns the id the notification server assigned.
func sendDesktop(ctx context.Context, d desktopNotification) (uint32, error) {
	reply, err := busctl(ctx, "Notify", "susssasa{sv}i", d.args()...)
	if err != nil {
		return 0, err
	}
	kind, value, ok := strings.Cut(reply, " ")
	if !ok || kind != "u" {
		return 0, fmt.Errorf("unexpected Notify reply %q", reply)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse notification id %q: %w", value, err)
	}
	return uint32(id), nil
}

func closeDesktop(ctx context.Context, id uint32) error {
	_, err := busctl(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10))
	return err
}

// busctl calls method on the session notification service and returns the trimmed reply.
func busctl(ctx context.Context, method, signature string, args ...string) (string, error) {
	argv := append([]string{
		"--user", "call",
		notificationsDest, notificationsPath, notificationsDest,
		method, signature,
	}, args...)

	out, err := exec.CommandContext(ctx, "busctl", argv...).CombinedOutput()
	reply := strings.TrimSpace(string(out))
	if err != nil {
		if reply == "" {
			return "", fmt.Errorf("busctl %s: %w", method, err)
		}
		return "", fmt.Errorf("busctl %s: %w (%s)", method, err, reply)
	}
	return reply, nil
}
