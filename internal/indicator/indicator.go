// Package indicator raises transfer notifications and plays short audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/raindrop/internal/config"
	"github.com/rbright/raindrop/internal/hypr"
)

const (
	BackendDesktop = "desktop"
	BackendHypr    = "hypr"
)

const defaultTimeoutMS = 4000

// notice is one notification rendered for either backend.
type notice struct {
	text string
	// Hyprland notify icon index and border color.
	hyprIcon  int
	hyprColor string
	// freedesktop icon name and urgency hint.
	desktopIcon string
	urgency     string
}

// Notifier routes notifications via Hyprland or desktop DBus based on config backend.
type Notifier struct {
	cfg    config.IndicatorConfig
	logger *slog.Logger

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
}

// New creates a notifier from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{cfg: cfg, logger: logger}
}

// ShowOffer announces an inbound offer.
func (n *Notifier) ShowOffer(ctx context.Context, from string, files int) {
	if !n.cfg.Enable {
		return
	}
	n.show(ctx, notice{
		text:        offerText(from, files),
		hyprIcon:    1,
		hyprColor:   "rgb(89b4fa)",
		desktopIcon: "document-save",
		urgency:     "2",
	})
}

// ShowStatus displays a transfer status line.
func (n *Notifier) ShowStatus(ctx context.Context, text string) {
	if !n.cfg.Enable || strings.TrimSpace(text) == "" {
		return
	}
	n.show(ctx, notice{
		text:        text,
		hyprIcon:    5,
		hyprColor:   "rgb(a6e3a1)",
		desktopIcon: "dialog-information",
	})
}

// ShowError displays an error-state message.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if !n.cfg.Enable {
		return
	}
	if strings.TrimSpace(text) == "" {
		text = errorText
	}
	n.show(ctx, notice{
		text:        text,
		hyprIcon:    3,
		hyprColor:   "rgb(f38ba8)",
		desktopIcon: "dialog-error",
		urgency:     "1",
	})
}

// CueOffer emits the inbound-offer cue.
func (n *Notifier) CueOffer(context.Context) {
	n.playCue(cueOffer)
}

// CueComplete emits the files-written cue.
func (n *Notifier) CueComplete(context.Context) {
	n.playCue(cueComplete)
}

// CueError emits the error cue.
func (n *Notifier) CueError(context.Context) {
	n.playCue(cueError)
}

// Hide dismisses the active notification.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismiss)
}

func (n *Notifier) timeout() int {
	if n.cfg.TimeoutMS <= 0 {
		return defaultTimeoutMS
	}
	return n.cfg.TimeoutMS
}

func (n *Notifier) desktop() bool {
	return !strings.EqualFold(strings.TrimSpace(n.cfg.Backend), BackendHypr)
}

func (n *Notifier) show(ctx context.Context, msg notice) {
	n.run(ctx, func(ctx context.Context) error {
		if n.desktop() {
			return n.notifyDesktop(ctx, msg)
		}
		return hypr.Notify(ctx, msg.hyprIcon, n.timeout(), msg.hyprColor, msg.text)
	})
}

func (n *Notifier) dismiss(ctx context.Context) error {
	if n.desktop() {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop replaces the previous desktop notification so offers and statuses
// of one transfer share a single popup.
func (n *Notifier) notifyDesktop(ctx context.Context, msg notice) error {
	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "raindrop"
	}

	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	id, err := sendDesktop(ctx, desktopNotification{
		AppName:   appName,
		ReplaceID: replaceID,
		Icon:      msg.desktopIcon,
		Summary:   msg.text,
		Urgency:   msg.urgency,
		TimeoutMS: n.timeout(),
	})
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return closeDesktop(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 800*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := emitCue(kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
