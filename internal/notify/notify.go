// Package notify routes curation notifications to the forum's alert,
// announcement and showcase channels, with an optional operator push
// fan-out.
package notify

import (
	"context"
	"log/slog"

	"github.com/jkivela/packwatch/internal/conf"
	"github.com/jkivela/packwatch/internal/forum"
	"github.com/jkivela/packwatch/internal/logging"
)

// Notifier posts curation outcomes to the configured channels. A nil
// channel ID disables that channel; failures are logged and never abort the
// caller's pass.
type Notifier struct {
	forum    forum.Interface
	alert    string
	announce string
	showcase string
	push     *PushSender
	logger   *slog.Logger
}

// New builds a Notifier from the notification settings. The push sender is
// only constructed when enabled.
func New(f forum.Interface, cfg *conf.NotifySettings) (*Notifier, error) {
	n := &Notifier{
		forum:    f,
		alert:    cfg.AlertChannel,
		announce: cfg.AnnounceChannel,
		showcase: cfg.ShowcaseChannel,
		logger:   logging.ForService("notify"),
	}
	if cfg.Push.Enabled {
		push, err := NewPushSender(cfg.Push.URLs, cfg.Push.Timeout)
		if err != nil {
			return nil, err
		}
		n.push = push
	}
	return n, nil
}

// Alert posts operator-facing text to the alert channel.
func (n *Notifier) Alert(ctx context.Context, text string) {
	n.post(ctx, n.alert, text)
}

// Announce posts text to the global announcement channel.
func (n *Notifier) Announce(ctx context.Context, text string) {
	n.post(ctx, n.announce, text)
}

// Showcase forwards an item's lead images to the showcase channel. Failure
// is reported to the caller because the reconciler logs it distinctly, but
// it is never fatal.
func (n *Notifier) Showcase(ctx context.Context, text string, images []string) error {
	if n.showcase == "" || len(images) == 0 {
		return nil
	}
	return n.forum.NotifyImages(ctx, n.showcase, text, images)
}

// Push sends an operator push notification when the push fan-out is
// configured.
func (n *Notifier) Push(ctx context.Context, title, message string) {
	if n.push == nil {
		return
	}
	if err := n.push.Send(ctx, title, message); err != nil {
		n.logger.Error("push notification failed", "title", title, "error", err)
	}
}

func (n *Notifier) post(ctx context.Context, channel, text string) {
	if channel == "" {
		return
	}
	if err := n.forum.Notify(ctx, channel, text); err != nil {
		n.logger.Error("channel notification failed", "channel", channel, "error", err)
	}
}
