// Package discord posts RSVP transitions to a Discord channel. The sink is
// optional; when no token is configured the application runs without it.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"rsvphub/internal/ports/output"
)

type translator interface {
	T(locale, key string, data map[string]any) string
}

// Notifier is the Discord output adapter.
type Notifier struct {
	session   *discordgo.Session
	channelID string
	tr        translator
	locale    string
}

var _ output.NotificationSink = (*Notifier)(nil)

// NewNotifier creates the sink. The session is not opened: plain channel
// messages only need the REST API, not the gateway.
func NewNotifier(token, channelID string, tr translator, locale string) (*Notifier, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Notifier{
		session:   s,
		channelID: channelID,
		tr:        tr,
		locale:    locale,
	}, nil
}

func (n *Notifier) Notify(ctx context.Context, notification output.Notification) error {
	content := n.render(notification)
	if content == "" {
		return nil
	}
	if _, err := n.session.ChannelMessageSend(n.channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

func (n *Notifier) render(notification output.Notification) string {
	data := map[string]any{
		"User":     notification.UserID,
		"Event":    notification.EventTitle,
		"Position": notification.Position,
	}
	switch notification.Kind {
	case output.NotifyJoined:
		return n.tr.T(n.locale, "notify.joined", data)
	case output.NotifyWaitlisted:
		return n.tr.T(n.locale, "notify.waitlisted", data)
	case output.NotifyPromoted:
		return n.tr.T(n.locale, "notify.promoted", data)
	case output.NotifyCancelled:
		return n.tr.T(n.locale, "notify.cancelled", data)
	case output.NotifyCapacityFull:
		return n.tr.T(n.locale, "notify.capacity_full", data)
	default:
		return ""
	}
}
