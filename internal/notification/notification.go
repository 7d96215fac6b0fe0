package notification

import (
	"context"
	"errors"
	"strings"
)

// Channels a message can be routed to.
const (
	ChannelLog   = "log"
	ChannelSlack = "slack"
	ChannelEmail = "email"
)

var ErrUnknownChannel = errors.New("unknown_notification_channel")

// Message is a rendered notification ready for delivery.
type Message struct {
	TemplateID string
	Channel    string
	Recipients []string
	Subject    string
	Text       string
	// Context carries identifiers for logs, e.g. rule_id and event_id.
	Context map[string]string
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NormalizeChannel maps an empty channel to the log channel.
func NormalizeChannel(raw string) string {
	channel := strings.ToLower(strings.TrimSpace(raw))
	if channel == "" {
		return ChannelLog
	}
	return channel
}
