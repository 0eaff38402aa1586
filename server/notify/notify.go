// Package notify announces newly delivered messages to interested
// subsystems, so mailbox frontends can refresh without polling.
package notify

import (
	"context"

	"github.com/okapimail/okapi/logger"
)

// Event describes one recipient's delivered message.
type Event struct {
	UserAddress string
	MessageID   string
	Folder      string
	Subject     string
	Focused     bool
}

// Notifier receives delivery events. Implementations must not block the
// delivery path; slow fan-out belongs behind a buffer.
type Notifier interface {
	MessageDelivered(ctx context.Context, event Event)
}

// LogNotifier writes each event to the structured log. It is the default
// when no push transport is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) MessageDelivered(_ context.Context, event Event) {
	logger.Get().Info("message delivered",
		"user", event.UserAddress,
		"message_id", event.MessageID,
		"folder", event.Folder,
		"focused", event.Focused)
}

// MultiNotifier fans one event out to several notifiers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) MessageDelivered(ctx context.Context, event Event) {
	for _, n := range m {
		n.MessageDelivered(ctx, event)
	}
}
