package eventbus

import (
	"context"
	"fmt"

	"github.com/smallbiznis/procurelink/internal/integrationevent/domain"
)

// WildcardEventType subscribes a handler to every event type.
const WildcardEventType = "*"

// Handler receives a copy of each dispatched event. A returned error is
// recorded on the event and never stops the remaining subscribers.
type Handler func(ctx context.Context, event domain.IntegrationEvent) error

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id uint64
}

func (s Subscription) ID() uint64 { return s.id }

type SubscribeOption func(*subscriber)

// WithName sets the consumer name appended to the event's ProcessedBy.
func WithName(name string) SubscribeOption {
	return func(s *subscriber) {
		if name != "" {
			s.name = name
		}
	}
}

type subscriber struct {
	id        uint64
	eventType string
	name      string
	handler   Handler
}

func (s *subscriber) matches(eventType domain.EventType) bool {
	return s.eventType == WildcardEventType || s.eventType == string(eventType)
}

func defaultSubscriberName(id uint64) string {
	return fmt.Sprintf("subscriber_%d", id)
}
