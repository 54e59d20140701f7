package notify

import (
	"context"
	"fmt"
	"time"

	"campusbooking/internal/booking"
	"campusbooking/internal/events"
)

// Publisher is the broker side; *mq.Publisher satisfies it.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Message is the body delivered to downstream consumers (mail, calendar).
type Message struct {
	EventType  string          `json:"eventType"`
	Actor      string          `json:"actor"`
	OccurredAt time.Time       `json:"occurredAt"`
	Booking    booking.Booking `json:"booking"`
}

// BrokerNotifier publishes every committed booking change to the exchange.
type BrokerNotifier struct {
	Pub     Publisher
	Timeout time.Duration
	Now     func() time.Time
}

func (n BrokerNotifier) BookingChanged(ctx context.Context, c booking.Change) error {
	key, err := RoutingKey(c.EventType)
	if err != nil {
		return err
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}

	// Detach from the request: the client may already be gone once the
	// booking has committed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return n.Pub.PublishJSON(ctx, key, Message{
		EventType:  c.EventType,
		Actor:      c.Actor,
		OccurredAt: now().UTC(),
		Booking:    c.Booking,
	})
}

func RoutingKey(eventType string) (string, error) {
	switch eventType {
	case events.TypeRequested:
		return "booking.requested", nil
	case events.TypeApproved:
		return "booking.approved", nil
	case events.TypeRejected:
		return "booking.rejected", nil
	case events.TypeCancelled:
		return "booking.cancelled", nil
	default:
		return "", fmt.Errorf("no routing key for event type %q", eventType)
	}
}
