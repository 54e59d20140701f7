package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusbooking/internal/booking"
	"campusbooking/internal/events"
)

type recordingPub struct {
	key  string
	body any
	err  error
}

func (p *recordingPub) PublishJSON(_ context.Context, key string, v any) error {
	p.key, p.body = key, v
	return p.err
}

func TestBrokerNotifier_PublishesUnderRoutingKey(t *testing.T) {
	pub := &recordingPub{}
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := BrokerNotifier{Pub: pub, Now: func() time.Time { return at }}

	b := booking.Booking{ID: "b-1", UserID: "u-1", Status: booking.StatusApproved}
	require.NoError(t, n.BookingChanged(context.Background(), booking.Change{EventType: events.TypeApproved, Actor: "staff-1", Booking: b}))

	assert.Equal(t, "booking.approved", pub.key)
	msg, ok := pub.body.(Message)
	require.True(t, ok)
	assert.Equal(t, "staff-1", msg.Actor)
	assert.Equal(t, at, msg.OccurredAt)
	assert.Equal(t, "b-1", msg.Booking.ID)
}

func TestBrokerNotifier_Errors(t *testing.T) {
	pub := &recordingPub{err: errors.New("channel closed")}
	n := BrokerNotifier{Pub: pub}

	err := n.BookingChanged(context.Background(), booking.Change{EventType: events.TypeCancelled})
	assert.EqualError(t, err, "channel closed")

	err = n.BookingChanged(context.Background(), booking.Change{EventType: "SOMETHING_ELSE"})
	assert.Error(t, err)
}

func TestRoutingKey(t *testing.T) {
	for typ, want := range map[string]string{
		events.TypeRequested: "booking.requested",
		events.TypeApproved:  "booking.approved",
		events.TypeRejected:  "booking.rejected",
		events.TypeCancelled: "booking.cancelled",
	} {
		got, err := RoutingKey(typ)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
