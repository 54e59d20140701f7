package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TypeRequested = "BOOKING_REQUESTED"
	TypeApproved  = "BOOKING_APPROVED"
	TypeRejected  = "BOOKING_REJECTED"
	TypeCancelled = "BOOKING_CANCELLED"
)

// Event is one entry on a booking's timeline.
type Event struct {
	ID         string         `json:"id"`
	BookingID  string         `json:"bookingId"`
	EventType  string         `json:"eventType"`
	Actor      string         `json:"actor"`
	FromStatus string         `json:"fromStatus,omitempty"`
	ToStatus   string         `json:"toStatus"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

func Insert(ctx context.Context, tx pgx.Tx, e Event) error {
	var s *string
	if e.Data != nil {
		b, _ := json.Marshal(e.Data)
		str := string(b)
		s = &str
	}
	var from *string
	if e.FromStatus != "" {
		from = &e.FromStatus
	}
	const q = `
INSERT INTO booking_events (id, booking_id, event_type, actor, from_status, to_status, occurred_at, data)
VALUES ($1, $2, $3, $4, $5, $6, $7, CAST($8 AS jsonb))
`
	_, err := tx.Exec(ctx, q, e.ID, e.BookingID, e.EventType, e.Actor, from, e.ToStatus, e.OccurredAt, s)
	return err
}

func ListByBooking(ctx context.Context, db *pgxpool.Pool, bookingID string) ([]Event, error) {
	const q = `
SELECT id::text, booking_id::text, event_type, actor, COALESCE(from_status, ''), to_status, occurred_at,
       COALESCE(data, '{}'::jsonb)
FROM booking_events
WHERE booking_id = $1
ORDER BY occurred_at ASC, created_at ASC
`
	rows, err := db.Query(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.BookingID, &e.EventType, &e.Actor, &e.FromStatus, &e.ToStatus, &e.OccurredAt, &e.Data); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
