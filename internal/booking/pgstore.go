package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusbooking/internal/events"
	"campusbooking/internal/resource"
	"campusbooking/pkg/db"
)

const bookingColumns = `id::text, user_id, resource_type, resource_id, start_time, end_time, status, reason,
COALESCE(approved_by, ''), COALESCE(rejection_reason, ''), created_at, updated_at`

// PostgresStore keeps bookings in Postgres. Admission serializes on the
// resource row lock taken by LockResource.
type PostgresStore struct {
	db          *pgxpool.Pool
	resources   *resource.Repository
	lockTimeout time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: pool, resources: resource.NewRepository(pool), lockTimeout: lockTimeout}
}

func (s *PostgresStore) Resource(ctx context.Context, ref resource.Ref) (*resource.Resource, error) {
	res, err := s.resources.Get(ctx, ref)
	return res, storeErr(err)
}

func (s *PostgresStore) ActiveOverlapping(ctx context.Context, ref resource.Ref, iv Interval) ([]Booking, error) {
	out, err := activeOverlapping(ctx, s.db, ref, iv)
	return out, storeErr(err)
}

func (s *PostgresStore) Booking(ctx context.Context, id string) (*Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(s.db.QueryRow(ctx, q, id))
	return b, storeErr(err)
}

func (s *PostgresStore) Bookings(ctx context.Context, f Filter) ([]Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if f.Resource != nil {
		add("resource_type = $%d", string(f.Resource.Kind))
		add("resource_id = $%d", f.Resource.ID)
	}
	if !f.EndAfter.IsZero() {
		add("end_time > $%d", f.EndAfter)
	}
	if !f.EndNotAfter.IsZero() {
		add("end_time <= $%d", f.EndNotAfter)
	}

	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY start_time ASC, created_at ASC`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	out, err := collectBookings(rows)
	return out, storeErr(err)
}

func (s *PostgresStore) Events(ctx context.Context, bookingID string) ([]events.Event, error) {
	out, err := events.ListByBooking(ctx, s.db, bookingID)
	return out, storeErr(err)
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := db.SetLockTimeout(ctx, tx, s.lockTimeout); err != nil {
			return err
		}
		return fn(&pgTx{tx: tx})
	})
	return storeErr(err)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockResource(ctx context.Context, ref resource.Ref) (*resource.Resource, error) {
	return resource.GetForUpdate(ctx, t.tx, ref)
}

func (t *pgTx) ActiveOverlapping(ctx context.Context, ref resource.Ref, iv Interval) ([]Booking, error) {
	return activeOverlapping(ctx, t.tx, ref, iv)
}

func (t *pgTx) LockBooking(ctx context.Context, id string) (*Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return scanBooking(t.tx.QueryRow(ctx, q, id))
}

func (t *pgTx) InsertBooking(ctx context.Context, b *Booking) error {
	const q = `
INSERT INTO bookings (id, user_id, resource_type, resource_id, start_time, end_time, status, reason,
                      approved_by, rejection_reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12)
`
	_, err := t.tx.Exec(ctx, q,
		b.ID, b.UserID, string(b.ResourceType), b.ResourceID, b.StartTime, b.EndTime, string(b.Status), b.Reason,
		b.ApprovedBy, b.RejectionReason, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (t *pgTx) UpdateBooking(ctx context.Context, b *Booking) error {
	const q = `
UPDATE bookings
SET status = $2, approved_by = NULLIF($3, ''), rejection_reason = NULLIF($4, ''), updated_at = $5
WHERE id = $1
`
	tag, err := t.tx.Exec(ctx, q, b.ID, string(b.Status), b.ApprovedBy, b.RejectionReason, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e events.Event) error {
	return events.Insert(ctx, t.tx, e)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func activeOverlapping(ctx context.Context, q querier, ref resource.Ref, iv Interval) ([]Booking, error) {
	const sql = `SELECT ` + bookingColumns + `
FROM bookings
WHERE resource_type = $1 AND resource_id = $2
  AND status = ANY($3)
  AND end_time > $4
  AND start_time < $5
ORDER BY start_time ASC`
	rows, err := q.Query(ctx, sql, string(ref.Kind), ref.ID, statusStrings(activeStatuses), iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	if err := row.Scan(
		&b.ID, &b.UserID, &b.ResourceType, &b.ResourceID, &b.StartTime, &b.EndTime, &b.Status, &b.Reason,
		&b.ApprovedBy, &b.RejectionReason, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, newError(KindBookingNotFound, "booking not found", nil)
		}
		return nil, err
	}
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	return &b, nil
}

func statusStrings(ss []Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

// storeErr leaves workflow errors and resource.ErrNotFound as they are and
// classifies the rest: transient failures become ErrStorageUnavailable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" || errors.Is(err, resource.ErrNotFound) {
		return err
	}
	if db.IsTransient(err) {
		return newError(KindStorageUnavailable, "booking store unavailable", err)
	}
	return err
}
