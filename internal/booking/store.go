package booking

import (
	"context"
	"time"

	"campusbooking/internal/events"
	"campusbooking/internal/resource"
)

// Filter narrows a booking listing. Zero-valued fields do not constrain.
type Filter struct {
	UserID   string
	Statuses []Status
	Resource *resource.Ref
	// EndAfter keeps bookings with EndTime > EndAfter.
	EndAfter time.Time
	// EndNotAfter keeps bookings with EndTime <= EndNotAfter.
	EndNotAfter time.Time
}

// Reader is the committed, lock-free view of the store.
type Reader interface {
	Resource(ctx context.Context, ref resource.Ref) (*resource.Resource, error)
	// ActiveOverlapping returns pending/approved bookings on ref whose
	// interval overlaps iv.
	ActiveOverlapping(ctx context.Context, ref resource.Ref, iv Interval) ([]Booking, error)
	Booking(ctx context.Context, id string) (*Booking, error)
	Bookings(ctx context.Context, f Filter) ([]Booking, error)
	Events(ctx context.Context, bookingID string) ([]events.Event, error)
}

// Tx is one atomic unit of work. Nothing it writes is visible to others
// until the surrounding InTx returns nil.
type Tx interface {
	// LockResource loads ref and excludes every other unit of work that
	// locks the same ref until this one ends. Returns resource.ErrNotFound.
	LockResource(ctx context.Context, ref resource.Ref) (*resource.Resource, error)
	ActiveOverlapping(ctx context.Context, ref resource.Ref, iv Interval) ([]Booking, error)
	// LockBooking loads a booking for a status change. Returns ErrBookingNotFound.
	LockBooking(ctx context.Context, id string) (*Booking, error)
	InsertBooking(ctx context.Context, b *Booking) error
	UpdateBooking(ctx context.Context, b *Booking) error
	AppendEvent(ctx context.Context, e events.Event) error
}

type Store interface {
	Reader
	// InTx runs fn atomically. Transient store failures come back as
	// ErrStorageUnavailable; errors returned by fn come back unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
