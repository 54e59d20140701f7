package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"campusbooking/internal/audit"
	"campusbooking/internal/events"
	"campusbooking/internal/resource"
)

var tracer = otel.Tracer("campusbooking/internal/booking")

// Change is what gets announced after a booking mutation commits.
type Change struct {
	EventType string  `json:"eventType"`
	Actor     string  `json:"actor"`
	Booking   Booking `json:"booking"`
}

// Notifier is told about committed changes. Failures are logged, never
// surfaced: the booking has already been written.
type Notifier interface {
	BookingChanged(ctx context.Context, c Change) error
}

// Auditor records refused actions.
type Auditor interface {
	Record(ctx context.Context, action, actor string, bookingID *string, metadata any) error
}

type Options struct {
	// MaxAttempts bounds tries of one atomic section when the store reports
	// ErrStorageUnavailable. Defaults to 1.
	MaxAttempts int
	BaseBackoff time.Duration

	Notifier Notifier
	Auditor  Auditor
	Log      logrus.FieldLogger

	Now   func() time.Time
	NewID func() string
}

// Service admits booking requests and moves bookings through their states.
type Service struct {
	store Store
	opts  Options
	log   logrus.FieldLogger
}

func NewService(store Store, opts Options) *Service {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Service{store: store, opts: opts, log: log.WithField("component", "booking")}
}

func (s *Service) now() time.Time { return s.opts.Now().UTC() }

// CheckAvailability answers whether [start, end) could be admitted on the
// resource right now. It does not reserve anything.
func (s *Service) CheckAvailability(ctx context.Context, kind resource.Kind, resourceID string, start, end time.Time) (Availability, error) {
	ctx, span := tracer.Start(ctx, "booking.CheckAvailability")
	defer span.End()

	iv, err := NewInterval(start, end)
	if err != nil {
		return Availability{}, endSpan(span, err)
	}
	ref, err := parseRef(kind, resourceID)
	if err != nil {
		return Availability{}, endSpan(span, err)
	}
	res, err := s.store.Resource(ctx, ref)
	if err != nil {
		return Availability{}, endSpan(span, resourceErr(ref, err))
	}
	held, err := s.store.ActiveOverlapping(ctx, ref, iv)
	if err != nil {
		return Availability{}, endSpan(span, err)
	}
	return Evaluate(*res, held, iv), nil
}

// RequestBooking admits a new booking. The resource lookup, overlap scan and
// insert run as one unit serialized per resource, so two concurrent requests
// can never both take the last unit.
func (s *Service) RequestBooking(ctx context.Context, userID string, kind resource.Kind, resourceID string, start, end time.Time, reason string) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.RequestBooking", trace.WithAttributes(
		attribute.String("resource.kind", string(kind)),
		attribute.String("resource.id", resourceID),
	))
	defer span.End()

	userID = strings.TrimSpace(userID)
	reason = strings.TrimSpace(reason)
	if userID == "" {
		return nil, endSpan(span, newError(KindValidation, "user id is required", nil))
	}
	if reason == "" {
		return nil, endSpan(span, newError(KindValidation, "reason is required", nil))
	}
	iv, err := NewInterval(start.UTC(), end.UTC())
	if err != nil {
		return nil, endSpan(span, err)
	}
	ref, err := parseRef(kind, resourceID)
	if err != nil {
		return nil, endSpan(span, err)
	}

	log := s.log.WithFields(logrus.Fields{"resource": ref.String(), "user_id": userID})

	var created *Booking
	err = withRetry(ctx, s.opts.MaxAttempts, s.opts.BaseBackoff, func() error {
		return s.store.InTx(ctx, func(tx Tx) error {
			res, err := tx.LockResource(ctx, ref)
			if err != nil {
				return resourceErr(ref, err)
			}
			held, err := tx.ActiveOverlapping(ctx, ref, iv)
			if err != nil {
				return err
			}
			av := Evaluate(*res, held, iv)
			if !av.Available {
				return newError(KindResourceUnavailable,
					fmt.Sprintf("the %s is not available for the requested time (%d of %d held)", ref.Kind, av.Held, av.Capacity), nil)
			}

			status := StatusApproved
			if res.RequiresApproval {
				status = StatusPending
			}
			now := s.now()
			b := &Booking{
				ID:           s.opts.NewID(),
				UserID:       userID,
				ResourceType: ref.Kind,
				ResourceID:   ref.ID,
				StartTime:    iv.Start,
				EndTime:      iv.End,
				Status:       status,
				Reason:       reason,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.InsertBooking(ctx, b); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, events.Event{
				ID:         s.opts.NewID(),
				BookingID:  b.ID,
				EventType:  events.TypeRequested,
				Actor:      userID,
				ToStatus:   string(status),
				OccurredAt: now,
				Data:       map[string]any{"held": av.Held, "capacity": av.Capacity},
			}); err != nil {
				return err
			}
			created = b
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrResourceUnavailable) {
			log.Info("booking request denied: resource unavailable")
		} else if KindOf(err) == "" || errors.Is(err, ErrStorageUnavailable) {
			log.WithError(err).Error("booking request failed")
		}
		return nil, endSpan(span, err)
	}

	span.SetAttributes(attribute.String("booking.id", created.ID), attribute.String("booking.status", string(created.Status)))
	log.WithFields(logrus.Fields{"booking_id": created.ID, "status": created.Status}).Info("booking admitted")
	s.notify(ctx, events.TypeRequested, userID, *created)
	return created, nil
}

// ApproveBooking moves a pending booking to approved.
func (s *Service) ApproveBooking(ctx context.Context, bookingID, approverID string) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.ApproveBooking", trace.WithAttributes(attribute.String("booking.id", bookingID)))
	defer span.End()

	approverID = strings.TrimSpace(approverID)
	if approverID == "" {
		return nil, endSpan(span, newError(KindValidation, "approver id is required", nil))
	}
	b, err := s.transition(ctx, bookingID, approverID, StatusApproved, events.TypeApproved, "approve", func(b *Booking) error {
		b.ApprovedBy = approverID
		return nil
	}, nil)
	return b, endSpan(span, err)
}

// RejectBooking moves a pending booking to rejected. The deciding staff
// member is recorded in ApprovedBy alongside the rejection reason.
func (s *Service) RejectBooking(ctx context.Context, bookingID, approverID, rejectionReason string) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.RejectBooking", trace.WithAttributes(attribute.String("booking.id", bookingID)))
	defer span.End()

	approverID = strings.TrimSpace(approverID)
	rejectionReason = strings.TrimSpace(rejectionReason)
	if approverID == "" {
		return nil, endSpan(span, newError(KindValidation, "approver id is required", nil))
	}
	if rejectionReason == "" {
		return nil, endSpan(span, newError(KindValidation, "rejection reason is required", nil))
	}
	b, err := s.transition(ctx, bookingID, approverID, StatusRejected, events.TypeRejected, "reject", func(b *Booking) error {
		b.ApprovedBy = approverID
		b.RejectionReason = rejectionReason
		return nil
	}, map[string]any{"rejectionReason": rejectionReason})
	return b, endSpan(span, err)
}

// CancelBooking lets the owner withdraw a pending or approved booking.
func (s *Service) CancelBooking(ctx context.Context, bookingID, requesterID string) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.CancelBooking", trace.WithAttributes(attribute.String("booking.id", bookingID)))
	defer span.End()

	requesterID = strings.TrimSpace(requesterID)
	b, err := s.transition(ctx, bookingID, requesterID, StatusCancelled, events.TypeCancelled, "cancel", func(b *Booking) error {
		if b.UserID != requesterID {
			return newError(KindNotOwner, "you can only cancel your own bookings", nil)
		}
		return nil
	}, nil)
	if errors.Is(err, ErrNotOwner) {
		s.auditDenied(ctx, bookingID, requesterID)
	}
	return b, endSpan(span, err)
}

// transition is the shared read-check-write for every status change. guard
// runs against the locked row before the state check and may refuse or
// mutate it.
func (s *Service) transition(ctx context.Context, bookingID, actor string, to Status, eventType, verb string, guard func(*Booking) error, data map[string]any) (*Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, newError(KindBookingNotFound, "booking not found", nil)
	}

	var updated *Booking
	err := withRetry(ctx, s.opts.MaxAttempts, s.opts.BaseBackoff, func() error {
		return s.store.InTx(ctx, func(tx Tx) error {
			b, err := tx.LockBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			now := s.now()
			from := b.EffectiveStatus(now)

			next := *b
			if err := guard(&next); err != nil {
				return err
			}
			if !CanTransition(from, to) {
				return newError(KindInvalidStateTransition, fmt.Sprintf("cannot %s a booking with status: %s", verb, from), nil)
			}
			next.Status = to
			next.UpdatedAt = now
			if err := tx.UpdateBooking(ctx, &next); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, events.Event{
				ID:         s.opts.NewID(),
				BookingID:  next.ID,
				EventType:  eventType,
				Actor:      actor,
				FromStatus: string(from),
				ToStatus:   string(to),
				OccurredAt: now,
				Data:       data,
			}); err != nil {
				return err
			}
			updated = &next
			return nil
		})
	})
	log := s.log.WithFields(logrus.Fields{"booking_id": bookingID, "actor": actor, "to": to})
	if err != nil {
		if KindOf(err) == "" || errors.Is(err, ErrStorageUnavailable) {
			log.WithError(err).Error("booking transition failed")
		} else {
			log.WithError(err).Info("booking transition refused")
		}
		return nil, err
	}
	log.Info("booking transitioned")
	s.notify(ctx, eventType, actor, *updated)
	return updated, nil
}

func (s *Service) GetBooking(ctx context.Context, bookingID string) (*Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, newError(KindBookingNotFound, "booking not found", nil)
	}
	b, err := s.store.Booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	out := b.AsOf(s.now())
	return &out, nil
}

// UpcomingForUser lists the user's pending and approved bookings that have not ended.
func (s *Service) UpcomingForUser(ctx context.Context, userID string) ([]Booking, error) {
	now := s.now()
	out, err := s.store.Bookings(ctx, Filter{UserID: userID, Statuses: activeStatuses, EndAfter: now})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// PastForUser lists every booking of the user that has ended, newest first.
// Approved ones read as completed.
func (s *Service) PastForUser(ctx context.Context, userID string) ([]Booking, error) {
	now := s.now()
	out, err := s.store.Bookings(ctx, Filter{UserID: userID, EndNotAfter: now})
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = out[i].AsOf(now)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

// PendingBookings is the staff approval queue, oldest request first.
func (s *Service) PendingBookings(ctx context.Context) ([]Booking, error) {
	out, err := s.store.Bookings(ctx, Filter{Statuses: []Status{StatusPending}})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Service) Events(ctx context.Context, bookingID string) ([]events.Event, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, newError(KindBookingNotFound, "booking not found", nil)
	}
	return s.store.Events(ctx, bookingID)
}

func (s *Service) notify(ctx context.Context, eventType, actor string, b Booking) {
	if s.opts.Notifier == nil {
		return
	}
	if err := s.opts.Notifier.BookingChanged(ctx, Change{EventType: eventType, Actor: actor, Booking: b}); err != nil {
		s.log.WithError(err).WithField("booking_id", b.ID).Warn("booking notification failed")
	}
}

func (s *Service) auditDenied(ctx context.Context, bookingID, actor string) {
	if s.opts.Auditor == nil {
		return
	}
	id := bookingID
	if err := s.opts.Auditor.Record(ctx, audit.ActionCancelDenied, actor, &id, map[string]any{"reason": "not owner"}); err != nil {
		s.log.WithError(err).WithField("booking_id", bookingID).Warn("audit write failed")
	}
}

func parseRef(kind resource.Kind, id string) (resource.Ref, error) {
	if _, err := resource.ParseKind(string(kind)); err != nil {
		return resource.Ref{}, newError(KindResourceNotFound, err.Error(), nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return resource.Ref{}, newError(KindResourceNotFound, "resource id is required", nil)
	}
	return resource.Ref{Kind: kind, ID: id}, nil
}

func resourceErr(ref resource.Ref, err error) error {
	if errors.Is(err, resource.ErrNotFound) {
		return newError(KindResourceNotFound, fmt.Sprintf("%s not found", ref.Kind), nil)
	}
	return err
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
