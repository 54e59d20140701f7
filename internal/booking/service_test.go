package booking

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusbooking/internal/events"
	"campusbooking/internal/resource"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
	err     error
}

func (n *recordingNotifier) BookingChanged(_ context.Context, c Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, c := range n.changes {
		out = append(out, c.EventType)
	}
	return out
}

type auditEntry struct {
	action, actor, bookingID string
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *recordingAuditor) Record(_ context.Context, action, actor string, bookingID *string, _ any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := auditEntry{action: action, actor: actor}
	if bookingID != nil {
		e.bookingID = *bookingID
	}
	a.entries = append(a.entries, e)
	return nil
}

type fixture struct {
	svc      *Service
	store    *MemStore
	clock    *clock
	notifier *recordingNotifier
	auditor  *recordingAuditor
}

var (
	roomR1   = resource.Resource{ID: "R1", Kind: resource.KindRoom, Name: "Room 1", Quantity: 1}
	roomLT   = resource.Resource{ID: "LT-1", Kind: resource.KindRoom, Name: "Lecture Theatre", Quantity: 1, RequiresApproval: true}
	equipE1  = resource.Resource{ID: "E1", Kind: resource.KindEquipment, Name: "Projector", Quantity: 2, RequiresApproval: true}
	testDay  = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	testTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
)

func newFixture(t *testing.T, resources ...resource.Resource) *fixture {
	t.Helper()
	store := NewMemStore()
	for _, r := range resources {
		store.PutResource(r)
	}
	f := &fixture{
		store:    store,
		clock:    &clock{now: testTime},
		notifier: &recordingNotifier{},
		auditor:  &recordingAuditor{},
	}
	f.svc = NewService(store, Options{
		MaxAttempts: 3,
		Now:         f.clock.Now,
		Notifier:    f.notifier,
		Auditor:     f.auditor,
	})
	return f
}

func hm(h, m int) time.Time { return testDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func (f *fixture) request(user string, res resource.Resource, start, end time.Time) (*Booking, error) {
	return f.svc.RequestBooking(context.Background(), user, res.Kind, res.ID, start, end, "study group")
}

func TestRequestBooking_RoomWithoutApproval(t *testing.T) {
	f := newFixture(t, roomR1)

	first, err := f.request("u1", roomR1, hm(9, 0), hm(10, 0))
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, first.Status)

	_, err = f.request("u2", roomR1, hm(9, 30), hm(10, 30))
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	abutting, err := f.request("u2", roomR1, hm(10, 0), hm(11, 0))
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, abutting.Status)
}

func TestRequestBooking_ConcurrentEquipment(t *testing.T) {
	for round := 0; round < 25; round++ {
		f := newFixture(t, equipE1)

		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			results = make([]*Booking, 3)
			errs    = make([]error, 3)
		)
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i], errs[i] = f.request(fmt.Sprintf("u%d", i), equipE1, hm(14, 0), hm(15, 0))
			}(i)
		}
		close(start)
		wg.Wait()

		admitted, refused := 0, 0
		for i := range errs {
			switch {
			case errs[i] == nil:
				admitted++
				assert.Equal(t, StatusPending, results[i].Status)
			case errors.Is(errs[i], ErrResourceUnavailable):
				refused++
			default:
				t.Fatalf("round %d: unexpected error %v", round, errs[i])
			}
		}
		require.Equal(t, 2, admitted, "round %d", round)
		require.Equal(t, 1, refused, "round %d", round)
	}
}

func TestRequestBooking_RoomNeverDoubleBooked(t *testing.T) {
	f := newFixture(t, roomR1)
	rng := rand.New(rand.NewPCG(7, 11))

	var admitted []Booking
	for i := 0; i < 300; i++ {
		startSlot := rng.IntN(40)
		length := 1 + rng.IntN(6)
		iv := Interval{
			Start: testDay.Add(time.Duration(startSlot) * 15 * time.Minute),
			End:   testDay.Add(time.Duration(startSlot+length) * 15 * time.Minute),
		}

		conflict := false
		for _, b := range admitted {
			if b.Status.Active() && b.Interval().Overlaps(iv) {
				conflict = true
				break
			}
		}

		b, err := f.request(fmt.Sprintf("u%d", i%5), roomR1, iv.Start, iv.End)
		if conflict {
			require.ErrorIs(t, err, ErrResourceUnavailable, "request %d %v should conflict", i, iv)
			continue
		}
		require.NoError(t, err, "request %d %v should admit", i, iv)
		admitted = append(admitted, *b)

		// Free some capacity now and then so later requests can reuse it.
		if rng.IntN(4) == 0 {
			victim := rng.IntN(len(admitted))
			if admitted[victim].Status.Active() {
				c, err := f.svc.CancelBooking(context.Background(), admitted[victim].ID, admitted[victim].UserID)
				require.NoError(t, err)
				admitted[victim] = *c
			}
		}
	}

	active, err := f.store.ActiveOverlapping(context.Background(), roomR1.Ref(), Interval{Start: testDay, End: testDay.Add(24 * time.Hour)})
	require.NoError(t, err)
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			require.False(t, active[i].Interval().Overlaps(active[j].Interval()),
				"overlapping active bookings %v and %v", active[i].Interval(), active[j].Interval())
		}
	}
}

func TestRequestBooking_EquipmentCapacityUnderContention(t *testing.T) {
	eq := resource.Resource{ID: "E3", Kind: resource.KindEquipment, Quantity: 3}
	f := newFixture(t, eq)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(w), 99))
			for i := 0; i < 40; i++ {
				s := rng.IntN(20)
				_, err := f.request(fmt.Sprintf("w%d", w), eq,
					testDay.Add(time.Duration(s)*30*time.Minute),
					testDay.Add(time.Duration(s+1+rng.IntN(4))*30*time.Minute))
				if err != nil && !errors.Is(err, ErrResourceUnavailable) {
					t.Errorf("worker %d: unexpected error %v", w, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	active, err := f.store.ActiveOverlapping(context.Background(), eq.Ref(), Interval{Start: testDay, End: testDay.Add(24 * time.Hour)})
	require.NoError(t, err)
	// The maximum overlap of half-open intervals is reached at some start instant.
	for _, probe := range active {
		n := 0
		for _, b := range active {
			if !b.StartTime.After(probe.StartTime) && b.EndTime.After(probe.StartTime) {
				n++
			}
		}
		require.LessOrEqual(t, n, eq.Quantity, "instant %v over capacity", probe.StartTime)
	}
}

func TestRequestBooking_Validation(t *testing.T) {
	f := newFixture(t, roomR1)
	ctx := context.Background()

	_, err := f.svc.RequestBooking(ctx, "u1", resource.KindRoom, "R1", hm(9, 0), hm(10, 0), "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.RequestBooking(ctx, "u1", resource.KindRoom, "R1", hm(10, 0), hm(9, 0), "x")
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = f.svc.RequestBooking(ctx, "u1", resource.KindRoom, "R1", hm(10, 0), hm(10, 0), "x")
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = f.svc.RequestBooking(ctx, "u1", resource.Kind("vehicle"), "R1", hm(9, 0), hm(10, 0), "x")
	assert.ErrorIs(t, err, ErrResourceNotFound)

	_, err = f.svc.RequestBooking(ctx, "u1", resource.KindRoom, "nope", hm(9, 0), hm(10, 0), "x")
	assert.ErrorIs(t, err, ErrResourceNotFound)

	// Same id, wrong kind.
	_, err = f.svc.RequestBooking(ctx, "u1", resource.KindEquipment, "R1", hm(9, 0), hm(10, 0), "x")
	assert.ErrorIs(t, err, ErrResourceNotFound)

	assert.Empty(t, f.notifier.types())
}

func TestRequestBooking_IgnoresResourceStatusHint(t *testing.T) {
	maint := roomR1
	maint.Status = resource.StatusMaintenance
	f := newFixture(t, maint)

	b, err := f.request("u1", maint, hm(9, 0), hm(10, 0))
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, b.Status)
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t, equipE1)
	ctx := context.Background()

	_, err := f.request("u1", equipE1, hm(14, 0), hm(15, 0))
	require.NoError(t, err)

	first, err := f.svc.CheckAvailability(ctx, resource.KindEquipment, "E1", hm(14, 30), hm(15, 30))
	require.NoError(t, err)
	second, err := f.svc.CheckAvailability(ctx, resource.KindEquipment, "E1", hm(14, 30), hm(15, 30))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, Availability{Available: true, Held: 1, Capacity: 2}, first)

	_, err = f.svc.CheckAvailability(ctx, resource.KindEquipment, "missing", hm(14, 30), hm(15, 30))
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestStateMachine(t *testing.T) {
	f := newFixture(t, roomLT)
	ctx := context.Background()

	b, err := f.request("u1", roomLT, hm(9, 0), hm(10, 0))
	require.NoError(t, err)
	require.Equal(t, StatusPending, b.Status)

	approved, err := f.svc.ApproveBooking(ctx, b.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, "staff-1", approved.ApprovedBy)
	assert.Equal(t, testTime, approved.UpdatedAt)

	_, err = f.svc.ApproveBooking(ctx, b.ID, "staff-1")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = f.svc.RejectBooking(ctx, b.ID, "staff-1", "no")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	cancelled, err := f.svc.CancelBooking(ctx, b.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.svc.CancelBooking(ctx, b.ID, "u1")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = f.svc.ApproveBooking(ctx, b.ID, "staff-1")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	// The cancelled booking no longer holds the room.
	again, err := f.request("u2", roomLT, hm(9, 0), hm(10, 0))
	require.NoError(t, err)

	_, err = f.svc.RejectBooking(ctx, again.ID, "staff-2", "  ")
	assert.ErrorIs(t, err, ErrValidation)
	rejected, err := f.svc.RejectBooking(ctx, again.ID, "staff-2", "exam week")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "exam week", rejected.RejectionReason)
	assert.Equal(t, "staff-2", rejected.ApprovedBy)

	_, err = f.svc.CancelBooking(ctx, again.ID, "u2")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	assert.Equal(t, []string{
		events.TypeRequested, events.TypeApproved, events.TypeCancelled,
		events.TypeRequested, events.TypeRejected,
	}, f.notifier.types())
}

func TestCompletedIsDerived(t *testing.T) {
	f := newFixture(t, roomR1)
	ctx := context.Background()

	b, err := f.request("u1", roomR1, hm(9, 0), hm(10, 0))
	require.NoError(t, err)

	f.clock.Set(hm(10, 0))

	got, err := f.svc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	stored, err := f.store.Booking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status, "completed must never be written")

	_, err = f.svc.CancelBooking(ctx, b.ID, "u1")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	past, err := f.svc.PastForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, StatusCompleted, past[0].Status)

	upcoming, err := f.svc.UpcomingForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, upcoming)
}

func TestCancelBooking_Ownership(t *testing.T) {
	f := newFixture(t, roomR1)
	ctx := context.Background()

	b, err := f.request("U1", roomR1, hm(9, 0), hm(10, 0))
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, b.ID, "U2")
	require.ErrorIs(t, err, ErrNotOwner)
	require.Len(t, f.auditor.entries, 1)
	assert.Equal(t, auditEntry{action: "BOOKING_CANCEL_DENIED", actor: "U2", bookingID: b.ID}, f.auditor.entries[0])

	still, err := f.svc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, still.Status)

	cancelled, err := f.svc.CancelBooking(ctx, b.ID, "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// Ownership is checked before state.
	_, err = f.svc.CancelBooking(ctx, b.ID, "U2")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestTransitions_UnknownBooking(t *testing.T) {
	f := newFixture(t, roomR1)
	ctx := context.Background()

	_, err := f.svc.ApproveBooking(ctx, "not-a-uuid", "staff")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	_, err = f.svc.CancelBooking(ctx, "5f0c1ad2-4a8e-4c4e-9a51-2b1c0d7e9f10", "u1")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	_, err = f.svc.GetBooking(ctx, "5f0c1ad2-4a8e-4c4e-9a51-2b1c0d7e9f10")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestListings(t *testing.T) {
	f := newFixture(t, roomR1, roomLT, equipE1)
	ctx := context.Background()

	late, err := f.request("u1", roomLT, hm(15, 0), hm(16, 0))
	require.NoError(t, err)
	f.clock.Set(testTime.Add(time.Minute))
	early, err := f.request("u1", equipE1, hm(9, 0), hm(10, 0))
	require.NoError(t, err)
	_, err = f.request("u2", roomR1, hm(9, 0), hm(10, 0))
	require.NoError(t, err)

	upcoming, err := f.svc.UpcomingForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, early.ID, upcoming[0].ID)
	assert.Equal(t, late.ID, upcoming[1].ID)

	pending, err := f.svc.PendingBookings(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, late.ID, pending[0].ID, "queue is oldest request first")

	timeline, err := f.svc.Events(ctx, late.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, events.TypeRequested, timeline[0].EventType)
	assert.Equal(t, string(StatusPending), timeline[0].ToStatus)
}

func TestNotifierFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t, roomR1)
	f.notifier.err = errors.New("broker down")

	b, err := f.request("u1", roomR1, hm(9, 0), hm(10, 0))
	require.NoError(t, err)
	got, err := f.svc.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

// flakyStore fails the first `failures` units of work with err.
type flakyStore struct {
	*MemStore
	failures int32
	err      error
	calls    atomic.Int32
}

func (s *flakyStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if s.calls.Add(1) <= s.failures {
		return s.err
	}
	return s.MemStore.InTx(ctx, fn)
}

func TestRequestBooking_RetriesStorageUnavailable(t *testing.T) {
	unavailable := newError(KindStorageUnavailable, "lock timeout", nil)

	cases := []struct {
		name      string
		failures  int32
		err       error
		wantCalls int32
		wantErr   error
	}{
		{"recovers", 2, unavailable, 3, nil},
		{"gives up", 10, unavailable, 3, ErrStorageUnavailable},
		{"no retry on other errors", 10, errors.New("constraint violated"), 1, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mem := NewMemStore()
			mem.PutResource(roomR1)
			store := &flakyStore{MemStore: mem, failures: tc.failures, err: tc.err}
			svc := NewService(store, Options{MaxAttempts: 3, BaseBackoff: time.Millisecond, Now: func() time.Time { return testTime }})

			_, err := svc.RequestBooking(context.Background(), "u1", resource.KindRoom, "R1", hm(9, 0), hm(10, 0), "x")
			assert.Equal(t, tc.wantCalls, store.calls.Load())
			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.failures >= tc.wantCalls:
				assert.ErrorIs(t, err, tc.err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestBooking_ContextCancelledDuringBackoff(t *testing.T) {
	mem := NewMemStore()
	mem.PutResource(roomR1)
	store := &flakyStore{MemStore: mem, failures: 10, err: newError(KindStorageUnavailable, "busy", nil)}
	svc := NewService(store, Options{MaxAttempts: 5, BaseBackoff: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.RequestBooking(ctx, "u1", resource.KindRoom, "R1", hm(9, 0), hm(10, 0), "x")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), store.calls.Load())
}
