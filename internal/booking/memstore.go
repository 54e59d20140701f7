package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"campusbooking/internal/events"
	"campusbooking/internal/resource"
)

// MemStore keeps everything in process memory. Units of work on the same
// resource are serialized by a per-resource lock; writes become visible only
// when the unit commits.
type MemStore struct {
	mu        sync.RWMutex
	resources map[resource.Ref]resource.Resource
	bookings  map[string]Booking
	events    map[string][]events.Event

	locks keyedLocker
}

func NewMemStore() *MemStore {
	return &MemStore{
		resources: make(map[resource.Ref]resource.Resource),
		bookings:  make(map[string]Booking),
		events:    make(map[string][]events.Event),
	}
}

// PutResource adds or replaces a catalog entry.
func (s *MemStore) PutResource(res resource.Resource) {
	now := time.Now().UTC()
	if res.Status == "" {
		res.Status = resource.StatusAvailable
	}
	if res.Quantity < 1 {
		res.Quantity = 1
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[res.Ref()] = res
}

// Catalog exposes the resources as a resource.Catalog.
func (s *MemStore) Catalog() resource.Catalog { return memCatalog{s} }

func (s *MemStore) Resource(_ context.Context, ref resource.Ref) (*resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[ref]
	if !ok {
		return nil, resource.ErrNotFound
	}
	return &res, nil
}

func (s *MemStore) ActiveOverlapping(_ context.Context, ref resource.Ref, iv Interval) ([]Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeOverlappingLocked(ref, iv, nil), nil
}

func (s *MemStore) Booking(_ context.Context, id string) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, newError(KindBookingNotFound, "booking not found", nil)
	}
	return &b, nil
}

func (s *MemStore) Bookings(_ context.Context, f Filter) ([]Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Booking
	for _, b := range s.bookings {
		if f.match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemStore) Events(_ context.Context, bookingID string) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event(nil), s.events[bookingID]...), nil
}

func (s *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{s: s, pending: make(map[string]Booking)}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range tx.pending {
		s.bookings[id] = b
	}
	for _, e := range tx.events {
		s.events[e.BookingID] = append(s.events[e.BookingID], e)
	}
	return nil
}

// activeOverlappingLocked scans committed bookings, with overlay taking
// precedence for ids it contains. s.mu must be held.
func (s *MemStore) activeOverlappingLocked(ref resource.Ref, iv Interval, overlay map[string]Booking) []Booking {
	var out []Booking
	consider := func(b Booking) {
		if b.Ref() == ref && b.Status.Active() && b.Interval().Overlaps(iv) {
			out = append(out, b)
		}
	}
	for id, b := range s.bookings {
		if o, ok := overlay[id]; ok {
			b = o
		}
		consider(b)
	}
	for id, b := range overlay {
		if _, ok := s.bookings[id]; !ok {
			consider(b)
		}
	}
	return out
}

type memTx struct {
	s       *MemStore
	held    []func()
	pending map[string]Booking
	events  []events.Event
}

func (t *memTx) lock(ctx context.Context, key string) error {
	unlock, err := t.s.locks.lock(ctx, key)
	if err != nil {
		return newError(KindStorageUnavailable, "timed out waiting for lock", err)
	}
	t.held = append(t.held, unlock)
	return nil
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i]()
	}
	t.held = nil
}

func (t *memTx) LockResource(ctx context.Context, ref resource.Ref) (*resource.Resource, error) {
	if err := t.lock(ctx, "resource:"+ref.String()); err != nil {
		return nil, err
	}
	return t.s.Resource(ctx, ref)
}

func (t *memTx) ActiveOverlapping(_ context.Context, ref resource.Ref, iv Interval) ([]Booking, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.activeOverlappingLocked(ref, iv, t.pending), nil
}

func (t *memTx) LockBooking(ctx context.Context, id string) (*Booking, error) {
	if err := t.lock(ctx, "booking:"+id); err != nil {
		return nil, err
	}
	if b, ok := t.pending[id]; ok {
		return &b, nil
	}
	return t.s.Booking(ctx, id)
}

func (t *memTx) InsertBooking(_ context.Context, b *Booking) error {
	t.pending[b.ID] = *b
	return nil
}

func (t *memTx) UpdateBooking(ctx context.Context, b *Booking) error {
	if _, ok := t.pending[b.ID]; !ok {
		if _, err := t.s.Booking(ctx, b.ID); err != nil {
			return err
		}
	}
	t.pending[b.ID] = *b
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, e events.Event) error {
	t.events = append(t.events, e)
	return nil
}

func (f Filter) match(b Booking) bool {
	if f.UserID != "" && b.UserID != f.UserID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if b.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Resource != nil && b.Ref() != *f.Resource {
		return false
	}
	if !f.EndAfter.IsZero() && !b.EndTime.After(f.EndAfter) {
		return false
	}
	if !f.EndNotAfter.IsZero() && b.EndTime.After(f.EndNotAfter) {
		return false
	}
	return true
}

// keyedLocker hands out one mutex per key, created on first use and dropped
// when nobody holds or waits on it.
type keyedLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func (k *keyedLocker) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	if k.slots == nil {
		k.slots = make(map[string]*lockSlot)
	}
	slot, ok := k.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		k.slots[key] = slot
	}
	slot.refs++
	k.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return func() {
			<-slot.ch
			k.drop(key, slot)
		}, nil
	case <-ctx.Done():
		k.drop(key, slot)
		return nil, ctx.Err()
	}
}

func (k *keyedLocker) drop(key string, slot *lockSlot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(k.slots, key)
	}
}

type memCatalog struct{ s *MemStore }

func (c memCatalog) Get(ctx context.Context, ref resource.Ref) (*resource.Resource, error) {
	return c.s.Resource(ctx, ref)
}

func (c memCatalog) List(_ context.Context, kind resource.Kind) ([]resource.Resource, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	var out []resource.Resource
	for _, res := range c.s.resources {
		if kind == "" || res.Kind == kind {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
