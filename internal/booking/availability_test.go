package booking

import (
	"errors"
	"testing"
	"time"

	"campusbooking/internal/resource"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func window(h1, m1, h2, m2 int) Interval {
	return Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func holding(ref resource.Ref, iv Interval, s Status) Booking {
	return Booking{ResourceType: ref.Kind, ResourceID: ref.ID, StartTime: iv.Start, EndTime: iv.End, Status: s}
}

func TestEvaluate_Room(t *testing.T) {
	room := resource.Resource{ID: "R1", Kind: resource.KindRoom, Quantity: 5}
	ref := room.Ref()
	existing := []Booking{holding(ref, window(9, 0, 10, 0), StatusApproved)}

	cases := []struct {
		name string
		iv   Interval
		want bool
	}{
		{"overlap tail", window(9, 30, 10, 30), false},
		{"contained", window(9, 15, 9, 45), false},
		{"covering", window(8, 0, 11, 0), false},
		{"abut after", window(10, 0, 11, 0), true},
		{"abut before", window(8, 0, 9, 0), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			av := Evaluate(room, existing, tc.iv)
			if av.Available != tc.want {
				t.Fatalf("available = %v, want %v (%+v)", av.Available, tc.want, av)
			}
			if av.Capacity != 1 {
				t.Fatalf("room capacity must be 1, got %d", av.Capacity)
			}
		})
	}
}

func TestEvaluate_IgnoresInactiveAndOtherResources(t *testing.T) {
	room := resource.Resource{ID: "R1", Kind: resource.KindRoom, Status: resource.StatusBooked}
	ref := room.Ref()
	iv := window(9, 0, 10, 0)
	candidates := []Booking{
		holding(ref, iv, StatusCancelled),
		holding(ref, iv, StatusRejected),
		holding(resource.Ref{Kind: resource.KindRoom, ID: "R2"}, iv, StatusApproved),
		holding(resource.Ref{Kind: resource.KindEquipment, ID: "R1"}, iv, StatusApproved),
	}
	av := Evaluate(room, candidates, iv)
	if !av.Available || av.Held != 0 {
		t.Fatalf("expected free slot, got %+v", av)
	}
}

func TestEvaluate_EquipmentCapacity(t *testing.T) {
	eq := resource.Resource{ID: "E1", Kind: resource.KindEquipment, Quantity: 2}
	ref := eq.Ref()
	existing := []Booking{holding(ref, window(14, 0, 15, 0), StatusPending)}

	if av := Evaluate(eq, existing, window(14, 0, 15, 0)); !av.Available || av.Held != 1 {
		t.Fatalf("one of two held should admit, got %+v", av)
	}
	existing = append(existing, holding(ref, window(14, 30, 16, 0), StatusApproved))
	if av := Evaluate(eq, existing, window(14, 45, 15, 15)); av.Available || av.Held != 2 {
		t.Fatalf("two of two held should refuse, got %+v", av)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	eq := resource.Resource{ID: "E1", Kind: resource.KindEquipment, Quantity: 2}
	existing := []Booking{holding(eq.Ref(), window(14, 0, 15, 0), StatusPending)}
	iv := window(14, 0, 15, 0)
	if a, b := Evaluate(eq, existing, iv), Evaluate(eq, existing, iv); a != b {
		t.Fatalf("repeated evaluation differs: %+v vs %+v", a, b)
	}
}

func TestNewInterval(t *testing.T) {
	if _, err := NewInterval(at(10, 0), at(10, 0)); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("empty interval: expected ErrInvalidInterval, got %v", err)
	}
	if _, err := NewInterval(at(11, 0), at(10, 0)); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("reversed interval: expected ErrInvalidInterval, got %v", err)
	}
	if _, err := NewInterval(time.Time{}, at(10, 0)); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("missing start: expected ErrInvalidInterval, got %v", err)
	}
	if _, err := NewInterval(at(9, 0), at(10, 0)); err != nil {
		t.Fatalf("valid interval: %v", err)
	}
}
