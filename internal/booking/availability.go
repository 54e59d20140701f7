package booking

import "campusbooking/internal/resource"

// Availability is the answer to "can res admit iv right now".
type Availability struct {
	Available bool `json:"available"`
	// Held counts active bookings overlapping the requested interval.
	Held     int `json:"held"`
	Capacity int `json:"capacity"`
}

// Evaluate decides admission for iv on res given candidate bookings. It reads
// only the bookings; res.Status is a display hint and plays no part.
//
// Candidates that are not active, belong to another resource, or do not
// overlap iv are skipped, so callers may pass a coarser pre-filtered set.
func Evaluate(res resource.Resource, candidates []Booking, iv Interval) Availability {
	ref := res.Ref()
	held := 0
	for _, b := range candidates {
		if !b.Status.Active() || b.Ref() != ref {
			continue
		}
		// Pre-filter: anything ending at or before our start cannot overlap.
		if !b.EndTime.After(iv.Start) {
			continue
		}
		if b.StartTime.Before(iv.End) {
			held++
		}
	}
	capacity := res.Capacity()
	return Availability{Available: held < capacity, Held: held, Capacity: capacity}
}
