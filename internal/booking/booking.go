package booking

import (
	"time"

	"campusbooking/internal/resource"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

func (iv Interval) Validate() error {
	if iv.Start.IsZero() || iv.End.IsZero() {
		return newError(KindInvalidInterval, "start and end are required", nil)
	}
	if !iv.Start.Before(iv.End) {
		return newError(KindInvalidInterval, "start must be before end", nil)
	}
	return nil
}

// Overlaps reports whether the two intervals share an instant. Intervals that
// only touch (a.End == b.Start) do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

type Booking struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	ResourceType    resource.Kind `json:"resourceType"`
	ResourceID      string        `json:"resourceId"`
	StartTime       time.Time     `json:"startTime"`
	EndTime         time.Time     `json:"endTime"`
	Status          Status        `json:"status"`
	Reason          string        `json:"reason"`
	ApprovedBy      string        `json:"approvedBy,omitempty"`
	RejectionReason string        `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (b Booking) Ref() resource.Ref {
	return resource.Ref{Kind: b.ResourceType, ID: b.ResourceID}
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// EffectiveStatus classifies the booking at now. An approved booking whose end
// has passed reads as completed; the stored status is left untouched.
func (b Booking) EffectiveStatus(now time.Time) Status {
	if b.Status == StatusApproved && !b.EndTime.After(now) {
		return StatusCompleted
	}
	return b.Status
}

// AsOf returns a copy with Status replaced by EffectiveStatus(now), for display.
func (b Booking) AsOf(now time.Time) Booking {
	b.Status = b.EffectiveStatus(now)
	return b
}
