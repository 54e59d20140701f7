package resource

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindRoom      Kind = "room"
	KindEquipment Kind = "equipment"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindRoom, KindEquipment:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown resource kind: %s", s)
	}
}

// Status is the display hint shown next to a resource. It says nothing about
// whether a given interval can be booked.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusBooked      Status = "booked"
	StatusMaintenance Status = "maintenance"
)

var ErrNotFound = errors.New("resource not found")

// Ref identifies a bookable resource. It is also the admission serialization key.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (r Ref) String() string { return string(r.Kind) + ":" + r.ID }

type Resource struct {
	ID               string    `json:"id"`
	Kind             Kind      `json:"kind"`
	Name             string    `json:"name"`
	Location         string    `json:"location,omitempty"`
	RequiresApproval bool      `json:"requiresApproval"`
	Quantity         int       `json:"quantity"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (r Resource) Ref() Ref { return Ref{Kind: r.Kind, ID: r.ID} }

// Capacity is how many bookings may hold the resource at the same instant.
// A room is a single exclusive unit regardless of its stored quantity.
func (r Resource) Capacity() int {
	if r.Kind == KindRoom {
		return 1
	}
	if r.Quantity < 1 {
		return 1
	}
	return r.Quantity
}

// Catalog is the read side of the resource store.
type Catalog interface {
	Get(ctx context.Context, ref Ref) (*Resource, error)
	List(ctx context.Context, kind Kind) ([]Resource, error)
}
