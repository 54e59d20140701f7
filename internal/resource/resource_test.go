package resource

import "testing"

func TestCapacity(t *testing.T) {
	room := Resource{Kind: KindRoom, Quantity: 40}
	if got := room.Capacity(); got != 1 {
		t.Fatalf("room capacity must be 1, got %d", got)
	}
	eq := Resource{Kind: KindEquipment, Quantity: 3}
	if got := eq.Capacity(); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	broken := Resource{Kind: KindEquipment}
	if got := broken.Capacity(); got != 1 {
		t.Fatalf("zero quantity should floor at 1, got %d", got)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("equipment"); err != nil || k != KindEquipment {
		t.Fatalf("unexpected %q %v", k, err)
	}
	if _, err := ParseKind("Room"); err == nil {
		t.Fatalf("expected error for mixed case kind")
	}
}

func TestRefString(t *testing.T) {
	if got := (Ref{Kind: KindRoom, ID: "r1"}).String(); got != "room:r1" {
		t.Fatalf("unexpected %q", got)
	}
}
