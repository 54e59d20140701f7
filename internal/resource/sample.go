package resource

// Sample is a small catalog for local runs: one room that needs approval, one
// that does not, and a pool of two projectors.
func Sample() []Resource {
	return []Resource{
		{ID: "LT-1", Kind: KindRoom, Name: "Lecture Theatre 1", Location: "Main Building", RequiresApproval: true, Quantity: 1},
		{ID: "SR-204", Kind: KindRoom, Name: "Seminar Room 204", Location: "Library", Quantity: 1},
		{ID: "PROJ-A", Kind: KindEquipment, Name: "Portable projector", Location: "AV desk", RequiresApproval: true, Quantity: 2},
	}
}
