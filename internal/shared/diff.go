package shared

// FieldChange captures a single field transition for audit metadata.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Diff computes the field-level changes between two snapshots of an entity.
// Only keys present in after are considered; unchanged values are dropped.
// The result feeds audit metadata and carries no authorization weight.
func Diff(before, after map[string]any) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for key, next := range after {
		prev, existed := before[key]
		if existed && prev == next {
			continue
		}
		changes[key] = FieldChange{From: prev, To: next}
	}
	return changes
}
