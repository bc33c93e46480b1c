package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffReportsChangedFieldsOnly(t *testing.T) {
	before := map[string]any{"name": "Ada", "email": "ada@pressroom.dev", "isActive": true}
	after := map[string]any{"name": "Grace", "email": "ada@pressroom.dev", "isActive": true}

	changes := Diff(before, after)
	require.Len(t, changes, 1)
	require.Equal(t, FieldChange{From: "Ada", To: "Grace"}, changes["name"])
}

func TestDiffNewFieldHasNilFrom(t *testing.T) {
	changes := Diff(nil, map[string]any{"title": "Hello"})
	require.Equal(t, FieldChange{From: nil, To: "Hello"}, changes["title"])
}

func TestDiffIdenticalSnapshots(t *testing.T) {
	snap := map[string]any{"name": "Ada"}
	require.Empty(t, Diff(snap, map[string]any{"name": "Ada"}))
}
