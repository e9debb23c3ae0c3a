package models

import (
	"fmt"
	"sort"
	"strings"
)

// ChangeKind classifies a single field-level change between two snapshots.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// FieldChange records one field's transition between two snapshots.
type FieldChange struct {
	Field string     `json:"field"`
	Old   string     `json:"old_value,omitempty"`
	New   string     `json:"new_value,omitempty"`
	Kind  ChangeKind `json:"change_kind"`
}

// Diff is the set of field-level changes between two snapshots, ordered by
// field name so rendering is deterministic.
type Diff []FieldChange

// Empty reports whether the diff contains no changes.
func (d Diff) Empty() bool {
	return len(d) == 0
}

// Fields returns the changed field names in order.
func (d Diff) Fields() []string {
	names := make([]string, len(d))
	for i, c := range d {
		names[i] = c.Field
	}
	return names
}

// Sort orders the diff by field name.
func (d Diff) Sort() {
	sort.Slice(d, func(i, j int) bool { return d[i].Field < d[j].Field })
}

// Render serializes the diff to a human-readable line-per-field form. This is
// the deterministic fallback used when no generated summary is available.
func (d Diff) Render() string {
	var b strings.Builder
	for i, c := range d {
		if i > 0 {
			b.WriteString("\n")
		}
		switch c.Kind {
		case ChangeAdded:
			fmt.Fprintf(&b, "%s: (new) %s", c.Field, c.New)
		case ChangeRemoved:
			fmt.Fprintf(&b, "%s: %s (gone)", c.Field, c.Old)
		default:
			fmt.Fprintf(&b, "%s: %s → %s", c.Field, c.Old, c.New)
		}
	}
	return b.String()
}
