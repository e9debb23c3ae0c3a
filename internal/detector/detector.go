// Package detector computes field-level diffs between two snapshots. It is
// pure: no I/O, no clock, no mutation of its inputs, so the alerting rules
// built on top of it can be tested exhaustively.
package detector

import (
	"sort"

	"github.com/watcherhq/watcher/internal/models"
)

// Detect compares two snapshots over the union of their keys. A field absent
// in previous but present in next is added; the reverse is removed; present
// in both with unequal normalized values is modified. Equal fields are
// omitted. A nil snapshot is treated as empty.
func Detect(previous, next *models.Snapshot) models.Diff {
	fields := make(map[string]bool)
	if previous != nil {
		for f := range previous.Values {
			fields[f] = true
		}
	}
	if next != nil {
		for f := range next.Values {
			fields[f] = true
		}
	}

	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	var diff models.Diff
	for _, f := range names {
		oldVal, hadOld := previous.Get(f)
		newVal, hasNew := next.Get(f)

		switch {
		case !hadOld && hasNew:
			diff = append(diff, models.FieldChange{Field: f, New: newVal, Kind: models.ChangeAdded})
		case hadOld && !hasNew:
			diff = append(diff, models.FieldChange{Field: f, Old: oldVal, Kind: models.ChangeRemoved})
		case oldVal != newVal:
			diff = append(diff, models.FieldChange{Field: f, Old: oldVal, New: newVal, Kind: models.ChangeModified})
		}
	}

	return diff
}

// HasChanges reports whether the two snapshots differ. It is exactly
// "Detect is non-empty".
func HasChanges(previous, next *models.Snapshot) bool {
	return !Detect(previous, next).Empty()
}
