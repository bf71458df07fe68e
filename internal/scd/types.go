// Package scd maintains a Slowly Changing Dimension Type 2 table.
//
// A batch of incoming records is reconciled against the full existing snapshot:
//   - New natural keys are inserted as version 1
//   - Changed keys expire their current version and gain a new one
//   - Unchanged keys are carried forward untouched
//
// Every version gets its own surrogate key, drawn from an allocator seeded with the
// largest key already present. Reconciliation is a pure function of the snapshot, the
// batch and the batch date; the caller decides when and where the result is persisted.
package scd

import (
	"errors"
	"fmt"
	"time"
)

// FarFuture is the expiry date of the current version of an entity.
var FarFuture = time.Date(2099, time.December, 31, 0, 0, 0, 0, time.UTC)

// ErrSchemaMismatch is returned when the incoming batch lacks the key or a tracked column.
var ErrSchemaMismatch = errors.New("incoming batch is missing required columns")

// Outcome is the change detector's verdict for one incoming record.
type Outcome int

// Change detection outcomes.
const (
	OutcomeNew Outcome = iota + 1
	OutcomeUnchanged
	OutcomeChanged
)

// String returns the outcome name used in logs and run reports.
func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeChanged:
		return "changed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// WarningKind classifies data-quality findings raised while reconciling.
type WarningKind string

// Warning kinds.
const (
	// WarnDuplicateCurrent marks a snapshot with more than one current version of a key.
	WarnDuplicateCurrent WarningKind = "duplicate_current_record"
	// WarnRejectedRow marks an incoming row that could not be normalized.
	WarnRejectedRow WarningKind = "rejected_row"
	// WarnRepeatedChange marks a key that changed more than once inside one batch.
	WarnRepeatedChange WarningKind = "repeated_change"
	// WarnRepairedSnapshot marks snapshot rows whose SCD metadata was filled with defaults.
	WarnRepairedSnapshot WarningKind = "repaired_snapshot"
	// WarnUnindexedSnapshotRow marks a snapshot row without a usable natural key.
	WarnUnindexedSnapshotRow WarningKind = "unindexed_snapshot_row"
)

type (
	// Record is one historized version of an entity.
	//
	// NaturalKey and Attributes keep the values as received so they can be persisted
	// unchanged; comparisons always go through the normalizer.
	Record struct {
		SurrogateKey  int64
		NaturalKey    string
		Attributes    map[string]string
		Passthrough   map[string]string
		EffectiveDate time.Time
		ExpiryDate    time.Time
		IsCurrent     bool
		Version       int
		AttrsHash     string
	}

	// SnapshotRow is a persisted dimension row as read back from storage. Nil metadata
	// means the column was absent or null and gets a default during Repair.
	SnapshotRow struct {
		NaturalKey    string
		Attributes    map[string]string
		Passthrough   map[string]string
		SurrogateKey  *int64
		EffectiveDate *time.Time
		ExpiryDate    *time.Time
		IsCurrent     *bool
		Version       *int
	}

	// Decision records the outcome for one accepted incoming row.
	Decision struct {
		Row          int
		NaturalKey   string
		Outcome      Outcome
		SurrogateKey int64
		Version      int
	}

	// Warning is a data-quality finding. Row is the incoming row index, or -1 for
	// findings about the snapshot.
	Warning struct {
		Kind       WarningKind
		NaturalKey string
		Row        int
		Message    string
	}

	// Stats counts outcomes of one reconciliation.
	Stats struct {
		Incoming  int
		New       int
		Changed   int
		Unchanged int
		Rejected  int
		Expired   int
	}

	// Result is the output of one reconciliation. Records holds the copied snapshot with
	// expiries applied, followed by the minted versions in incoming order.
	Result struct {
		Records   []Record
		Decisions []Decision
		Stats     Stats
		Warnings  []Warning
	}
)

// String renders a warning for logs.
func (w Warning) String() string {
	if w.NaturalKey == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}

	return fmt.Sprintf("%s [%s]: %s", w.Kind, w.NaturalKey, w.Message)
}

// Current returns the current versions of the result, in record order.
func (r *Result) Current() []Record {
	current := make([]Record, 0, len(r.Records))

	for _, rec := range r.Records {
		if rec.IsCurrent {
			current = append(current, rec)
		}
	}

	return current
}

// Minted returns the versions created by this reconciliation.
func (r *Result) Minted() int {
	return r.Stats.New + r.Stats.Changed
}

func (r Record) clone() Record {
	r.Attributes = cloneMap(r.Attributes)
	r.Passthrough = cloneMap(r.Passthrough)

	return r
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}

	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
