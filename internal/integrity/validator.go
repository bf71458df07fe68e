// Package integrity checks that fact foreign keys resolve to dimension keys.
//
// The validator only observes: it never fails and never blocks persistence. Callers that
// want a stricter policy turn the report into an error with Report.Err.
package integrity

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

// ErrUnresolvedReference is wrapped by Report.Err when any fact reference is unresolved.
var ErrUnresolvedReference = errors.New("unresolved fact reference")

type (
	// Pair names one foreign key of a fact table and the dimension column it references.
	Pair struct {
		FactColumn      string
		Dimension       string
		DimensionColumn string
	}

	// Check is the outcome of one pair. Skipped checks name the absent column in Reason.
	Check struct {
		Fact            string
		FactColumn      string
		Dimension       string
		DimensionColumn string
		Checked         int
		Unresolved      int
		Skipped         bool
		Reason          string
	}

	// Report collects checks across fact tables.
	Report struct {
		Checks []Check
	}

	// Validator runs referential integrity checks.
	Validator struct {
		logger *slog.Logger
	}
)

// NewValidator returns a validator logging to logger (slog.Default when nil).
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Validator{logger: logger}
}

// Validate counts, for each pair, the fact rows whose key (compared as text) is absent
// from the dimension column. An empty cell is a null reference and counts as unresolved.
// A pair whose fact column, dimension or dimension column is absent becomes a skipped check.
func (v *Validator) Validate(fact model.Table, dims map[string]model.Table, pairs []Pair) *Report {
	report := &Report{Checks: make([]Check, 0, len(pairs))}

	for _, p := range pairs {
		check := Check{
			Fact:            fact.Name,
			FactColumn:      p.FactColumn,
			Dimension:       p.Dimension,
			DimensionColumn: p.DimensionColumn,
		}

		dim, ok := dims[p.Dimension]

		switch {
		case !fact.HasColumn(p.FactColumn):
			check.Skipped = true
			check.Reason = fmt.Sprintf("column %s not found in %s", p.FactColumn, fact.Name)
		case !ok:
			check.Skipped = true
			check.Reason = fmt.Sprintf("dimension %s not provided", p.Dimension)
		case !dim.HasColumn(p.DimensionColumn):
			check.Skipped = true
			check.Reason = fmt.Sprintf("column %s not found in %s", p.DimensionColumn, p.Dimension)
		default:
			keys := make(map[string]struct{}, dim.Len())
			for _, k := range dim.Column(p.DimensionColumn) {
				keys[k] = struct{}{}
			}

			for _, ref := range fact.Column(p.FactColumn) {
				check.Checked++

				if _, found := keys[ref]; !found {
					check.Unresolved++
				}
			}
		}

		v.log(check)
		report.Checks = append(report.Checks, check)
	}

	return report
}

func (v *Validator) log(c Check) {
	attrs := []any{
		slog.String("fact", c.Fact),
		slog.String("fact_column", c.FactColumn),
		slog.String("dimension", c.Dimension),
		slog.String("dimension_column", c.DimensionColumn),
	}

	switch {
	case c.Skipped:
		v.logger.Warn("integrity check skipped", append(attrs, slog.String("reason", c.Reason))...)
	case c.Unresolved > 0:
		v.logger.Warn("unresolved fact references",
			append(attrs, slog.Int("checked", c.Checked), slog.Int("unresolved", c.Unresolved))...)
	default:
		v.logger.Info("integrity check passed", append(attrs, slog.Int("checked", c.Checked))...)
	}
}

// Key identifies a check as fact.column->dimension.column.
func (c Check) Key() string {
	return fmt.Sprintf("%s.%s->%s.%s", c.Fact, c.FactColumn, c.Dimension, c.DimensionColumn)
}

// Merge appends the checks of other.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}

	r.Checks = append(r.Checks, other.Checks...)
}

// Unresolved returns the total number of unresolved references.
func (r *Report) Unresolved() int {
	total := 0
	for _, c := range r.Checks {
		total += c.Unresolved
	}

	return total
}

// Counts maps each check key to its unresolved count. Skipped checks are omitted.
func (r *Report) Counts() map[string]int {
	counts := make(map[string]int, len(r.Checks))

	for _, c := range r.Checks {
		if !c.Skipped {
			counts[c.Key()] = c.Unresolved
		}
	}

	return counts
}

// Err returns nil when every reference resolved, otherwise an error wrapping
// ErrUnresolvedReference that lists the failing checks.
func (r *Report) Err() error {
	var failing []string

	for _, c := range r.Checks {
		if c.Unresolved > 0 {
			failing = append(failing, fmt.Sprintf("%s=%d", c.Key(), c.Unresolved))
		}
	}

	if len(failing) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrUnresolvedReference, strings.Join(failing, ", "))
}
