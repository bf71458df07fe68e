// Package canonicalization provides the canonical forms used to compare patient records
// coming from different hospital systems.
//
// Two hospitals rarely agree on casing, padding or date notation for the same patient.
// Every value that takes part in change detection goes through exactly one policy:
//   - Text: surrounding whitespace removed, Unicode case folded
//   - Dates: parsed from any accepted layout, rendered as YYYY-MM-DD
//
// The same functions are applied to snapshot rows and incoming rows, so a comparison
// never depends on which side a value came from.
package canonicalization

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// DateLayout is the canonical rendering of a date value.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a date-typed value matches none of the accepted layouts.
var ErrInvalidDate = errors.New("invalid date value")

// dateLayouts lists the notations seen in hospital extracts, most specific first.
var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"02-Jan-2006",
}

// Text returns the canonical comparable form of a text value.
//
// Examples:
//   - Text("  Alice ") → "alice"
//   - Text("1 MAIN ST") → "1 main st"
//   - Text("ÉCOLE") → "école"
func Text(value string) string {
	return cases.Fold().String(strings.TrimSpace(value))
}

// ParseDate parses a date-typed value in any accepted layout and returns midnight UTC of
// the calendar day as written. Time of day and zone offset are discarded, so
// "1990-03-07T23:30:00-05:00" is still March 7th.
func ParseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

// Date returns the canonical comparable form of a date-typed value.
// An empty (or whitespace-only) value is canonically empty.
func Date(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}

	parsed, err := ParseDate(value)
	if err != nil {
		return "", err
	}

	return parsed.Format(DateLayout), nil
}

// TruncateDay returns midnight UTC of the calendar day of t (after conversion to UTC).
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()

	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ColumnName returns the canonical identity of a column header so that "first_name",
// "FirstName" and "FIRST NAME" all address the same attribute.
func ColumnName(name string) string {
	folded := Text(name)

	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.':
			return -1
		default:
			return r
		}
	}, folded)
}
