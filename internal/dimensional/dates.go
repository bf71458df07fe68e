package dimensional

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/canonicalization"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

// Transaction date columns usable for the date dimension.
const (
	ColumnVisitDate   = "VisitDate"
	ColumnServiceDate = "ServiceDate"
	ColumnPaidDate    = "PaidDate"
)

// ErrUnknownDateColumn is returned when a caller names a date column transactions lack.
var ErrUnknownDateColumn = errors.New("unknown transaction date column")

// DateDimension holds one row per distinct calendar day.
type DateDimension struct {
	Rows  []model.DateDimRow
	index map[time.Time]int64
}

// TransactionDates collects the non-null values of the named columns, column by column.
func TransactionDates(txns []model.Transaction, columns []string) ([]time.Time, error) {
	dates := make([]time.Time, 0, len(txns)*len(columns))

	for _, column := range columns {
		for _, t := range txns {
			var d *time.Time

			switch column {
			case ColumnVisitDate:
				d = t.VisitDate
			case ColumnServiceDate:
				d = t.ServiceDate
			case ColumnPaidDate:
				d = t.PaidDate
			default:
				return nil, fmt.Errorf("%w: %s", ErrUnknownDateColumn, column)
			}

			if d != nil {
				dates = append(dates, *d)
			}
		}
	}

	return dates, nil
}

// BuildDateDimension deduplicates dates by calendar day and derives calendar attributes.
func BuildDateDimension(dates []time.Time, order KeyOrder) *DateDimension {
	days := make([]time.Time, 0, len(dates))
	seen := make(map[time.Time]bool, len(dates))

	for _, d := range dates {
		day := canonicalization.TruncateDay(d)
		if seen[day] {
			continue
		}

		seen[day] = true
		days = append(days, day)
	}

	if order == OrderSorted {
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	}

	dim := &DateDimension{
		Rows:  make([]model.DateDimRow, len(days)),
		index: make(map[time.Time]int64, len(days)),
	}

	for i, day := range days {
		sk := int64(i + 1)

		dim.Rows[i] = model.DateDimRow{
			DateSK:    sk,
			Date:      day,
			Year:      int32(day.Year()),
			Month:     int32(day.Month()),
			Day:       int32(day.Day()),
			Quarter:   int32((day.Month()-1)/3 + 1),
			DayOfWeek: int32((day.Weekday() + 6) % 7),
		}
		dim.index[day] = sk
	}

	return dim
}

// Lookup returns the surrogate key of the calendar day of d, or nil when d is nil or
// the day is not in the dimension.
func (d *DateDimension) Lookup(date *time.Time) *int64 {
	if date == nil {
		return nil
	}

	if sk, ok := d.index[canonicalization.TruncateDay(*date)]; ok {
		return model.KeyPtr(sk)
	}

	return nil
}

// Len returns the number of distinct days.
func (d *DateDimension) Len() int {
	return len(d.Rows)
}

// Table renders date_sk and the ISO date for integrity checks.
func (d *DateDimension) Table() model.Table {
	rows := make([][]string, len(d.Rows))
	for i, r := range d.Rows {
		rows[i] = []string{model.FormatKey(model.KeyPtr(r.DateSK)), r.Date.Format(canonicalization.DateLayout)}
	}

	return model.Table{Name: model.TableDimDate, Columns: []string{"date_sk", "date"}, Rows: rows}
}
