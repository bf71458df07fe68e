// Package cleansing standardizes extracted hospital records before they are versioned
// and modeled, and flags rows that break business rules.
//
// Cleansing never drops a transaction or claim: problems are reported as findings and
// the row flows on with the offending value left null.
package cleansing

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Payment statuses derived from billed and paid amounts.
const (
	StatusPending = "Pending"
	StatusDenied  = "Denied"
	StatusPartial = "Partial"
	StatusPaid    = "Paid"
)

const phoneDigits = 10

// TitleCase trims a personal name and upper-cases the first letter of each word.
func TitleCase(name string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(name))
}

// FormatPhone renders the last ten digits of a phone number as +1-XXX-XXX-XXXX.
// Numbers with fewer than ten digits yield "".
func FormatPhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}

		return -1
	}, phone)

	if len(digits) < phoneDigits {
		return ""
	}

	d := digits[len(digits)-phoneDigits:]

	return "+1-" + d[0:3] + "-" + d[3:6] + "-" + d[6:]
}

// ProcedureCode trims and upper-cases a procedure code.
func ProcedureCode(code string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}

// CoveragePercent returns paid/amount rounded to two places, or zero when either amount
// is missing or nothing was billed.
func CoveragePercent(amount, paid decimal.NullDecimal) decimal.Decimal {
	if !amount.Valid || !paid.Valid || amount.Decimal.IsZero() {
		return decimal.Zero
	}

	return paid.Decimal.DivRound(amount.Decimal, 2) //nolint:mnd // two decimal places
}

// PaymentStatus classifies a transaction by how much of it was paid.
func PaymentStatus(amount, paid decimal.NullDecimal) string {
	switch {
	case !paid.Valid:
		return StatusPending
	case paid.Decimal.IsZero():
		return StatusDenied
	case amount.Valid && paid.Decimal.LessThan(amount.Decimal):
		return StatusPartial
	default:
		return StatusPaid
	}
}
