package cleansing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Mary Ann", TitleCase("  mARY ann "))
	assert.Equal(t, "", TitleCase(""))
}

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "(555) 123-4567", want: "+1-555-123-4567"},
		{input: "1-555-123-4567", want: "+1-555-123-4567"},
		{input: "+1 555.123.4567", want: "+1-555-123-4567"},
		{input: "123-4567", want: ""},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPhone(tt.input))
		})
	}
}

func TestProcedureCode(t *testing.T) {
	assert.Equal(t, "J3490", ProcedureCode(" j3490 "))
}

func TestCoveragePercent(t *testing.T) {
	tests := []struct {
		name   string
		amount decimal.NullDecimal
		paid   decimal.NullDecimal
		want   string
	}{
		{name: "partial", amount: money("150"), paid: money("50"), want: "0.33"},
		{name: "full", amount: money("80"), paid: money("80"), want: "1"},
		{name: "unpaid", amount: money("80"), paid: decimal.NullDecimal{}, want: "0"},
		{name: "nothing billed", amount: money("0"), paid: money("10"), want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, decimal.RequireFromString(tt.want).Equal(CoveragePercent(tt.amount, tt.paid)))
		})
	}
}

func TestPaymentStatus(t *testing.T) {
	tests := []struct {
		name   string
		amount decimal.NullDecimal
		paid   decimal.NullDecimal
		want   string
	}{
		{name: "no payment yet", amount: money("100"), paid: decimal.NullDecimal{}, want: StatusPending},
		{name: "zero paid", amount: money("100"), paid: money("0"), want: StatusDenied},
		{name: "under paid", amount: money("100"), paid: money("40"), want: StatusPartial},
		{name: "paid in full", amount: money("100"), paid: money("100"), want: StatusPaid},
		{name: "over paid", amount: money("100"), paid: money("120"), want: StatusPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PaymentStatus(tt.amount, tt.paid))
		})
	}
}
