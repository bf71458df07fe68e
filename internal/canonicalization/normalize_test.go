package canonicalization

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "trims and folds", input: "  Alice ", want: "alice"},
		{name: "address", input: "1 MAIN ST", want: "1 main st"},
		{name: "inner whitespace kept", input: "Mary  Ann", want: "mary  ann"},
		{name: "accented upper case", input: "ÉCOLE", want: "école"},
		{name: "tabs and newlines", input: "\tBob\n", want: "bob"},
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Text(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Text(got), "Text must be idempotent")
		})
	}
}

func TestDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "iso date", input: "1990-03-07", want: "1990-03-07"},
		{name: "padded iso date", input: " 1990-03-07 ", want: "1990-03-07"},
		{name: "rfc3339", input: "1990-03-07T10:15:00Z", want: "1990-03-07"},
		{name: "rfc3339 with offset keeps written day", input: "1990-03-07T23:30:00-05:00", want: "1990-03-07"},
		{name: "iso datetime without zone", input: "1990-03-07T10:15:00", want: "1990-03-07"},
		{name: "sql timestamp", input: "1990-03-07 00:00:00", want: "1990-03-07"},
		{name: "us zero padded", input: "03/07/1990", want: "1990-03-07"},
		{name: "us short", input: "3/7/1990", want: "1990-03-07"},
		{name: "slashed iso", input: "1990/03/07", want: "1990-03-07"},
		{name: "day month name year", input: "07-Mar-1990", want: "1990-03-07"},
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: "  ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Date(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := Date(got)
			require.NoError(t, err)
			assert.Equal(t, got, again, "Date must be idempotent")
		})
	}
}

func TestDate_Invalid(t *testing.T) {
	for _, input := range []string{"not a date", "1990-13-01", "31/31/1990", "19900307"} {
		t.Run(input, func(t *testing.T) {
			_, err := Date(input)
			require.ErrorIs(t, err, ErrInvalidDate)
			assert.Contains(t, err.Error(), input)
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-02-29T18:45:00+09:00")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), got)
}

func TestTruncateDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	in := time.Date(2024, time.June, 1, 22, 30, 0, 0, loc)

	assert.Equal(t, time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC), TruncateDay(in))
}

func TestColumnName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "FirstName", want: "firstname"},
		{input: "first_name", want: "firstname"},
		{input: "FIRST NAME", want: "firstname"},
		{input: " first-name ", want: "firstname"},
		{input: "unified.patient_id", want: "unifiedpatientid"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ColumnName(tt.input))
		})
	}
}
