package canonicalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewColumnResolver(t *testing.T) {
	r := NewColumnResolver(map[string]string{
		"F_Name": "FirstName",
		"L_Name": "LastName",
		"":       "Ignored",
		"M_Name": " ",
	})

	assert.Equal(t, 2, r.AliasCount())
}

func TestColumnResolver_NilIsPassthrough(t *testing.T) {
	var r *ColumnResolver

	assert.Equal(t, 0, r.AliasCount())
	assert.Equal(t, "F_Name", r.Resolve("F_Name"))
}

func TestColumnResolver_Resolve(t *testing.T) {
	r := NewColumnResolver(map[string]string{"F_Name": "FirstName", "ID": "PatientID"})

	tests := []struct {
		input string
		want  string
	}{
		{input: "F_Name", want: "FirstName"},
		{input: "f_name", want: "FirstName"},
		{input: "id", want: "PatientID"},
		{input: "LastName", want: "LastName"},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.input))
		})
	}
}

func TestColumnResolver_Index(t *testing.T) {
	r := NewColumnResolver(map[string]string{"F_Name": "FirstName"})

	header := []string{"unified_patient_id", "F_Name", "last_name", "ADDRESS", "LastName"}
	wanted := []string{"unified_patient_id", "FirstName", "LastName", "Address", "DOB", "SSN"}

	positions, missing := r.Index(header, wanted)

	assert.Equal(t, map[string]int{
		"unified_patient_id": 0,
		"FirstName":          1,
		"LastName":           2,
		"Address":            3,
	}, positions)
	assert.Equal(t, []string{"DOB", "SSN"}, missing)
}

func TestColumnResolver_IndexWithoutAliases(t *testing.T) {
	positions, missing := NewColumnResolver(nil).Index([]string{"Key", "Name"}, []string{"key", "name"})

	assert.Equal(t, map[string]int{"key": 0, "name": 1}, positions)
	assert.Empty(t, missing)
}
