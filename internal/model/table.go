// Package model holds the tabular and row types shared by readers, builders and sinks.
package model

// Table is an untyped tabular record set: one header row and string cells.
// An empty cell stands for a missing (null) value.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of the column named exactly name, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}

	return -1
}

// HasColumn reports whether the table carries a column named exactly name.
func (t Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Column returns every value of the named column, or nil when the column is absent.
// Short rows yield "" for the missing cell.
func (t Table) Column(name string) []string {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}

	values := make([]string, len(t.Rows))

	for i, row := range t.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}

	return values
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}
