// Package dimensional projects cleansed transactions and claims into a star schema.
//
// Provider, procedure and date dimensions get dense 1..N surrogate keys. Facts resolve
// their natural references to those keys; a reference that cannot be resolved leaves a
// nil key on the fact row instead of dropping the row.
package dimensional

import (
	"errors"
	"fmt"
	"sort"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

// KeyOrder selects how surrogate keys are assigned to the distinct values of a dimension.
type KeyOrder string

const (
	// OrderFirstSeen numbers values in the order they first appear in the input. Keys are
	// only stable across runs when the input order is.
	OrderFirstSeen KeyOrder = "first_seen"
	// OrderSorted numbers values in ascending order, so the same value set always gets
	// the same keys.
	OrderSorted KeyOrder = "sorted"
)

// ErrUnknownKeyOrder is returned for a key order other than first_seen or sorted.
var ErrUnknownKeyOrder = errors.New("unknown dimension key order")

// ParseKeyOrder validates a configured key order. An empty value means OrderFirstSeen.
func ParseKeyOrder(s string) (KeyOrder, error) {
	switch KeyOrder(s) {
	case "", OrderFirstSeen:
		return OrderFirstSeen, nil
	case OrderSorted:
		return OrderSorted, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKeyOrder, s)
	}
}

// KeyDimension is a non-historized dimension over one natural key column.
type KeyDimension struct {
	Name   string
	Values []string
	index  map[string]int64
}

// BuildKeyDimension assigns keys 1..N to the distinct non-empty values. Empty values are
// not members of the dimension, so facts carrying them stay unresolved.
func BuildKeyDimension(name string, values []string, order KeyOrder) *KeyDimension {
	distinct := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))

	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}

		seen[v] = true
		distinct = append(distinct, v)
	}

	if order == OrderSorted {
		sort.Strings(distinct)
	}

	index := make(map[string]int64, len(distinct))
	for i, v := range distinct {
		index[v] = int64(i + 1)
	}

	return &KeyDimension{Name: name, Values: distinct, index: index}
}

// Lookup returns the surrogate key of value, or nil when value is not a member.
func (d *KeyDimension) Lookup(value string) *int64 {
	if key, ok := d.index[value]; ok {
		return model.KeyPtr(key)
	}

	return nil
}

// Len returns the number of members.
func (d *KeyDimension) Len() int {
	return len(d.Values)
}

// Table renders the dimension with the given surrogate and natural key column names.
func (d *KeyDimension) Table(skColumn, keyColumn string) model.Table {
	rows := make([][]string, len(d.Values))
	for i, v := range d.Values {
		rows[i] = []string{model.FormatKey(model.KeyPtr(int64(i + 1))), v}
	}

	return model.Table{Name: d.Name, Columns: []string{skColumn, keyColumn}, Rows: rows}
}

// Providers builds dim_providers from the ProviderID of each transaction.
func Providers(txns []model.Transaction, order KeyOrder) *KeyDimension {
	values := make([]string, len(txns))
	for i, t := range txns {
		values[i] = t.ProviderID
	}

	return BuildKeyDimension(model.TableDimProviders, values, order)
}

// Procedures builds dim_procedures from the ProcedureCode of each transaction.
func Procedures(txns []model.Transaction, order KeyOrder) *KeyDimension {
	values := make([]string, len(txns))
	for i, t := range txns {
		values[i] = t.ProcedureCode
	}

	return BuildKeyDimension(model.TableDimProcedures, values, order)
}

// ProviderRows converts a provider dimension into its persisted rows.
func ProviderRows(d *KeyDimension) []model.ProviderDimRow {
	rows := make([]model.ProviderDimRow, len(d.Values))
	for i, v := range d.Values {
		rows[i] = model.ProviderDimRow{ProviderSK: int64(i + 1), ProviderID: v}
	}

	return rows
}

// ProcedureRows converts a procedure dimension into its persisted rows.
func ProcedureRows(d *KeyDimension) []model.ProcedureDimRow {
	rows := make([]model.ProcedureDimRow, len(d.Values))
	for i, v := range d.Values {
		rows[i] = model.ProcedureDimRow{ProcedureSK: int64(i + 1), ProcedureCode: v}
	}

	return rows
}
