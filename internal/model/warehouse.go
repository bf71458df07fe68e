package model

import "time"

// Warehouse is the complete output of one batch. Sinks replace every table with these
// rows, so a reader never observes a mix of two runs.
type Warehouse struct {
	RunID        string
	BatchDate    time.Time
	Patients     []PatientDimRow
	Providers    []ProviderDimRow
	Procedures   []ProcedureDimRow
	Dates        []DateDimRow
	Transactions []TransactionFactRow
	Claims       []ClaimFactRow
}

// Counts returns the row count per table name.
func (w *Warehouse) Counts() map[string]int {
	return map[string]int{
		TableDimPatients:      len(w.Patients),
		TableDimProviders:     len(w.Providers),
		TableDimProcedures:    len(w.Procedures),
		TableDimDate:          len(w.Dates),
		TableFactTransactions: len(w.Transactions),
		TableFactClaims:       len(w.Claims),
	}
}

// TableNames lists the warehouse tables in load order: dimensions before facts.
func TableNames() []string {
	return []string{
		TableDimPatients,
		TableDimProviders,
		TableDimProcedures,
		TableDimDate,
		TableFactTransactions,
		TableFactClaims,
	}
}
