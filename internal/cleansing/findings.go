package cleansing

import "fmt"

// Business rules and cleansing checks that produce findings.
const (
	RuleInvalidAmount      = "invalid_amount"
	RuleInvalidServiceDate = "invalid_service_date"
	RuleInvalidDate        = "invalid_date"
	RuleDuplicatePatient   = "duplicate_patient"
	RuleMissingPatientID   = "missing_patient_id"
	RuleDroppedColumn      = "dropped_column"
)

// Finding is one data-quality observation. Row is the index within Table, or -1 when the
// finding concerns the whole table.
type Finding struct {
	Rule    string
	Table   string
	Row     int
	Key     string
	Message string
}

// String renders the finding for logs.
func (f Finding) String() string {
	return fmt.Sprintf("%s %s[%d] %s: %s", f.Rule, f.Table, f.Row, f.Key, f.Message)
}

// CountByRule tallies findings per rule.
func CountByRule(findings []Finding) map[string]int {
	counts := make(map[string]int)
	for _, f := range findings {
		counts[f.Rule]++
	}

	return counts
}
