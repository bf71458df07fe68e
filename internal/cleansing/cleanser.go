package cleansing

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/canonicalization"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

// patientColumns is the common patient layout every source is mapped onto.
var patientColumns = []string{
	model.ColumnPatientID,
	"FirstName", "LastName", "MiddleName", "SSN", "PhoneNumber", "Gender", "DOB", "Address",
	"ModifiedDate",
}

var nameColumns = map[string]bool{"FirstName": true, "LastName": true, "MiddleName": true}

type (
	// Cleanser standardizes staged records.
	Cleanser struct {
		aliases map[string]*canonicalization.ColumnResolver
		newKey  func() string
		logger  *slog.Logger
	}

	// Option configures a Cleanser.
	Option func(*Cleanser)
)

// WithColumnAliases sets per-source column aliases ({source: {column: canonical}}).
func WithColumnAliases(aliases map[string]map[string]string) Option {
	return func(c *Cleanser) {
		for source, m := range aliases {
			c.aliases[source] = canonicalization.NewColumnResolver(m)
		}
	}
}

// WithKeyFunc replaces the transaction key generator (UUID v4 by default).
func WithKeyFunc(fn func() string) Option {
	return func(c *Cleanser) {
		c.newKey = fn
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cleanser) {
		c.logger = logger
	}
}

// NewCleanser returns a Cleanser.
func NewCleanser(opts ...Option) *Cleanser {
	c := &Cleanser{
		aliases: make(map[string]*canonicalization.ColumnResolver),
		newKey:  uuid.NewString,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Patients maps each source's patient extract onto the common layout and unifies them.
//
// The output carries unified_patient_id (source + "_" + PatientID), source, and every
// common column present in all sources. A column some source lacks is dropped from the
// output with a finding, so versioning can reject the batch if that column is tracked.
// Names are title-cased, phones formatted, and parseable dates of birth rendered as
// YYYY-MM-DD. The first row of a unified id wins; later ones are reported as duplicates.
func (c *Cleanser) Patients(sources []model.Table) (model.Table, []Finding) {
	var findings []Finding

	present := make(map[string]int, len(patientColumns))
	positions := make([]map[string]int, len(sources))

	for i, src := range sources {
		resolver := c.aliases[src.Name]
		if resolver == nil {
			resolver = canonicalization.NewColumnResolver(nil)
		}

		pos, _ := resolver.Index(src.Columns, patientColumns)
		positions[i] = pos

		for col := range pos {
			present[col]++
		}
	}

	columns := []string{model.ColumnUnifiedPatientID, model.ColumnSource}
	kept := make([]string, 0, len(patientColumns))

	for _, col := range patientColumns {
		if present[col] == len(sources) && len(sources) > 0 {
			kept = append(kept, col)

			continue
		}

		if present[col] > 0 {
			findings = append(findings, Finding{
				Rule:    RuleDroppedColumn,
				Table:   "patients",
				Row:     -1,
				Key:     col,
				Message: fmt.Sprintf("column present in %d of %d sources", present[col], len(sources)),
			})
		}
	}

	columns = append(columns, kept...)

	out := model.Table{Name: "patients", Columns: columns}
	seen := make(map[string]bool)

	for i, src := range sources {
		pos := positions[i]
		idIdx, hasID := pos[model.ColumnPatientID]

		for rowIdx, row := range src.Rows {
			patientID := ""
			if hasID && idIdx < len(row) {
				patientID = strings.TrimSpace(row[idIdx])
			}

			if patientID == "" {
				findings = append(findings, Finding{
					Rule: RuleMissingPatientID, Table: src.Name, Row: rowIdx, Message: "patient row has no PatientID",
				})

				continue
			}

			unified := model.UnifiedPatientID(src.Name, patientID)
			if seen[unified] {
				findings = append(findings, Finding{
					Rule: RuleDuplicatePatient, Table: src.Name, Row: rowIdx, Key: unified,
					Message: "later row for the same patient ignored",
				})

				continue
			}

			seen[unified] = true

			record := make([]string, 0, len(columns))
			record = append(record, unified, src.Name)

			for _, col := range kept {
				value := ""
				if p := pos[col]; p < len(row) {
					value = row[p]
				}

				record = append(record, cleanPatientValue(col, value))
			}

			out.Rows = append(out.Rows, record)
		}
	}

	c.logger.Info("cleansed patients",
		slog.Int("sources", len(sources)),
		slog.Int("patients", out.Len()),
		slog.Int("findings", len(findings)))

	return out, findings
}

func cleanPatientValue(column, value string) string {
	switch {
	case nameColumns[column]:
		return TitleCase(value)
	case column == "PhoneNumber":
		return FormatPhone(value)
	case column == "DOB":
		if iso, err := canonicalization.Date(value); err == nil {
			return iso
		}

		return value
	default:
		return strings.TrimSpace(value)
	}
}

// Transactions cleanses staged transactions. Every input row yields one output row.
func (c *Cleanser) Transactions(staged []model.StagedTransaction) ([]model.Transaction, []Finding) {
	var findings []Finding

	parse := func(row int, id, column, value string) *time.Time {
		if strings.TrimSpace(value) == "" {
			return nil
		}

		d, err := canonicalization.ParseDate(value)
		if err != nil {
			findings = append(findings, Finding{
				Rule: RuleInvalidDate, Table: model.TableFactTransactions, Row: row, Key: id,
				Message: fmt.Sprintf("%s: %v", column, err),
			})

			return nil
		}

		return &d
	}

	txns := make([]model.Transaction, len(staged))

	for i, s := range staged {
		amount := model.FloatDecimal(s.Amount)
		paid := model.FloatDecimal(s.PaidAmount)
		id := strings.TrimSpace(s.TransactionID)

		txns[i] = model.Transaction{
			TransactionID:    id,
			TransactionKey:   c.newKey(),
			Source:           s.Source,
			PatientID:        strings.TrimSpace(s.PatientID),
			UnifiedPatientID: model.UnifiedPatientID(s.Source, strings.TrimSpace(s.PatientID)),
			ProviderID:       strings.TrimSpace(s.ProviderID),
			ProcedureCode:    ProcedureCode(s.ProcedureCode),
			VisitDate:        parse(i, id, "VisitDate", s.VisitDate),
			ServiceDate:      parse(i, id, "ServiceDate", s.ServiceDate),
			PaidDate:         parse(i, id, "PaidDate", s.PaidDate),
			VisitType:        strings.TrimSpace(s.VisitType),
			Amount:           amount,
			AmountType:       strings.TrimSpace(s.AmountType),
			PaidAmount:       paid,
			CoveragePercent:  CoveragePercent(amount, paid),
			PaymentStatus:    PaymentStatus(amount, paid),
			ClaimID:          strings.TrimSpace(s.ClaimID),
			PayorID:          strings.TrimSpace(s.PayorID),
		}
	}

	findings = append(findings, CheckTransactions(txns)...)

	c.logger.Info("cleansed transactions",
		slog.Int("transactions", len(txns)),
		slog.Int("findings", len(findings)))

	return txns, findings
}

// CheckTransactions applies the transaction business rules: the billed amount must be
// positive and the service date must be present and valid.
func CheckTransactions(txns []model.Transaction) []Finding {
	var findings []Finding

	for i, t := range txns {
		if t.Amount.Valid && !t.Amount.Decimal.IsPositive() {
			findings = append(findings, Finding{
				Rule: RuleInvalidAmount, Table: model.TableFactTransactions, Row: i, Key: t.TransactionID,
				Message: "amount " + t.Amount.Decimal.String() + " is not positive",
			})
		}

		if t.ServiceDate == nil {
			findings = append(findings, Finding{
				Rule: RuleInvalidServiceDate, Table: model.TableFactTransactions, Row: i, Key: t.TransactionID,
				Message: "service date missing or unparseable",
			})
		}
	}

	return findings
}

// Claims cleanses staged claims. Rows without a PatientID cannot be linked to a patient
// and are reported; they are still emitted so claim counts are preserved.
func (c *Cleanser) Claims(staged []model.StagedClaim) ([]model.Claim, []Finding) {
	var findings []Finding

	parse := func(row int, id, column, value string) *time.Time {
		if strings.TrimSpace(value) == "" {
			return nil
		}

		d, err := canonicalization.ParseDate(value)
		if err != nil {
			findings = append(findings, Finding{
				Rule: RuleInvalidDate, Table: model.TableFactClaims, Row: row, Key: id,
				Message: fmt.Sprintf("%s: %v", column, err),
			})

			return nil
		}

		return &d
	}

	claims := make([]model.Claim, len(staged))

	for i, s := range staged {
		id := strings.TrimSpace(s.ClaimID)
		patientID := strings.TrimSpace(s.PatientID)

		if patientID == "" {
			findings = append(findings, Finding{
				Rule: RuleMissingPatientID, Table: model.TableFactClaims, Row: i, Key: id,
				Message: "claim has no PatientID",
			})
		}

		claims[i] = model.Claim{
			ClaimID:          id,
			TransactionID:    strings.TrimSpace(s.TransactionID),
			Source:           s.Source,
			PatientID:        patientID,
			UnifiedPatientID: model.UnifiedPatientID(s.Source, patientID),
			ServiceDate:      parse(i, id, "ServiceDate", s.ServiceDate),
			PaidDate:         parse(i, id, "PaidDate", s.PaidDate),
			ClaimAmount:      model.FloatDecimal(s.ClaimAmount),
			PaidAmount:       model.FloatDecimal(s.PaidAmount),
			ClaimStatus:      strings.TrimSpace(s.ClaimStatus),
			PayorID:          strings.TrimSpace(s.PayorID),
			PayorType:        strings.TrimSpace(s.PayorType),
		}
	}

	c.logger.Info("cleansed claims",
		slog.Int("claims", len(claims)),
		slog.Int("findings", len(findings)))

	return claims, findings
}
