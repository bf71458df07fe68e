package dimensional

import (
	"github.com/MAHI-CHOWDARY/rcm-project/internal/canonicalization"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/scd"
)

// PatientIndex resolves a unified patient id to the surrogate key of its current version.
type PatientIndex struct {
	current map[string]int64
}

// NewPatientIndex indexes the current versions of the patient dimension. When a key has
// more than one current version the first one wins, matching the change detector.
func NewPatientIndex(records []scd.Record) *PatientIndex {
	idx := &PatientIndex{current: make(map[string]int64, len(records))}

	for _, r := range records {
		if !r.IsCurrent {
			continue
		}

		key := canonicalization.Text(r.NaturalKey)
		if _, dup := idx.current[key]; !dup {
			idx.current[key] = r.SurrogateKey
		}
	}

	return idx
}

// Lookup returns the current surrogate key for a unified patient id, or nil.
func (p *PatientIndex) Lookup(unifiedPatientID string) *int64 {
	if sk, ok := p.current[canonicalization.Text(unifiedPatientID)]; ok {
		return model.KeyPtr(sk)
	}

	return nil
}

// PatientTable renders patient_sk and unified_patient_id of every version for integrity
// checks.
func PatientTable(records []scd.Record) model.Table {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{model.FormatKey(model.KeyPtr(r.SurrogateKey)), r.NaturalKey}
	}

	return model.Table{
		Name:    model.TableDimPatients,
		Columns: []string{"patient_sk", model.ColumnUnifiedPatientID},
		Rows:    rows,
	}
}

// BuildTransactionFacts emits one fact row per transaction, in input order.
func BuildTransactionFacts(
	txns []model.Transaction,
	patients *PatientIndex,
	providers, procedures *KeyDimension,
	dates *DateDimension,
) []model.TransactionFactRow {
	facts := make([]model.TransactionFactRow, len(txns))

	for i, t := range txns {
		coverage := t.CoveragePercent.InexactFloat64()

		facts[i] = model.TransactionFactRow{
			TransactionID:   t.TransactionID,
			TransactionKey:  t.TransactionKey,
			PatientSK:       patients.Lookup(t.UnifiedPatientID),
			ProviderSK:      providers.Lookup(t.ProviderID),
			ProcedureSK:     procedures.Lookup(t.ProcedureCode),
			ServiceDateSK:   dates.Lookup(t.ServiceDate),
			ServiceDate:     t.ServiceDate,
			Amount:          model.DecimalFloat(t.Amount),
			AmountType:      t.AmountType,
			PaidAmount:      model.DecimalFloat(t.PaidAmount),
			CoveragePercent: &coverage,
			PaymentStatus:   t.PaymentStatus,
			ClaimID:         t.ClaimID,
			PayorID:         t.PayorID,
			VisitType:       t.VisitType,
		}
	}

	return facts
}

// BuildClaimFacts emits one fact row per claim with claim_sk 1..N in input order.
func BuildClaimFacts(claims []model.Claim, patients *PatientIndex, dates *DateDimension) []model.ClaimFactRow {
	facts := make([]model.ClaimFactRow, len(claims))

	for i, c := range claims {
		unified := c.UnifiedPatientID
		if unified == "" {
			unified = model.UnifiedPatientID(c.Source, c.PatientID)
		}

		facts[i] = model.ClaimFactRow{
			ClaimSK:          int64(i + 1),
			ClaimID:          c.ClaimID,
			TransactionID:    c.TransactionID,
			Source:           c.Source,
			PatientID:        c.PatientID,
			UnifiedPatientID: unified,
			PatientSK:        patients.Lookup(unified),
			ServiceDate:      c.ServiceDate,
			ServiceDateSK:    dates.Lookup(c.ServiceDate),
			PaidDate:         c.PaidDate,
			PaidDateSK:       dates.Lookup(c.PaidDate),
			ClaimAmount:      model.DecimalFloat(c.ClaimAmount),
			PaidAmount:       model.DecimalFloat(c.PaidAmount),
			ClaimStatus:      c.ClaimStatus,
			PayorID:          c.PayorID,
			PayorType:        c.PayorType,
		}
	}

	return facts
}

// TransactionFactTable renders the foreign keys of transaction facts for integrity checks.
func TransactionFactTable(facts []model.TransactionFactRow) model.Table {
	rows := make([][]string, len(facts))
	for i, f := range facts {
		rows[i] = []string{
			f.TransactionID,
			model.FormatKey(f.PatientSK),
			model.FormatKey(f.ProviderSK),
			model.FormatKey(f.ProcedureSK),
			model.FormatKey(f.ServiceDateSK),
		}
	}

	return model.Table{
		Name:    model.TableFactTransactions,
		Columns: []string{"TransactionID", "patient_sk", "provider_sk", "procedure_sk", "service_date_sk"},
		Rows:    rows,
	}
}

// ClaimFactTable renders the foreign keys of claim facts for integrity checks.
func ClaimFactTable(facts []model.ClaimFactRow) model.Table {
	rows := make([][]string, len(facts))
	for i, f := range facts {
		rows[i] = []string{
			f.ClaimID,
			model.FormatKey(f.PatientSK),
			model.FormatKey(f.ServiceDateSK),
			model.FormatKey(f.PaidDateSK),
		}
	}

	return model.Table{
		Name:    model.TableFactClaims,
		Columns: []string{"ClaimID", "patient_sk", "ServiceDate_sk", "PaidDate_sk"},
		Rows:    rows,
	}
}
