package dimensional

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/integrity"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/scd"
)

func patientRecords() []scd.Record {
	d := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	return []scd.Record{
		{SurrogateKey: 1, NaturalKey: "hospital_a_1", IsCurrent: false, Version: 1, EffectiveDate: d, ExpiryDate: d},
		{SurrogateKey: 2, NaturalKey: "hospital_a_2", IsCurrent: true, Version: 1, EffectiveDate: d, ExpiryDate: scd.FarFuture},
		{SurrogateKey: 3, NaturalKey: "hospital_a_1", IsCurrent: true, Version: 2, EffectiveDate: d, ExpiryDate: scd.FarFuture},
	}
}

func TestPatientIndex(t *testing.T) {
	idx := NewPatientIndex(patientRecords())

	require.NotNil(t, idx.Lookup("hospital_a_1"))
	assert.Equal(t, int64(3), *idx.Lookup("hospital_a_1"), "facts resolve to the current version")
	assert.Equal(t, int64(3), *idx.Lookup(" HOSPITAL_A_1 "))
	assert.Nil(t, idx.Lookup("hospital_b_1"))
}

func TestBuildTransactionFacts(t *testing.T) {
	txns := []model.Transaction{
		{
			TransactionID:    "T1",
			TransactionKey:   "key-1",
			UnifiedPatientID: "hospital_a_1",
			ProviderID:       "PR1",
			ProcedureCode:    "99213",
			ServiceDate:      date(2024, 2, 1),
			Amount:           decimal.NewNullDecimal(decimal.RequireFromString("150.00")),
			PaidAmount:       decimal.NewNullDecimal(decimal.RequireFromString("75.50")),
			CoveragePercent:  decimal.RequireFromString("0.5"),
			PaymentStatus:    "Partial",
			AmountType:       "Copay",
			ClaimID:          "C1",
			PayorID:          "PY1",
			VisitType:        "Outpatient",
		},
		{
			TransactionID:    "T2",
			UnifiedPatientID: "hospital_b_9",
			ProviderID:       "PR2",
			ProcedureCode:    "",
			ServiceDate:      nil,
		},
	}

	providers := Providers(txns, OrderFirstSeen)
	procedures := Procedures(txns, OrderFirstSeen)

	dates, err := TransactionDates(txns, []string{ColumnServiceDate})
	require.NoError(t, err)

	facts := BuildTransactionFacts(txns, NewPatientIndex(patientRecords()), providers, procedures, BuildDateDimension(dates, OrderFirstSeen))

	require.Len(t, facts, 2, "unmatched rows are kept")

	first := facts[0]
	assert.Equal(t, "T1", first.TransactionID)
	assert.Equal(t, int64(3), *first.PatientSK)
	assert.Equal(t, int64(1), *first.ProviderSK)
	assert.Equal(t, int64(1), *first.ProcedureSK)
	assert.Equal(t, int64(1), *first.ServiceDateSK)
	assert.Equal(t, date(2024, 2, 1), first.ServiceDate)
	assert.InDelta(t, 150.0, *first.Amount, 1e-9)
	assert.InDelta(t, 75.5, *first.PaidAmount, 1e-9)
	assert.InDelta(t, 0.5, *first.CoveragePercent, 1e-9)
	assert.Equal(t, "Partial", first.PaymentStatus)

	second := facts[1]
	assert.Nil(t, second.PatientSK)
	assert.Equal(t, int64(2), *second.ProviderSK)
	assert.Nil(t, second.ProcedureSK)
	assert.Nil(t, second.ServiceDateSK)
	assert.Nil(t, second.Amount)
}

func TestBuildClaimFacts(t *testing.T) {
	claims := []model.Claim{
		{ClaimID: "C1", Source: "hospital_a", PatientID: "1", ServiceDate: date(2024, 2, 1), PaidDate: date(2024, 3, 1),
			ClaimAmount: decimal.NewNullDecimal(decimal.NewFromInt(200))},
		{ClaimID: "C2", Source: "hospital_b", PatientID: "4", ServiceDate: date(2024, 2, 1)},
	}

	dates := BuildDateDimension([]time.Time{*date(2024, 2, 1)}, OrderFirstSeen)
	facts := BuildClaimFacts(claims, NewPatientIndex(patientRecords()), dates)

	require.Len(t, facts, 2)

	assert.Equal(t, int64(1), facts[0].ClaimSK)
	assert.Equal(t, "hospital_a_1", facts[0].UnifiedPatientID)
	assert.Equal(t, int64(3), *facts[0].PatientSK)
	assert.Equal(t, int64(1), *facts[0].ServiceDateSK)
	assert.Nil(t, facts[0].PaidDateSK, "paid date not in the date dimension")
	assert.InDelta(t, 200.0, *facts[0].ClaimAmount, 1e-9)

	assert.Equal(t, int64(2), facts[1].ClaimSK)
	assert.Equal(t, "hospital_b_4", facts[1].UnifiedPatientID)
	assert.Nil(t, facts[1].PatientSK)
}

func TestUnresolvedProcedureIsReportedAndKept(t *testing.T) {
	procedures := BuildKeyDimension(model.TableDimProcedures, []string{"99213"}, OrderFirstSeen)
	providers := BuildKeyDimension(model.TableDimProviders, []string{"PR1"}, OrderFirstSeen)
	dates := BuildDateDimension([]time.Time{*date(2024, 2, 1)}, OrderFirstSeen)

	txns := []model.Transaction{
		{TransactionID: "T1", UnifiedPatientID: "hospital_a_1", ProviderID: "PR1", ProcedureCode: "99213", ServiceDate: date(2024, 2, 1)},
		{TransactionID: "T2", UnifiedPatientID: "hospital_a_1", ProviderID: "PR1", ProcedureCode: "J3490", ServiceDate: date(2024, 2, 1)},
	}

	facts := BuildTransactionFacts(txns, NewPatientIndex(patientRecords()), providers, procedures, dates)

	require.Len(t, facts, 2)
	assert.Equal(t, "T2", facts[1].TransactionID)
	assert.Nil(t, facts[1].ProcedureSK)

	report := integrity.NewValidator(nil).Validate(
		TransactionFactTable(facts),
		map[string]model.Table{
			model.TableDimPatients:   PatientTable(patientRecords()),
			model.TableDimProviders:  providers.Table("provider_sk", "ProviderID"),
			model.TableDimProcedures: procedures.Table("procedure_sk", "ProcedureCode"),
			model.TableDimDate:       dates.Table(),
		},
		[]integrity.Pair{
			{FactColumn: "patient_sk", Dimension: model.TableDimPatients, DimensionColumn: "patient_sk"},
			{FactColumn: "provider_sk", Dimension: model.TableDimProviders, DimensionColumn: "provider_sk"},
			{FactColumn: "procedure_sk", Dimension: model.TableDimProcedures, DimensionColumn: "procedure_sk"},
			{FactColumn: "service_date_sk", Dimension: model.TableDimDate, DimensionColumn: "date_sk"},
		},
	)

	assert.Equal(t, map[string]int{
		"fact_transactions.patient_sk->dim_patients.patient_sk":       0,
		"fact_transactions.provider_sk->dim_providers.provider_sk":    0,
		"fact_transactions.procedure_sk->dim_procedures.procedure_sk": 1,
		"fact_transactions.service_date_sk->dim_date.date_sk":         0,
	}, report.Counts())
}

func TestMatchedKeysAlwaysResolve(t *testing.T) {
	txns := []model.Transaction{
		{ProviderID: "PR1", ProcedureCode: "A"},
		{ProviderID: "PR2", ProcedureCode: "B"},
		{ProviderID: "PR1", ProcedureCode: "C"},
	}

	providers := Providers(txns, OrderSorted)
	procedures := Procedures(txns, OrderFirstSeen)
	facts := BuildTransactionFacts(txns, NewPatientIndex(nil), providers, procedures, BuildDateDimension(nil, OrderFirstSeen))

	for _, f := range facts {
		assert.NotNil(t, f.ProviderSK)
		assert.NotNil(t, f.ProcedureSK)
	}
}
