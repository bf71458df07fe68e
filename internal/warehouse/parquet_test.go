package warehouse

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

func sampleWarehouse() *model.Warehouse {
	day := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	far := time.Date(2099, time.December, 31, 0, 0, 0, 0, time.UTC)
	current := true
	version := int64(1)
	amount := 99.5

	return &model.Warehouse{
		RunID:     "run-1",
		BatchDate: day,
		Patients: []model.PatientDimRow{{
			PatientSK: model.KeyPtr(1), UnifiedPatientID: "hospital_a_P1", Source: "hospital_a",
			FirstName: "Ana", DOB: "1990-03-07",
			EffectiveDate: &day, ExpiryDate: &far, IsCurrent: &current, Version: &version,
		}},
		Providers: []model.ProviderDimRow{{ProviderSK: 1, ProviderID: "PR1"}},
		Dates:     []model.DateDimRow{{DateSK: 1, Date: day, Year: 2024, Month: 3, Day: 1, Quarter: 1, DayOfWeek: 4}},
		Transactions: []model.TransactionFactRow{{
			TransactionID: "T1", PatientSK: model.KeyPtr(1), Amount: &amount,
		}},
	}
}

func writeFile[T any](t *testing.T, path string, rows []T) {
	t.Helper()

	file, err := os.Create(path)
	require.NoError(t, err)

	require.NoError(t, writeRows(file, rows))
	require.NoError(t, file.Close())
}

func TestParquetSinkWritesEveryTable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "warehouse")
	sink := NewParquetSink(dir)

	require.NoError(t, sink.Persist(context.Background(), sampleWarehouse()))

	for _, table := range model.TableNames() {
		assert.FileExists(t, filepath.Join(dir, FileName(table)))
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temporary files are renamed into place")

	facts, err := parquet.ReadFile[model.TransactionFactRow](filepath.Join(dir, FileName(model.TableFactTransactions)))
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, int64(1), *facts[0].PatientSK)
	assert.Nil(t, facts[0].ProviderSK)
	assert.InDelta(t, 99.5, *facts[0].Amount, 1e-9)

	claims, err := parquet.ReadFile[model.ClaimFactRow](filepath.Join(dir, FileName(model.TableFactClaims)))
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestParquetSinkCancelledLeavesPreviousFiles(t *testing.T) {
	dir := t.TempDir()
	sink := NewParquetSink(dir)

	require.NoError(t, sink.Persist(context.Background(), sampleWarehouse()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	next := sampleWarehouse()
	next.Patients = nil

	err := sink.Persist(ctx, next)
	require.ErrorIs(t, err, ErrSinkFailed)
	require.ErrorIs(t, err, context.Canceled)

	rows, err := parquet.ReadFile[model.PatientDimRow](filepath.Join(dir, FileName(model.TableDimPatients)))
	require.NoError(t, err)
	assert.Len(t, rows, 1, "the previous patient dimension is still in place")
}

func TestParquetSnapshotReader(t *testing.T) {
	dir := t.TempDir()
	reader := NewParquetSnapshotReader(dir, nil)

	rows, err := reader.ReadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows, "missing file is a cold start")

	require.NoError(t, NewParquetSink(dir).Persist(context.Background(), sampleWarehouse()))

	rows, err = reader.ReadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hospital_a_P1", rows[0].UnifiedPatientID)
	assert.Equal(t, "1990-03-07", rows[0].DOB)
	assert.True(t, *rows[0].IsCurrent)
	assert.True(t, rows[0].EffectiveDate.Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParquetSnapshotReaderCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(model.TableDimPatients)), []byte("not parquet"), 0o600))

	_, err := NewParquetSnapshotReader(dir, nil).ReadSnapshot(context.Background())
	require.Error(t, err)
}

type hospitalBPatient struct {
	ID     string  `parquet:"ID"`
	FName  string  `parquet:"F_Name"`
	Phone  *string `parquet:"PhoneNumber,optional"`
	Visits int64   `parquet:"Visits"`
	Active bool    `parquet:"Active"`
}

func TestParquetSourcePatientSources(t *testing.T) {
	dir := t.TempDir()
	phone := "5551234567"

	writeFile(t, filepath.Join(dir, "patients_hospital_b.parquet"), []hospitalBPatient{
		{ID: "B1", FName: "li", Phone: &phone, Visits: 3, Active: true},
		{ID: "B2", FName: "Mo"},
	})
	writeFile(t, filepath.Join(dir, "patients_hospital_a.parquet"), []hospitalBPatient{
		{ID: "A1", FName: "Ana"},
	})

	tables, err := NewParquetSource(dir, nil).PatientSources(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, "hospital_a", tables[0].Name, "files are read in name order")
	assert.Equal(t, "hospital_b", tables[1].Name)

	b := tables[1]
	assert.ElementsMatch(t, []string{"ID", "F_Name", "PhoneNumber", "Visits", "Active"}, b.Columns)
	require.Equal(t, 2, b.Len())

	assert.Equal(t, []string{"B1", "B2"}, b.Column("ID"))
	assert.Equal(t, []string{"5551234567", ""}, b.Column("PhoneNumber"))
	assert.Equal(t, []string{"3", "0"}, b.Column("Visits"))
	assert.Equal(t, []string{"true", "false"}, b.Column("Active"))
}

func TestParquetSourceWithoutPatients(t *testing.T) {
	_, err := NewParquetSource(t.TempDir(), nil).PatientSources(context.Background())
	require.ErrorIs(t, err, ErrNoPatientSources)
}

func TestParquetSourceTransactionsAndClaims(t *testing.T) {
	dir := t.TempDir()
	amount := 10.0

	writeFile(t, filepath.Join(dir, "transactions_hospital_a.parquet"), []model.StagedTransaction{
		{TransactionID: "T1", Source: "hospital_a", PatientID: "P1", Amount: &amount, ServiceDate: "2024-03-01"},
	})
	writeFile(t, filepath.Join(dir, "transactions_hospital_b.parquet"), []model.StagedTransaction{
		{TransactionID: "T2", Source: "hospital_b", PatientID: "B1"},
	})

	source := NewParquetSource(dir, nil)

	txns, err := source.Transactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "T1", txns[0].TransactionID)
	assert.Nil(t, txns[1].Amount)

	claims, err := source.Claims(context.Background())
	require.NoError(t, err)
	assert.Empty(t, claims, "no claim files means no claims")
}
