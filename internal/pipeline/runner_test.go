package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/cleansing"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/config"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/dimensional"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/integrity"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/metrics"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/scd"
)

var (
	day1 = time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)
	day2 = time.Date(2024, time.March, 2, 7, 15, 0, 0, time.UTC)
)

type fakeSnapshot struct {
	rows []model.PatientDimRow
	err  error
}

func (f *fakeSnapshot) ReadSnapshot(context.Context) ([]model.PatientDimRow, error) {
	return f.rows, f.err
}

type fakeSource struct {
	patients     []model.Table
	transactions []model.StagedTransaction
	claims       []model.StagedClaim
	err          error
}

func (f *fakeSource) PatientSources(context.Context) ([]model.Table, error) {
	return f.patients, f.err
}

func (f *fakeSource) Transactions(context.Context) ([]model.StagedTransaction, error) {
	return f.transactions, nil
}

func (f *fakeSource) Claims(context.Context) ([]model.StagedClaim, error) {
	return f.claims, nil
}

type recordingSink struct {
	name      string
	err       error
	persisted []*model.Warehouse
}

func (s *recordingSink) Name() string {
	return s.name
}

func (s *recordingSink) Persist(_ context.Context, wh *model.Warehouse) error {
	if s.err != nil {
		return s.err
	}

	s.persisted = append(s.persisted, wh)

	return nil
}

type recordingPublisher struct {
	reports []any
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, report any) error {
	p.reports = append(p.reports, report)

	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f64(v float64) *float64 {
	return &v
}

func sequentialKeys() func() string {
	n := 0

	return func() string {
		n++

		return "key-" + strconv.Itoa(n)
	}
}

func patientSource(address string) model.Table {
	return model.Table{
		Name: "hospital_a",
		Columns: []string{
			"PatientID", "FirstName", "LastName", "MiddleName", "SSN", "PhoneNumber", "Gender", "DOB", "Address",
		},
		Rows: [][]string{
			{"1", "alice", "smith", "", "111-22-3333", "5551234567", "F", "1990-03-07", address},
			{"2", "bob", "jones", "q", "222-33-4444", "5559876543", "M", "1985-11-20", "5 Pine Rd"},
		},
	}
}

func sampleSource(address string) *fakeSource {
	return &fakeSource{
		patients: []model.Table{patientSource(address)},
		transactions: []model.StagedTransaction{
			{
				TransactionID: "T1", Source: "hospital_a", PatientID: "1", ProviderID: "PR1", ProcedureCode: "99213",
				VisitDate: "2024-02-01", ServiceDate: "2024-02-01", PaidDate: "2024-02-20",
				Amount: f64(150), PaidAmount: f64(100), ClaimID: "C1",
			},
			{
				TransactionID: "T2", Source: "hospital_a", PatientID: "2", ProviderID: "PR2", ProcedureCode: "J3490",
				ServiceDate: "2024-02-03", Amount: f64(80),
			},
		},
		claims: []model.StagedClaim{
			{
				ClaimID: "C1", TransactionID: "T1", PatientID: "1", Source: "hospital_a",
				ServiceDate: "2024-02-01", PaidDate: "2024-02-20", ClaimAmount: f64(150), PaidAmount: f64(100),
			},
		},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time {
		return t
	}
}

func newTestRunner(
	t *testing.T,
	cfg *config.PipelineConfig,
	snapshot SnapshotReader,
	source Source,
	opts ...Option,
) *Runner {
	t.Helper()

	opts = append([]Option{
		WithClock(fixedClock(day1)),
		WithRunIDFunc(func() string { return "run-1" }),
		WithCleanserOptions(cleansing.WithKeyFunc(sequentialKeys())),
		WithLogger(discardLogger()),
	}, opts...)

	r, err := NewRunner(cfg, snapshot, source, opts...)
	require.NoError(t, err)

	return r
}

func currentRow(t *testing.T, rows []model.PatientDimRow, unified string) model.PatientDimRow {
	t.Helper()

	for _, row := range rows {
		if row.UnifiedPatientID == unified && row.IsCurrent != nil && *row.IsCurrent {
			return row
		}
	}

	t.Fatalf("no current row for %s", unified)

	return model.PatientDimRow{}
}

func TestNewRunner_Validation(t *testing.T) {
	sink := &recordingSink{name: "memory"}

	_, err := NewRunner(config.DefaultPipelineConfig(), &fakeSnapshot{}, &fakeSource{})
	require.ErrorIs(t, err, ErrNoSinks)

	cfg := config.DefaultPipelineConfig()
	cfg.DimensionKeyOrder = "random"
	_, err = NewRunner(cfg, &fakeSnapshot{}, &fakeSource{}, WithSinks(sink))
	require.ErrorIs(t, err, dimensional.ErrUnknownKeyOrder)

	cfg = config.DefaultPipelineConfig()
	cfg.PatientDimension.KeyField = ""
	_, err = NewRunner(cfg, &fakeSnapshot{}, &fakeSource{}, WithSinks(sink))
	require.Error(t, err)
}

func TestRunner_ColdStart(t *testing.T) {
	sink := &recordingSink{name: "memory"}
	publisher := &recordingPublisher{}

	r := newTestRunner(t, config.DefaultPipelineConfig(), &fakeSnapshot{}, sampleSource("1 Main St"),
		WithSinks(sink), WithPublisher(publisher))

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, report.Status)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), report.BatchDate)
	assert.Equal(t, scd.Stats{Incoming: 2, New: 2}, report.Patients)
	assert.False(t, report.SnapshotRecovered)
	assert.Equal(t, []string{"memory"}, report.Sinks)
	assert.Equal(t, map[string]int{
		model.TableDimPatients:      2,
		model.TableDimProviders:     2,
		model.TableDimProcedures:    2,
		model.TableDimDate:          3,
		model.TableFactTransactions: 2,
		model.TableFactClaims:       1,
	}, report.Tables)
	assert.Zero(t, report.Integrity().Unresolved())

	require.Len(t, sink.persisted, 1)
	wh := sink.persisted[0]
	assert.Equal(t, "run-1", wh.RunID)

	alice := currentRow(t, wh.Patients, "hospital_a_1")
	assert.Equal(t, "hospital_a", alice.Source)
	assert.Equal(t, "Alice", alice.FirstName)
	assert.Equal(t, "+1-555-123-4567", alice.PhoneNumber)
	assert.Equal(t, int64(1), *alice.Version)
	assert.Equal(t, scd.FarFuture, *alice.ExpiryDate)
	assert.NotEmpty(t, alice.AttrsHash)

	require.Len(t, wh.Transactions, 2)
	assert.Equal(t, alice.PatientSK, wh.Transactions[0].PatientSK)
	require.Len(t, wh.Claims, 1)
	assert.Equal(t, alice.PatientSK, wh.Claims[0].PatientSK)

	require.Len(t, publisher.reports, 1)
	assert.Same(t, report, publisher.reports[0])
}

func TestRunner_ChangedAttributeAddsVersion(t *testing.T) {
	cfg := config.DefaultPipelineConfig()

	first := &recordingSink{name: "memory"}
	r := newTestRunner(t, cfg, &fakeSnapshot{}, sampleSource("1 Main St"), WithSinks(first))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	snapshot := &fakeSnapshot{rows: first.persisted[0].Patients}
	second := &recordingSink{name: "memory"}
	r = newTestRunner(t, cfg, snapshot, sampleSource("9 Oak Ave"),
		WithSinks(second), WithClock(fixedClock(day2)), WithRunIDFunc(func() string { return "run-2" }))

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scd.Stats{Incoming: 2, Changed: 1, Unchanged: 1, Expired: 1}, report.Patients)

	wh := second.persisted[0]
	require.Len(t, wh.Patients, 3)

	batchDate := time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC)

	expired := wh.Patients[0]
	assert.Equal(t, "hospital_a_1", expired.UnifiedPatientID)
	assert.False(t, *expired.IsCurrent)
	assert.Equal(t, batchDate, *expired.ExpiryDate)
	assert.Equal(t, "1 Main St", expired.Address)

	current := currentRow(t, wh.Patients, "hospital_a_1")
	assert.Equal(t, int64(3), *current.PatientSK)
	assert.Equal(t, int64(2), *current.Version)
	assert.Equal(t, batchDate, *current.EffectiveDate)
	assert.Equal(t, "9 Oak Ave", current.Address)
	assert.Equal(t, "hospital_a", current.Source)

	assert.Equal(t, current.PatientSK, wh.Transactions[0].PatientSK, "facts reference the current version")
}

func TestRunner_UntrackedAttributesArePreserved(t *testing.T) {
	cfg := config.DefaultPipelineConfig()
	cfg.PatientDimension.TrackedAttributes = []string{"Address"}
	cfg.PatientDimension.DateAttributes = nil

	sink := &recordingSink{name: "memory"}
	r := newTestRunner(t, cfg, &fakeSnapshot{}, sampleSource("1 Main St"), WithSinks(sink))

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	alice := currentRow(t, sink.persisted[0].Patients, "hospital_a_1")
	assert.Equal(t, "Alice", alice.FirstName)
	assert.Equal(t, "111-22-3333", alice.SSN)

	// a changed untracked attribute is not a new version
	source := sampleSource("1 Main St")
	source.patients[0].Rows[0][1] = "alicia"

	again := &recordingSink{name: "memory"}
	r = newTestRunner(t, cfg, &fakeSnapshot{rows: sink.persisted[0].Patients}, source,
		WithSinks(again), WithClock(fixedClock(day2)))

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Patients.Unchanged)
	assert.Len(t, again.persisted[0].Patients, 2)
	assert.Equal(t, "Alice", currentRow(t, again.persisted[0].Patients, "hospital_a_1").FirstName)
}

func TestRunner_UnreadableSnapshotIsColdStart(t *testing.T) {
	sink := &recordingSink{name: "memory"}
	snapshot := &fakeSnapshot{err: errors.New("connection refused")}

	r := newTestRunner(t, config.DefaultPipelineConfig(), snapshot, sampleSource("1 Main St"), WithSinks(sink))

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.SnapshotRecovered)
	assert.Equal(t, 2, report.Patients.New)
	assert.Len(t, sink.persisted, 1)
}

func TestRunner_SourceFailureStopsBatch(t *testing.T) {
	sink := &recordingSink{name: "memory"}
	source := &fakeSource{err: errors.New("permission denied")}

	r := newTestRunner(t, config.DefaultPipelineConfig(), &fakeSnapshot{}, source, WithSinks(sink))

	report, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
	require.NotNil(t, report)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Contains(t, report.Error, "permission denied")
	assert.Empty(t, sink.persisted)
}

func TestRunner_UnresolvedReferences(t *testing.T) {
	source := sampleSource("1 Main St")
	source.transactions = append(source.transactions, model.StagedTransaction{
		TransactionID: "T3", Source: "hospital_a", PatientID: "404", ProviderID: "PR1", ProcedureCode: "99213",
		ServiceDate: "2024-02-01", Amount: f64(10),
	})

	t.Run("reported", func(t *testing.T) {
		sink := &recordingSink{name: "memory"}
		r := newTestRunner(t, config.DefaultPipelineConfig(), &fakeSnapshot{}, source, WithSinks(sink))

		report, err := r.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Unresolved["fact_transactions.patient_sk->dim_patients.patient_sk"])
		assert.Nil(t, sink.persisted[0].Transactions[2].PatientSK, "unresolved references stay null")
	})

	t.Run("strict", func(t *testing.T) {
		cfg := config.DefaultPipelineConfig()
		cfg.StrictIntegrity = true

		sink := &recordingSink{name: "memory"}
		r := newTestRunner(t, cfg, &fakeSnapshot{}, source, WithSinks(sink))

		report, err := r.Run(context.Background())
		require.ErrorIs(t, err, integrity.ErrUnresolvedReference)
		assert.Equal(t, StatusFailed, report.Status)
		assert.Empty(t, sink.persisted)
	})
}

func TestRunner_SchemaMismatchFailsBeforePersisting(t *testing.T) {
	source := sampleSource("1 Main St")
	source.patients[0].Columns[8] = "Street"

	sink := &recordingSink{name: "memory"}
	r := newTestRunner(t, config.DefaultPipelineConfig(), &fakeSnapshot{}, source, WithSinks(sink))

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, scd.ErrSchemaMismatch)
	assert.Empty(t, sink.persisted)
}

func TestRunner_SinkFailure(t *testing.T) {
	first := &recordingSink{name: "parquet"}
	broken := &recordingSink{name: "postgres", err: errors.New("disk full")}
	publisher := &recordingPublisher{}

	r := newTestRunner(t, config.DefaultPipelineConfig(), &fakeSnapshot{}, sampleSource("1 Main St"),
		WithSinks(first, broken), WithPublisher(publisher))

	report, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrPersistFailed)
	assert.Contains(t, err.Error(), "postgres")
	assert.Equal(t, []string{"parquet"}, report.Sinks)
	assert.Empty(t, publisher.reports, "failed batches are not published")
}

func TestRunner_CancelledBatchPersistsNothing(t *testing.T) {
	sink := &recordingSink{name: "memory"}
	r := newTestRunner(t, config.DefaultPipelineConfig(), &fakeSnapshot{}, sampleSource("1 Main St"),
		WithSinks(sink))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Empty(t, sink.persisted)
}

func TestRunner_Metrics(t *testing.T) {
	recorder := metrics.NewRecorder()
	path := filepath.Join(t.TempDir(), "rcm.prom")

	r := newTestRunner(t, config.DefaultPipelineConfig(), &fakeSnapshot{}, sampleSource("1 Main St"),
		WithSinks(&recordingSink{name: "memory"}), WithMetrics(recorder, path))

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 2, testutil.ToFloat64(recorder.Outcomes.WithLabelValues("new")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(recorder.TableRows.WithLabelValues(model.TableDimDate)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(recorder.LastRunFailed), 0)
	assert.InDelta(t, float64(day1.Unix()), testutil.ToFloat64(recorder.LastSuccess), 0)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rcm_warehouse_patients_records")

	failing := newTestRunner(t, config.DefaultPipelineConfig(), &fakeSnapshot{},
		&fakeSource{err: errors.New("gone")},
		WithSinks(&recordingSink{name: "memory"}), WithMetrics(recorder, ""))

	_, err = failing.Run(context.Background())
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(recorder.LastRunFailed), 0)
}

func TestBuild_IsDeterministic(t *testing.T) {
	r := newTestRunner(t, config.DefaultPipelineConfig(), &fakeSnapshot{}, &fakeSource{},
		WithSinks(&recordingSink{name: "memory"}))

	source := sampleSource("1 Main St")
	in := Inputs{Patients: source.patients, Transactions: source.transactions, Claims: source.claims}

	a, _, err := r.Build(in, day1, "run-1")
	require.NoError(t, err)

	// transaction keys come from the key function, so rebuild with a fresh one
	r = newTestRunner(t, config.DefaultPipelineConfig(), &fakeSnapshot{}, &fakeSource{},
		WithSinks(&recordingSink{name: "memory"}))

	b, _, err := r.Build(in, day1, "run-1")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestBuild_RepairsIncompleteSnapshot(t *testing.T) {
	r := newTestRunner(t, config.DefaultPipelineConfig(), &fakeSnapshot{}, &fakeSource{},
		WithSinks(&recordingSink{name: "memory"}))

	snapshot := []model.PatientDimRow{{
		UnifiedPatientID: "hospital_a_1",
		Source:           "hospital_a",
		FirstName:        "Alice",
		LastName:         "Smith",
		SSN:              "111-22-3333",
		PhoneNumber:      "+1-555-123-4567",
		Gender:           "F",
		DOB:              "1990-03-07",
		Address:          "1 Main St",
	}}

	source := sampleSource("1 Main St")

	wh, report, err := r.Build(Inputs{Snapshot: snapshot, Patients: source.patients}, day2, "run-2")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Patients.Unchanged)
	assert.Equal(t, 1, report.Patients.New)
	assert.Positive(t, report.WarningCounts[string(scd.WarnRepairedSnapshot)])

	alice := currentRow(t, wh.Patients, "hospital_a_1")
	assert.Equal(t, int64(1), *alice.PatientSK)
	assert.Equal(t, int64(1), *alice.Version)
}
