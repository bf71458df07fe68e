// Package pipeline runs one warehouse batch end to end:
//
//  1. fix the batch date and run id
//  2. read the persisted patient dimension (an unreadable snapshot is a cold start)
//  3. read and cleanse the staged extracts
//  4. version the patient dimension
//  5. build the provider, procedure and date dimensions and both fact tables
//  6. check referential integrity
//  7. replace the warehouse in every configured sink
//  8. export metrics and publish the run report
//
// Steps 1 to 6 are pure; nothing is written until every table of the batch is built, so
// a failed or cancelled batch leaves the previous warehouse in place.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/canonicalization"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/cleansing"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/config"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/dimensional"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/integrity"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/metrics"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/scd"
)

var (
	// ErrSnapshotUnavailable marks a snapshot read failure. The run continues from an
	// empty dimension and reports SnapshotRecovered.
	ErrSnapshotUnavailable = errors.New("patient snapshot unavailable")

	// ErrSourceUnavailable is returned when the staged extracts cannot be read.
	ErrSourceUnavailable = errors.New("staged extracts unavailable")

	// ErrNoSinks is returned when a runner is built without any sink.
	ErrNoSinks = errors.New("at least one sink is required")

	// ErrPersistFailed is returned when a sink fails to replace the warehouse.
	ErrPersistFailed = errors.New("warehouse persistence failed")
)

// Integrity pairs checked after every build.
var (
	TransactionPairs = []integrity.Pair{
		{FactColumn: "patient_sk", Dimension: model.TableDimPatients, DimensionColumn: "patient_sk"},
		{FactColumn: "provider_sk", Dimension: model.TableDimProviders, DimensionColumn: "provider_sk"},
		{FactColumn: "procedure_sk", Dimension: model.TableDimProcedures, DimensionColumn: "procedure_sk"},
		{FactColumn: "service_date_sk", Dimension: model.TableDimDate, DimensionColumn: "date_sk"},
	}

	// ClaimPairs leaves out PaidDate_sk: an unpaid claim has no paid date.
	ClaimPairs = []integrity.Pair{
		{FactColumn: "patient_sk", Dimension: model.TableDimPatients, DimensionColumn: "patient_sk"},
		{FactColumn: "ServiceDate_sk", Dimension: model.TableDimDate, DimensionColumn: "date_sk"},
	}
)

type (
	// SnapshotReader reads the persisted patient dimension.
	SnapshotReader interface {
		ReadSnapshot(ctx context.Context) ([]model.PatientDimRow, error)
	}

	// Source reads the staged extracts of one batch.
	Source interface {
		PatientSources(ctx context.Context) ([]model.Table, error)
		Transactions(ctx context.Context) ([]model.StagedTransaction, error)
		Claims(ctx context.Context) ([]model.StagedClaim, error)
	}

	// Sink replaces the warehouse with the tables of one batch.
	Sink interface {
		Name() string
		Persist(ctx context.Context, wh *model.Warehouse) error
	}

	// Publisher announces a finished batch.
	Publisher interface {
		Publish(ctx context.Context, runID string, report any) error
	}

	// Inputs is everything a build reads.
	Inputs struct {
		Snapshot     []model.PatientDimRow
		Patients     []model.Table
		Transactions []model.StagedTransaction
		Claims       []model.StagedClaim
	}

	// Runner executes batches with one configuration.
	Runner struct {
		cfg       *config.PipelineConfig
		engine    *scd.Engine
		cleanser  *cleansing.Cleanser
		validator *integrity.Validator
		order     dimensional.KeyOrder
		tracked   []string
		untracked []string

		snapshot  SnapshotReader
		source    Source
		sinks     []Sink
		recorder  *metrics.Recorder
		publisher Publisher

		clock        func() time.Time
		newRunID     func() string
		metricsPath  string
		logger       *slog.Logger
		cleanserOpts []cleansing.Option
	}

	// Option configures a Runner.
	Option func(*Runner)
)

// WithSinks adds sinks; they persist in the given order.
func WithSinks(sinks ...Sink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithMetrics records batch gauges and, when path is not empty, writes them to a textfile.
func WithMetrics(recorder *metrics.Recorder, path string) Option {
	return func(r *Runner) {
		r.recorder = recorder
		r.metricsPath = path
	}
}

// WithPublisher publishes the run report after a successful batch.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) {
		r.publisher = p
	}
}

// WithClock replaces time.Now. The batch date is the clock's day at run start.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		r.clock = clock
	}
}

// WithRunIDFunc replaces the UUID run id generator.
func WithRunIDFunc(fn func() string) Option {
	return func(r *Runner) {
		r.newRunID = fn
	}
}

// WithCleanserOptions passes options to the cleanser, e.g. a deterministic key function.
func WithCleanserOptions(opts ...cleansing.Option) Option {
	return func(r *Runner) {
		r.cleanserOpts = append(r.cleanserOpts, opts...)
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner builds a runner from cfg. The normalization policy, key order and column
// aliases are validated here, so a misconfigured batch fails before reading any data.
func NewRunner(cfg *config.PipelineConfig, snapshot SnapshotReader, source Source, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:      cfg,
		snapshot: snapshot,
		source:   source,
		clock:    time.Now,
		newRunID: uuid.NewString,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if len(r.sinks) == 0 {
		return nil, ErrNoSinks
	}

	normalizer, err := canonicalization.NewNormalizer(canonicalization.Policy{
		KeyField:   cfg.PatientDimension.KeyField,
		Tracked:    cfg.PatientDimension.TrackedAttributes,
		DateFields: cfg.PatientDimension.DateAttributes,
	})
	if err != nil {
		return nil, fmt.Errorf("patient dimension policy: %w", err)
	}

	order, err := dimensional.ParseKeyOrder(cfg.DimensionKeyOrder)
	if err != nil {
		return nil, err
	}

	r.order = order
	r.tracked = normalizer.Tracked()
	r.untracked = untrackedColumns(r.tracked)
	r.engine = scd.NewEngine(normalizer,
		scd.WithPassthrough(r.untracked...),
		scd.WithLogger(r.logger))
	r.cleanser = cleansing.NewCleanser(append([]cleansing.Option{
		cleansing.WithColumnAliases(cfg.ColumnAliases),
		cleansing.WithLogger(r.logger),
	}, r.cleanserOpts...)...)
	r.validator = integrity.NewValidator(r.logger)

	return r, nil
}

// Run executes one batch. The returned report is never nil, also on error.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	started := r.clock()
	batchDate := canonicalization.TruncateDay(started)
	runID := r.newRunID()

	logger := r.logger.With(slog.String("run_id", runID))
	logger.Info("batch started", slog.String("batch_date", batchDate.Format(canonicalization.DateLayout)))

	report, err := r.run(ctx, logger, runID, batchDate)
	report.StartedAt = started
	report.FinishedAt = r.clock()

	if err != nil {
		report.Status = StatusFailed
		report.Error = err.Error()

		logger.Error("batch failed", slog.String("error", err.Error()))
	} else {
		report.Status = StatusSucceeded

		logger.Info("batch succeeded",
			slog.Int("new", report.Patients.New),
			slog.Int("changed", report.Patients.Changed),
			slog.Int("unchanged", report.Patients.Unchanged),
			slog.Int("rejected", report.Patients.Rejected),
			slog.Duration("duration", report.Duration()))
	}

	r.export(ctx, logger, report, err)

	return report, err
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, runID string, batchDate time.Time) (*RunReport, error) {
	in := Inputs{}
	recovered := false

	snapshot, err := r.snapshot.ReadSnapshot(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return newRunReport(runID, batchDate), ctxErr
		}

		logger.Warn("continuing from an empty patient dimension",
			slog.String("error", fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err).Error()))

		recovered = true
	} else {
		in.Snapshot = snapshot
	}

	if in.Patients, err = r.source.PatientSources(ctx); err != nil {
		return newRunReport(runID, batchDate), fmt.Errorf("%w: patients: %w", ErrSourceUnavailable, err)
	}

	if in.Transactions, err = r.source.Transactions(ctx); err != nil {
		return newRunReport(runID, batchDate), fmt.Errorf("%w: transactions: %w", ErrSourceUnavailable, err)
	}

	if in.Claims, err = r.source.Claims(ctx); err != nil {
		return newRunReport(runID, batchDate), fmt.Errorf("%w: claims: %w", ErrSourceUnavailable, err)
	}

	wh, report, err := r.Build(in, batchDate, runID)
	report.SnapshotRecovered = recovered

	if err != nil {
		return report, err
	}

	if r.cfg.StrictIntegrity {
		if err := report.Integrity().Err(); err != nil {
			return report, err
		}
	}

	// last point at which a cancelled batch leaves no trace
	if err := ctx.Err(); err != nil {
		return report, err
	}

	for _, sink := range r.sinks {
		if err := sink.Persist(ctx, wh); err != nil {
			return report, fmt.Errorf("%w: %s: %w", ErrPersistFailed, sink.Name(), err)
		}

		report.Sinks = append(report.Sinks, sink.Name())
	}

	return report, nil
}

// Build turns the inputs into a complete warehouse as of batchDate without any I/O.
func (r *Runner) Build(in Inputs, batchDate time.Time, runID string) (*model.Warehouse, *RunReport, error) {
	batchDate = canonicalization.TruncateDay(batchDate)
	report := newRunReport(runID, batchDate)

	snapshot, repairWarnings := r.engine.Repair(snapshotRows(in.Snapshot, r.tracked, r.untracked), batchDate)
	report.addWarnings(repairWarnings)

	patients, patientFindings := r.cleanser.Patients(in.Patients)
	txns, txnFindings := r.cleanser.Transactions(in.Transactions)
	claims, claimFindings := r.cleanser.Claims(in.Claims)

	findings := make([]cleansing.Finding, 0, len(patientFindings)+len(txnFindings)+len(claimFindings))
	findings = append(findings, patientFindings...)
	findings = append(findings, txnFindings...)
	findings = append(findings, claimFindings...)
	report.setFindings(findings)

	result, err := r.engine.Reconcile(snapshot, patients, batchDate)
	if err != nil {
		return nil, report, err
	}

	report.Patients = result.Stats
	report.addWarnings(result.Warnings)

	dates, err := dimensional.TransactionDates(txns, r.cfg.DateColumns)
	if err != nil {
		return nil, report, err
	}

	providers := dimensional.Providers(txns, r.order)
	procedures := dimensional.Procedures(txns, r.order)
	dateDim := dimensional.BuildDateDimension(dates, r.order)
	patientIndex := dimensional.NewPatientIndex(result.Records)

	txnFacts := dimensional.BuildTransactionFacts(txns, patientIndex, providers, procedures, dateDim)
	claimFacts := dimensional.BuildClaimFacts(claims, patientIndex, dateDim)

	dims := map[string]model.Table{
		model.TableDimPatients:   dimensional.PatientTable(result.Records),
		model.TableDimProviders:  providers.Table("provider_sk", "ProviderID"),
		model.TableDimProcedures: procedures.Table("procedure_sk", "ProcedureCode"),
		model.TableDimDate:       dateDim.Table(),
	}

	checks := r.validator.Validate(dimensional.TransactionFactTable(txnFacts), dims, TransactionPairs)
	checks.Merge(r.validator.Validate(dimensional.ClaimFactTable(claimFacts), dims, ClaimPairs))
	report.setIntegrity(checks)

	wh := &model.Warehouse{
		RunID:        runID,
		BatchDate:    batchDate,
		Patients:     patientRows(result.Records),
		Providers:    dimensional.ProviderRows(providers),
		Procedures:   dimensional.ProcedureRows(procedures),
		Dates:        dateDim.Rows,
		Transactions: txnFacts,
		Claims:       claimFacts,
	}
	report.Tables = wh.Counts()

	return wh, report, nil
}

// export records metrics and publishes the report. Failures here never fail the batch.
func (r *Runner) export(ctx context.Context, logger *slog.Logger, report *RunReport, runErr error) {
	if r.recorder != nil {
		r.recorder.ObserveReconcile(report.Patients, report.VersioningWarnings())
		r.recorder.ObserveFindings(report.Findings)
		r.recorder.ObserveUnresolved(report.Unresolved)

		if runErr == nil {
			r.recorder.ObserveTables(report.Tables)
		}

		r.recorder.ObserveRun(report.Duration(), report.FinishedAt, runErr)

		if r.metricsPath != "" {
			if err := r.recorder.WriteTextfile(r.metricsPath); err != nil {
				logger.Warn("metrics export failed", slog.String("error", err.Error()))
			}
		}
	}

	if r.publisher == nil || runErr != nil {
		return
	}

	if err := r.publisher.Publish(context.WithoutCancel(ctx), report.RunID, report); err != nil {
		logger.Warn("run report not published", slog.String("error", err.Error()))
	}
}

func newRunReport(runID string, batchDate time.Time) *RunReport {
	return &RunReport{
		RunID:         runID,
		BatchDate:     batchDate,
		Tables:        map[string]int{},
		Unresolved:    map[string]int{},
		WarningCounts: map[string]int{},
		Findings:      map[string]int{},
	}
}
