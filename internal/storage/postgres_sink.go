package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

// ErrWarehouseLoadFailed is returned when the replace-all load is rolled back.
var ErrWarehouseLoadFailed = errors.New("warehouse load failed")

// truncateWarehouse empties every warehouse table in one statement so foreign keys
// between facts and dimensions never block the load.
const truncateWarehouse = `TRUNCATE fact_transactions, fact_claims, dim_patients, dim_providers, dim_procedures, dim_date`

const insertBatchRun = `
	INSERT INTO batch_runs (run_id, batch_date, patient_rows, fact_rows, claim_rows)
	VALUES ($1, $2, $3, $4, $5)
`

type (
	// PostgresSink replaces the warehouse tables with the rows of one batch.
	PostgresSink struct {
		pool        *pgxpool.Pool
		loadTimeout time.Duration
		logger      *slog.Logger
	}

	// PostgresSinkOption configures optional PostgresSink behavior.
	PostgresSinkOption func(*PostgresSink)

	copyTable struct {
		name    string
		columns []string
		rows    [][]any
	}
)

// WithSinkLogger sets the logger. Defaults to slog.Default().
func WithSinkLogger(logger *slog.Logger) PostgresSinkOption {
	return func(s *PostgresSink) {
		s.logger = logger
	}
}

// NewPostgresSink opens a pgx pool sized from cfg and pings it.
func NewPostgresSink(ctx context.Context, cfg *Config, opts ...PostgresSinkOption) (*PostgresSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection %s: %w", cfg.MaskDatabaseURL(), err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns) //nolint:gosec // validated positive, small
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.MaskDatabaseURL(), err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("ping %s: %w", cfg.MaskDatabaseURL(), err)
	}

	s := &PostgresSink{
		pool:        pool,
		loadTimeout: cfg.LoadTimeout,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Name identifies the sink in logs and run reports.
func (s *PostgresSink) Name() string {
	return "postgres"
}

// Persist truncates every warehouse table and streams the batch back with COPY, all in
// one transaction. Any failure rolls the whole load back and the previous warehouse stays
// visible.
func (s *PostgresSink) Persist(ctx context.Context, wh *model.Warehouse) error {
	if s.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.loadTimeout)

		defer cancel()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrWarehouseLoadFailed, err)
	}

	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	if _, err := tx.Exec(ctx, truncateWarehouse); err != nil {
		return fmt.Errorf("%w: truncate: %w", ErrWarehouseLoadFailed, err)
	}

	for _, table := range copyTables(wh) {
		if len(table.rows) == 0 {
			continue
		}

		copied, err := tx.CopyFrom(ctx, pgx.Identifier{table.name}, table.columns, pgx.CopyFromRows(table.rows))
		if err != nil {
			return fmt.Errorf("%w: copy %s: %w", ErrWarehouseLoadFailed, table.name, err)
		}

		s.logger.Debug("copied warehouse table",
			slog.String("table", table.name),
			slog.Int64("rows", copied))
	}

	if wh.RunID != "" {
		_, err := tx.Exec(ctx, insertBatchRun,
			wh.RunID, pgDate(&wh.BatchDate),
			len(wh.Patients), len(wh.Transactions), len(wh.Claims))
		if err != nil {
			return fmt.Errorf("%w: record batch run: %w", ErrWarehouseLoadFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrWarehouseLoadFailed, err)
	}

	s.logger.Info("warehouse loaded into postgres",
		slog.String("run_id", wh.RunID),
		slog.Int("patients", len(wh.Patients)),
		slog.Int("transactions", len(wh.Transactions)),
		slog.Int("claims", len(wh.Claims)))

	return nil
}

// Close releases the pool.
func (s *PostgresSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}

	return nil
}

// copyTables renders the warehouse in load order: dimensions before facts.
func copyTables(wh *model.Warehouse) []copyTable {
	patients := copyTable{
		name: model.TableDimPatients,
		columns: append(append([]string{"patient_sk", "unified_patient_id", "source"}, patientColumns[:]...),
			"attrs_hash", "effective_date", "expiry_date", "is_current", "version"),
	}

	for _, p := range wh.Patients {
		row := []any{pgInt8(p.PatientSK), p.UnifiedPatientID, pgText(p.Source)}

		for _, attr := range model.PatientAttributes {
			value, _ := p.Attribute(attr)
			row = append(row, pgText(value))
		}

		row = append(row, pgText(p.AttrsHash), pgDate(p.EffectiveDate), pgDate(p.ExpiryDate),
			pgBool(p.IsCurrent), pgInt4(p.Version))
		patients.rows = append(patients.rows, row)
	}

	providers := copyTable{name: model.TableDimProviders, columns: []string{"provider_sk", "provider_id"}}
	for _, p := range wh.Providers {
		providers.rows = append(providers.rows, []any{p.ProviderSK, p.ProviderID})
	}

	procedures := copyTable{name: model.TableDimProcedures, columns: []string{"procedure_sk", "procedure_code"}}
	for _, p := range wh.Procedures {
		procedures.rows = append(procedures.rows, []any{p.ProcedureSK, p.ProcedureCode})
	}

	dates := copyTable{
		name:    model.TableDimDate,
		columns: []string{"date_sk", "date", "year", "month", "day", "quarter", "day_of_week"},
	}
	for _, d := range wh.Dates {
		dates.rows = append(dates.rows, []any{
			d.DateSK, pgDate(&d.Date),
			int16(d.Year), int16(d.Month), int16(d.Day), int16(d.Quarter), int16(d.DayOfWeek), //nolint:gosec // calendar fields
		})
	}

	transactions := copyTable{
		name: model.TableFactTransactions,
		columns: []string{
			"transaction_id", "transaction_key", "patient_sk", "provider_sk", "procedure_sk",
			"service_date_sk", "service_date", "amount", "amount_type", "paid_amount",
			"coverage_percent", "payment_status", "claim_id", "payor_id", "visit_type",
		},
	}
	for _, f := range wh.Transactions {
		transactions.rows = append(transactions.rows, []any{
			f.TransactionID, f.TransactionKey, pgInt8(f.PatientSK), pgInt8(f.ProviderSK), pgInt8(f.ProcedureSK),
			pgInt8(f.ServiceDateSK), pgDate(f.ServiceDate), pgNumeric(f.Amount), pgText(f.AmountType),
			pgNumeric(f.PaidAmount), pgNumeric(f.CoveragePercent), pgText(f.PaymentStatus),
			pgText(f.ClaimID), pgText(f.PayorID), pgText(f.VisitType),
		})
	}

	claims := copyTable{
		name: model.TableFactClaims,
		columns: []string{
			"claim_sk", "claim_id", "transaction_id", "source", "patient_id", "unified_patient_id",
			"patient_sk", "service_date", "service_date_sk", "paid_date", "paid_date_sk",
			"claim_amount", "paid_amount", "claim_status", "payor_id", "payor_type",
		},
	}
	for _, f := range wh.Claims {
		claims.rows = append(claims.rows, []any{
			f.ClaimSK, f.ClaimID, pgText(f.TransactionID), f.Source, f.PatientID, f.UnifiedPatientID,
			pgInt8(f.PatientSK), pgDate(f.ServiceDate), pgInt8(f.ServiceDateSK), pgDate(f.PaidDate),
			pgInt8(f.PaidDateSK), pgNumeric(f.ClaimAmount), pgNumeric(f.PaidAmount),
			pgText(f.ClaimStatus), pgText(f.PayorID), pgText(f.PayorType),
		})
	}

	return []copyTable{patients, providers, procedures, dates, transactions, claims}
}

func pgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func pgInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}

	return pgtype.Int8{Int64: *v, Valid: true}
}

func pgInt4(v *int64) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}

	return pgtype.Int4{Int32: int32(*v), Valid: true} //nolint:gosec // version numbers are small
}

func pgBool(v *bool) pgtype.Bool {
	if v == nil {
		return pgtype.Bool{}
	}

	return pgtype.Bool{Bool: *v, Valid: true}
}

func pgDate(t *time.Time) pgtype.Date {
	if t == nil || t.IsZero() {
		return pgtype.Date{}
	}

	return pgtype.Date{Time: *t, Valid: true}
}

// pgNumeric goes through the decimal text form so 0.1 stays 0.1 in a NUMERIC column.
func pgNumeric(f *float64) pgtype.Numeric {
	var num pgtype.Numeric
	if f == nil {
		return num
	}

	_ = num.Scan(strconv.FormatFloat(*f, 'f', -1, 64))

	return num
}
