package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/config"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

// ErrSnapshotReadFailed is returned when dim_patients cannot be read.
var ErrSnapshotReadFailed = errors.New("patient snapshot read failed")

const selectPatientSnapshot = `
	SELECT patient_sk, unified_patient_id, source,
	       first_name, last_name, middle_name, ssn, phone_number, gender, dob, address,
	       attrs_hash, effective_date, expiry_date, is_current, version
	FROM dim_patients
	ORDER BY patient_sk
`

type (
	// PatientSnapshotStore reads the persisted patient dimension.
	//
	// Every column except unified_patient_id is scanned as nullable: rows written by older
	// loads or by hand may lack SCD metadata, and the versioning engine repairs them.
	PatientSnapshotStore struct {
		conn   *Connection
		logger *slog.Logger
	}

	// SnapshotStoreOption configures optional PatientSnapshotStore behavior.
	SnapshotStoreOption func(*PatientSnapshotStore)

	// patientScan holds the nullable scan targets of one dim_patients row.
	patientScan struct {
		sk            sql.NullInt64
		key           string
		source        sql.NullString
		attrs         [8]sql.NullString
		hash          sql.NullString
		effectiveDate sql.NullTime
		expiryDate    sql.NullTime
		isCurrent     sql.NullBool
		version       sql.NullInt64
	}
)

// WithSnapshotLogger sets the logger. Defaults to a JSON logger honoring LOG_LEVEL.
func WithSnapshotLogger(logger *slog.Logger) SnapshotStoreOption {
	return func(s *PatientSnapshotStore) {
		s.logger = logger
	}
}

// NewPatientSnapshotStore returns a snapshot reader on conn.
// Returns ErrNoDatabaseConnection if conn is nil.
func NewPatientSnapshotStore(conn *Connection, opts ...SnapshotStoreOption) (*PatientSnapshotStore, error) {
	if conn == nil || conn.DB == nil {
		return nil, ErrNoDatabaseConnection
	}

	s := &PatientSnapshotStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// HealthCheck verifies the underlying connection.
func (s *PatientSnapshotStore) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoDatabaseConnection
	}

	return s.conn.HealthCheck(ctx)
}

// ReadSnapshot returns every row of dim_patients ordered by surrogate key.
// An empty table yields an empty slice and no error.
func (s *PatientSnapshotStore) ReadSnapshot(ctx context.Context) ([]model.PatientDimRow, error) {
	rows, err := s.conn.DB.QueryContext(ctx, selectPatientSnapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotReadFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var snapshot []model.PatientDimRow

	for rows.Next() {
		var p patientScan

		err := rows.Scan(
			&p.sk, &p.key, &p.source,
			&p.attrs[0], &p.attrs[1], &p.attrs[2], &p.attrs[3],
			&p.attrs[4], &p.attrs[5], &p.attrs[6], &p.attrs[7],
			&p.hash, &p.effectiveDate, &p.expiryDate, &p.isCurrent, &p.version,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrSnapshotReadFailed, err)
		}

		snapshot = append(snapshot, p.row())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotReadFailed, err)
	}

	s.logger.Debug("read patient snapshot", slog.Int("rows", len(snapshot)))

	return snapshot, nil
}

// patientColumns is the dim_patients column order of the tracked attributes; it matches
// the attrs scan targets and model.PatientAttributes.
var patientColumns = [8]string{
	"first_name", "last_name", "middle_name", "ssn", "phone_number", "gender", "dob", "address",
}

func (p patientScan) row() model.PatientDimRow {
	row := model.PatientDimRow{
		UnifiedPatientID: p.key,
		Source:           p.source.String,
		AttrsHash:        p.hash.String,
	}

	for i, attr := range model.PatientAttributes {
		row.SetAttribute(attr, p.attrs[i].String)
	}

	if p.sk.Valid {
		row.PatientSK = &p.sk.Int64
	}

	if p.effectiveDate.Valid {
		t := p.effectiveDate.Time.UTC()
		row.EffectiveDate = &t
	}

	if p.expiryDate.Valid {
		t := p.expiryDate.Time.UTC()
		row.ExpiryDate = &t
	}

	if p.isCurrent.Valid {
		row.IsCurrent = &p.isCurrent.Bool
	}

	if p.version.Valid {
		row.Version = &p.version.Int64
	}

	return row
}
