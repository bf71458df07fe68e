package warehouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/canonicalization"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

const (
	patientFilePrefix = "patients_"
	readBatchSize     = 1024
)

// ErrNoPatientSources is returned when the staging directory holds no patient extract.
var ErrNoPatientSources = errors.New("no patient extracts found in staging directory")

// ParquetSource reads the staged extracts of one batch from a directory.
type ParquetSource struct {
	dir    string
	logger *slog.Logger
}

// NewParquetSource returns a source reading from dir.
func NewParquetSource(dir string, logger *slog.Logger) *ParquetSource {
	if logger == nil {
		logger = slog.Default()
	}

	return &ParquetSource{dir: dir, logger: logger}
}

// PatientSources reads every patients_<source>.parquet file as an untyped table named
// after its source, in file name order. Hospital systems disagree on patient column
// names, so the columns are returned as found and mapped later by the cleanser.
func (s *ParquetSource) PatientSources(ctx context.Context) ([]model.Table, error) {
	paths, err := s.glob(patientFilePrefix + "*" + FileExtension)
	if err != nil {
		return nil, err
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPatientSources, s.dir)
	}

	tables := make([]model.Table, 0, len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		source := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), patientFilePrefix), FileExtension)

		table, err := ReadTable(path)
		if err != nil {
			return nil, err
		}

		table.Name = source
		tables = append(tables, table)

		s.logger.Debug("read patient extract",
			slog.String("source", source),
			slog.Int("rows", table.Len()))
	}

	return tables, nil
}

// Transactions reads every transactions*.parquet file. No file means no transactions.
func (s *ParquetSource) Transactions(ctx context.Context) ([]model.StagedTransaction, error) {
	return readAll[model.StagedTransaction](ctx, s, "transactions*"+FileExtension)
}

// Claims reads every claims*.parquet file. No file means no claims.
func (s *ParquetSource) Claims(ctx context.Context) ([]model.StagedClaim, error) {
	return readAll[model.StagedClaim](ctx, s, "claims*"+FileExtension)
}

func (s *ParquetSource) glob(pattern string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", pattern, err)
	}

	sort.Strings(paths)

	return paths, nil
}

func readAll[T any](ctx context.Context, s *ParquetSource, pattern string) ([]T, error) {
	paths, err := s.glob(pattern)
	if err != nil {
		return nil, err
	}

	var rows []T

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fileRows, err := parquet.ReadFile[T](path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		rows = append(rows, fileRows...)
	}

	return rows, nil
}

// ReadTable reads a flat Parquet file into an untyped table. Every leaf column becomes
// a text column; nulls become "". Date and timestamp columns render as YYYY-MM-DD and
// RFC 3339 respectively.
func ReadTable(path string) (model.Table, error) {
	file, err := os.Open(path) //nolint:gosec // path comes from the configured staging directory
	if err != nil {
		return model.Table{}, fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	reader := parquet.NewReader(file)

	defer func() {
		_ = reader.Close()
	}()

	schema := reader.Schema()
	paths := schema.Columns()
	columns := make([]string, len(paths))
	formatters := make([]func(parquet.Value) string, len(paths))

	for i, p := range paths {
		columns[i] = strings.Join(p, ".")

		leaf, _ := schema.Lookup(p...)
		formatters[i] = valueFormatter(leaf.Node.Type().LogicalType())
	}

	table := model.Table{Name: filepath.Base(path), Columns: columns}
	buf := make([]parquet.Row, readBatchSize)

	for {
		n, err := reader.ReadRows(buf)

		for _, row := range buf[:n] {
			record := make([]string, len(columns))

			for _, v := range row {
				col := v.Column()
				if col < 0 || col >= len(record) || v.IsNull() {
					continue
				}

				record[col] = formatters[col](v)
			}

			table.Rows = append(table.Rows, record)
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return model.Table{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	return table, nil
}

// valueFormatter picks the text rendering of a column from its logical type.
func valueFormatter(lt *format.LogicalType) func(parquet.Value) string {
	switch {
	case lt != nil && lt.Date != nil:
		return func(v parquet.Value) string {
			return time.Unix(int64(v.Int32())*secondsPerDay, 0).UTC().Format(canonicalization.DateLayout)
		}
	case lt != nil && lt.Timestamp != nil:
		unit := time.Nanosecond

		switch {
		case lt.Timestamp.Unit.Millis != nil:
			unit = time.Millisecond
		case lt.Timestamp.Unit.Micros != nil:
			unit = time.Microsecond
		}

		return func(v parquet.Value) string {
			return time.Unix(0, 0).Add(time.Duration(v.Int64()) * unit).UTC().Format(time.RFC3339)
		}
	default:
		return formatPhysical
	}
}

const secondsPerDay = 24 * 60 * 60

func formatPhysical(v parquet.Value) string {
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'f', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return ""
	}
}
