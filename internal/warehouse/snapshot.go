package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

// ParquetSnapshotReader reads the patient dimension written by a previous run.
type ParquetSnapshotReader struct {
	path   string
	logger *slog.Logger
}

// NewParquetSnapshotReader reads dim_patients.parquet from a warehouse directory.
func NewParquetSnapshotReader(dir string, logger *slog.Logger) *ParquetSnapshotReader {
	if logger == nil {
		logger = slog.Default()
	}

	return &ParquetSnapshotReader{
		path:   filepath.Join(dir, FileName(model.TableDimPatients)),
		logger: logger,
	}
}

// ReadSnapshot returns every persisted patient version. A missing file is a cold start
// and yields no rows and no error; an unreadable file is an error.
func (r *ParquetSnapshotReader) ReadSnapshot(ctx context.Context) ([]model.PatientDimRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(r.path); errors.Is(err, os.ErrNotExist) {
		r.logger.Info("no patient snapshot found, starting from an empty dimension",
			slog.String("path", r.path))

		return nil, nil
	}

	rows, err := parquet.ReadFile[model.PatientDimRow](r.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", r.path, err)
	}

	return rows, nil
}
