package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

// ErrSinkFailed is returned when a warehouse could not be written completely.
var ErrSinkFailed = errors.New("warehouse sink failed")

type (
	// ParquetSink writes the warehouse as Parquet files into a local directory.
	//
	// Every table is first written to a temporary file next to its target. Only when all
	// tables were written are they renamed into place, so a failed or cancelled batch
	// leaves the previous files untouched.
	ParquetSink struct {
		dir    string
		logger *slog.Logger
	}

	// ParquetSinkOption configures a ParquetSink.
	ParquetSinkOption func(*ParquetSink)
)

// WithParquetSinkLogger sets the logger. Defaults to slog.Default().
func WithParquetSinkLogger(logger *slog.Logger) ParquetSinkOption {
	return func(s *ParquetSink) {
		s.logger = logger
	}
}

// NewParquetSink returns a sink writing into dir, created on first use.
func NewParquetSink(dir string, opts ...ParquetSinkOption) *ParquetSink {
	s := &ParquetSink{dir: dir, logger: slog.Default()}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name identifies the sink in logs and run reports.
func (s *ParquetSink) Name() string {
	return "parquet"
}

// Dir returns the output directory.
func (s *ParquetSink) Dir() string {
	return s.dir
}

// Persist replaces every table file in the output directory.
func (s *ParquetSink) Persist(ctx context.Context, wh *model.Warehouse) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrSinkFailed, s.dir, err)
	}

	encoders := tableEncoders(wh)
	staged := make([]string, 0, len(encoders))

	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}

	for _, enc := range encoders {
		if err := ctx.Err(); err != nil {
			cleanup()

			return fmt.Errorf("%w: %w", ErrSinkFailed, err)
		}

		tmp, err := s.writeTemp(enc)
		if tmp != "" {
			staged = append(staged, tmp)
		}

		if err != nil {
			cleanup()

			return fmt.Errorf("%w: %s: %w", ErrSinkFailed, enc.name, err)
		}
	}

	for i, enc := range encoders {
		target := filepath.Join(s.dir, FileName(enc.name))
		if err := os.Rename(staged[i], target); err != nil {
			cleanup()

			return fmt.Errorf("%w: replace %s: %w", ErrSinkFailed, target, err)
		}

		s.logger.Debug("wrote warehouse table",
			slog.String("table", enc.name),
			slog.Int("rows", enc.rows),
			slog.String("path", target))
	}

	s.logger.Info("warehouse written as parquet",
		slog.String("dir", s.dir),
		slog.String("run_id", wh.RunID))

	return nil
}

func (s *ParquetSink) writeTemp(enc tableEncoder) (string, error) {
	file, err := os.CreateTemp(s.dir, "."+enc.name+"-*"+FileExtension)
	if err != nil {
		return "", err
	}

	if err := enc.encode(file); err != nil {
		_ = file.Close()

		return file.Name(), err
	}

	if err := file.Close(); err != nil {
		return file.Name(), err
	}

	return file.Name(), nil
}
