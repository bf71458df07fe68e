package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/config"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/metrics"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/notify"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/pipeline"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/storage"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/warehouse"
)

// ErrUnknownSink is returned for a sink kind the job cannot build.
var ErrUnknownSink = errors.New("unknown sink")

// dependencies holds everything a batch reads from and writes to.
type dependencies struct {
	snapshot  pipeline.SnapshotReader
	source    pipeline.Source
	sinks     []pipeline.Sink
	publisher pipeline.Publisher
	closers   []io.Closer
}

// wire builds the snapshot reader, source, sinks and publisher selected by cfg. On error
// everything opened so far is closed.
func wire(ctx context.Context, cfg *config.PipelineConfig, logger *slog.Logger) (*dependencies, error) {
	deps := &dependencies{
		source: warehouse.NewParquetSource(cfg.Source.InputDir, logger),
	}

	if err := deps.wireSnapshot(cfg, logger); err != nil {
		return nil, errors.Join(err, deps.Close())
	}

	if err := deps.wireSinks(ctx, cfg, logger); err != nil {
		return nil, errors.Join(err, deps.Close())
	}

	if len(cfg.Notify.KafkaBrokers) > 0 {
		publisher, err := notify.NewKafkaPublisher(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic,
			notify.WithLogger(logger))
		if err != nil {
			return nil, errors.Join(err, deps.Close())
		}

		deps.publisher = publisher
		deps.closers = append(deps.closers, publisher)
	}

	return deps, nil
}

func (d *dependencies) wireSnapshot(cfg *config.PipelineConfig, logger *slog.Logger) error {
	if cfg.Source.Snapshot != "postgres" {
		d.snapshot = warehouse.NewParquetSnapshotReader(cfg.Sink.OutputDir, logger)

		return nil
	}

	storageConfig := storage.LoadConfig()

	conn, err := storage.NewConnection(storageConfig)
	if err != nil {
		return fmt.Errorf("connect snapshot store: %w", err)
	}

	d.closers = append(d.closers, conn)

	store, err := storage.NewPatientSnapshotStore(conn, storage.WithSnapshotLogger(logger))
	if err != nil {
		return err
	}

	logger.Info("Reading patient snapshot from PostgreSQL",
		slog.String("database_url", storageConfig.MaskDatabaseURL()))

	d.snapshot = store

	return nil
}

func (d *dependencies) wireSinks(ctx context.Context, cfg *config.PipelineConfig, logger *slog.Logger) error {
	for _, kind := range cfg.Sink.Kinds {
		switch kind {
		case "parquet":
			d.sinks = append(d.sinks,
				warehouse.NewParquetSink(cfg.Sink.OutputDir, warehouse.WithParquetSinkLogger(logger)))

		case "postgres":
			storageConfig := storage.LoadConfig()

			sink, err := storage.NewPostgresSink(ctx, storageConfig, storage.WithSinkLogger(logger))
			if err != nil {
				return fmt.Errorf("open postgres sink: %w", err)
			}

			logger.Info("Writing warehouse to PostgreSQL",
				slog.String("database_url", storageConfig.MaskDatabaseURL()),
				slog.Duration("load_timeout", storageConfig.LoadTimeout))

			d.sinks = append(d.sinks, sink)
			d.closers = append(d.closers, sink)

		case "gcs":
			sink, err := warehouse.NewGCSSink(ctx, cfg.Sink.GCSBucket, cfg.Sink.GCSPrefix,
				cfg.Sink.GCSCredentialsFile, logger)
			if err != nil {
				return fmt.Errorf("open gcs sink: %w", err)
			}

			d.sinks = append(d.sinks, sink)
			d.closers = append(d.closers, sink)

		default:
			return fmt.Errorf("%w: %s", ErrUnknownSink, kind)
		}
	}

	return nil
}

// options turns the dependencies and cfg into runner options.
func (d *dependencies) options(cfg *config.PipelineConfig, logger *slog.Logger) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithSinks(d.sinks...),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics.NewRecorder(), cfg.Metrics.TextfilePath),
	}

	if d.publisher != nil {
		opts = append(opts, pipeline.WithPublisher(d.publisher))
	}

	return opts
}

// Close releases every opened resource in reverse order.
func (d *dependencies) Close() error {
	var errs []error

	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	d.closers = nil

	return errors.Join(errs...)
}
