package warehouse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

const parquetContentType = "application/vnd.apache.parquet"

type (
	// ObjectStore creates writers for named objects. The object becomes visible when the
	// writer is closed without error.
	ObjectStore interface {
		NewWriter(ctx context.Context, name string) io.WriteCloser
	}

	// GCSSink exports the warehouse as Parquet objects under a bucket prefix. Each run
	// writes gs://<bucket>/<prefix>/runs/<run id>/<table>.parquet and then refreshes
	// gs://<bucket>/<prefix>/latest/<table>.parquet.
	GCSSink struct {
		store  ObjectStore
		bucket string
		prefix string
		logger *slog.Logger
		closer io.Closer
	}

	// bucketStore adapts a GCS bucket handle to ObjectStore.
	bucketStore struct {
		bucket *storage.BucketHandle
	}
)

// NewWriter opens a resumable upload of a Parquet object.
func (b bucketStore) NewWriter(ctx context.Context, name string) io.WriteCloser {
	w := b.bucket.Object(name).NewWriter(ctx)
	w.ContentType = parquetContentType
	w.CacheControl = "no-cache"

	return w
}

// NewGCSSink connects to Cloud Storage. An empty credentialsFile uses application
// default credentials.
func NewGCSSink(ctx context.Context, bucket, prefix, credentialsFile string, logger *slog.Logger) (*GCSSink, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	sink := NewGCSSinkWithStore(bucketStore{bucket: client.Bucket(bucket)}, bucket, prefix, logger)
	sink.closer = client

	return sink, nil
}

// NewGCSSinkWithStore returns a sink writing through store.
func NewGCSSinkWithStore(store ObjectStore, bucket, prefix string, logger *slog.Logger) *GCSSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &GCSSink{store: store, bucket: bucket, prefix: prefix, logger: logger}
}

// Name identifies the sink in logs and run reports.
func (s *GCSSink) Name() string {
	return "gcs"
}

// Persist uploads every table for the run, then the latest copies. A failure while
// uploading the run copies leaves latest/ at the previous batch.
func (s *GCSSink) Persist(ctx context.Context, wh *model.Warehouse) error {
	runDir := path.Join(s.prefix, "runs", wh.RunID)
	if wh.RunID == "" {
		runDir = path.Join(s.prefix, "runs", wh.BatchDate.Format("2006-01-02"))
	}

	encoders := tableEncoders(wh)

	for _, stage := range []string{runDir, path.Join(s.prefix, "latest")} {
		for _, enc := range encoders {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", ErrSinkFailed, err)
			}

			name := path.Join(stage, FileName(enc.name))
			if err := s.upload(ctx, name, enc); err != nil {
				return fmt.Errorf("%w: gs://%s/%s: %w", ErrSinkFailed, s.bucket, name, err)
			}
		}
	}

	s.logger.Info("warehouse exported to cloud storage",
		slog.String("bucket", s.bucket),
		slog.String("run_dir", runDir))

	return nil
}

func (s *GCSSink) upload(ctx context.Context, name string, enc tableEncoder) error {
	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.store.NewWriter(uploadCtx, name)

	if err := enc.encode(w); err != nil {
		cancel() // abandons the upload instead of publishing a partial object
		_ = w.Close()

		return err
	}

	return w.Close()
}

// Close releases the storage client.
func (s *GCSSink) Close() error {
	if s.closer == nil {
		return nil
	}

	return s.closer.Close()
}
