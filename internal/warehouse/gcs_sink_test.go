package warehouse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

// memoryStore publishes an object only when its writer closes with a live context.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

type memoryWriter struct {
	ctx   context.Context
	store *memoryStore
	name  string
	buf   bytes.Buffer
}

var errUploadRejected = errors.New("upload rejected")

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) NewWriter(ctx context.Context, name string) io.WriteCloser {
	return &memoryWriter{ctx: ctx, store: m, name: name}
}

func (m *memoryStore) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.name == w.store.failOn {
		return 0, errUploadRejected
	}

	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	w.store.objects[w.name] = w.buf.Bytes()

	return nil
}

func TestGCSSinkUploadsRunAndLatest(t *testing.T) {
	store := newMemoryStore()
	sink := NewGCSSinkWithStore(store, "rcm-bucket", "warehouse", nil)

	require.NoError(t, sink.Persist(context.Background(), sampleWarehouse()))

	names := store.names()
	assert.Len(t, names, 2*len(model.TableNames()))
	assert.Contains(t, names, "warehouse/runs/run-1/dim_patients.parquet")
	assert.Contains(t, names, "warehouse/latest/fact_claims.parquet")

	data := store.objects["warehouse/latest/dim_patients.parquet"]
	reader := parquet.NewGenericReader[model.PatientDimRow](bytes.NewReader(data))

	defer func() {
		_ = reader.Close()
	}()

	assert.Equal(t, int64(1), reader.NumRows())
}

func TestGCSSinkFailureKeepsLatest(t *testing.T) {
	store := newMemoryStore()
	sink := NewGCSSinkWithStore(store, "rcm-bucket", "warehouse", nil)

	require.NoError(t, sink.Persist(context.Background(), sampleWarehouse()))

	before := store.objects["warehouse/latest/dim_patients.parquet"]

	next := sampleWarehouse()
	next.RunID = "run-2"
	next.Patients = nil
	store.failOn = "warehouse/runs/run-2/dim_date.parquet"

	err := sink.Persist(context.Background(), next)
	require.ErrorIs(t, err, ErrSinkFailed)
	require.ErrorIs(t, err, errUploadRejected)

	assert.Equal(t, before, store.objects["warehouse/latest/dim_patients.parquet"])
	assert.NotContains(t, store.names(), "warehouse/runs/run-2/dim_date.parquet", "failed upload is abandoned")
}

func TestGCSSinkRunDirFallsBackToBatchDate(t *testing.T) {
	store := newMemoryStore()
	wh := sampleWarehouse()
	wh.RunID = ""

	require.NoError(t, NewGCSSinkWithStore(store, "b", "", nil).Persist(context.Background(), wh))
	assert.Contains(t, store.names(), "runs/2024-03-01/dim_date.parquet")
}
