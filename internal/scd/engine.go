package scd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/canonicalization"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

type (
	// Engine reconciles incoming batches against a dimension snapshot.
	// Immutable after construction.
	Engine struct {
		normalizer  *canonicalization.Normalizer
		detector    *Detector
		resolver    *canonicalization.ColumnResolver
		passthrough []string
		logger      *slog.Logger
	}

	// Option configures an Engine.
	Option func(*Engine)

	// current tracks the baseline version of one natural key during a batch.
	current struct {
		index     int
		canonical canonicalization.Canonical
		minted    bool
	}
)

// WithPassthrough carries extra, untracked columns (e.g. source) onto minted versions.
// A passthrough column missing from the batch is left empty.
func WithPassthrough(columns ...string) Option {
	return func(e *Engine) {
		e.passthrough = append(e.passthrough, columns...)
	}
}

// WithColumnResolver sets the resolver used to locate batch columns.
func WithColumnResolver(r *canonicalization.ColumnResolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine returns an engine versioning the attributes tracked by n.
func NewEngine(n *canonicalization.Normalizer, opts ...Option) *Engine {
	e := &Engine{
		normalizer: n,
		detector:   NewDetector(n),
		resolver:   canonicalization.NewColumnResolver(nil),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Repair converts persisted rows into records, filling absent SCD metadata with defaults:
//   - effective_date: batchDate
//   - expiry_date: FarFuture
//   - is_current: true unless the row carries an expiry before FarFuture
//   - version: 1
//   - surrogate key: assigned sequentially after the largest key present
//
// Attribute fingerprints are recomputed. An empty rows slice is a valid cold start.
func (e *Engine) Repair(rows []SnapshotRow, batchDate time.Time) ([]Record, []Warning) {
	batchDate = canonicalization.TruncateDay(batchDate)

	var highest int64

	for _, row := range rows {
		if row.SurrogateKey != nil && *row.SurrogateKey > highest {
			highest = *row.SurrogateKey
		}
	}

	alloc := NewKeyAllocator(highest)
	records := make([]Record, 0, len(rows))
	repaired := 0

	for _, row := range rows {
		rec := Record{
			NaturalKey:    row.NaturalKey,
			Attributes:    cloneMap(row.Attributes),
			Passthrough:   cloneMap(row.Passthrough),
			EffectiveDate: batchDate,
			ExpiryDate:    FarFuture,
			IsCurrent:     true,
			Version:       1,
		}

		filled := false

		if row.SurrogateKey != nil {
			rec.SurrogateKey = *row.SurrogateKey
		} else {
			rec.SurrogateKey = alloc.Next()
			filled = true
		}

		if row.EffectiveDate != nil {
			rec.EffectiveDate = row.EffectiveDate.UTC()
		} else {
			filled = true
		}

		if row.ExpiryDate != nil {
			rec.ExpiryDate = row.ExpiryDate.UTC()
		} else {
			filled = true
		}

		if row.IsCurrent != nil {
			rec.IsCurrent = *row.IsCurrent
		} else {
			rec.IsCurrent = !rec.ExpiryDate.Before(FarFuture)
			filled = true
		}

		if row.Version != nil && *row.Version > 0 {
			rec.Version = *row.Version
		} else {
			filled = true
		}

		if c, err := e.normalizer.NormalizeLenient(rec.NaturalKey, rec.Attributes); err == nil {
			rec.AttrsHash = e.normalizer.Fingerprint(c)
		}

		if filled {
			repaired++
		}

		records = append(records, rec)
	}

	var warnings []Warning

	if repaired > 0 {
		warnings = append(warnings, Warning{
			Kind:    WarnRepairedSnapshot,
			Row:     -1,
			Message: fmt.Sprintf("%d snapshot rows had missing SCD metadata and were given defaults", repaired),
		})
	}

	return records, warnings
}

// Reconcile applies one batch to the snapshot as of batchDate and returns the new snapshot.
//
// The snapshot slice is never modified. A batch without the key column or a tracked
// column fails with ErrSchemaMismatch; a single row that cannot be normalized is
// rejected with a warning and the rest of the batch proceeds.
func (e *Engine) Reconcile(snapshot []Record, batch model.Table, batchDate time.Time) (*Result, error) {
	batchDate = canonicalization.TruncateDay(batchDate)

	keyField := e.normalizer.KeyField()
	tracked := e.normalizer.Tracked()

	required := append([]string{keyField}, tracked...)

	positions, missing := e.resolver.Index(batch.Columns, required)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}

	passthrough, _ := e.resolver.Index(batch.Columns, e.passthrough)

	result := &Result{
		Records: make([]Record, len(snapshot), len(snapshot)+len(batch.Rows)),
	}

	for i, rec := range snapshot {
		result.Records[i] = rec.clone()
	}

	currents := e.indexCurrent(result)
	alloc := NewKeyAllocator(MaxSurrogateKey(snapshot))

	for rowIdx, row := range batch.Rows {
		result.Stats.Incoming++

		rawKey := strings.TrimSpace(cell(row, positions[keyField]))

		attrs := make(map[string]string, len(tracked))
		for _, attr := range tracked {
			attrs[attr] = cell(row, positions[attr])
		}

		canonical, err := e.normalizer.Normalize(rawKey, attrs)
		if err != nil {
			result.Stats.Rejected++
			result.Warnings = append(result.Warnings, Warning{
				Kind:       WarnRejectedRow,
				NaturalKey: rawKey,
				Row:        rowIdx,
				Message:    err.Error(),
			})

			continue
		}

		extra := make(map[string]string, len(e.passthrough))
		for _, col := range e.passthrough {
			if pos, ok := passthrough[col]; ok {
				extra[col] = cell(row, pos)
			}
		}

		baseline, exists := currents[canonical.Key]

		var baselineCanonical *canonicalization.Canonical
		if exists {
			baselineCanonical = &baseline.canonical
		}

		outcome := e.detector.Detect(canonical, baselineCanonical)
		decision := Decision{Row: rowIdx, NaturalKey: rawKey, Outcome: outcome}

		switch outcome {
		case OutcomeNew:
			rec := e.mint(alloc, rawKey, attrs, extra, canonical, 1, batchDate)
			result.Records = append(result.Records, rec)
			currents[canonical.Key] = current{index: len(result.Records) - 1, canonical: canonical, minted: true}

			result.Stats.New++
			decision.SurrogateKey, decision.Version = rec.SurrogateKey, rec.Version

		case OutcomeChanged:
			prev := &result.Records[baseline.index]
			prev.IsCurrent = false
			prev.ExpiryDate = batchDate
			result.Stats.Expired++

			if baseline.minted {
				result.Warnings = append(result.Warnings, Warning{
					Kind:       WarnRepeatedChange,
					NaturalKey: rawKey,
					Row:        rowIdx,
					Message: fmt.Sprintf("version %d minted earlier in this batch is superseded on the same day",
						prev.Version),
				})
			}

			rec := e.mint(alloc, rawKey, attrs, extra, canonical, prev.Version+1, batchDate)
			result.Records = append(result.Records, rec)
			currents[canonical.Key] = current{index: len(result.Records) - 1, canonical: canonical, minted: true}

			result.Stats.Changed++
			decision.SurrogateKey, decision.Version = rec.SurrogateKey, rec.Version

		case OutcomeUnchanged:
			rec := result.Records[baseline.index]

			result.Stats.Unchanged++
			decision.SurrogateKey, decision.Version = rec.SurrogateKey, rec.Version
		}

		result.Decisions = append(result.Decisions, decision)
	}

	e.logger.Debug("reconciled batch",
		slog.Time("batch_date", batchDate),
		slog.Int("incoming", result.Stats.Incoming),
		slog.Int("new", result.Stats.New),
		slog.Int("changed", result.Stats.Changed),
		slog.Int("unchanged", result.Stats.Unchanged),
		slog.Int("rejected", result.Stats.Rejected))

	return result, nil
}

// indexCurrent maps each canonical natural key to its first current version. Every
// further current version of the same key is reported as a duplicate.
func (e *Engine) indexCurrent(result *Result) map[string]current {
	currents := make(map[string]current, len(result.Records))

	for i, rec := range result.Records {
		if !rec.IsCurrent {
			continue
		}

		canonical, err := e.normalizer.NormalizeLenient(rec.NaturalKey, rec.Attributes)
		if err != nil {
			result.Warnings = append(result.Warnings, Warning{
				Kind:    WarnUnindexedSnapshotRow,
				Row:     -1,
				Message: fmt.Sprintf("surrogate key %d: %v", rec.SurrogateKey, err),
			})

			continue
		}

		if first, dup := currents[canonical.Key]; dup {
			result.Warnings = append(result.Warnings, Warning{
				Kind:       WarnDuplicateCurrent,
				NaturalKey: rec.NaturalKey,
				Row:        -1,
				Message: fmt.Sprintf("surrogate key %d is also current; comparing against surrogate key %d",
					rec.SurrogateKey, result.Records[first.index].SurrogateKey),
			})

			continue
		}

		currents[canonical.Key] = current{index: i, canonical: canonical}
	}

	return currents
}

func (e *Engine) mint(
	alloc *KeyAllocator,
	key string,
	attrs, extra map[string]string,
	canonical canonicalization.Canonical,
	version int,
	batchDate time.Time,
) Record {
	return Record{
		SurrogateKey:  alloc.Next(),
		NaturalKey:    key,
		Attributes:    cloneMap(attrs),
		Passthrough:   cloneMap(extra),
		EffectiveDate: batchDate,
		ExpiryDate:    FarFuture,
		IsCurrent:     true,
		Version:       version,
		AttrsHash:     e.normalizer.Fingerprint(canonical),
	}
}

func cell(row []string, pos int) string {
	if pos < 0 || pos >= len(row) {
		return ""
	}

	return row[pos]
}
