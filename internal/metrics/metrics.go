// Package metrics records the outcome of one warehouse batch as Prometheus gauges and
// writes them to a textfile for the node exporter textfile collector.
//
// A batch is a short-lived process, so every metric is a gauge describing the last run
// rather than a counter accumulated over a process lifetime.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/scd"
)

const namespace = "rcm_warehouse"

// Recorder holds the batch gauges on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	Outcomes      *prometheus.GaugeVec
	TableRows     *prometheus.GaugeVec
	Unresolved    *prometheus.GaugeVec
	Warnings      *prometheus.GaugeVec
	Findings      *prometheus.GaugeVec
	Duration      prometheus.Gauge
	LastSuccess   prometheus.Gauge
	LastRunFailed prometheus.Gauge
}

// NewRecorder creates and registers the batch gauges.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Outcomes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "patients",
			Name:      "records",
			Help:      "Incoming patient records of the last batch by change detection outcome",
		}, []string{"outcome"}),
		TableRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "table_rows",
			Help:      "Rows written per warehouse table by the last batch",
		}, []string{"table"}),
		Unresolved: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "unresolved_references",
			Help:      "Fact references without a matching dimension row, per checked pair",
		}, []string{"check"}),
		Warnings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scd",
			Name:      "warnings",
			Help:      "Data-quality warnings raised while versioning, by kind",
		}, []string{"kind"}),
		Findings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cleansing",
			Name:      "findings",
			Help:      "Cleansing findings of the last batch, by rule",
		}, []string{"rule"}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of the last batch",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last batch that persisted the warehouse",
		}),
		LastRunFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_failed",
			Help:      "1 when the last batch failed before persisting, 0 otherwise",
		}),
	}

	r.registry.MustRegister(
		r.Outcomes, r.TableRows, r.Unresolved, r.Warnings, r.Findings,
		r.Duration, r.LastSuccess, r.LastRunFailed,
	)

	return r
}

// Registry exposes the private registry, for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveReconcile records the change detection outcomes and warnings of a batch.
func (r *Recorder) ObserveReconcile(stats scd.Stats, warnings []scd.Warning) {
	r.Outcomes.WithLabelValues(scd.OutcomeNew.String()).Set(float64(stats.New))
	r.Outcomes.WithLabelValues(scd.OutcomeChanged.String()).Set(float64(stats.Changed))
	r.Outcomes.WithLabelValues(scd.OutcomeUnchanged.String()).Set(float64(stats.Unchanged))
	r.Outcomes.WithLabelValues("rejected").Set(float64(stats.Rejected))

	r.Warnings.Reset()

	for _, w := range warnings {
		r.Warnings.WithLabelValues(string(w.Kind)).Inc()
	}
}

// ObserveTables records the row count of every written table.
func (r *Recorder) ObserveTables(counts map[string]int) {
	setAll(r.TableRows, counts)
}

// ObserveUnresolved records unresolved references per integrity check.
func (r *Recorder) ObserveUnresolved(counts map[string]int) {
	setAll(r.Unresolved, counts)
}

// ObserveFindings records cleansing findings per rule.
func (r *Recorder) ObserveFindings(counts map[string]int) {
	setAll(r.Findings, counts)
}

// ObserveRun records the duration and result of a batch finished at end.
func (r *Recorder) ObserveRun(duration time.Duration, end time.Time, err error) {
	r.Duration.Set(duration.Seconds())

	if err != nil {
		r.LastRunFailed.Set(1)

		return
	}

	r.LastRunFailed.Set(0)
	r.LastSuccess.Set(float64(end.Unix()))
}

// WriteTextfile writes every gauge to path in the text exposition format. The file is
// written to a temporary name and renamed, so a collector never reads a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}

	return nil
}

func setAll(vec *prometheus.GaugeVec, counts map[string]int) {
	vec.Reset()

	for label, n := range counts {
		vec.WithLabelValues(label).Set(float64(n))
	}
}
