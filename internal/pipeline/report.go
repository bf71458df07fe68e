package pipeline

import (
	"time"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/cleansing"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/integrity"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/scd"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunReport summarizes one batch for the log, the metrics textfile and the published event.
//
//nolint:tagliatelle // snake_case is the report wire format
type RunReport struct {
	RunID             string         `json:"run_id"`
	BatchDate         time.Time      `json:"batch_date"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	Status            string         `json:"status"`
	Error             string         `json:"error,omitempty"`
	SnapshotRecovered bool           `json:"snapshot_recovered"`
	Patients          scd.Stats      `json:"patients"`
	Tables            map[string]int `json:"tables"`
	Unresolved        map[string]int `json:"unresolved_references"`
	Skipped           []string       `json:"skipped_checks,omitempty"`
	Warnings          []string       `json:"warnings,omitempty"`
	WarningCounts     map[string]int `json:"warning_counts"`
	Findings          map[string]int `json:"findings"`
	Sinks             []string       `json:"sinks"`

	warnings  []scd.Warning
	integrity *integrity.Report
	findings  []cleansing.Finding
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Integrity returns the integrity report of the run, nil before facts were built.
func (r *RunReport) Integrity() *integrity.Report {
	return r.integrity
}

// VersioningWarnings returns the warnings raised while versioning patients.
func (r *RunReport) VersioningWarnings() []scd.Warning {
	return r.warnings
}

// CleansingFindings returns the data-quality findings of cleansing.
func (r *RunReport) CleansingFindings() []cleansing.Finding {
	return r.findings
}

func (r *RunReport) addWarnings(warnings []scd.Warning) {
	r.warnings = append(r.warnings, warnings...)

	for _, w := range warnings {
		r.Warnings = append(r.Warnings, w.String())
		r.WarningCounts[string(w.Kind)]++
	}
}

func (r *RunReport) setIntegrity(report *integrity.Report) {
	r.integrity = report
	r.Unresolved = report.Counts()

	for _, c := range report.Checks {
		if c.Skipped {
			r.Skipped = append(r.Skipped, c.Key()+": "+c.Reason)
		}
	}
}

func (r *RunReport) setFindings(findings []cleansing.Finding) {
	r.findings = findings
	r.Findings = cleansing.CountByRule(findings)
}
