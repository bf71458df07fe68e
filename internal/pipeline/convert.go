package pipeline

import (
	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/scd"
)

// untrackedColumns returns the persisted patient columns that are carried through
// versioning without being compared: the source system and every patient attribute the
// policy does not track.
func untrackedColumns(tracked []string) []string {
	isTracked := make(map[string]bool, len(tracked))
	for _, attr := range tracked {
		isTracked[attr] = true
	}

	columns := []string{model.ColumnSource}

	for _, attr := range model.PatientAttributes {
		if !isTracked[attr] {
			columns = append(columns, attr)
		}
	}

	return columns
}

// snapshotRows converts persisted patient rows into versioning input.
func snapshotRows(rows []model.PatientDimRow, tracked, untracked []string) []scd.SnapshotRow {
	out := make([]scd.SnapshotRow, len(rows))

	for i, row := range rows {
		attrs := make(map[string]string, len(tracked))
		for _, attr := range tracked {
			attrs[attr], _ = row.Attribute(attr)
		}

		extra := make(map[string]string, len(untracked))
		for _, col := range untracked {
			extra[col], _ = row.Attribute(col)
		}

		var version *int
		if row.Version != nil {
			v := int(*row.Version)
			version = &v
		}

		out[i] = scd.SnapshotRow{
			NaturalKey:    row.UnifiedPatientID,
			Attributes:    attrs,
			Passthrough:   extra,
			SurrogateKey:  row.PatientSK,
			EffectiveDate: row.EffectiveDate,
			ExpiryDate:    row.ExpiryDate,
			IsCurrent:     row.IsCurrent,
			Version:       version,
		}
	}

	return out
}

// patientRows converts versioned records into persisted dim_patients rows.
func patientRows(records []scd.Record) []model.PatientDimRow {
	rows := make([]model.PatientDimRow, len(records))

	for i, rec := range records {
		effective, expiry := rec.EffectiveDate, rec.ExpiryDate
		current := rec.IsCurrent
		version := int64(rec.Version)

		row := model.PatientDimRow{
			PatientSK:        model.KeyPtr(rec.SurrogateKey),
			UnifiedPatientID: rec.NaturalKey,
			AttrsHash:        rec.AttrsHash,
			EffectiveDate:    &effective,
			ExpiryDate:       &expiry,
			IsCurrent:        &current,
			Version:          &version,
		}

		for col, value := range rec.Passthrough {
			row.SetAttribute(col, value)
		}

		for attr, value := range rec.Attributes {
			row.SetAttribute(attr, value)
		}

		rows[i] = row
	}

	return rows
}
