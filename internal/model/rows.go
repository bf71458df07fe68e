package model

import (
	"strconv"
	"time"
)

// Warehouse table names.
const (
	TableDimPatients      = "dim_patients"
	TableDimProviders     = "dim_providers"
	TableDimProcedures    = "dim_procedures"
	TableDimDate          = "dim_date"
	TableFactTransactions = "fact_transactions"
	TableFactClaims       = "fact_claims"
)

// Patient dimension column names that are not tracked attributes.
const (
	ColumnUnifiedPatientID = "unified_patient_id"
	ColumnSource           = "source"
	ColumnPatientID        = "PatientID"
)

// PatientAttributes lists the patient columns the dimension can persist.
var PatientAttributes = []string{
	"FirstName", "LastName", "MiddleName", "SSN", "PhoneNumber", "Gender", "DOB", "Address",
}

type (
	// PatientDimRow is one historized patient version as stored in dim_patients.
	// SCD metadata is optional so that an incomplete snapshot can be read and repaired.
	PatientDimRow struct {
		PatientSK        *int64     `parquet:"patient_sk,optional"`
		UnifiedPatientID string     `parquet:"unified_patient_id"`
		Source           string     `parquet:"source,optional"`
		FirstName        string     `parquet:"FirstName,optional"`
		LastName         string     `parquet:"LastName,optional"`
		MiddleName       string     `parquet:"MiddleName,optional"`
		SSN              string     `parquet:"SSN,optional"`
		PhoneNumber      string     `parquet:"PhoneNumber,optional"`
		Gender           string     `parquet:"Gender,optional"`
		DOB              string     `parquet:"DOB,optional"`
		Address          string     `parquet:"Address,optional"`
		AttrsHash        string     `parquet:"attrs_hash,optional"`
		EffectiveDate    *time.Time `parquet:"effective_date,optional"`
		ExpiryDate       *time.Time `parquet:"expiry_date,optional"`
		IsCurrent        *bool      `parquet:"is_current,optional"`
		Version          *int64     `parquet:"version,optional"`
	}

	// ProviderDimRow is one row of dim_providers.
	ProviderDimRow struct {
		ProviderSK int64  `parquet:"provider_sk"`
		ProviderID string `parquet:"ProviderID"`
	}

	// ProcedureDimRow is one row of dim_procedures.
	ProcedureDimRow struct {
		ProcedureSK   int64  `parquet:"procedure_sk"`
		ProcedureCode string `parquet:"ProcedureCode"`
	}

	// DateDimRow is one calendar day of dim_date. DayOfWeek counts from Monday=0.
	DateDimRow struct {
		DateSK    int64     `parquet:"date_sk"`
		Date      time.Time `parquet:"date"`
		Year      int32     `parquet:"year"`
		Month     int32     `parquet:"month"`
		Day       int32     `parquet:"day"`
		Quarter   int32     `parquet:"quarter"`
		DayOfWeek int32     `parquet:"day_of_week"`
	}

	// TransactionFactRow is one row of fact_transactions. Unresolved references are nil.
	TransactionFactRow struct {
		TransactionID   string     `parquet:"TransactionID"`
		TransactionKey  string     `parquet:"TransactionKey"`
		PatientSK       *int64     `parquet:"patient_sk,optional"`
		ProviderSK      *int64     `parquet:"provider_sk,optional"`
		ProcedureSK     *int64     `parquet:"procedure_sk,optional"`
		ServiceDateSK   *int64     `parquet:"service_date_sk,optional"`
		ServiceDate     *time.Time `parquet:"ServiceDate,optional"`
		Amount          *float64   `parquet:"Amount,optional"`
		AmountType      string     `parquet:"AmountType,optional"`
		PaidAmount      *float64   `parquet:"PaidAmount,optional"`
		CoveragePercent *float64   `parquet:"CoveragePercent,optional"`
		PaymentStatus   string     `parquet:"PaymentStatus,optional"`
		ClaimID         string     `parquet:"ClaimID,optional"`
		PayorID         string     `parquet:"PayorID,optional"`
		VisitType       string     `parquet:"VisitType,optional"`
	}

	// ClaimFactRow is one row of fact_claims.
	ClaimFactRow struct {
		ClaimSK          int64      `parquet:"claim_sk"`
		ClaimID          string     `parquet:"ClaimID"`
		TransactionID    string     `parquet:"TransactionID,optional"`
		Source           string     `parquet:"source"`
		PatientID        string     `parquet:"PatientID"`
		UnifiedPatientID string     `parquet:"unified_patient_id"`
		PatientSK        *int64     `parquet:"patient_sk,optional"`
		ServiceDate      *time.Time `parquet:"ServiceDate,optional"`
		ServiceDateSK    *int64     `parquet:"ServiceDate_sk,optional"`
		PaidDate         *time.Time `parquet:"PaidDate,optional"`
		PaidDateSK       *int64     `parquet:"PaidDate_sk,optional"`
		ClaimAmount      *float64   `parquet:"ClaimAmount,optional"`
		PaidAmount       *float64   `parquet:"PaidAmount,optional"`
		ClaimStatus      string     `parquet:"ClaimStatus,optional"`
		PayorID          string     `parquet:"PayorID,optional"`
		PayorType        string     `parquet:"PayorType,optional"`
	}
)

// Attribute returns the value of a persisted patient attribute by column name.
func (r PatientDimRow) Attribute(name string) (string, bool) {
	switch name {
	case "FirstName":
		return r.FirstName, true
	case "LastName":
		return r.LastName, true
	case "MiddleName":
		return r.MiddleName, true
	case "SSN":
		return r.SSN, true
	case "PhoneNumber":
		return r.PhoneNumber, true
	case "Gender":
		return r.Gender, true
	case "DOB":
		return r.DOB, true
	case "Address":
		return r.Address, true
	case ColumnSource:
		return r.Source, true
	default:
		return "", false
	}
}

// SetAttribute stores a patient attribute by column name. Unknown names are ignored and
// reported as false.
func (r *PatientDimRow) SetAttribute(name, value string) bool {
	switch name {
	case "FirstName":
		r.FirstName = value
	case "LastName":
		r.LastName = value
	case "MiddleName":
		r.MiddleName = value
	case "SSN":
		r.SSN = value
	case "PhoneNumber":
		r.PhoneNumber = value
	case "Gender":
		r.Gender = value
	case "DOB":
		r.DOB = value
	case "Address":
		r.Address = value
	case ColumnSource:
		r.Source = value
	default:
		return false
	}

	return true
}

// FormatKey renders a nullable surrogate key the way the integrity check compares it.
func FormatKey(key *int64) string {
	if key == nil {
		return ""
	}

	return strconv.FormatInt(*key, 10)
}

// KeyPtr returns a pointer to key.
func KeyPtr(key int64) *int64 {
	return &key
}
