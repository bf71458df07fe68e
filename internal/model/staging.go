package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	// StagedTransaction is one extracted transaction as landed in the staging area.
	// Dates stay as written by the source system and are parsed during cleansing.
	StagedTransaction struct {
		TransactionID  string   `parquet:"TransactionID"`
		Source         string   `parquet:"source"`
		PatientID      string   `parquet:"PatientID"`
		EncounterID    string   `parquet:"EncounterID,optional"`
		ProviderID     string   `parquet:"ProviderID,optional"`
		DeptID         string   `parquet:"DeptID,optional"`
		VisitDate      string   `parquet:"VisitDate,optional"`
		ServiceDate    string   `parquet:"ServiceDate,optional"`
		PaidDate       string   `parquet:"PaidDate,optional"`
		VisitType      string   `parquet:"VisitType,optional"`
		Amount         *float64 `parquet:"Amount,optional"`
		AmountType     string   `parquet:"AmountType,optional"`
		PaidAmount     *float64 `parquet:"PaidAmount,optional"`
		ClaimID        string   `parquet:"ClaimID,optional"`
		PayorID        string   `parquet:"PayorID,optional"`
		ProcedureCode  string   `parquet:"ProcedureCode,optional"`
		ICDCode        string   `parquet:"ICDCode,optional"`
		LineOfBusiness string   `parquet:"LineOfBusiness,optional"`
	}

	// StagedClaim is one claim row from the payer claim files.
	StagedClaim struct {
		ClaimID       string   `parquet:"ClaimID"`
		TransactionID string   `parquet:"TransactionID,optional"`
		PatientID     string   `parquet:"PatientID"`
		EncounterID   string   `parquet:"EncounterID,optional"`
		Source        string   `parquet:"source"`
		ServiceDate   string   `parquet:"ServiceDate,optional"`
		ClaimDate     string   `parquet:"ClaimDate,optional"`
		PaidDate      string   `parquet:"PaidDate,optional"`
		PayorID       string   `parquet:"PayorID,optional"`
		ClaimAmount   *float64 `parquet:"ClaimAmount,optional"`
		PaidAmount    *float64 `parquet:"PaidAmount,optional"`
		ClaimStatus   string   `parquet:"ClaimStatus,optional"`
		PayorType     string   `parquet:"PayorType,optional"`
	}

	// Transaction is a cleansed transaction ready for dimensional modeling.
	Transaction struct {
		TransactionID    string
		TransactionKey   string
		Source           string
		PatientID        string
		UnifiedPatientID string
		ProviderID       string
		ProcedureCode    string
		VisitDate        *time.Time
		ServiceDate      *time.Time
		PaidDate         *time.Time
		VisitType        string
		Amount           decimal.NullDecimal
		AmountType       string
		PaidAmount       decimal.NullDecimal
		CoveragePercent  decimal.Decimal
		PaymentStatus    string
		ClaimID          string
		PayorID          string
	}

	// Claim is a cleansed claim ready for dimensional modeling.
	Claim struct {
		ClaimID          string
		TransactionID    string
		Source           string
		PatientID        string
		UnifiedPatientID string
		ServiceDate      *time.Time
		PaidDate         *time.Time
		ClaimAmount      decimal.NullDecimal
		PaidAmount       decimal.NullDecimal
		ClaimStatus      string
		PayorID          string
		PayorType        string
	}
)

// UnifiedPatientID qualifies a source-local patient id with its source system.
func UnifiedPatientID(source, patientID string) string {
	return source + "_" + patientID
}

// DecimalFloat converts a nullable decimal to the float column representation.
func DecimalFloat(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}

	f, _ := d.Decimal.Float64()

	return &f
}

// FloatDecimal converts a nullable float column to a decimal.
func FloatDecimal(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}

	return decimal.NewNullDecimal(decimal.NewFromFloat(*f))
}
