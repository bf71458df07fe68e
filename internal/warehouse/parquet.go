// Package warehouse moves tables between the pipeline and Parquet files, either on local
// disk or in a Google Cloud Storage bucket.
//
// Layout of a warehouse directory (or bucket prefix):
//
//	dim_patients.parquet
//	dim_providers.parquet
//	dim_procedures.parquet
//	dim_date.parquet
//	fact_transactions.parquet
//	fact_claims.parquet
//
// Layout of a staging directory:
//
//	patients_<source>.parquet    one per hospital system, columns as extracted
//	transactions*.parquet        model.StagedTransaction rows
//	claims*.parquet              model.StagedClaim rows
package warehouse

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/model"
)

// FileExtension is the suffix of every table file.
const FileExtension = ".parquet"

// tableEncoder writes one warehouse table as a Parquet stream.
type tableEncoder struct {
	name   string
	rows   int
	encode func(w io.Writer) error
}

// FileName returns the file name of a warehouse table.
func FileName(table string) string {
	return table + FileExtension
}

// tableEncoders lists the warehouse tables in load order.
func tableEncoders(wh *model.Warehouse) []tableEncoder {
	return []tableEncoder{
		newTableEncoder(model.TableDimPatients, wh.Patients),
		newTableEncoder(model.TableDimProviders, wh.Providers),
		newTableEncoder(model.TableDimProcedures, wh.Procedures),
		newTableEncoder(model.TableDimDate, wh.Dates),
		newTableEncoder(model.TableFactTransactions, wh.Transactions),
		newTableEncoder(model.TableFactClaims, wh.Claims),
	}
}

func newTableEncoder[T any](name string, rows []T) tableEncoder {
	return tableEncoder{
		name: name,
		rows: len(rows),
		encode: func(w io.Writer) error {
			return writeRows(w, rows)
		},
	}
}

// writeRows writes rows as one Snappy-compressed Parquet file. An empty slice still
// produces a valid file carrying the schema.
func writeRows[T any](w io.Writer, rows []T) error {
	writer := parquet.NewGenericWriter[T](w, parquet.Compression(&parquet.Snappy))

	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			_ = writer.Close()

			return fmt.Errorf("write rows: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}

	return nil
}
