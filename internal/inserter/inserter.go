package inserter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/csv-table-loader/internal/connector"
	"github.com/vitebski/csv-table-loader/pkg/models"
)

// BulkInserter writes rows to a table in atomic batches
type BulkInserter struct {
	DB           *connector.DatabaseConnector
	MaxBatchSize int
	Logger       *logrus.Logger
}

// NewBulkInserter creates a new bulk inserter with the default batch limit
func NewBulkInserter(db *connector.DatabaseConnector, logger *logrus.Logger) *BulkInserter {
	return &BulkInserter{
		DB:           db,
		MaxBatchSize: models.DefaultMaxBatchSize,
		Logger:       logger,
	}
}

// Partition splits rows into consecutive batches of at most size rows
func Partition(rows []models.Row, size int) []models.RowBatch {
	if size <= 0 {
		return nil
	}

	batches := make([]models.RowBatch, 0, (len(rows)+size-1)/size)
	for offset := 0; offset < len(rows); offset += size {
		end := offset + size
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, models.RowBatch{
			Index:  len(batches),
			Offset: offset,
			Rows:   rows[offset:end],
		})
	}
	return batches
}

// InsertRows inserts rows into schema.table, one transaction per batch.
// On failure the remaining batches are skipped and the result holds the rows already committed.
func (bi *BulkInserter) InsertRows(
	ctx context.Context,
	structure models.TableStructure,
	rows []models.Row,
	batchSize int,
	schemaName string,
	tableName string,
) (models.InsertResult, error) {
	var result models.InsertResult

	if batchSize <= 0 {
		return result, models.NewInsertError("batch size must be positive, got %d", batchSize)
	}
	if bi.MaxBatchSize > 0 && batchSize > bi.MaxBatchSize {
		bi.Logger.Warningf("Batch size %d exceeds the limit of %d rows, using %d", batchSize, bi.MaxBatchSize, bi.MaxBatchSize)
		batchSize = bi.MaxBatchSize
	}
	if len(structure) == 0 {
		return result, models.NewInsertError("no columns to insert into %s", tableName)
	}

	insertSQL := bi.InsertSQL(schemaName, tableName, structure)
	batches := Partition(rows, batchSize)

	bi.Logger.Infof("Inserting %d rows into %s in %d batches of up to %d rows", len(rows), tableName, len(batches), batchSize)

	for _, batch := range batches {
		// Cancellation is only honoured between batches
		if err := ctx.Err(); err != nil {
			bi.Logger.Warningf("Load cancelled after %d of %d batches", result.BatchesCommitted, len(batches))
			return result, models.NewInsertError("cancelled before batch %d, %d rows committed: %w", batch.Index+1, result.RowsInserted, err)
		}

		paramsList := make([][]interface{}, len(batch.Rows))
		for i, row := range batch.Rows {
			if len(row) != len(structure) {
				return result, models.NewInsertError("batch %d: row %d has %d values, expected %d", batch.Index+1, batch.Offset+i+1, len(row), len(structure))
			}
			paramsList[i] = row
		}

		_, err := bi.DB.ExecuteMany(context.WithoutCancel(ctx), insertSQL, paramsList)
		if err != nil {
			bi.Logger.Errorf("Error inserting batch %d into table %s: %v", batch.Index+1, tableName, err)
			return result, models.NewInsertError("batch %d (rows %d-%d) into %s, %d rows committed before failure: %s: %w",
				batch.Index+1, batch.Offset+1, batch.Offset+len(batch.Rows), tableName, result.RowsInserted, describeDriverError(err), err)
		}

		result.RowsInserted += int64(len(batch.Rows))
		result.BatchesCommitted++
		result.BatchSizes = append(result.BatchSizes, len(batch.Rows))
		bi.Logger.Debugf("Committed batch %d/%d (%d rows)", batch.Index+1, len(batches), len(batch.Rows))
	}

	bi.Logger.Infof("Successfully inserted %d rows into %s", result.RowsInserted, tableName)
	return result, nil
}

// InsertSQL renders the parameterized INSERT statement for the structure
func (bi *BulkInserter) InsertSQL(schemaName, tableName string, structure models.TableStructure) string {
	columns := make([]string, len(structure))
	for i, col := range structure {
		columns[i] = bi.DB.QuoteIdentifier(col.Name)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		bi.DB.QualifiedName(schemaName, tableName),
		strings.Join(columns, ", "),
		bi.DB.Placeholders(len(structure)),
	)
}

// describeDriverError extracts the server error code from postgres and mysql errors
func describeDriverError(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Sprintf("SQLSTATE %s", pgErr.Code)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return fmt.Sprintf("MySQL error %d", myErr.Number)
	}
	return "driver error"
}
