package loader

import (
	"context"
	"database/sql/driver"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/csv-table-loader/internal/connector"
	"github.com/vitebski/csv-table-loader/pkg/models"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// newMockLoader returns a loader whose connection is backed by sqlmock
func newMockLoader(t *testing.T, opts Options) (*Loader, sqlmock.Sqlmock, *int) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	profile := models.ServerProfile{Name: "test-server", Driver: models.DriverPostgres, Host: "localhost", Port: "5432", Database: "postgres"}
	l := New(profile, newTestLogger(), opts)

	connects := 0
	l.connect = func(ctx context.Context, fn func(*connector.DatabaseConnector) error) error {
		connects++
		return fn(&connector.DatabaseConnector{Profile: profile, DB: db, Logger: l.Logger})
	}
	return l, mock, &connects
}

func expectCreate(mock sqlmock.Sqlmock, table string) {
	mock.ExpectQuery("FROM information_schema.tables").
		WithArgs("public", table).
		WillReturnRows(sqlmock.NewRows([]string{"table_count"}).AddRow(int64(0)))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "public"."` + table + `"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectInsert(mock sqlmock.Sqlmock, query string, args ...[]interface{}) {
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(query))
	for _, values := range args {
		driverArgs := make([]driver.Value, len(values))
		for i, v := range values {
			driverArgs[i] = v
		}
		prep.ExpectExec().WithArgs(driverArgs...).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
}

func TestRunLoadsCSV(t *testing.T) {
	l, mock, connects := newMockLoader(t, Options{})
	path := writeCSV(t, "people.csv", "id,name\n1,Alice\n2,Bob\n")

	expectCreate(mock, "people")
	expectInsert(mock, `INSERT INTO "public"."people" ("id", "name") VALUES ($1, $2)`,
		[]interface{}{int64(1), "Alice"},
		[]interface{}{int64(2), "Bob"},
	)

	report, err := l.Run(context.Background(), models.LoadJob{CSVPath: path, Table: "people", BatchSize: 100000})
	require.NoError(t, err)

	assert.Equal(t, 1, *connects)
	assert.Equal(t, models.StateDone, report.State)
	assert.Equal(t, "people", report.Job.Name)
	assert.Equal(t, 2, report.RowsRead)
	assert.Equal(t, int64(2), report.Result.RowsInserted)
	assert.Equal(t, models.TableStructure{
		{Name: "id", Type: models.TypeInteger},
		{Name: "name", Type: models.TypeText},
	}, report.Structure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunParseFailureSkipsDatabase(t *testing.T) {
	l, mock, connects := newMockLoader(t, Options{})
	path := writeCSV(t, "bad.csv", "id,name\n1\n")

	report, err := l.Run(context.Background(), models.LoadJob{CSVPath: path, Table: "people"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrParse)
	assert.Equal(t, models.StateFailed, report.State)
	assert.Equal(t, models.StageParse, report.FailedStage)
	assert.Zero(t, *connects)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunConnectionFailure(t *testing.T) {
	l, _, _ := newMockLoader(t, Options{})
	l.connect = func(ctx context.Context, fn func(*connector.DatabaseConnector) error) error {
		return models.NewConnectionError("connect to localhost:5432/postgres: connection refused")
	}
	path := writeCSV(t, "people.csv", "id\n1\n")

	report, err := l.Run(context.Background(), models.LoadJob{CSVPath: path, Table: "people"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConnection)
	assert.Equal(t, models.StateFailed, report.State)
	assert.Equal(t, models.StageConnect, report.FailedStage)
	assert.Equal(t, 1, report.RowsRead)
}

func TestRunSchemaFailure(t *testing.T) {
	l, mock, _ := newMockLoader(t, Options{})
	path := writeCSV(t, "people.csv", "id,name\n1,Alice\n")

	mock.ExpectQuery("FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_count"}).AddRow(int64(1)))
	mock.ExpectQuery("FROM information_schema.columns").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("id", "text", "YES"))

	report, err := l.Run(context.Background(), models.LoadJob{CSVPath: path, Table: "people"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSchema)
	assert.Equal(t, models.StateFailed, report.State)
	assert.Equal(t, models.StageSchema, report.FailedStage)
	assert.Zero(t, report.Result.RowsInserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAppendsUsingTableColumnNames(t *testing.T) {
	l, mock, _ := newMockLoader(t, Options{})
	path := writeCSV(t, "people.csv", "id,name\n3,Carol\n")

	mock.ExpectQuery("FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_count"}).AddRow(int64(1)))
	mock.ExpectQuery("FROM information_schema.columns").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("ID", "bigint", "NO").
			AddRow("Name", "character varying", "YES"))
	expectInsert(mock, `INSERT INTO "public"."people" ("ID", "Name") VALUES ($1, $2)`,
		[]interface{}{int64(3), "Carol"},
	)

	report, err := l.Run(context.Background(), models.LoadJob{CSVPath: path, Table: "people"})
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, report.State)
	assert.Equal(t, []string{"id", "name"}, report.Structure.Names())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRejectsNumbersIntoExistingTextColumn(t *testing.T) {
	l, mock, _ := newMockLoader(t, Options{})
	path := writeCSV(t, "people.csv", "id,name\n3,Carol\n")

	mock.ExpectQuery("FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_count"}).AddRow(int64(1)))
	mock.ExpectQuery("FROM information_schema.columns").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("id", "text", "YES").
			AddRow("name", "text", "YES"))

	report, err := l.Run(context.Background(), models.LoadJob{CSVPath: path, Table: "people"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSchema)
	assert.Equal(t, models.StageSchema, report.FailedStage)
	assert.Zero(t, report.Result.RowsInserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAllStopsAtFirstFailure(t *testing.T) {
	l, mock, connects := newMockLoader(t, Options{DefaultBatchSize: 1})
	customers := writeCSV(t, "customers.csv", "id\n1\n2\n")
	orders := writeCSV(t, "orders.csv", "id,customer_id\n10,1\n11,9\n")
	refunds := writeCSV(t, "refunds.csv", "id\n1\n")

	expectCreate(mock, "customers")
	expectInsert(mock, `INSERT INTO "public"."customers" ("id") VALUES ($1)`, []interface{}{int64(1)})
	expectInsert(mock, `INSERT INTO "public"."customers" ("id") VALUES ($1)`, []interface{}{int64(2)})

	expectCreate(mock, "orders")
	expectInsert(mock, `INSERT INTO "public"."orders" ("id", "customer_id") VALUES ($1, $2)`, []interface{}{int64(10), int64(1)})
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO").ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	reports, err := l.RunAll(context.Background(), []models.LoadJob{
		{Name: "customers", CSVPath: customers, Table: "customers"},
		{Name: "orders", CSVPath: orders, Table: "orders"},
		{Name: "refunds", CSVPath: refunds, Table: "refunds"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsert)
	assert.Equal(t, 1, *connects)

	require.Len(t, reports, 2)
	assert.Equal(t, models.StateDone, reports[0].State)
	assert.Equal(t, int64(2), reports[0].Result.RowsInserted)
	assert.Equal(t, models.StateFailed, reports[1].State)
	assert.Equal(t, models.StageInsert, reports[1].FailedStage)
	assert.Equal(t, int64(1), reports[1].Result.RowsInserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunDryRun(t *testing.T) {
	l, mock, connects := newMockLoader(t, Options{DryRun: true})
	path := writeCSV(t, "people.csv", "id,score\n1,2.5\n")

	report, err := l.Run(context.Background(), models.LoadJob{CSVPath: path, Table: "people"})
	require.NoError(t, err)
	assert.Zero(t, *connects)
	assert.Equal(t, models.StateIdle, report.State)
	assert.Equal(t, models.TypeFloat, report.Structure[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAllNoJobs(t *testing.T) {
	l, _, connects := newMockLoader(t, Options{})
	reports, err := l.RunAll(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, reports)
	assert.Zero(t, *connects)
}

func TestNewAppliesDefaults(t *testing.T) {
	l := New(models.ServerProfile{}, newTestLogger(), Options{})
	assert.Equal(t, models.DefaultMaxBatchSize, l.Options.DefaultBatchSize)
	assert.Equal(t, models.DefaultMaxBatchSize, l.Options.MaxBatchSize)
}
