package utils

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/vitebski/csv-table-loader/pkg/models"
)

func TestSetupLogging(t *testing.T) {
	t.Setenv("CSVLOADER_LOG_LEVEL", "")

	logger := SetupLogging("")
	if logger.Level != logrus.InfoLevel {
		t.Errorf("Expected log level to be info, got %s", logger.Level)
	}

	logger = SetupLogging("debug")
	if logger.Level != logrus.DebugLevel {
		t.Errorf("Expected log level to be debug, got %s", logger.Level)
	}

	logger = SetupLogging("warn")
	if logger.Level != logrus.WarnLevel {
		t.Errorf("Expected log level to be warn, got %s", logger.Level)
	}

	// Test with invalid log level (should default to info)
	logger = SetupLogging("invalid")
	if logger.Level != logrus.InfoLevel {
		t.Errorf("Expected log level to be info for invalid input, got %s", logger.Level)
	}

	t.Setenv("CSVLOADER_LOG_LEVEL", "error")
	logger = SetupLogging("")
	if logger.Level != logrus.ErrorLevel {
		t.Errorf("Expected log level from environment to be error, got %s", logger.Level)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_ENV_INT", "42")
	assert.Equal(t, 42, GetEnvInt("TEST_ENV_INT", 10))

	t.Setenv("TEST_ENV_INT", "")
	assert.Equal(t, 10, GetEnvInt("TEST_ENV_INT", 10))

	t.Setenv("TEST_ENV_INT", "not-an-int")
	assert.Equal(t, 10, GetEnvInt("TEST_ENV_INT", 10))
}

func TestLoadEnvironmentVariables(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	assert.False(t, LoadEnvironmentVariables(envFile, logger))

	t.Setenv("CSVLOADER_TEST_TOKEN", "")
	os.Unsetenv("CSVLOADER_TEST_TOKEN")
	if err := os.WriteFile(envFile, []byte("CSVLOADER_TEST_TOKEN=abc123\n"), 0644); err != nil {
		t.Fatal(err)
	}
	assert.True(t, LoadEnvironmentVariables(envFile, logger))
	assert.Equal(t, "abc123", os.Getenv("CSVLOADER_TEST_TOKEN"))
}

func TestPrintStructure(t *testing.T) {
	var buf bytes.Buffer
	PrintStructure(&buf, "people.csv", 3, models.TableStructure{
		{Name: "id", Type: models.TypeInteger},
		{Name: "name", Type: models.TypeText},
	})

	out := buf.String()
	assert.Contains(t, out, "CSV STRUCTURE: people.csv")
	assert.Contains(t, out, "Rows: 3")
	assert.Contains(t, out, "  1. id (integer)")
	assert.Contains(t, out, "  2. name (text)")
}

func TestPrintSummary(t *testing.T) {
	reports := []*models.LoadReport{
		{
			Job:    models.LoadJob{Name: "customers", Table: "customers"},
			State:  models.StateDone,
			Result: models.InsertResult{RowsInserted: 10, BatchesCommitted: 1},
		},
		{
			Job:         models.LoadJob{Name: "orders", Table: "orders"},
			State:       models.StateFailed,
			FailedStage: models.StageInsert,
			Err:         errors.New("duplicate key"),
			Result:      models.InsertResult{RowsInserted: 5, BatchesCommitted: 1},
		},
	}

	var buf bytes.Buffer
	PrintSummary(&buf, reports)
	out := buf.String()

	assert.Contains(t, out, "Total jobs processed: 2")
	assert.Contains(t, out, "Successfully loaded jobs: 1")
	assert.Contains(t, out, "Failed jobs: 1")
	assert.Contains(t, out, "Total rows inserted: 15")
	assert.Contains(t, out, "orders (insert stage): duplicate key")
}

type fakeCounter map[string]int64

func (f fakeCounter) CountRows(ctx context.Context, schemaName, tableName string) (int64, error) {
	count, ok := f[tableName]
	if !ok {
		return 0, errors.New("relation does not exist")
	}
	return count, nil
}

func TestVerifyRowCounts(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	done := func(table string, rows int64) *models.LoadReport {
		return &models.LoadReport{
			Job:    models.LoadJob{Table: table},
			State:  models.StateDone,
			Result: models.InsertResult{RowsInserted: rows},
		}
	}
	reports := []*models.LoadReport{
		done("customers", 10),
		done("orders", 20),
		done("refunds", 1),
		{Job: models.LoadJob{Table: "skipped"}, State: models.StateFailed},
	}
	counter := fakeCounter{"customers": 12, "orders": 19}

	success, unverified, short := VerifyRowCounts(context.Background(), counter, reports, logger)
	assert.False(t, success)
	assert.Equal(t, []string{"refunds"}, unverified)
	assert.Equal(t, map[string]int64{"orders": 19}, short)

	var buf bytes.Buffer
	PrintVerificationResults(&buf, unverified, short)
	assert.Contains(t, buf.String(), "orders: 19 rows")

	success, _, _ = VerifyRowCounts(context.Background(), counter, reports[:1], logger)
	assert.True(t, success)
}
