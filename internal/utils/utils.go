package utils

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/csv-table-loader/pkg/models"
)

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("CSVLOADER_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// LoadEnvironmentVariables loads environment variables from .env file.
// It reports whether a file was loaded.
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		} else {
			logger.Debugf("No %s file found, using existing environment variables", envFile)
		}
		return false
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warningf("Error loading %s file: %v", envFile, err)
		return false
	}
	logger.Infof("Loaded environment variables from %s", envFile)
	return true
}

// GetEnvInt gets an integer value from environment variable
func GetEnvInt(varName string, defaultValue int) int {
	value := os.Getenv(varName)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// PrintStructure prints the inferred columns of a CSV file
func PrintStructure(w io.Writer, path string, rows int, structure models.TableStructure) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintf(w, "CSV STRUCTURE: %s\n", path)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Rows: %d\n", rows)
	fmt.Fprintf(w, "Columns: %d\n", len(structure))
	for i, col := range structure {
		fmt.Fprintf(w, "  %3d. %s (%s)\n", i+1, col.Name, col.Type)
	}
	fmt.Fprintln(w, strings.Repeat("=", 50))
}

// PrintSummary prints a summary of the load process
func PrintSummary(w io.Writer, reports []*models.LoadReport) {
	var totalRows int64
	var failed []*models.LoadReport
	for _, report := range reports {
		totalRows += report.Result.RowsInserted
		if report.State == models.StateFailed {
			failed = append(failed, report)
		}
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "CSV LOAD SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Total jobs processed: %d\n", len(reports))
	fmt.Fprintf(w, "Successfully loaded jobs: %d\n", len(reports)-len(failed))
	fmt.Fprintf(w, "Failed jobs: %d\n", len(failed))
	fmt.Fprintf(w, "Total rows inserted: %d\n", totalRows)

	if len(reports) > 0 {
		fmt.Fprintln(w, "\nJobs:")
		for _, report := range reports {
			fmt.Fprintf(w, "  - %s -> %s: %s, %d/%d rows in %d batches (%s)\n",
				report.Job.Name, report.Job.Table, report.State,
				report.Result.RowsInserted, report.RowsRead, report.Result.BatchesCommitted,
				report.Duration.Round(time.Millisecond))
		}
	}

	if len(failed) > 0 {
		fmt.Fprintln(w, "\nFailed jobs:")
		for _, report := range failed {
			fmt.Fprintf(w, "  - %s (%s stage): %v\n", report.Job.Name, report.FailedStage, report.Err)
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
}

// RowCounter counts the rows of a table
type RowCounter interface {
	CountRows(ctx context.Context, schemaName, tableName string) (int64, error)
}

// VerifyRowCounts checks that every finished job's table holds at least the rows it inserted.
// It returns the tables that could not be verified and the ones holding fewer rows.
func VerifyRowCounts(ctx context.Context, counter RowCounter, reports []*models.LoadReport, logger *logrus.Logger) (bool, []string, map[string]int64) {
	logger.Info("Verifying row counts of loaded tables...")

	unverified := []string{}
	shortTables := make(map[string]int64)

	for _, report := range reports {
		if report.State != models.StateDone {
			continue
		}

		table := report.Job.Table
		count, err := counter.CountRows(ctx, report.Job.Schema, table)
		if err != nil {
			logger.Warningf("Could not verify row count for table %s: %v", table, err)
			unverified = append(unverified, table)
			continue
		}

		if count < report.Result.RowsInserted {
			logger.Warningf("Table %s has only %d/%d expected rows", table, count, report.Result.RowsInserted)
			shortTables[table] = count
		}
	}

	success := len(unverified) == 0 && len(shortTables) == 0
	if success {
		logger.Info("Verification successful: all tables hold the inserted rows")
	} else {
		if len(unverified) > 0 {
			logger.Errorf("Verification failed: %d tables could not be counted", len(unverified))
		}
		if len(shortTables) > 0 {
			logger.Errorf("Verification failed: %d tables are missing rows", len(shortTables))
		}
	}

	return success, unverified, shortTables
}

// PrintVerificationResults prints the results of the row count verification
func PrintVerificationResults(w io.Writer, unverified []string, shortTables map[string]int64) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "ROW COUNT VERIFICATION RESULTS")
	fmt.Fprintln(w, strings.Repeat("=", 50))

	if len(unverified) == 0 && len(shortTables) == 0 {
		fmt.Fprintln(w, "✅ All tables hold the inserted rows")
		fmt.Fprintln(w, strings.Repeat("=", 50))
		return
	}

	if len(unverified) > 0 {
		fmt.Fprintf(w, "❌ %d tables could not be counted:\n", len(unverified))
		for _, table := range unverified {
			fmt.Fprintf(w, "  - %s\n", table)
		}
		fmt.Fprintln(w)
	}

	if len(shortTables) > 0 {
		fmt.Fprintf(w, "⚠️  %d tables are missing rows:\n", len(shortTables))
		for table, count := range shortTables {
			fmt.Fprintf(w, "  - %s: %d rows\n", table, count)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
}
