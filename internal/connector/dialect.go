package connector

import (
	"strconv"
	"strings"

	"github.com/vitebski/csv-table-loader/pkg/models"
)

// QuoteIdentifier quotes a table, schema or column name for the connected driver
func (dc *DatabaseConnector) QuoteIdentifier(name string) string {
	if dc.Profile.Driver == models.DriverMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName returns the quoted schema.table name
func (dc *DatabaseConnector) QualifiedName(schema, table string) string {
	if schema == "" {
		schema = dc.DefaultSchema()
	}
	return dc.QuoteIdentifier(schema) + "." + dc.QuoteIdentifier(table)
}

// Placeholder returns the bind parameter marker for the n-th argument (1-based)
func (dc *DatabaseConnector) Placeholder(n int) string {
	if dc.Profile.Driver == models.DriverMySQL {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// Placeholders returns a comma separated list of n bind parameter markers
func (dc *DatabaseConnector) Placeholders(n int) string {
	markers := make([]string, n)
	for i := range markers {
		markers[i] = dc.Placeholder(i + 1)
	}
	return strings.Join(markers, ", ")
}

// DefaultSchema is used when no schema name is given.
// MySQL has no schemas inside a database, so the database name is used.
func (dc *DatabaseConnector) DefaultSchema() string {
	if dc.Profile.Driver == models.DriverMySQL {
		return dc.Profile.Database
	}
	return "public"
}
