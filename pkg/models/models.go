package models

import (
	"strings"
	"time"
)

// DefaultMaxBatchSize bounds the number of rows committed in one transaction
const DefaultMaxBatchSize = 100000

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// ServerProfile represents a named set of connection parameters
type ServerProfile struct {
	Name     string
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// ColumnType is the inferred type of a CSV column
type ColumnType string

const (
	TypeInteger ColumnType = "integer"
	TypeFloat   ColumnType = "float"
	TypeText    ColumnType = "text"
)

// Column represents a CSV column with its inferred type
type Column struct {
	Name string
	Type ColumnType
}

// TableStructure is the ordered list of columns inferred from a CSV file
type TableStructure []Column

// Names returns the column names in order
func (ts TableStructure) Names() []string {
	names := make([]string, len(ts))
	for i, col := range ts {
		names[i] = col.Name
	}
	return names
}

// Lookup finds a column by name, ignoring case
func (ts TableStructure) Lookup(name string) (Column, bool) {
	for _, col := range ts {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}
	return Column{}, false
}

// Row is one CSV record, positionally aligned to a TableStructure.
// Values are int64, float64, string or nil.
type Row []any

// Dataset represents a parsed CSV file
type Dataset struct {
	Path      string
	Structure TableStructure
	Rows      []Row
}

// RowBatch represents a bounded slice of rows inserted in one transaction
type RowBatch struct {
	Index  int
	Offset int
	Rows   []Row
}

// InsertResult represents the outcome of a bulk insert
type InsertResult struct {
	RowsInserted     int64
	BatchesCommitted int
	BatchSizes       []int
}

// LoadState represents the stage a load job has reached
type LoadState string

const (
	StateIdle        LoadState = "idle"
	StateConnected   LoadState = "connected"
	StateSchemaReady LoadState = "schema_ready"
	StateInserting   LoadState = "inserting"
	StateDone        LoadState = "done"
	StateFailed      LoadState = "failed"
)

// LoadJob describes one CSV file to load into one table
type LoadJob struct {
	Name       string
	CSVPath    string
	Schema     string
	Table      string
	BatchSize  int
	Delimiter  rune
	Encoding   string
	NullValues []string
	SampleSize int
	DependsOn  []string
}

// LoadReport represents the result of a load job
type LoadReport struct {
	Job         LoadJob
	State       LoadState
	FailedStage Stage
	Structure   TableStructure
	RowsRead    int
	Result      InsertResult
	Duration    time.Duration
	Err         error
}
