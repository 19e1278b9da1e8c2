package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/csv-table-loader/internal/connector"
	"github.com/vitebski/csv-table-loader/pkg/models"
)

// ExistingColumn describes a column read back from information_schema
type ExistingColumn struct {
	Name       string
	DataType   string
	IsNullable bool
}

// SchemaManager creates target tables and checks existing ones against a TableStructure
type SchemaManager struct {
	DB     *connector.DatabaseConnector
	Logger *logrus.Logger
}

// NewSchemaManager creates a new schema manager
func NewSchemaManager(db *connector.DatabaseConnector, logger *logrus.Logger) *SchemaManager {
	return &SchemaManager{
		DB:     db,
		Logger: logger,
	}
}

// CreateTable creates schema.table for the structure unless a compatible table already exists
func (sm *SchemaManager) CreateTable(ctx context.Context, schemaName, tableName string, structure models.TableStructure) error {
	_, err := sm.PrepareTable(ctx, schemaName, tableName, structure)
	return err
}

// PrepareTable works like CreateTable and returns the structure to insert with.
// For an existing table the column names follow the table's spelling.
func (sm *SchemaManager) PrepareTable(ctx context.Context, schemaName, tableName string, structure models.TableStructure) (models.TableStructure, error) {
	if tableName == "" {
		return nil, models.NewSchemaError("table name is required")
	}
	if len(structure) == 0 {
		return nil, models.NewSchemaError("table %s has no columns", tableName)
	}
	if schemaName == "" {
		schemaName = sm.DB.DefaultSchema()
	}

	exists, err := sm.TableExists(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	if exists {
		existing, err := sm.TableColumns(ctx, schemaName, tableName)
		if err != nil {
			return nil, err
		}
		target, err := CheckCompatible(existing, structure)
		if err != nil {
			sm.Logger.Errorf("Table %s.%s is incompatible with the CSV structure: %v", schemaName, tableName, err)
			return nil, models.NewSchemaError("table %s.%s already exists with an incompatible structure: %w", schemaName, tableName, err)
		}
		sm.Logger.Infof("Table %s.%s already exists with a compatible structure", schemaName, tableName)
		return target, nil
	}

	query := sm.CreateTableSQL(schemaName, tableName, structure)
	sm.Logger.Debugf("Creating table: %s", query)
	if _, err := sm.DB.ExecuteStatement(ctx, query); err != nil {
		return nil, models.NewSchemaError("create table %s.%s: %w", schemaName, tableName, err)
	}

	sm.Logger.Infof("Table %s.%s created with %d columns", schemaName, tableName, len(structure))
	return structure, nil
}

// CreateTableSQL renders the CREATE TABLE IF NOT EXISTS statement for the structure
func (sm *SchemaManager) CreateTableSQL(schemaName, tableName string, structure models.TableStructure) string {
	definitions := make([]string, len(structure))
	for i, col := range structure {
		definitions[i] = sm.DB.QuoteIdentifier(col.Name) + " " + SQLType(sm.DB.Profile.Driver, col.Type)
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)",
		sm.DB.QualifiedName(schemaName, tableName),
		strings.Join(definitions, ", "),
	)
}

// TableExists reports whether schema.table is present
func (sm *SchemaManager) TableExists(ctx context.Context, schemaName, tableName string) (bool, error) {
	if schemaName == "" {
		schemaName = sm.DB.DefaultSchema()
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*) AS table_count
		FROM information_schema.tables
		WHERE table_schema = %s
		AND table_name = %s
	`, sm.DB.Placeholder(1), sm.DB.Placeholder(2))

	result, err := sm.DB.ExecuteQuery(ctx, query, schemaName, tableName)
	if err != nil {
		sm.Logger.Errorf("Error checking table %s.%s: %v", schemaName, tableName, err)
		return false, models.NewSchemaError("check table %s.%s: %w", schemaName, tableName, err)
	}
	if len(result) == 0 {
		return false, nil
	}

	count, err := toInt64(result[0]["table_count"])
	if err != nil {
		return false, models.NewSchemaError("check table %s.%s: %w", schemaName, tableName, err)
	}
	return count > 0, nil
}

// TableColumns returns the columns of schema.table in ordinal order
func (sm *SchemaManager) TableColumns(ctx context.Context, schemaName, tableName string) ([]ExistingColumn, error) {
	if schemaName == "" {
		schemaName = sm.DB.DefaultSchema()
	}

	query := fmt.Sprintf(`
		SELECT
			column_name,
			data_type,
			is_nullable
		FROM information_schema.columns
		WHERE table_schema = %s
		AND table_name = %s
		ORDER BY ordinal_position
	`, sm.DB.Placeholder(1), sm.DB.Placeholder(2))

	result, err := sm.DB.ExecuteQuery(ctx, query, schemaName, tableName)
	if err != nil {
		sm.Logger.Errorf("Failed to retrieve columns for table %s.%s: %v", schemaName, tableName, err)
		return nil, models.NewSchemaError("read columns of %s.%s: %w", schemaName, tableName, err)
	}

	columns := make([]ExistingColumn, 0, len(result))
	for _, row := range result {
		columns = append(columns, ExistingColumn{
			Name:       fmt.Sprint(row["column_name"]),
			DataType:   strings.ToLower(fmt.Sprint(row["data_type"])),
			IsNullable: fmt.Sprint(row["is_nullable"]) == "YES",
		})
	}
	return columns, nil
}

// CountRows returns the number of rows in schema.table
func (sm *SchemaManager) CountRows(ctx context.Context, schemaName, tableName string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) AS row_count FROM %s", sm.DB.QualifiedName(schemaName, tableName))
	result, err := sm.DB.ExecuteQuery(ctx, query)
	if err != nil {
		return 0, models.NewSchemaError("count rows of %s: %w", tableName, err)
	}
	if len(result) == 0 {
		return 0, models.NewSchemaError("no result returned for count query on table %s", tableName)
	}
	count, err := toInt64(result[0]["row_count"])
	if err != nil {
		return 0, models.NewSchemaError("count rows of %s: %w", tableName, err)
	}
	return count, nil
}

// toInt64 converts the numeric types drivers return for COUNT(*)
func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		parsed, err := strconv.ParseInt(fmt.Sprint(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse count %v: %w", v, err)
		}
		return parsed, nil
	}
}
