package connector

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/csv-table-loader/pkg/models"
)

// DatabaseConnector handles the database connection and query execution.
// It holds a single connection for the lifetime of a load.
type DatabaseConnector struct {
	Profile models.ServerProfile
	DB      *sql.DB
	Logger  *logrus.Logger
}

// NewDatabaseConnector creates a new database connector for a server profile
func NewDatabaseConnector(profile models.ServerProfile, logger *logrus.Logger) *DatabaseConnector {
	if profile.Driver == "" {
		profile.Driver = models.DriverPostgres
	}
	if profile.Host == "" {
		profile.Host = "localhost"
	}
	if profile.Port == "" {
		profile.Port = defaultPort(profile.Driver)
	}

	return &DatabaseConnector{
		Profile: profile,
		Logger:  logger,
	}
}

// WithConnection connects, runs fn and always closes the connection afterwards
func WithConnection(ctx context.Context, profile models.ServerProfile, logger *logrus.Logger, fn func(*DatabaseConnector) error) error {
	dc := NewDatabaseConnector(profile, logger)
	if err := dc.Connect(ctx); err != nil {
		return err
	}
	defer dc.Disconnect()

	return fn(dc)
}

// Connect establishes the connection to the database
func (dc *DatabaseConnector) Connect(ctx context.Context) error {
	if dc.Profile.Database == "" {
		return models.NewConnectionError("database name must be provided in profile %q", dc.Profile.Name)
	}

	driverName, dsn, err := dc.dataSource()
	if err != nil {
		return err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		dc.Logger.Errorf("Error opening %s connection: %v", dc.Profile.Driver, err)
		return models.NewConnectionError("open %s: %w", dc.address(), err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		dc.Logger.Errorf("Error pinging %s database: %v", dc.Profile.Driver, err)
		db.Close()
		return models.NewConnectionError("connect to %s/%s: %w", dc.address(), dc.Profile.Database, err)
	}

	dc.DB = db
	dc.Logger.Infof("Connected to %s database %s at %s", dc.Profile.Driver, dc.Profile.Database, dc.address())
	return nil
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		err := dc.DB.Close()
		if err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Infof("%s connection closed", dc.Profile.Driver)
		}
		dc.DB = nil
	}
}

// ExecuteQuery executes a SQL query and returns the results
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	if dc.DB == nil {
		return nil, models.NewConnectionError("not connected")
	}

	rows, err := dc.DB.QueryContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		dc.Logger.Errorf("Error getting columns: %v", err)
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			dc.Logger.Errorf("Error scanning row: %v", err)
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			// MySQL returns text as []byte
			if b, ok := values[i].([]byte); ok {
				row[strings.ToLower(col)] = string(b)
			} else {
				row[strings.ToLower(col)] = values[i]
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, err
	}

	return results, nil
}

// ExecuteStatement executes a SQL statement and returns the number of affected rows
func (dc *DatabaseConnector) ExecuteStatement(ctx context.Context, query string, params ...interface{}) (int64, error) {
	if dc.DB == nil {
		return 0, models.NewConnectionError("not connected")
	}

	result, err := dc.DB.ExecContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing statement: %v", err)
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		dc.Logger.Errorf("Error getting affected rows: %v", err)
		return 0, err
	}

	return affected, nil
}

// ExecuteMany executes a SQL statement with multiple parameter sets in one transaction.
// Either every parameter set is committed or none is.
func (dc *DatabaseConnector) ExecuteMany(ctx context.Context, query string, paramsList [][]interface{}) (int64, error) {
	if dc.DB == nil {
		return 0, models.NewConnectionError("not connected")
	}

	tx, err := dc.DB.BeginTx(ctx, nil)
	if err != nil {
		dc.Logger.Errorf("Error starting transaction: %v", err)
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		dc.Logger.Errorf("Error preparing statement: %v", err)
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	var totalAffected int64

	for _, params := range paramsList {
		result, err := stmt.ExecContext(ctx, params...)
		if err != nil {
			dc.Logger.Errorf("Error executing batch statement: %v", err)
			tx.Rollback()
			return 0, err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			dc.Logger.Errorf("Error getting affected rows: %v", err)
			tx.Rollback()
			return 0, err
		}

		totalAffected += affected
	}

	if err := tx.Commit(); err != nil {
		dc.Logger.Errorf("Error committing transaction: %v", err)
		return 0, err
	}

	return totalAffected, nil
}

// dataSource returns the database/sql driver name and DSN for the profile
func (dc *DatabaseConnector) dataSource() (string, string, error) {
	p := dc.Profile
	switch p.Driver {
	case models.DriverPostgres:
		parts := []string{
			"host=" + quoteDSNValue(p.Host),
			"port=" + quoteDSNValue(p.Port),
			"user=" + quoteDSNValue(p.User),
			"password=" + quoteDSNValue(p.Password),
			"dbname=" + quoteDSNValue(p.Database),
		}
		if p.SSLMode != "" {
			parts = append(parts, "sslmode="+quoteDSNValue(p.SSLMode))
		}
		return "pgx", strings.Join(parts, " "), nil
	case models.DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = p.User
		cfg.Passwd = p.Password
		cfg.Net = "tcp"
		cfg.Addr = dc.address()
		cfg.DBName = p.Database
		cfg.ParseTime = true
		return "mysql", cfg.FormatDSN(), nil
	default:
		return "", "", models.NewConnectionError("unsupported driver %q", p.Driver)
	}
}

func (dc *DatabaseConnector) address() string {
	return net.JoinHostPort(dc.Profile.Host, dc.Profile.Port)
}

func defaultPort(driver string) string {
	if driver == models.DriverMySQL {
		return "3306"
	}
	return "5432"
}

// quoteDSNValue quotes a value for a libpq keyword/value connection string
func quoteDSNValue(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + replacer.Replace(value) + "'"
}

// String describes the connection target without credentials
func (dc *DatabaseConnector) String() string {
	return fmt.Sprintf("%s://%s@%s/%s", dc.Profile.Driver, dc.Profile.User, dc.address(), dc.Profile.Database)
}
