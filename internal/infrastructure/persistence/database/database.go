// Package database provides the core functionality for creating and managing
// SQL connections backing the correction store, on local SQLite or libsql.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/pkg/config"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Driver names registered by the blank imports above.
const (
	DriverSQLite = "sqlite3"
	DriverLibSQL = "libsql"
)

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
	DriverName    string
	SlowThreshold time.Duration
}

// NewConnection establishes a new database connection for the specified driver.
func NewConnection(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, DriverName: driverName}, nil
}

// NewConnectionWithLogger establishes a new database connection for the specified driver with logging.
func NewConnectionWithLogger(driverName, dataSourceName string, slowThreshold time.Duration, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Database().Debug("Creating new database connection", "driverName", driverName)

	db, err := NewConnection(driverName, dataSourceName)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driverName", driverName)
		return nil, err
	}
	db.SlowThreshold = slowThreshold

	duration := time.Since(start)
	logger.Database().Info("Database connection established", "driverName", driverName, "duration", duration)
	CheckAndLogSlowQuery(logger, db.SlowThreshold, "DATABASE_CONNECTION", duration, "")

	return db, nil
}

// Open connects to the SQL backend selected by cfg, applies pool settings and
// creates the schema.
func Open(cfg *config.Config, logger *logging.ChanneledLogger) (*DB, error) {
	var driverName, dsn string
	switch cfg.KVBackend {
	case config.BackendLibSQL:
		driverName, dsn = DriverLibSQL, cfg.LibSQLDSN()
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		driverName, dsn = DriverSQLite, cfg.SQLitePath+"?_journal_mode=WAL&_busy_timeout=5000"
	default:
		return nil, fmt.Errorf("database: backend %q is not SQL", cfg.KVBackend)
	}

	db, err := NewConnectionWithLogger(driverName, dsn, cfg.SlowQueryThreshold, logger)
	if err != nil {
		return nil, fmt.Errorf("database: connect %s: %w", driverName, err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	if err := CreateSchema(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
