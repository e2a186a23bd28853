// Package db opens the SQL database behind the sql session storage backend.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jrschumacher/authsync/internal/config"
	"github.com/jrschumacher/authsync/internal/logger"
	"github.com/jrschumacher/authsync/pkg/auth/session"

	// Database drivers
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DatabaseDriver represents the type of database driver
type DatabaseDriver string

// Database driver constants
const (
	SQLite     DatabaseDriver = "sqlite3"
	PostgreSQL DatabaseDriver = "postgres"
)

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Driver           DatabaseDriver
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// DetectDriver determines the database driver from the connection string
func DetectDriver(connectionString string) DatabaseDriver {
	connectionString = strings.ToLower(connectionString)

	switch {
	case strings.HasPrefix(connectionString, "postgres://") ||
		strings.HasPrefix(connectionString, "postgresql://") ||
		strings.Contains(connectionString, "host="):
		return PostgreSQL
	default:
		// File paths, file: URIs and :memory:
		return SQLite
	}
}

// Dialect maps a driver to the session storage placeholder dialect.
func Dialect(driver DatabaseDriver) session.Dialect {
	if driver == PostgreSQL {
		return session.DialectPostgres
	}
	return session.DialectSQLite
}

// OpenDatabase opens a database connection with the appropriate driver and settings
func OpenDatabase(cfg *config.Config) (*sql.DB, DatabaseDriver, error) {
	dbConfig := DatabaseConfig{
		Driver:           DetectDriver(cfg.DatabaseURL),
		ConnectionString: cfg.DatabaseURL,
		MaxOpenConns:     4, // one session row; a handful of connections is plenty
		MaxIdleConns:     2,
		ConnMaxLifetime:  5 * time.Minute,
	}

	switch dbConfig.Driver {
	case SQLite:
		// SQLite serializes writers; one connection also keeps :memory: coherent
		dbConfig.MaxOpenConns = 1
		dbConfig.MaxIdleConns = 1
		dbConfig.ConnMaxLifetime = 0

		if !strings.Contains(dbConfig.ConnectionString, "?") {
			dbConfig.ConnectionString += "?_busy_timeout=10000&_journal_mode=WAL"
		}

	case PostgreSQL:
		if cfg.AppEnv == config.EnvDev {
			dbConfig.MaxOpenConns = 2
			dbConfig.MaxIdleConns = 1
		}
	}

	logger.Info("Opening database connection",
		"driver", string(dbConfig.Driver),
		"maxOpenConns", dbConfig.MaxOpenConns,
		"maxIdleConns", dbConfig.MaxIdleConns)

	db, err := sql.Open(string(dbConfig.Driver), dbConfig.ConnectionString)
	if err != nil {
		return nil, dbConfig.Driver, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, dbConfig.Driver, fmt.Errorf("failed to ping database: %w", err)
	}

	initializeDatabase(db, dbConfig.Driver)

	return db, dbConfig.Driver, nil
}

// initializeDatabase applies driver-specific session settings
func initializeDatabase(db *sql.DB, driver DatabaseDriver) {
	switch driver {
	case SQLite:
		pragmas := []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				logger.Warn("Failed to set SQLite pragma", "pragma", pragma, "error", err)
			}
		}

	case PostgreSQL:
		// updated_at is stored as unix seconds, but keep server-side times in UTC
		if _, err := db.Exec("SET timezone = 'UTC'"); err != nil {
			logger.Warn("Failed to set PostgreSQL timezone", "error", err)
		}
	}
}
