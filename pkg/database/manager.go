package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ErrUnhealthy is returned when the last health check failed
var ErrUnhealthy = errors.New("database connection is not healthy")

// DatabaseManager handles all database operations
type DatabaseManager struct {
	db            *sql.DB
	healthChecker *HealthChecker
	logger        *logrus.Logger
}

// NewDatabaseManager connects to dsn and starts health checking
func NewDatabaseManager(ctx context.Context, dsn string, logger *logrus.Logger) (*DatabaseManager, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	db, err := connectDatabase(ctx, dsn)
	if err != nil {
		return nil, err
	}

	dm := newManager(db, logger)
	dm.healthChecker.Start()

	return dm, nil
}

func newManager(db *sql.DB, logger *logrus.Logger) *DatabaseManager {
	return &DatabaseManager{
		db:            db,
		healthChecker: NewHealthChecker(db, 30*time.Second, logger),
		logger:        logger,
	}
}

// Close closes the database connection and stops health checking
func (dm *DatabaseManager) Close() error {
	if dm.healthChecker != nil {
		dm.healthChecker.Stop()
	}
	if dm.db != nil {
		return dm.db.Close()
	}
	return nil
}

// QueryWithHealthCheck executes a query with connection health verification
func (dm *DatabaseManager) QueryWithHealthCheck(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return nil, err
	}

	return dm.db.QueryContext(ctx, query, args...)
}

// QueryRowWithHealthCheck executes a query that returns a single row.
// The health error is returned separately because *sql.Row cannot carry it.
func (dm *DatabaseManager) QueryRowWithHealthCheck(ctx context.Context, query string, args ...interface{}) (*sql.Row, error) {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return nil, err
	}

	return dm.db.QueryRowContext(ctx, query, args...), nil
}

// ExecWithHealthCheck executes a statement with connection health verification
func (dm *DatabaseManager) ExecWithHealthCheck(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return nil, err
	}

	return dm.db.ExecContext(ctx, query, args...)
}

// IsConnectionHealthy returns the current health status
func (dm *DatabaseManager) IsConnectionHealthy() bool {
	return dm.healthChecker.IsHealthy()
}

// Init initializes the database with migrations
func (dm *DatabaseManager) Init(ctx context.Context) error {
	dm.logger.Info("Running database migrations")

	runner, err := NewMigrationsRunner(dm.db, dm.logger)
	if err != nil {
		return fmt.Errorf("failed to create migration runner: %w", err)
	}

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	dm.logger.Info("Database initialization completed")
	return nil
}

func connectDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}
