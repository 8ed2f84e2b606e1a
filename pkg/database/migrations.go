package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationsRunner handles database migrations
type MigrationsRunner struct {
	db         *sql.DB
	logger     *logrus.Logger
	migrations []Migration
}

// NewMigrationsRunner creates a new migration runner
func NewMigrationsRunner(db *sql.DB, logger *logrus.Logger) (*MigrationsRunner, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	runner := &MigrationsRunner{
		db:     db,
		logger: logger,
	}

	if err := runner.loadMigrations(); err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	return runner, nil
}

// Migrations returns the loaded migrations in version order
func (r *MigrationsRunner) Migrations() []Migration {
	return r.migrations
}

// loadMigrations loads all .up.sql files from the embedded filesystem
func (r *MigrationsRunner) loadMigrations() error {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return fmt.Errorf("failed to read migration directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		version, name, ok := parseMigrationFilename(filename)
		if !ok {
			if strings.HasSuffix(filename, ".up.sql") {
				r.logger.WithField("file", filename).Warn("Skipping invalid migration file")
			}
			continue
		}

		content, err := migrationFiles.ReadFile("sql/" + filename)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		r.migrations = append(r.migrations, Migration{
			Version: version,
			Name:    name,
			SQL:     string(content),
		})
	}

	sort.Slice(r.migrations, func(i, j int) bool {
		return r.migrations[i].Version < r.migrations[j].Version
	})

	return nil
}

// parseMigrationFilename splits 000001_name.up.sql into version and name
func parseMigrationFilename(filename string) (int, string, bool) {
	if !strings.HasSuffix(filename, ".up.sql") {
		return 0, "", false
	}

	parts := strings.SplitN(strings.TrimSuffix(filename, ".up.sql"), "_", 2)
	if len(parts) < 2 || parts[1] == "" {
		return 0, "", false
	}

	var version int
	if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
		return 0, "", false
	}

	return version, parts[1], true
}

func (r *MigrationsRunner) createMigrationsTable(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version INTEGER PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        )
    `
	_, err := r.db.ExecContext(ctx, query)
	return err
}

func (r *MigrationsRunner) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := r.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// Run executes all pending migrations, each in its own transaction
func (r *MigrationsRunner) Run(ctx context.Context) error {
	if err := r.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := r.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending := 0
	for _, migration := range r.migrations {
		if !applied[migration.Version] {
			pending++
		}
	}

	if pending == 0 {
		r.logger.Debug("No pending migrations")
		return nil
	}

	r.logger.WithField("pending", pending).Info("Applying migrations")

	for _, migration := range r.migrations {
		if applied[migration.Version] {
			continue
		}

		if err := r.apply(ctx, migration); err != nil {
			return err
		}

		r.logger.WithFields(logrus.Fields{
			"version": migration.Version,
			"name":    migration.Name,
		}).Info("Applied migration")
	}

	return nil
}

func (r *MigrationsRunner) apply(ctx context.Context, migration Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
		migration.Version, migration.Name,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}

	return nil
}
