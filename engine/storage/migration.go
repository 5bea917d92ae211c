package storage

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version int
	SQL     string
}

// TestsTable creates the test run records table.
const TestsTable = `
CREATE TABLE IF NOT EXISTS tests (
	id BIGSERIAL PRIMARY KEY,
	kind VARCHAR(10) NOT NULL CHECK (kind IN ('player', 'drm', 'cas', 'cdn')),
	params JSONB NOT NULL DEFAULT '{}',
	started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	finished_at TIMESTAMP WITH TIME ZONE,
	duration_ms BIGINT,
	ok BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// MetricsTable creates the metric samples table. Multiple samples may share
// (test_id, name); a run may legitimately emit several observations of the
// same named metric.
const MetricsTable = `
CREATE TABLE IF NOT EXISTS metrics (
	id BIGSERIAL PRIMARY KEY,
	test_id BIGINT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
	name VARCHAR(100) NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	pctl INTEGER,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// LogsTable creates the diagnostic log table. test_id is nullable for
// run-independent logging.
const LogsTable = `
CREATE TABLE IF NOT EXISTS logs (
	id BIGSERIAL PRIMARY KEY,
	test_id BIGINT REFERENCES tests(id) ON DELETE CASCADE,
	level VARCHAR(10) NOT NULL CHECK (level IN ('info', 'warn', 'error', 'debug')),
	message TEXT NOT NULL,
	attrs JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// CreateIndices returns SQL for creating query performance indices.
func CreateIndices() string {
	return `
	CREATE INDEX IF NOT EXISTS idx_tests_kind_started ON tests(kind, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_metrics_test_name ON metrics(test_id, name);
	CREATE INDEX IF NOT EXISTS idx_logs_created ON logs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level, created_at DESC);
	`
}

// migrations defines all database migrations
var migrations = []Migration{
	{Version: 1, SQL: TestsTable},
	{Version: 2, SQL: MetricsTable},
	{Version: 3, SQL: LogsTable},
	{Version: 4, SQL: CreateIndices()},
}

// RunMigrations runs all database migrations
func RunMigrations(db *sql.DB) error {
	log := logrus.WithField("component", "migration")

	if err := createMigrationTable(db); err != nil {
		return err
	}

	for _, migration := range migrations {
		applied, err := isMigrationApplied(db, migration.Version)
		if err != nil {
			return err
		}

		if applied {
			log.WithField("version", migration.Version).Debug("Migration already applied")
			continue
		}

		log.WithField("version", migration.Version).Info("Applying migration")
		if err := applyMigration(db, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// createMigrationTable creates the migration tracking table
func createMigrationTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := db.Exec(query)
	return err
}

// isMigrationApplied checks if a migration version has been applied
func isMigrationApplied(db *sql.DB, version int) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`
	err := db.QueryRow(query, version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyMigration applies a single migration
func applyMigration(db *sql.DB, migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES ($1)`, migration.Version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
