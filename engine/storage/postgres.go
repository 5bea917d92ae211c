package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/fmonfasani/mini-lab-ott/engine/config"
	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

// Store is the narrow persistence interface consumed by the engine.
// The write path is used by the lifecycle manager and recorder; the read
// path only by the KPI aggregator.
type Store interface {
	CreateRun(ctx context.Context, kind types.TestKind, params json.RawMessage) (int64, error)
	CloseRun(ctx context.Context, runID int64, ok bool, durationMS int64) error
	WriteMetric(ctx context.Context, runID int64, name string, value float64, pctl *int) error
	WriteLog(ctx context.Context, runID *int64, level types.LogLevel, message string, attrs map[string]interface{}) error

	RunOutcomes(ctx context.Context, kind types.TestKind, since time.Time) ([]bool, error)
	MetricValues(ctx context.Context, kind types.TestKind, name string, since time.Time) ([]float64, error)
	CountErrorLogs(ctx context.Context, substr string, since time.Time) (int64, error)

	Ping(ctx context.Context) error
}

// Postgres implements Store backed by PostgreSQL.
type Postgres struct {
	db  *sql.DB
	cfg *config.PostgreSQLConfig
	log logrus.FieldLogger
}

// NewPostgres creates a new store wrapper. Connect must be called before use.
func NewPostgres(cfg *config.PostgreSQLConfig) *Postgres {
	return &Postgres{
		cfg: cfg,
		log: logrus.WithField("component", "postgres"),
	}
}

// Connect establishes the database connection and verifies it with a ping.
func (p *Postgres) Connect() error {
	db, err := sql.Open("postgres", p.cfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(p.cfg.MaxOpenConns)
	db.SetMaxIdleConns(p.cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	p.db = db
	p.log.Info("Connected to PostgreSQL database")
	return nil
}

// Close closes the underlying database handle.
func (p *Postgres) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Ping reports whether the store is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// DB exposes the raw handle for migrations and tests.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// CreateRun inserts an open test run and returns the store-assigned id.
func (p *Postgres) CreateRun(ctx context.Context, kind types.TestKind, params json.RawMessage) (int64, error) {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	var id int64
	query := `
		INSERT INTO tests (kind, params, started_at)
		VALUES ($1, $2, NOW())
		RETURNING id`

	if err := p.db.QueryRowContext(ctx, query, string(kind), []byte(params)).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}

	p.log.WithFields(logrus.Fields{"run_id": id, "kind": kind}).Debug("Created test run")
	return id, nil
}

// CloseRun finalizes a run. The open/closed transition is written exactly
// once by the lifecycle manager; a missing or already-closed run is an error.
func (p *Postgres) CloseRun(ctx context.Context, runID int64, ok bool, durationMS int64) error {
	query := `
		UPDATE tests
		SET finished_at = NOW(), ok = $2, duration_ms = $3
		WHERE id = $1 AND finished_at IS NULL`

	result, err := p.db.ExecContext(ctx, query, runID, ok, durationMS)
	if err != nil {
		return fmt.Errorf("failed to close run %d: %w", runID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close run %d: %w", runID, err)
	}
	if affected == 0 {
		return fmt.Errorf("run %d is not open", runID)
	}

	p.log.WithFields(logrus.Fields{"run_id": runID, "ok": ok, "duration_ms": durationMS}).Debug("Closed test run")
	return nil
}

// WriteMetric persists one named metric sample for a run.
func (p *Postgres) WriteMetric(ctx context.Context, runID int64, name string, value float64, pctl *int) error {
	query := `
		INSERT INTO metrics (test_id, name, value, pctl)
		VALUES ($1, $2, $3, $4)`

	var pctlArg interface{}
	if pctl != nil {
		pctlArg = *pctl
	}

	if _, err := p.db.ExecContext(ctx, query, runID, name, value, pctlArg); err != nil {
		return fmt.Errorf("failed to write metric %q for run %d: %w", name, runID, err)
	}
	return nil
}

// WriteLog persists one diagnostic line, optionally tied to a run.
func (p *Postgres) WriteLog(ctx context.Context, runID *int64, level types.LogLevel, message string, attrs map[string]interface{}) error {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to marshal log attrs: %w", err)
	}

	query := `
		INSERT INTO logs (test_id, level, message, attrs)
		VALUES ($1, $2, $3, $4)`

	var runArg interface{}
	if runID != nil {
		runArg = *runID
	}

	if _, err := p.db.ExecContext(ctx, query, runArg, string(level), message, attrsJSON); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	return nil
}

// RunOutcomes returns the ok flag of every run of the given kind started
// within the window.
func (p *Postgres) RunOutcomes(ctx context.Context, kind types.TestKind, since time.Time) ([]bool, error) {
	query := `SELECT ok FROM tests WHERE kind = $1 AND started_at >= $2`

	rows, err := p.db.QueryContext(ctx, query, string(kind), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query run outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []bool
	for rows.Next() {
		var ok bool
		if err := rows.Scan(&ok); err != nil {
			return nil, fmt.Errorf("failed to scan run outcome: %w", err)
		}
		outcomes = append(outcomes, ok)
	}
	return outcomes, rows.Err()
}

// MetricValues returns the raw values of the named metric joined to runs of
// the matching kind started within the window.
func (p *Postgres) MetricValues(ctx context.Context, kind types.TestKind, name string, since time.Time) ([]float64, error) {
	query := `
		SELECT m.value
		FROM metrics m
		JOIN tests t ON m.test_id = t.id
		WHERE t.kind = $1 AND m.name = $2 AND t.started_at >= $3`

	rows, err := p.db.QueryContext(ctx, query, string(kind), name, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric values: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan metric value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// CountErrorLogs counts error-level log lines within the window whose
// message contains the given substring, case-insensitively. The substring
// classification mirrors the dashboard's historical behavior; see the
// aggregator for the known-coarse caveat.
func (p *Postgres) CountErrorLogs(ctx context.Context, substr string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM logs
		WHERE level = 'error' AND message ILIKE '%' || $1 || '%' AND created_at >= $2`

	var count int64
	if err := p.db.QueryRowContext(ctx, query, substr, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count error logs: %w", err)
	}
	return count, nil
}
