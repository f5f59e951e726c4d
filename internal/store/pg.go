package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PgMirror is an optional Postgres-backed history of operations and tool
// metrics, for querying a session's activity after the fact. It is
// strictly additive — the in-memory OperationTracker and MetricsCollector
// remain the source of truth the agent loop consults during a run.
type PgMirror struct {
	db *sql.DB
}

// OpenPgMirror connects to Postgres and ensures its two tables exist.
func OpenPgMirror(ctx context.Context, dsn string) (*PgMirror, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	m := &PgMirror{db: db}
	if err := m.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *PgMirror) migrate(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS operations (
			id TEXT PRIMARY KEY,
			op_type TEXT NOT NULL,
			file_path TEXT NOT NULL,
			content_hash TEXT,
			recorded_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS operations_file_path_idx ON operations (file_path);

		CREATE TABLE IF NOT EXISTS tool_metrics (
			operation_id TEXT PRIMARY KEY,
			tool_name TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			latency_ms BIGINT,
			success BOOLEAN NOT NULL,
			retry_count INT NOT NULL DEFAULT 0,
			fallback_used BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT
		);
	`)
	return err
}

// RecordOperation mirrors one OperationRecord into Postgres. Failures are
// logged by the caller, not retried — this is a convenience history, not
// a durability guarantee.
func (m *PgMirror) RecordOperation(ctx context.Context, id, opType, filePath, contentHash string, recordedAt time.Time) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO operations (id, op_type, file_path, content_hash, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		id, opType, filePath, contentHash, recordedAt)
	return err
}

// RecordToolMetric mirrors one completed ToolMetric into Postgres.
func (m *PgMirror) RecordToolMetric(ctx context.Context, operationID, toolName string, startedAt time.Time, endedAt *time.Time, latencyMs *int64, success bool, retryCount int, fallbackUsed bool, errMsg string) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO tool_metrics (operation_id, tool_name, started_at, ended_at, latency_ms, success, retry_count, fallback_used, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (operation_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at, latency_ms = EXCLUDED.latency_ms,
			success = EXCLUDED.success, retry_count = EXCLUDED.retry_count,
			fallback_used = EXCLUDED.fallback_used, error = EXCLUDED.error`,
		operationID, toolName, startedAt, endedAt, latencyMs, success, retryCount, fallbackUsed, errMsg)
	return err
}

// Close closes the underlying connection pool.
func (m *PgMirror) Close() error {
	return m.db.Close()
}
