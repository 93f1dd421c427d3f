package postgres

import (
	"context"
	"fmt"
)

// schemaStatements is the idempotent bootstrap for the run history
// tables. The counter table holds exactly one row; the boolean primary
// key makes a second row impossible.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS vulcan_run_counter (
		id BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
		n BIGINT NOT NULL DEFAULT 0
	)`,
	`INSERT INTO vulcan_run_counter (id, n) VALUES (TRUE, 0) ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS vulcan_runs (
		run_id TEXT PRIMARY KEY,
		run_number BIGINT NOT NULL UNIQUE,
		config JSONB NOT NULL,
		config_hash TEXT NOT NULL,
		classification TEXT NOT NULL,
		status TEXT NOT NULL,
		log_ref TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS vulcan_column_states (
		state_id TEXT PRIMARY KEY,
		run_number BIGINT NOT NULL REFERENCES vulcan_runs (run_number),
		column_x INT NOT NULL,
		column_y INT NOT NULL,
		status TEXT NOT NULL,
		source TEXT NOT NULL,
		source_run_number BIGINT,
		output_key TEXT,
		error_kind TEXT,
		scheduled_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		UNIQUE (run_number, column_x, column_y)
	)`,
	`CREATE INDEX IF NOT EXISTS vulcan_column_states_by_column
		ON vulcan_column_states (column_x, column_y, run_number DESC)`,
	`CREATE TABLE IF NOT EXISTS vulcan_modifications (
		run_number BIGINT NOT NULL,
		column_x INT NOT NULL,
		column_y INT NOT NULL,
		lower_height DOUBLE PRECISION NOT NULL,
		upper_height DOUBLE PRECISION NOT NULL,
		lower_pressure DOUBLE PRECISION NOT NULL,
		upper_pressure DOUBLE PRECISION NOT NULL,
		level_temperature DOUBLE PRECISION NOT NULL,
		densities JSONB NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		consumed_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS vulcan_modifications_pending
		ON vulcan_modifications (run_number, column_x, column_y)
		WHERE consumed_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS vulcan_run_events (
		event_id TEXT PRIMARY KEY,
		run_number BIGINT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		kind TEXT NOT NULL,
		column_id TEXT,
		detail JSONB NOT NULL,
		integrity_sha256 TEXT NOT NULL
	)`,
}

// EnsureSchema creates the history tables when they do not exist yet and
// seeds the run counter. Safe to call on every startup.
func EnsureSchema(ctx context.Context, db DB) error {
	if db == nil {
		return fmt.Errorf("history schema: db is required")
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure history schema: %w", err)
		}
	}
	return nil
}
