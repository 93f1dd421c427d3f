package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/LCLUCam/VULCAN/domain"
)

const insertColumnStateQuery = `INSERT INTO vulcan_column_states (
		state_id,
		run_number,
		column_x,
		column_y,
		status,
		source,
		source_run_number,
		output_key,
		error_kind,
		scheduled_at,
		completed_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

const selectColumnStateColumns = `state_id, run_number, column_x, column_y, status, source,
		source_run_number, output_key, error_kind, scheduled_at, completed_at`

// finalizeColumnStateQuery only matches pending rows, so a terminal
// state can never be rewritten even under concurrent finalization.
const finalizeColumnStateQuery = `UPDATE vulcan_column_states
	 SET status = $4, source = $5, source_run_number = $6, output_key = $7, error_kind = $8, completed_at = $9
	 WHERE run_number = $1 AND column_x = $2 AND column_y = $3 AND status = 'pending'`

const listColumnStatesQuery = `SELECT ` + selectColumnStateColumns + `
	 FROM vulcan_column_states
	 WHERE run_number = $1
	 ORDER BY column_x, column_y`

const latestSuccessfulColumnQuery = `SELECT ` + selectColumnStateColumns + `
	 FROM vulcan_column_states
	 WHERE column_x = $1 AND column_y = $2 AND status IN ('reused', 'recomputed')
	 ORDER BY run_number DESC
	 LIMIT 1`

func (s *Store) CreateColumnState(ctx context.Context, st domain.ColumnState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history store not initialized")
	}
	if err := st.Validate(); err != nil {
		return err
	}
	var completedAt sql.NullTime
	if st.CompletedAt != nil {
		completedAt = sql.NullTime{Time: st.CompletedAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(
		ctx,
		insertColumnStateQuery,
		strings.TrimSpace(st.ID),
		st.RunNumber,
		st.Column.X,
		st.Column.Y,
		string(st.Status),
		string(st.Source),
		nullIfZero(st.SourceRunNumber),
		nullIfEmpty(st.OutputKey),
		nullIfEmpty(st.ErrorKind),
		normalizeTime(st.ScheduledAt),
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("insert column state: %w", err)
	}
	return nil
}

func (s *Store) FinalizeColumnState(ctx context.Context, st domain.ColumnState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history store not initialized")
	}
	if err := st.Validate(); err != nil {
		return err
	}
	if !st.Status.IsTerminal() {
		return fmt.Errorf("column state status %q is not terminal", st.Status)
	}
	completedAt := time.Now().UTC()
	if st.CompletedAt != nil {
		completedAt = st.CompletedAt.UTC()
	}
	res, err := s.db.ExecContext(
		ctx,
		finalizeColumnStateQuery,
		st.RunNumber,
		st.Column.X,
		st.Column.Y,
		string(st.Status),
		string(st.Source),
		nullIfZero(st.SourceRunNumber),
		nullIfEmpty(st.OutputKey),
		nullIfEmpty(st.ErrorKind),
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("finalize column state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize column state: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("column %s of run %d is not pending", st.Column, st.RunNumber)
	}
	return nil
}

func (s *Store) ListColumnStates(ctx context.Context, runNumber int64) ([]domain.ColumnState, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("history store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, listColumnStatesQuery, runNumber)
	if err != nil {
		return nil, fmt.Errorf("list column states: %w", err)
	}
	defer rows.Close()

	var out []domain.ColumnState
	for rows.Next() {
		st, err := scanColumnState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list column states: %w", err)
	}
	return out, nil
}

func (s *Store) LatestSuccessfulColumn(ctx context.Context, col domain.ColumnID) (domain.ColumnState, error) {
	if s == nil || s.db == nil {
		return domain.ColumnState{}, fmt.Errorf("history store not initialized")
	}
	if err := col.Validate(); err != nil {
		return domain.ColumnState{}, err
	}
	rows, err := s.db.QueryContext(ctx, latestSuccessfulColumnQuery, col.X, col.Y)
	if err != nil {
		return domain.ColumnState{}, fmt.Errorf("latest successful column: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.ColumnState{}, fmt.Errorf("latest successful column: %w", err)
		}
		return domain.ColumnState{}, handleNotFound(sql.ErrNoRows)
	}
	st, err := scanColumnState(rows)
	if err != nil {
		return domain.ColumnState{}, err
	}
	return st, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanColumnState(row rowScanner) (domain.ColumnState, error) {
	var st domain.ColumnState
	var sourceRun sql.NullInt64
	var outputKey sql.NullString
	var errorKind sql.NullString
	var completedAt sql.NullTime
	if err := row.Scan(&st.ID, &st.RunNumber, &st.Column.X, &st.Column.Y, &st.Status, &st.Source,
		&sourceRun, &outputKey, &errorKind, &st.ScheduledAt, &completedAt); err != nil {
		return domain.ColumnState{}, handleNotFound(err)
	}
	if sourceRun.Valid {
		st.SourceRunNumber = sourceRun.Int64
	}
	if outputKey.Valid {
		st.OutputKey = outputKey.String
	}
	if errorKind.Valid {
		st.ErrorKind = errorKind.String
	}
	if completedAt.Valid {
		completed := completedAt.Time.UTC()
		st.CompletedAt = &completed
	}
	st.ScheduledAt = st.ScheduledAt.UTC()
	return st, nil
}

func nullIfEmpty(value string) sql.NullString {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullIfZero(value int64) sql.NullInt64 {
	if value == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: value, Valid: true}
}
