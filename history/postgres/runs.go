package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LCLUCam/VULCAN/domain"
)

const insertRunQuery = `INSERT INTO vulcan_runs (
		run_id,
		run_number,
		config,
		config_hash,
		classification,
		status,
		log_ref,
		started_at,
		ended_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

const selectRunColumns = `run_id, run_number, config, config_hash, classification, status, log_ref, started_at, ended_at`

const finalizeRunQuery = `UPDATE vulcan_runs
	 SET status = $2, ended_at = $3
	 WHERE run_number = $1 AND status = 'running'`

func (s *Store) CreateRun(ctx context.Context, rec domain.RunRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history store not initialized")
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	configJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	var endedAt sql.NullTime
	if rec.EndedAt != nil {
		endedAt = sql.NullTime{Time: rec.EndedAt.UTC(), Valid: true}
	}
	_, err = s.db.ExecContext(
		ctx,
		insertRunQuery,
		strings.TrimSpace(rec.ID),
		rec.RunNumber,
		configJSON,
		strings.TrimSpace(rec.ConfigHash),
		strings.TrimSpace(rec.Classification),
		strings.TrimSpace(string(rec.Status)),
		strings.TrimSpace(rec.LogRef),
		normalizeTime(rec.StartedAt),
		endedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) FinalizeRun(ctx context.Context, runNumber int64, status domain.RunStatus) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history store not initialized")
	}
	res, err := s.db.ExecContext(ctx, finalizeRunQuery, runNumber, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %d is not running", runNumber)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runNumber int64) (domain.RunRecord, error) {
	if s == nil || s.db == nil {
		return domain.RunRecord{}, fmt.Errorf("history store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+selectRunColumns+` FROM vulcan_runs WHERE run_number = $1`,
		runNumber,
	)
	rec, err := scanRun(row)
	if err != nil {
		return domain.RunRecord{}, err
	}
	rec.Columns, err = s.ListColumnStates(ctx, rec.RunNumber)
	if err != nil {
		return domain.RunRecord{}, err
	}
	return rec, nil
}

func (s *Store) LatestRun(ctx context.Context) (domain.RunRecord, error) {
	if s == nil || s.db == nil {
		return domain.RunRecord{}, fmt.Errorf("history store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+selectRunColumns+` FROM vulcan_runs ORDER BY run_number DESC LIMIT 1`,
	)
	rec, err := scanRun(row)
	if err != nil {
		return domain.RunRecord{}, err
	}
	rec.Columns, err = s.ListColumnStates(ctx, rec.RunNumber)
	if err != nil {
		return domain.RunRecord{}, err
	}
	return rec, nil
}

func scanRun(row *sql.Row) (domain.RunRecord, error) {
	var rec domain.RunRecord
	var configJSON []byte
	var logRef sql.NullString
	var endedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.RunNumber, &configJSON, &rec.ConfigHash,
		&rec.Classification, &rec.Status, &logRef, &rec.StartedAt, &endedAt); err != nil {
		return domain.RunRecord{}, handleNotFound(err)
	}
	if err := json.Unmarshal(configJSON, &rec.Config); err != nil {
		return domain.RunRecord{}, fmt.Errorf("decode run config: %w", err)
	}
	if logRef.Valid {
		rec.LogRef = logRef.String
	}
	if endedAt.Valid {
		ended := endedAt.Time.UTC()
		rec.EndedAt = &ended
	}
	rec.StartedAt = rec.StartedAt.UTC()
	return rec, nil
}
