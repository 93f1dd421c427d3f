package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/LCLUCam/VULCAN/domain"
)

const insertModificationQuery = `INSERT INTO vulcan_modifications (
		run_number,
		column_x,
		column_y,
		lower_height,
		upper_height,
		lower_pressure,
		upper_pressure,
		level_temperature,
		densities,
		received_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

// takeModificationQuery consumes atomically: the consumed_at guard makes
// the first caller win and every later caller see no row. Consumed rows
// stay in the table as an archive.
const takeModificationQuery = `UPDATE vulcan_modifications
	 SET consumed_at = NOW()
	 WHERE run_number = $1 AND column_x = $2 AND column_y = $3 AND consumed_at IS NULL
	 RETURNING lower_height, upper_height, lower_pressure, upper_pressure,
		level_temperature, densities, received_at, consumed_at`

func (s *Store) PutModification(ctx context.Context, mod domain.ExternalModification) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history store not initialized")
	}
	if err := mod.Validate(); err != nil {
		return err
	}
	densitiesJSON, err := json.Marshal(mod.Densities)
	if err != nil {
		return fmt.Errorf("encode modification densities: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		insertModificationQuery,
		mod.RunNumber,
		mod.Column.X,
		mod.Column.Y,
		mod.LowerHeight,
		mod.UpperHeight,
		mod.LowerPressure,
		mod.UpperPressure,
		mod.LevelTemperature,
		densitiesJSON,
		normalizeTime(mod.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert modification: %w", err)
	}
	return nil
}

func (s *Store) TakeModification(ctx context.Context, runNumber int64, col domain.ColumnID) (domain.ExternalModification, error) {
	if s == nil || s.db == nil {
		return domain.ExternalModification{}, fmt.Errorf("history store not initialized")
	}
	if err := col.Validate(); err != nil {
		return domain.ExternalModification{}, err
	}
	mod := domain.ExternalModification{RunNumber: runNumber, Column: col}
	var densitiesJSON []byte
	var consumedAt sql.NullTime
	row := s.db.QueryRowContext(ctx, takeModificationQuery, runNumber, col.X, col.Y)
	if err := row.Scan(&mod.LowerHeight, &mod.UpperHeight, &mod.LowerPressure, &mod.UpperPressure,
		&mod.LevelTemperature, &densitiesJSON, &mod.ReceivedAt, &consumedAt); err != nil {
		return domain.ExternalModification{}, handleNotFound(err)
	}
	if len(densitiesJSON) > 0 {
		if err := json.Unmarshal(densitiesJSON, &mod.Densities); err != nil {
			return domain.ExternalModification{}, fmt.Errorf("decode modification densities: %w", err)
		}
	}
	if consumedAt.Valid {
		consumed := consumedAt.Time.UTC()
		mod.ConsumedAt = &consumed
	}
	mod.ReceivedAt = mod.ReceivedAt.UTC()
	return mod, nil
}
