package domain

import (
	"errors"
	"strings"
	"time"
)

// RunRecord is the durable record of one pass over the full column grid
// under one RunConfig. Run numbers are allocated atomically by the run
// history and are strictly increasing, never reused, even across process
// restarts.
type RunRecord struct {
	ID             string
	RunNumber      int64
	Config         RunConfig
	ConfigHash     string
	Classification string
	Status         RunStatus
	Columns        []ColumnState
	LogRef         string
	StartedAt      time.Time
	EndedAt        *time.Time
}

func (r RunRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run record id is required")
	}
	if r.RunNumber < 1 {
		return errors.New("run number must be >= 1")
	}
	if strings.TrimSpace(r.ConfigHash) == "" {
		return errors.New("config hash is required")
	}
	if strings.TrimSpace(string(r.Status)) == "" {
		return errors.New("run status is required")
	}
	return nil
}

// FailedColumns lists the columns that ended in a failed state, so the
// invoking scheduler can retry them or proceed with partial data.
func (r RunRecord) FailedColumns() []ColumnID {
	var out []ColumnID
	for _, c := range r.Columns {
		if c.Status == ColumnFailed {
			out = append(out, c.Column)
		}
	}
	return out
}

// ColumnState returns the state recorded for the given column, if any.
func (r RunRecord) ColumnState(col ColumnID) (ColumnState, bool) {
	for _, c := range r.Columns {
		if c.Column == col {
			return c, true
		}
	}
	return ColumnState{}, false
}
