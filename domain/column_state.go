package domain

import (
	"errors"
	"strings"
	"time"
)

// ColumnState is the record of one column within one run. It is created
// when the column is scheduled and becomes immutable once its status
// reaches a terminal value; a later run creates a new ColumnState, never
// edits an old one.
type ColumnState struct {
	ID        string
	RunNumber int64
	Column    ColumnID
	Status    ColumnStatus
	Source    InitialConditionKind

	// SourceRunNumber is set when Source is reused-prior: the run whose
	// output seeded or was copied for this column.
	SourceRunNumber int64

	// OutputKey is the object key of the column's output artifact, set on
	// reused and recomputed states.
	OutputKey string

	// ErrorKind labels a failed state, empty otherwise.
	ErrorKind string

	ScheduledAt time.Time
	CompletedAt *time.Time
}

func (s ColumnState) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("column state id is required")
	}
	if s.RunNumber < 1 {
		return errors.New("run number must be >= 1")
	}
	if err := s.Column.Validate(); err != nil {
		return err
	}
	if NormalizeColumnStatus(string(s.Status)) == "" {
		return errors.New("column status is required")
	}
	if NormalizeInitialConditionKind(string(s.Source)) == "" {
		return errors.New("initial condition source is required")
	}
	if s.Status.Successful() && strings.TrimSpace(s.OutputKey) == "" {
		return errors.New("output key is required for a successful column state")
	}
	if s.Status == ColumnFailed && strings.TrimSpace(s.ErrorKind) == "" {
		return errors.New("error kind is required for a failed column state")
	}
	return nil
}

// EnsureColumnStateImmutable enforces immutability of a terminal state's
// identity and outcome.
func EnsureColumnStateImmutable(before, after ColumnState) error {
	if before.ID != after.ID {
		return errors.New("column state id is immutable")
	}
	if before.RunNumber != after.RunNumber {
		return errors.New("run number is immutable")
	}
	if before.Column != after.Column {
		return errors.New("column id is immutable")
	}
	if before.Status.IsTerminal() {
		if before.Status != after.Status {
			return errors.New("terminal status is immutable")
		}
		if before.OutputKey != after.OutputKey {
			return errors.New("output key is immutable")
		}
		if before.ErrorKind != after.ErrorKind {
			return errors.New("error kind is immutable")
		}
	}
	return nil
}
