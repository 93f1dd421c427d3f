// Package history defines persistence for the run log: the append-only
// record of every run, its per-column outcomes, and pending external
// modifications.
package history

import (
	"context"
	"errors"

	"github.com/LCLUCam/VULCAN/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("history: not found")

// Store is the persistence surface the controller drives. Run numbers
// come only from NextRunNumber; the allocation is atomic and monotonic
// across concurrent callers. Records are append-only: a run or column
// state is created once and then finalized exactly once.
type Store interface {
	// NextRunNumber allocates the next run number. Numbers are never
	// reused, including for runs that later fail.
	NextRunNumber(ctx context.Context) (int64, error)

	CreateRun(ctx context.Context, rec domain.RunRecord) error
	FinalizeRun(ctx context.Context, runNumber int64, status domain.RunStatus) error
	GetRun(ctx context.Context, runNumber int64) (domain.RunRecord, error)
	// LatestRun returns the most recently created run, ErrNotFound when
	// no run exists yet.
	LatestRun(ctx context.Context) (domain.RunRecord, error)

	CreateColumnState(ctx context.Context, st domain.ColumnState) error
	// FinalizeColumnState moves a pending column state to its terminal
	// status. Terminal states are immutable; finalizing twice fails.
	FinalizeColumnState(ctx context.Context, st domain.ColumnState) error
	ListColumnStates(ctx context.Context, runNumber int64) ([]domain.ColumnState, error)
	// LatestSuccessfulColumn returns the most recent successful state of
	// a column across all runs, ErrNotFound when the column has never
	// completed successfully.
	LatestSuccessfulColumn(ctx context.Context, col domain.ColumnID) (domain.ColumnState, error)

	PutModification(ctx context.Context, mod domain.ExternalModification) error
	// TakeModification returns the pending modification for the given
	// run and column and marks it consumed, so a second call returns
	// ErrNotFound. Consumed modifications stay archived.
	TakeModification(ctx context.Context, runNumber int64, col domain.ColumnID) (domain.ExternalModification, error)
}
