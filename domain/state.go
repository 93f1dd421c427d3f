package domain

import "strings"

// ColumnStatus is the per-run state of one column. pending is the only
// non-terminal status; a column never re-enters pending within a run.
type ColumnStatus string

const (
	ColumnPending    ColumnStatus = "pending"
	ColumnReused     ColumnStatus = "reused"
	ColumnRecomputed ColumnStatus = "recomputed"
	ColumnFailed     ColumnStatus = "failed"
)

// NormalizeColumnStatus maps free-form status values to canonical ones.
func NormalizeColumnStatus(value string) ColumnStatus {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ColumnPending), "scheduled":
		return ColumnPending
	case string(ColumnReused):
		return ColumnReused
	case string(ColumnRecomputed):
		return ColumnRecomputed
	case string(ColumnFailed):
		return ColumnFailed
	default:
		return ""
	}
}

func (s ColumnStatus) IsTerminal() bool {
	switch s {
	case ColumnReused, ColumnRecomputed, ColumnFailed:
		return true
	default:
		return false
	}
}

// Successful reports whether the column produced a usable output artifact.
func (s ColumnStatus) Successful() bool {
	return s == ColumnReused || s == ColumnRecomputed
}

// CanTransitionColumnStatus enforces the pending -> terminal state machine.
func CanTransitionColumnStatus(current, next ColumnStatus) bool {
	return current == ColumnPending && next.IsTerminal()
}

// InitialConditionKind names where a column's initial atmospheric state
// comes from.
type InitialConditionKind string

const (
	SourceFreshEquilibrium     InitialConditionKind = "fresh-equilibrium"
	SourceReusedPrior          InitialConditionKind = "reused-prior"
	SourceExternalModification InitialConditionKind = "external-modification"
)

func NormalizeInitialConditionKind(value string) InitialConditionKind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(SourceFreshEquilibrium):
		return SourceFreshEquilibrium
	case string(SourceReusedPrior):
		return SourceReusedPrior
	case string(SourceExternalModification):
		return SourceExternalModification
	default:
		return ""
	}
}

// RunStatus is the derived state of a whole run.
type RunStatus string

const (
	RunRunning               RunStatus = "running"
	RunCompleted             RunStatus = "completed"
	RunCompletedWithFailures RunStatus = "completed_with_failures"
	RunFailed                RunStatus = "failed"
)

// DeriveRunStatus computes the deterministic run status from the column
// states of a run. A single failed column does not fail the run; only a
// run where every column failed is failed.
func DeriveRunStatus(columns []ColumnState) RunStatus {
	if len(columns) == 0 {
		return RunRunning
	}
	failed := 0
	for _, c := range columns {
		if !c.Status.IsTerminal() {
			return RunRunning
		}
		if c.Status == ColumnFailed {
			failed++
		}
	}
	switch failed {
	case 0:
		return RunCompleted
	case len(columns):
		return RunFailed
	default:
		return RunCompletedWithFailures
	}
}
