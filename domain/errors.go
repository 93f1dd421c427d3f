package domain

import "errors"

// Error taxonomy for the orchestration layer. Run-level errors abort a run
// before any column is dispatched; column-level errors terminate a single
// column and are recorded on its ColumnState.
var (
	// ErrConfigClassification marks a malformed or incomparable RunConfig.
	// Fatal to the run: no columns are dispatched.
	ErrConfigClassification = errors.New("config classification failed")

	// ErrRunNumberAllocation marks an unavailable run history. Fatal: the
	// run never starts and no partial state is created.
	ErrRunNumberAllocation = errors.New("run number allocation failed")

	// ErrInvalidArtifactRef marks a violation of the artifact naming
	// contract. Fatal to the specific artifact write.
	ErrInvalidArtifactRef = errors.New("invalid artifact ref")

	// ErrSolverDivergence reports that the external solver did not converge
	// within its own bounds. Per-column, non-fatal to the run.
	ErrSolverDivergence = errors.New("solver did not converge")

	// ErrSolverTimeout reports that the external solver exceeded its
	// wall-clock budget. Per-column, non-fatal to the run.
	ErrSolverTimeout = errors.New("solver exceeded wall-clock budget")

	// ErrInvalidInitialCondition reports a malformed reused artifact or a
	// malformed external modification. Per-column, non-fatal to the run.
	ErrInvalidInitialCondition = errors.New("invalid initial condition")
)

// ErrorKind maps a column failure to the label recorded on its ColumnState.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSolverTimeout):
		return "solver_timeout"
	case errors.Is(err, ErrSolverDivergence):
		return "solver_divergence"
	case errors.Is(err, ErrInvalidInitialCondition):
		return "invalid_initial_condition"
	case errors.Is(err, ErrInvalidArtifactRef):
		return "invalid_artifact_ref"
	default:
		return "unknown"
	}
}
