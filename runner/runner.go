// Package runner executes one atmospheric column: it assembles the
// column's initial condition, invokes the kinetics solver under the
// per-column timeout, and reports the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/LCLUCam/VULCAN/domain"
)

// Solver advances one column's chemistry to steady state.
type Solver interface {
	Solve(ctx context.Context, cfg domain.RunConfig, col domain.ColumnID, initial domain.Profile) (domain.Profile, error)
}

// Initializer produces a fresh equilibrium initial condition for a
// column that has no usable prior output.
type Initializer interface {
	Equilibrium(ctx context.Context, cfg domain.RunConfig, col domain.ColumnID) (domain.Profile, error)
}

// ProfileReader loads a stored column output by its object key.
type ProfileReader interface {
	ReadProfile(ctx context.Context, key string) (domain.Profile, error)
}

// Source describes where a column's initial condition comes from.
type Source struct {
	Kind domain.InitialConditionKind

	// PriorKey is the object key of the prior output seeding the column
	// when Kind is reused-prior, or the base the modification patches.
	PriorKey       string
	PriorRunNumber int64
	Modification   *domain.ExternalModification
}

// Request is one column execution order.
type Request struct {
	RunNumber int64
	Column    domain.ColumnID
	Config    domain.RunConfig
	Source    Source

	// RemakeChemFuns rebuilds the rate-function tables before solving.
	// The controller sets it for the first column of a run only.
	RemakeChemFuns bool
}

// Result is a completed column execution.
type Result struct {
	Profile         domain.Profile
	Source          domain.InitialConditionKind
	SourceRunNumber int64
	Elapsed         time.Duration
}

// Runner drives solver invocations. The per-column timeout is the only
// cancellation a running solver sees.
type Runner struct {
	solver        Solver
	initializer   Initializer
	profiles      ProfileReader
	columnTimeout time.Duration
	logger        *slog.Logger
}

func New(solver Solver, initializer Initializer, profiles ProfileReader, columnTimeout time.Duration, logger *slog.Logger) (*Runner, error) {
	if solver == nil {
		return nil, errors.New("solver is required")
	}
	if initializer == nil {
		return nil, errors.New("initializer is required")
	}
	if profiles == nil {
		return nil, errors.New("profile reader is required")
	}
	if columnTimeout <= 0 {
		return nil, errors.New("column timeout must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		solver:        solver,
		initializer:   initializer,
		profiles:      profiles,
		columnTimeout: columnTimeout,
		logger:        logger,
	}, nil
}

// RunColumn executes one column to completion or failure.
func (r *Runner) RunColumn(ctx context.Context, req Request) (Result, error) {
	if r == nil || r.solver == nil {
		return Result{}, errors.New("runner not initialized")
	}
	if err := req.Column.Validate(); err != nil {
		return Result{}, err
	}

	initial, err := r.initialCondition(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if err := initial.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrInvalidInitialCondition, err)
	}

	solveCtx, cancel := context.WithTimeout(ctx, r.columnTimeout)
	defer cancel()

	// The rate-function rebuild happens at most once per run; the
	// controller flags only the first recomputed column.
	cfg := req.Config
	cfg.RemakeChemFuns = req.RemakeChemFuns

	started := time.Now()
	profile, err := r.solver.Solve(solveCtx, cfg, req.Column, initial)
	elapsed := time.Since(started)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || solveCtx.Err() == context.DeadlineExceeded {
			r.logger.Warn("column solve timed out",
				slog.Int64("run", req.RunNumber),
				slog.String("column", req.Column.String()),
				slog.Duration("timeout", r.columnTimeout))
			return Result{}, fmt.Errorf("%w after %s: %v", domain.ErrSolverTimeout, r.columnTimeout, err)
		}
		return Result{}, fmt.Errorf("solve column %s: %w", req.Column, err)
	}
	if err := profile.Validate(); err != nil {
		return Result{}, fmt.Errorf("solver output for column %s: %w", req.Column, err)
	}

	r.logger.Info("column solved",
		slog.Int64("run", req.RunNumber),
		slog.String("column", req.Column.String()),
		slog.String("source", string(req.Source.Kind)),
		slog.Duration("elapsed", elapsed))

	return Result{
		Profile:         profile,
		Source:          req.Source.Kind,
		SourceRunNumber: req.Source.PriorRunNumber,
		Elapsed:         elapsed,
	}, nil
}

func (r *Runner) initialCondition(ctx context.Context, req Request) (domain.Profile, error) {
	switch req.Source.Kind {
	case domain.SourceFreshEquilibrium:
		return r.initializer.Equilibrium(ctx, req.Config, req.Column)

	case domain.SourceReusedPrior:
		if req.Source.PriorKey == "" {
			return domain.Profile{}, fmt.Errorf("%w: reused-prior source without a prior key", domain.ErrInvalidInitialCondition)
		}
		return r.profiles.ReadProfile(ctx, req.Source.PriorKey)

	case domain.SourceExternalModification:
		if req.Source.Modification == nil {
			return domain.Profile{}, fmt.Errorf("%w: modification source without a patch", domain.ErrInvalidInitialCondition)
		}
		base, err := r.modificationBase(ctx, req)
		if err != nil {
			return domain.Profile{}, err
		}
		return applyModification(base, *req.Source.Modification)

	default:
		return domain.Profile{}, fmt.Errorf("%w: unknown source kind %q", domain.ErrInvalidInitialCondition, req.Source.Kind)
	}
}

func (r *Runner) modificationBase(ctx context.Context, req Request) (domain.Profile, error) {
	if req.Source.PriorKey != "" {
		return r.profiles.ReadProfile(ctx, req.Source.PriorKey)
	}
	return r.initializer.Equilibrium(ctx, req.Config, req.Column)
}

// applyModification patches the boundary level of a profile with an
// externally supplied state. Incoming values are in standard units and
// are translated to the solver's internal ones. Zero-valued patch
// fields leave the base profile untouched.
func applyModification(base domain.Profile, mod domain.ExternalModification) (domain.Profile, error) {
	out := base.Clone()
	if out.Levels() == 0 {
		return domain.Profile{}, fmt.Errorf("%w: empty base profile", domain.ErrInvalidInitialCondition)
	}

	if mod.LowerHeight > 0 {
		out.Heights[0] = domain.ImportHeight(mod.LowerHeight)
	}
	if mod.UpperHeight > 0 && len(out.Heights) > 1 {
		out.Heights[1] = domain.ImportHeight(mod.UpperHeight)
	}
	if mod.LowerPressure > 0 {
		out.Pressures[0] = domain.ImportPressure(mod.LowerPressure)
	}
	if mod.UpperPressure > 0 && len(out.Pressures) > 1 {
		out.Pressures[1] = domain.ImportPressure(mod.UpperPressure)
	}
	if mod.LevelTemperature > 0 {
		out.Temperatures[0] = mod.LevelTemperature
	}
	for species, density := range mod.Densities {
		levels, ok := out.Densities[species]
		if !ok {
			return domain.Profile{}, fmt.Errorf("%w: species %s not in the network", domain.ErrInvalidInitialCondition, species)
		}
		levels[0] = density
	}
	return out, nil
}
