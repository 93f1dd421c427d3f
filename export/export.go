// Package export serves converged column states back to the coupled
// models: the boundary-layer state per column for the meteorology side,
// and single levels by height for perturbation studies. All exported
// values are in standard units (m, Pa).
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/LCLUCam/VULCAN/domain"
	"github.com/LCLUCam/VULCAN/history"
)

// ProfileReader loads a stored column output by its object key.
type ProfileReader interface {
	ReadProfile(ctx context.Context, key string) (domain.Profile, error)
}

type Exporter struct {
	history  history.Store
	profiles ProfileReader
}

func New(store history.Store, profiles ProfileReader) (*Exporter, error) {
	if store == nil {
		return nil, errors.New("history store is required")
	}
	if profiles == nil {
		return nil, errors.New("profile reader is required")
	}
	return &Exporter{history: store, profiles: profiles}, nil
}

// BoundaryState is the lowest-level state of one column, smoothed over
// its von Neumann neighbors.
type BoundaryState struct {
	Column        domain.ColumnID
	LowerHeight   float64 // m
	UpperHeight   float64 // m
	LowerPressure float64 // Pa
	UpperPressure float64 // Pa
	Temperature   float64
	Densities     map[string]float64
}

// LatestBoundary exports the boundary level of every column in the
// grid, averaged over the column's von Neumann neighbors (at most 4,
// fewer at edges; the column itself does not contribute). Columns with
// no successfully run neighbor are skipped.
func (e *Exporter) LatestBoundary(ctx context.Context, grid domain.GridShape) ([]BoundaryState, error) {
	if e == nil || e.history == nil {
		return nil, errors.New("exporter not initialized")
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	var out []BoundaryState
	for _, col := range grid.Columns() {
		var profiles []domain.Profile
		for _, member := range grid.Neighbors(col) {
			profile, err := e.latestProfile(ctx, member)
			if err != nil {
				if errors.Is(err, history.ErrNotFound) {
					continue
				}
				return nil, err
			}
			profiles = append(profiles, profile)
		}
		if len(profiles) == 0 {
			continue
		}
		out = append(out, averageBoundary(col, profiles))
	}
	return out, nil
}

// LevelState is one level of one column, selected by height.
type LevelState struct {
	Column      domain.ColumnID
	Level       int
	LowerHeight float64 // m
	UpperHeight float64 // m
	Pressure    float64 // Pa, at the lower interface
	Temperature float64
	Densities   map[string]float64
}

// LevelAt exports the level of a column containing the given height.
func (e *Exporter) LevelAt(ctx context.Context, col domain.ColumnID, heightMeters float64) (LevelState, error) {
	if e == nil || e.history == nil {
		return LevelState{}, errors.New("exporter not initialized")
	}
	profile, err := e.latestProfile(ctx, col)
	if err != nil {
		return LevelState{}, err
	}

	target := domain.ImportHeight(heightMeters)
	level := -1
	for i := 0; i < profile.Levels(); i++ {
		if target >= profile.Heights[i] && target < profile.Heights[i+1] {
			level = i
			break
		}
	}
	if level < 0 {
		return LevelState{}, fmt.Errorf("height %gm outside the column %s domain", heightMeters, col)
	}

	densities := make(map[string]float64, len(profile.Species))
	for _, sp := range profile.Species {
		densities[sp] = profile.Densities[sp][level]
	}
	return LevelState{
		Column:      col,
		Level:       level,
		LowerHeight: domain.ExportHeight(profile.Heights[level]),
		UpperHeight: domain.ExportHeight(profile.Heights[level+1]),
		Pressure:    domain.ExportPressure(profile.Pressures[level]),
		Temperature: profile.Temperatures[level],
		Densities:   densities,
	}, nil
}

func (e *Exporter) latestProfile(ctx context.Context, col domain.ColumnID) (domain.Profile, error) {
	state, err := e.history.LatestSuccessfulColumn(ctx, col)
	if err != nil {
		return domain.Profile{}, err
	}
	profile, err := e.profiles.ReadProfile(ctx, state.OutputKey)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("read output of column %s: %w", col, err)
	}
	return profile, nil
}

// averageBoundary means the boundary level across a neighborhood. The
// species set is taken from the first profile; a species missing from a
// member simply contributes nothing to its mean.
func averageBoundary(col domain.ColumnID, profiles []domain.Profile) BoundaryState {
	state := BoundaryState{
		Column:    col,
		Densities: make(map[string]float64, len(profiles[0].Species)),
	}
	var lowerH, upperH, lowerP, upperP, temperature float64
	for _, p := range profiles {
		lowerH += domain.ExportHeight(p.Heights[0])
		upperH += domain.ExportHeight(p.Heights[1])
		lowerP += domain.ExportPressure(p.Pressures[0])
		upperP += domain.ExportPressure(p.Pressures[1])
		temperature += p.Temperatures[0]
	}
	n := float64(len(profiles))
	state.LowerHeight = lowerH / n
	state.UpperHeight = upperH / n
	state.LowerPressure = lowerP / n
	state.UpperPressure = upperP / n
	state.Temperature = temperature / n

	for _, sp := range profiles[0].Species {
		var sum float64
		var count int
		for _, p := range profiles {
			if dens, ok := p.Densities[sp]; ok {
				sum += dens[0]
				count++
			}
		}
		if count > 0 {
			state.Densities[sp] = sum / float64(count)
		}
	}
	return state
}
