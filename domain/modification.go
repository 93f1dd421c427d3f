package domain

import (
	"errors"
	"time"
)

// ExternalModification is a caller-supplied patch to a column's initial
// atmospheric composition for a specific future run, keyed by (run number,
// column). It is consumed exactly once when that run builds the column's
// initial condition, then archived and never reapplied.
//
// Values are in standard form (m, Pa, K); the column runner translates
// them to internal units when applying the patch.
type ExternalModification struct {
	RunNumber int64
	Column    ColumnID

	LowerHeight   float64
	UpperHeight   float64
	LowerPressure float64
	UpperPressure float64

	LevelTemperature float64

	// Densities patches the number density of the named species at the
	// modified boundary level.
	Densities map[string]float64

	ReceivedAt time.Time
	ConsumedAt *time.Time
}

func (m ExternalModification) Validate() error {
	if m.RunNumber < 1 {
		return errors.New("modification run number must be >= 1")
	}
	if err := m.Column.Validate(); err != nil {
		return err
	}
	if m.UpperHeight != 0 && m.UpperHeight <= m.LowerHeight {
		return errors.New("modification upper height must exceed lower height")
	}
	if m.LowerPressure < 0 || m.UpperPressure < 0 {
		return errors.New("modification pressures must be >= 0")
	}
	if m.LevelTemperature < 0 {
		return errors.New("modification temperature must be >= 0")
	}
	for sp, v := range m.Densities {
		if sp == "" {
			return errors.New("modification species name must be non-empty")
		}
		if v < 0 {
			return errors.New("modification number densities must be >= 0")
		}
	}
	return nil
}
