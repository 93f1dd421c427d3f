package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Profile is a converged single-column composition profile as produced by
// the external integrator. Heights and pressures are given at the level
// interfaces (bottom first), temperatures and number densities at the
// level centers. Internal units: heights in cm, pressures in 0.1 Pa.
type Profile struct {
	Heights      []float64            `json:"zco"`
	Pressures    []float64            `json:"pico"`
	Temperatures []float64            `json:"Tco"`
	Species      []string             `json:"species"`
	Densities    map[string][]float64 `json:"y"`
}

func (p Profile) Levels() int {
	return len(p.Temperatures)
}

func (p Profile) Validate() error {
	if len(p.Temperatures) == 0 {
		return errors.New("profile has no levels")
	}
	if len(p.Heights) != len(p.Temperatures)+1 {
		return fmt.Errorf("profile has %d height interfaces for %d levels", len(p.Heights), len(p.Temperatures))
	}
	if len(p.Pressures) != len(p.Heights) {
		return fmt.Errorf("profile has %d pressure interfaces for %d height interfaces", len(p.Pressures), len(p.Heights))
	}
	if len(p.Species) == 0 {
		return errors.New("profile has no species")
	}
	for _, sp := range p.Species {
		dens, ok := p.Densities[sp]
		if !ok {
			return fmt.Errorf("profile missing densities for species %q", sp)
		}
		if len(dens) != len(p.Temperatures) {
			return fmt.Errorf("species %q has %d density levels, profile has %d", sp, len(dens), len(p.Temperatures))
		}
	}
	return nil
}

// Clone returns a deep copy, so a reused profile can be patched without
// mutating the stored artifact's decoded form.
func (p Profile) Clone() Profile {
	out := Profile{
		Heights:      append([]float64(nil), p.Heights...),
		Pressures:    append([]float64(nil), p.Pressures...),
		Temperatures: append([]float64(nil), p.Temperatures...),
		Species:      append([]string(nil), p.Species...),
		Densities:    make(map[string][]float64, len(p.Densities)),
	}
	for sp, dens := range p.Densities {
		out.Densities[sp] = append([]float64(nil), dens...)
	}
	return out
}

// EncodeProfile renders the profile as the payload of an output artifact.
func EncodeProfile(p Profile) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	blob, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return blob, nil
}

// DecodeProfile parses an output artifact payload.
func DecodeProfile(raw []byte) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}
