package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RunConfig is an immutable snapshot of every parameter governing one run.
// It is created from the active configuration source when a run starts and
// never mutated afterwards; the next run supersedes it with a new snapshot.
//
// Fields outside the declared schema land in Extra; the comparator treats
// any difference there as unclassifiable and forces recompute.
type RunConfig struct {
	// Grid-affecting.
	GridX int `yaml:"grid_x" json:"grid_x"`
	GridY int `yaml:"grid_y" json:"grid_y"`

	// Chemistry-affecting.
	AtmType           string  `yaml:"atm_type" json:"atm_type"`
	IniMix            string  `yaml:"ini_mix" json:"ini_mix"`
	BoundPressure     float64 `yaml:"p_b" json:"p_b"` // lower-boundary pressure from the boundary-layer coupling [0.1 Pa]
	ODESolver         string  `yaml:"ode_solver" json:"ode_solver"`
	UsePhoto          bool    `yaml:"use_photo" json:"use_photo"`
	UseCondense       bool    `yaml:"use_condense" json:"use_condense"`
	UseMolDiff        bool    `yaml:"use_moldiff" json:"use_moldiff"`
	UseLowTLimitRates bool    `yaml:"use_lowT_limit_rates" json:"use_lowT_limit_rates"`
	NetworkFile       string  `yaml:"network_file" json:"network_file"`
	SFluxFile         string  `yaml:"sflux_file" json:"sflux_file"`
	TEff              float64 `yaml:"T_eff" json:"T_eff"`

	// Cosmetic.
	OutName        string `yaml:"out_name" json:"out_name"`
	RemakeChemFuns bool   `yaml:"remake_chem_funs" json:"remake_chem_funs"`
	PlotTP         bool   `yaml:"plot_TP" json:"plot_TP"`

	// Extra captures configuration keys outside the declared schema.
	Extra map[string]any `yaml:",inline" json:"extra,omitempty"`
}

func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.OutName) == "" {
		return errors.New("out_name is required")
	}
	if strings.ContainsAny(c.OutName, "-/ ") {
		return fmt.Errorf("out_name %q must not contain the naming delimiter, path separators or spaces", c.OutName)
	}
	if err := c.Grid().Validate(); err != nil {
		return err
	}
	if c.BoundPressure < 0 {
		return errors.New("p_b must be >= 0")
	}
	return nil
}

// Grid returns the grid shape the snapshot was written for.
func (c RunConfig) Grid() GridShape {
	return GridShape{NX: c.GridX, NY: c.GridY}
}

// Hash returns the content identity of the snapshot: the SHA-256 of its
// canonical JSON encoding.
func (c RunConfig) Hash() (string, error) {
	blob, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal run config: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// ParseRunConfig decodes a YAML configuration snapshot.
func ParseRunConfig(input []byte) (RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("decode run config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// EncodeRunConfig renders the snapshot as the YAML document stored as the
// cfgFile artifact of a column run.
func EncodeRunConfig(cfg RunConfig) ([]byte, error) {
	blob, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode run config: %w", err)
	}
	return blob, nil
}
