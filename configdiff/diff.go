// Package configdiff classifies the difference between two run
// configuration snapshots and decides whether prior column outputs can
// be reused or everything must be recomputed.
package configdiff

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/LCLUCam/VULCAN/domain"
)

// Classification labels the outcome of comparing the requested
// configuration against the most recent prior snapshot.
type Classification string

const (
	ClassificationNoPriorRun   Classification = "no_prior_run"
	ClassificationIdentical    Classification = "identical"
	ClassificationOutputOnly   Classification = "output_only_changed"
	ClassificationScientific   Classification = "scientific_params_changed"
	ClassificationGridTopology Classification = "grid_topology_changed"
)

func NormalizeClassification(s string) (Classification, error) {
	switch Classification(s) {
	case ClassificationNoPriorRun, ClassificationIdentical, ClassificationOutputOnly,
		ClassificationScientific, ClassificationGridTopology:
		return Classification(s), nil
	}
	return "", fmt.Errorf("unknown classification %q", s)
}

// AllowsReuse reports whether the classification permits reusing prior
// column outputs. Reuse is still conditional on the prior column state
// being successful; that check belongs to the caller.
func (c Classification) AllowsReuse() bool {
	return c == ClassificationIdentical || c == ClassificationOutputOnly
}

// FieldCategory places a configuration field in the reuse taxonomy.
type FieldCategory string

const (
	CategoryGrid      FieldCategory = "grid"
	CategoryChemistry FieldCategory = "chemistry"
	CategoryCosmetic  FieldCategory = "cosmetic"

	// CategoryUnknown marks fields outside the declared partition. Any
	// difference in an unknown field forces recompute.
	CategoryUnknown FieldCategory = "unknown"
)

// FieldDiff records a single configuration field whose value changed.
type FieldDiff struct {
	Field    string
	Category FieldCategory
	Old      any
	New      any
}

// Partition maps configuration field names to their categories. Field
// names follow the snapshot encoding keys.
type Partition struct {
	fields map[string]FieldCategory
}

func NewPartition(fields map[string]FieldCategory) *Partition {
	cloned := make(map[string]FieldCategory, len(fields))
	for k, v := range fields {
		cloned[k] = v
	}
	return &Partition{fields: cloned}
}

// DefaultPartition returns the built-in field taxonomy.
func DefaultPartition() *Partition {
	return NewPartition(map[string]FieldCategory{
		"grid_x": CategoryGrid,
		"grid_y": CategoryGrid,

		"atm_type":             CategoryChemistry,
		"ini_mix":              CategoryChemistry,
		"p_b":                  CategoryChemistry,
		"ode_solver":           CategoryChemistry,
		"use_photo":            CategoryChemistry,
		"use_condense":         CategoryChemistry,
		"use_moldiff":          CategoryChemistry,
		"use_lowT_limit_rates": CategoryChemistry,
		"network_file":         CategoryChemistry,
		"sflux_file":           CategoryChemistry,
		"T_eff":                CategoryChemistry,

		"out_name":         CategoryCosmetic,
		"remake_chem_funs": CategoryCosmetic,
		"plot_TP":          CategoryCosmetic,
	})
}

// Category returns the category of a field, CategoryUnknown when the
// partition does not name it.
func (p *Partition) Category(field string) FieldCategory {
	if p == nil {
		return CategoryUnknown
	}
	if cat, ok := p.fields[field]; ok {
		return cat
	}
	return CategoryUnknown
}

// Compare returns every field whose value differs between the two
// snapshots, ordered by field name.
func Compare(prev, next domain.RunConfig, part *Partition) []FieldDiff {
	prevFields := fieldValues(prev)
	nextFields := fieldValues(next)

	names := make(map[string]struct{}, len(prevFields))
	for name := range prevFields {
		names[name] = struct{}{}
	}
	for name := range nextFields {
		names[name] = struct{}{}
	}

	var diffs []FieldDiff
	for name := range names {
		oldVal, oldOK := prevFields[name]
		newVal, newOK := nextFields[name]
		if oldOK && newOK && reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		diffs = append(diffs, FieldDiff{
			Field:    name,
			Category: part.Category(name),
			Old:      oldVal,
			New:      newVal,
		})
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Field < diffs[j].Field })
	return diffs
}

// Classify compares the requested snapshot against the prior one. A nil
// prior means no run has happened yet. Category precedence when several
// kinds of fields changed: grid first, then chemistry or unknown, then
// cosmetic.
func Classify(prev *domain.RunConfig, next domain.RunConfig, part *Partition) (Classification, []FieldDiff) {
	if prev == nil {
		return ClassificationNoPriorRun, nil
	}
	diffs := Compare(*prev, next, part)
	if len(diffs) == 0 {
		return ClassificationIdentical, nil
	}

	var sawScientific bool
	for _, d := range diffs {
		switch d.Category {
		case CategoryGrid:
			return ClassificationGridTopology, diffs
		case CategoryChemistry, CategoryUnknown:
			sawScientific = true
		}
	}
	if sawScientific {
		return ClassificationScientific, diffs
	}
	return ClassificationOutputOnly, diffs
}

// fieldValues flattens a snapshot into comparison keys. Extra keys join
// the declared fields under their own names so an out-of-schema change
// is visible to the comparator.
func fieldValues(cfg domain.RunConfig) map[string]any {
	out := map[string]any{
		"grid_x": cfg.GridX,
		"grid_y": cfg.GridY,

		"atm_type":             cfg.AtmType,
		"ini_mix":              cfg.IniMix,
		"p_b":                  cfg.BoundPressure,
		"ode_solver":           cfg.ODESolver,
		"use_photo":            cfg.UsePhoto,
		"use_condense":         cfg.UseCondense,
		"use_moldiff":          cfg.UseMolDiff,
		"use_lowT_limit_rates": cfg.UseLowTLimitRates,
		"network_file":         cfg.NetworkFile,
		"sflux_file":           cfg.SFluxFile,
		"T_eff":                cfg.TEff,

		"out_name":         cfg.OutName,
		"remake_chem_funs": cfg.RemakeChemFuns,
		"plot_TP":          cfg.PlotTP,
	}
	for k, v := range cfg.Extra {
		if _, taken := out[k]; taken {
			continue
		}
		out[k] = v
	}
	return out
}
