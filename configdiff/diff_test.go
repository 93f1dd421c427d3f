package configdiff

import (
	"testing"

	"github.com/LCLUCam/VULCAN/domain"
)

func baseConfig() domain.RunConfig {
	return domain.RunConfig{
		GridX:         2,
		GridY:         2,
		AtmType:       "Earth",
		IniMix:        "EQ",
		BoundPressure: 1.013e6,
		ODESolver:     "Ros2",
		UsePhoto:      true,
		NetworkFile:   "NCHO_photo_network.txt",
		SFluxFile:     "gueymard_solar.txt",
		TEff:          5772,
		OutName:       "earth",
		PlotTP:        true,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.RunConfig)
		want   Classification
	}{
		{
			name:   "identical",
			mutate: func(*domain.RunConfig) {},
			want:   ClassificationIdentical,
		},
		{
			name:   "grid change",
			mutate: func(c *domain.RunConfig) { c.GridX = 3 },
			want:   ClassificationGridTopology,
		},
		{
			name:   "boundary pressure change",
			mutate: func(c *domain.RunConfig) { c.BoundPressure = 2.0e6 },
			want:   ClassificationScientific,
		},
		{
			name:   "solver change",
			mutate: func(c *domain.RunConfig) { c.ODESolver = "Euler" },
			want:   ClassificationScientific,
		},
		{
			name:   "output name change",
			mutate: func(c *domain.RunConfig) { c.OutName = "earth2" },
			want:   ClassificationOutputOnly,
		},
		{
			name:   "plot toggle",
			mutate: func(c *domain.RunConfig) { c.PlotTP = false },
			want:   ClassificationOutputOnly,
		},
		{
			name: "grid change wins over chemistry and cosmetic",
			mutate: func(c *domain.RunConfig) {
				c.GridY = 3
				c.TEff = 4000
				c.OutName = "earth2"
			},
			want: ClassificationGridTopology,
		},
		{
			name: "chemistry change wins over cosmetic",
			mutate: func(c *domain.RunConfig) {
				c.UseCondense = true
				c.PlotTP = false
			},
			want: ClassificationScientific,
		},
		{
			name:   "unknown field forces recompute",
			mutate: func(c *domain.RunConfig) { c.Extra = map[string]any{"diff_mode": "implicit"} },
			want:   ClassificationScientific,
		},
	}

	part := DefaultPartition()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prev := baseConfig()
			next := baseConfig()
			tc.mutate(&next)
			got, _ := Classify(&prev, next, part)
			if got != tc.want {
				t.Fatalf("Classify() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassifyNoPrior(t *testing.T) {
	got, diffs := Classify(nil, baseConfig(), DefaultPartition())
	if got != ClassificationNoPriorRun {
		t.Fatalf("Classify(nil, ...) = %q, want %q", got, ClassificationNoPriorRun)
	}
	if diffs != nil {
		t.Fatalf("expected no diffs, got %v", diffs)
	}
}

func TestCompareReportsFields(t *testing.T) {
	prev := baseConfig()
	next := baseConfig()
	next.TEff = 4000
	next.OutName = "earth2"
	next.Extra = map[string]any{"rtol": 0.01}

	diffs := Compare(prev, next, DefaultPartition())
	if len(diffs) != 3 {
		t.Fatalf("expected 3 diffs, got %d: %+v", len(diffs), diffs)
	}
	// Ordered by field name.
	if diffs[0].Field != "T_eff" || diffs[0].Category != CategoryChemistry {
		t.Fatalf("unexpected first diff: %+v", diffs[0])
	}
	if diffs[1].Field != "out_name" || diffs[1].Category != CategoryCosmetic {
		t.Fatalf("unexpected second diff: %+v", diffs[1])
	}
	if diffs[2].Field != "rtol" || diffs[2].Category != CategoryUnknown {
		t.Fatalf("unexpected third diff: %+v", diffs[2])
	}
	if diffs[0].Old != float64(5772) || diffs[0].New != float64(4000) {
		t.Fatalf("unexpected values on T_eff diff: %+v", diffs[0])
	}
}

func TestAllowsReuse(t *testing.T) {
	tests := []struct {
		class Classification
		want  bool
	}{
		{ClassificationIdentical, true},
		{ClassificationOutputOnly, true},
		{ClassificationNoPriorRun, false},
		{ClassificationScientific, false},
		{ClassificationGridTopology, false},
	}
	for _, tc := range tests {
		if got := tc.class.AllowsReuse(); got != tc.want {
			t.Fatalf("%s.AllowsReuse() = %v, want %v", tc.class, got, tc.want)
		}
	}
}

func TestNormalizeClassification(t *testing.T) {
	if _, err := NormalizeClassification("identical"); err != nil {
		t.Fatalf("NormalizeClassification(identical) err=%v", err)
	}
	if _, err := NormalizeClassification("partial"); err == nil {
		t.Fatalf("expected error for unknown classification")
	}
}
