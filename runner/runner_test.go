package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LCLUCam/VULCAN/domain"
)

func testProfile() domain.Profile {
	return domain.Profile{
		Heights:      []float64{0, 5e4, 1e5, 1.5e5},
		Pressures:    []float64{1.013e7, 5e6, 2e6, 1e6},
		Temperatures: []float64{288, 250, 220},
		Species:      []string{"H2O", "SO2"},
		Densities: map[string][]float64{
			"H2O": {1e17, 5e16, 1e16},
			"SO2": {2e11, 1e11, 5e10},
		},
	}
}

type fakeSolver struct {
	calls   int
	fail    error
	block   bool
	initial domain.Profile
}

func (s *fakeSolver) Solve(ctx context.Context, cfg domain.RunConfig, col domain.ColumnID, initial domain.Profile) (domain.Profile, error) {
	s.calls++
	s.initial = initial
	if s.block {
		<-ctx.Done()
		return domain.Profile{}, ctx.Err()
	}
	if s.fail != nil {
		return domain.Profile{}, s.fail
	}
	return initial, nil
}

type fakeInitializer struct {
	calls int
}

func (i *fakeInitializer) Equilibrium(ctx context.Context, cfg domain.RunConfig, col domain.ColumnID) (domain.Profile, error) {
	i.calls++
	return testProfile(), nil
}

type fakeProfiles struct {
	profiles map[string]domain.Profile
	reads    []string
}

func (p *fakeProfiles) ReadProfile(ctx context.Context, key string) (domain.Profile, error) {
	p.reads = append(p.reads, key)
	profile, ok := p.profiles[key]
	if !ok {
		return domain.Profile{}, errors.New("profile not found")
	}
	return profile, nil
}

func newTestRunner(t *testing.T, solver *fakeSolver, timeout time.Duration) (*Runner, *fakeInitializer, *fakeProfiles) {
	t.Helper()
	init := &fakeInitializer{}
	profiles := &fakeProfiles{profiles: map[string]domain.Profile{}}
	r, err := New(solver, init, profiles, timeout, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return r, init, profiles
}

func baseRequest(kind domain.InitialConditionKind) Request {
	return Request{
		RunNumber: 2,
		Column:    domain.ColumnID{X: 0, Y: 1},
		Config:    domain.RunConfig{GridX: 2, GridY: 2, OutName: "earth"},
		Source:    Source{Kind: kind},
	}
}

func TestRunColumnFreshEquilibrium(t *testing.T) {
	solver := &fakeSolver{}
	r, init, _ := newTestRunner(t, solver, time.Second)

	res, err := r.RunColumn(context.Background(), baseRequest(domain.SourceFreshEquilibrium))
	if err != nil {
		t.Fatalf("RunColumn() err=%v", err)
	}
	if init.calls != 1 || solver.calls != 1 {
		t.Fatalf("expected one equilibrium and one solve, got %d/%d", init.calls, solver.calls)
	}
	if res.Source != domain.SourceFreshEquilibrium {
		t.Fatalf("unexpected source %s", res.Source)
	}
	if err := res.Profile.Validate(); err != nil {
		t.Fatalf("result profile invalid: %v", err)
	}
}

func TestRunColumnSeedsFromPrior(t *testing.T) {
	solver := &fakeSolver{}
	r, init, profiles := newTestRunner(t, solver, time.Second)

	priorKey := "earth-run-0001-201-output.vul"
	prior := testProfile()
	prior.Temperatures[0] = 300
	profiles.profiles[priorKey] = prior

	req := baseRequest(domain.SourceReusedPrior)
	req.Source.PriorKey = priorKey
	req.Source.PriorRunNumber = 1

	res, err := r.RunColumn(context.Background(), req)
	if err != nil {
		t.Fatalf("RunColumn() err=%v", err)
	}
	if init.calls != 0 {
		t.Fatalf("prior seed must not call the equilibrium initializer")
	}
	if len(profiles.reads) != 1 || profiles.reads[0] != priorKey {
		t.Fatalf("unexpected profile reads: %v", profiles.reads)
	}
	if solver.initial.Temperatures[0] != 300 {
		t.Fatalf("solver must start from the prior profile")
	}
	if res.SourceRunNumber != 1 {
		t.Fatalf("expected source run 1, got %d", res.SourceRunNumber)
	}
}

func TestRunColumnAppliesModification(t *testing.T) {
	solver := &fakeSolver{}
	r, _, profiles := newTestRunner(t, solver, time.Second)

	priorKey := "earth-run-0001-201-output.vul"
	profiles.profiles[priorKey] = testProfile()

	req := baseRequest(domain.SourceExternalModification)
	req.Source.PriorKey = priorKey
	req.Source.Modification = &domain.ExternalModification{
		RunNumber:        2,
		Column:           req.Column,
		LowerHeight:      10,     // m
		UpperHeight:      520,    // m
		LowerPressure:    101300, // Pa
		UpperPressure:    100700,
		LevelTemperature: 289.5,
		Densities:        map[string]float64{"SO2": 9.9e11},
		ReceivedAt:       time.Now().UTC(),
	}

	if _, err := r.RunColumn(context.Background(), req); err != nil {
		t.Fatalf("RunColumn() err=%v", err)
	}

	got := solver.initial
	if got.Heights[0] != 1000 { // 10 m in cm
		t.Fatalf("lower height = %v, want 1000 cm", got.Heights[0])
	}
	if got.Heights[1] != 52000 {
		t.Fatalf("upper height = %v, want 52000 cm", got.Heights[1])
	}
	if got.Pressures[0] != 1.013e6 { // 101300 Pa in 0.1 Pa
		t.Fatalf("lower pressure = %v, want 1.013e6", got.Pressures[0])
	}
	if got.Temperatures[0] != 289.5 {
		t.Fatalf("level temperature = %v, want 289.5", got.Temperatures[0])
	}
	if got.Densities["SO2"][0] != 9.9e11 {
		t.Fatalf("SO2 density = %v, want 9.9e11", got.Densities["SO2"][0])
	}
	// Untouched levels keep their base values.
	if got.Densities["SO2"][1] != 1e11 {
		t.Fatalf("level 1 SO2 density changed: %v", got.Densities["SO2"][1])
	}
}

func TestRunColumnPartialModificationKeepsBaseBoundary(t *testing.T) {
	solver := &fakeSolver{}
	r, _, profiles := newTestRunner(t, solver, time.Second)

	priorKey := "earth-run-0001-201-output.vul"
	prior := testProfile()
	prior.Heights = []float64{2e5, 2.5e5, 3e5, 3.5e5}
	profiles.profiles[priorKey] = prior

	req := baseRequest(domain.SourceExternalModification)
	req.Source.PriorKey = priorKey
	req.Source.Modification = &domain.ExternalModification{
		RunNumber:        2,
		Column:           req.Column,
		LevelTemperature: 301,
		ReceivedAt:       time.Now().UTC(),
	}

	if _, err := r.RunColumn(context.Background(), req); err != nil {
		t.Fatalf("RunColumn() err=%v", err)
	}

	got := solver.initial
	if got.Temperatures[0] != 301 {
		t.Fatalf("level temperature = %v, want 301", got.Temperatures[0])
	}
	// Fields the patch does not carry keep the base values.
	if got.Heights[0] != 2e5 || got.Heights[1] != 2.5e5 {
		t.Fatalf("boundary heights changed: [%v, %v], want [2e5, 2.5e5]", got.Heights[0], got.Heights[1])
	}
	if got.Pressures[0] != 1.013e7 {
		t.Fatalf("boundary pressure changed: %v, want 1.013e7", got.Pressures[0])
	}
	if got.Densities["SO2"][0] != 2e11 {
		t.Fatalf("boundary SO2 density changed: %v, want 2e11", got.Densities["SO2"][0])
	}
}

func TestRunColumnRejectsUnknownSpeciesInModification(t *testing.T) {
	solver := &fakeSolver{}
	r, _, _ := newTestRunner(t, solver, time.Second)

	req := baseRequest(domain.SourceExternalModification)
	req.Source.Modification = &domain.ExternalModification{
		RunNumber:        2,
		Column:           req.Column,
		LevelTemperature: 289,
		Densities:        map[string]float64{"XYZ": 1},
		ReceivedAt:       time.Now().UTC(),
	}

	_, err := r.RunColumn(context.Background(), req)
	if !errors.Is(err, domain.ErrInvalidInitialCondition) {
		t.Fatalf("expected ErrInvalidInitialCondition, got %v", err)
	}
	if solver.calls != 0 {
		t.Fatalf("solver must not run on an invalid initial condition")
	}
}

func TestRunColumnTimesOut(t *testing.T) {
	solver := &fakeSolver{block: true}
	r, _, _ := newTestRunner(t, solver, 20*time.Millisecond)

	_, err := r.RunColumn(context.Background(), baseRequest(domain.SourceFreshEquilibrium))
	if !errors.Is(err, domain.ErrSolverTimeout) {
		t.Fatalf("expected ErrSolverTimeout, got %v", err)
	}
}

func TestRunColumnPropagatesDivergence(t *testing.T) {
	solver := &fakeSolver{fail: domain.ErrSolverDivergence}
	r, _, _ := newTestRunner(t, solver, time.Second)

	_, err := r.RunColumn(context.Background(), baseRequest(domain.SourceFreshEquilibrium))
	if !errors.Is(err, domain.ErrSolverDivergence) {
		t.Fatalf("expected ErrSolverDivergence, got %v", err)
	}
	if kind := domain.ErrorKind(err); kind != "solver_divergence" {
		t.Fatalf("ErrorKind() = %q", kind)
	}
}
