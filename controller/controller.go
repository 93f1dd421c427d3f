// Package controller orchestrates whole runs: it classifies the
// requested configuration against the previous run, allocates the run
// number, schedules every column of the grid, and drives reuse or
// recompute per column through a bounded worker pool.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LCLUCam/VULCAN/artifact"
	"github.com/LCLUCam/VULCAN/configdiff"
	"github.com/LCLUCam/VULCAN/domain"
	"github.com/LCLUCam/VULCAN/history"
	"github.com/LCLUCam/VULCAN/runlog"
	"github.com/LCLUCam/VULCAN/runner"
	"github.com/LCLUCam/VULCAN/storage/artifacts"
)

const defaultWorkers = 4

// Deps wires the controller to its collaborators.
type Deps struct {
	History   history.Store
	Artifacts *artifacts.Tiers
	Runner    *runner.Runner
	Namer     *artifact.Namer
	Recorder  *runlog.Recorder
	Partition *configdiff.Partition

	// Workers bounds concurrent column executions. Zero means the
	// default.
	Workers int
	Logger  *slog.Logger
}

type Controller struct {
	history   history.Store
	artifacts *artifacts.Tiers
	runner    *runner.Runner
	namer     *artifact.Namer
	recorder  *runlog.Recorder
	partition *configdiff.Partition
	workers   int
	logger    *slog.Logger
	now       func() time.Time
}

func New(d Deps) (*Controller, error) {
	if d.History == nil {
		return nil, errors.New("history store is required")
	}
	if d.Artifacts == nil {
		return nil, errors.New("artifact tiers are required")
	}
	if d.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if d.Namer == nil {
		return nil, errors.New("artifact namer is required")
	}
	if d.Recorder == nil {
		return nil, errors.New("run log recorder is required")
	}
	if d.Partition == nil {
		d.Partition = configdiff.DefaultPartition()
	}
	if d.Workers <= 0 {
		d.Workers = defaultWorkers
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Controller{
		history:   d.History,
		artifacts: d.Artifacts,
		runner:    d.Runner,
		namer:     d.Namer,
		recorder:  d.Recorder,
		partition: d.Partition,
		workers:   d.Workers,
		logger:    d.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// StartRun executes one full pass over the column grid under the given
// configuration. Pending modifications for the allocated run number are
// consumed per column. The returned record holds the terminal state of
// every column.
func (c *Controller) StartRun(ctx context.Context, cfg domain.RunConfig, mods []domain.ExternalModification) (domain.RunRecord, error) {
	if c == nil || c.history == nil {
		return domain.RunRecord{}, errors.New("controller not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return domain.RunRecord{}, err
	}

	prior, err := c.latestRun(ctx)
	if err != nil {
		return domain.RunRecord{}, err
	}
	var priorCfg *domain.RunConfig
	if prior != nil {
		priorCfg = &prior.Config
	}
	class, diffs := configdiff.Classify(priorCfg, cfg, c.partition)

	hash, err := cfg.Hash()
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("%w: %v", domain.ErrConfigClassification, err)
	}

	runNumber, err := c.history.NextRunNumber(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrRunNumberAllocation) {
			return domain.RunRecord{}, err
		}
		return domain.RunRecord{}, fmt.Errorf("%w: %v", domain.ErrRunNumberAllocation, err)
	}

	rec := domain.RunRecord{
		ID:             uuid.NewString(),
		RunNumber:      runNumber,
		Config:         cfg,
		ConfigHash:     hash,
		Classification: string(class),
		Status:         domain.RunRunning,
		StartedAt:      c.now(),
	}
	if err := c.history.CreateRun(ctx, rec); err != nil {
		return domain.RunRecord{}, fmt.Errorf("create run: %w", err)
	}

	c.logger.Info("run started",
		slog.Int64("run", runNumber),
		slog.String("classification", string(class)),
		slog.String("config_hash", hash))
	c.record(ctx, runlog.Event{RunNumber: runNumber, Kind: runlog.EventRunStarted, Detail: map[string]any{"config_hash": hash}})
	c.record(ctx, runlog.Event{RunNumber: runNumber, Kind: runlog.EventRunClassified, Detail: map[string]any{
		"classification": string(class),
		"changed_fields": diffFields(diffs),
	}})

	for _, mod := range mods {
		mod.RunNumber = runNumber
		if mod.ReceivedAt.IsZero() {
			mod.ReceivedAt = c.now()
		}
		if err := c.history.PutModification(ctx, mod); err != nil {
			return domain.RunRecord{}, fmt.Errorf("store modification for column %s: %w", mod.Column, err)
		}
	}

	plans, err := c.schedule(ctx, runNumber, cfg, class, prior)
	if err != nil {
		return domain.RunRecord{}, err
	}
	if err := c.execute(ctx, runNumber, cfg, plans); err != nil {
		return domain.RunRecord{}, err
	}
	return c.finalize(ctx, runNumber, cfg)
}

func (c *Controller) latestRun(ctx context.Context) (*domain.RunRecord, error) {
	latest, err := c.history.LatestRun(ctx)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest run: %w", err)
	}
	return &latest, nil
}

// columnPlan is one column's scheduling decision.
type columnPlan struct {
	col     domain.ColumnID
	reuse   bool
	request runner.Request

	// reuseSrcKey and reuseSrcRun identify the promoted artifact a
	// reused column copies from.
	reuseSrcKey string
	reuseSrcRun int64
	outputKey   string
}

func (c *Controller) schedule(ctx context.Context, runNumber int64, cfg domain.RunConfig, class configdiff.Classification, prior *domain.RunRecord) ([]columnPlan, error) {
	reuseAllowed := class.AllowsReuse() && prior != nil
	gridChanged := class == configdiff.ClassificationGridTopology

	cfgBlob, err := domain.EncodeRunConfig(cfg)
	if err != nil {
		return nil, err
	}

	var plans []columnPlan
	firstRecompute := true
	for _, col := range cfg.Grid().Columns() {
		plan := columnPlan{col: col}

		outputRef := domain.ArtifactRef{OutName: cfg.OutName, RunNumber: runNumber, Column: col, Kind: domain.FileKindOutput, Ext: ".vul"}
		plan.outputKey, err = c.namer.Name(outputRef)
		if err != nil {
			return nil, err
		}

		mod, err := c.takeModification(ctx, runNumber, col)
		if err != nil {
			return nil, err
		}

		var seed *domain.ColumnState
		if !gridChanged {
			prev, err := c.history.LatestSuccessfulColumn(ctx, col)
			if err == nil {
				seed = &prev
			} else if !errors.Is(err, history.ErrNotFound) {
				return nil, fmt.Errorf("load prior state for column %s: %w", col, err)
			}
		}
		if seed != nil && !c.finalArtifactExists(ctx, seed.OutputKey) {
			seed = nil
		}

		source := runner.Source{Kind: domain.SourceFreshEquilibrium}
		switch {
		case mod != nil:
			source = runner.Source{Kind: domain.SourceExternalModification, Modification: mod}
			if seed != nil {
				source.PriorKey = seed.OutputKey
				source.PriorRunNumber = seed.RunNumber
			}
		case reuseAllowed:
			prev, ok := prior.ColumnState(col)
			if ok && prev.Status.Successful() && c.finalArtifactExists(ctx, prev.OutputKey) {
				plan.reuse = true
				plan.reuseSrcKey = prev.OutputKey
				plan.reuseSrcRun = prior.RunNumber
			} else if seed != nil {
				source = runner.Source{Kind: domain.SourceReusedPrior, PriorKey: seed.OutputKey, PriorRunNumber: seed.RunNumber}
			}
		case seed != nil:
			source = runner.Source{Kind: domain.SourceReusedPrior, PriorKey: seed.OutputKey, PriorRunNumber: seed.RunNumber}
		}

		pending := domain.ColumnState{
			ID:          uuid.NewString(),
			RunNumber:   runNumber,
			Column:      col,
			Status:      domain.ColumnPending,
			ScheduledAt: c.now(),
		}
		switch {
		case plan.reuse:
			pending.Source = domain.SourceReusedPrior
			pending.SourceRunNumber = plan.reuseSrcRun
		default:
			pending.Source = source.Kind
			pending.SourceRunNumber = source.PriorRunNumber
		}
		if err := c.history.CreateColumnState(ctx, pending); err != nil {
			return nil, fmt.Errorf("schedule column %s: %w", col, err)
		}

		cfgRef := domain.ArtifactRef{OutName: cfg.OutName, RunNumber: runNumber, Column: col, Kind: domain.FileKindCfg, Ext: ".txt"}
		cfgKey, err := c.namer.Name(cfgRef)
		if err != nil {
			return nil, err
		}
		cfgSHA, err := c.artifacts.PutRuntime(ctx, cfgKey, cfgBlob, "text/plain")
		if err != nil {
			return nil, fmt.Errorf("write config snapshot for column %s: %w", col, err)
		}
		c.record(ctx, runlog.Event{RunNumber: runNumber, Kind: runlog.EventColumnScheduled, Column: col.String(), Detail: map[string]any{
			"source":        string(pending.Source),
			"reuse":         plan.reuse,
			"config_sha256": cfgSHA,
			"config_key":    cfgKey,
		}})

		if !plan.reuse {
			plan.request = runner.Request{
				RunNumber:      runNumber,
				Column:         col,
				Config:         cfg,
				Source:         source,
				RemakeChemFuns: cfg.RemakeChemFuns && firstRecompute,
			}
			firstRecompute = false
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (c *Controller) takeModification(ctx context.Context, runNumber int64, col domain.ColumnID) (*domain.ExternalModification, error) {
	mod, err := c.history.TakeModification(ctx, runNumber, col)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("take modification for column %s: %w", col, err)
	}
	c.record(ctx, runlog.Event{RunNumber: runNumber, Kind: runlog.EventModificationTaken, Column: col.String(), Detail: map[string]any{
		"received_at": mod.ReceivedAt,
	}})
	return &mod, nil
}

type columnOutcome struct {
	plan   columnPlan
	result runner.Result
	err    error
}

// execute runs the scheduled plan. Reused columns are handled inline by
// copying the promoted artifact; recomputed columns fan out over the
// worker pool. All artifact and history writes happen on this goroutine,
// so there is exactly one writer.
func (c *Controller) execute(ctx context.Context, runNumber int64, cfg domain.RunConfig, plans []columnPlan) error {
	var recompute []columnPlan
	for _, plan := range plans {
		if !plan.reuse {
			recompute = append(recompute, plan)
			continue
		}
		if err := c.reuseColumn(ctx, runNumber, plan); err != nil {
			return err
		}
	}
	if len(recompute) == 0 {
		return nil
	}

	jobs := make(chan columnPlan)
	outcomes := make(chan columnOutcome)

	workers := c.workers
	if workers > len(recompute) {
		workers = len(recompute)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for plan := range jobs {
				res, err := c.runner.RunColumn(ctx, plan.request)
				outcomes <- columnOutcome{plan: plan, result: res, err: err}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, plan := range recompute {
			select {
			case jobs <- plan:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Drain every outcome even after a persistence failure, so no
	// worker stays blocked on its send.
	var persistErr error
	for outcome := range outcomes {
		if persistErr != nil {
			continue
		}
		persistErr = c.persistOutcome(ctx, runNumber, outcome)
	}
	return persistErr
}

func (c *Controller) reuseColumn(ctx context.Context, runNumber int64, plan columnPlan) error {
	if err := c.artifacts.CopyFinalToRuntime(ctx, plan.reuseSrcKey, plan.outputKey); err != nil {
		return fmt.Errorf("reuse column %s: %w", plan.col, err)
	}
	now := c.now()
	state := domain.ColumnState{
		ID:              c.stateID(ctx, runNumber, plan.col),
		RunNumber:       runNumber,
		Column:          plan.col,
		Status:          domain.ColumnReused,
		Source:          domain.SourceReusedPrior,
		SourceRunNumber: plan.reuseSrcRun,
		OutputKey:       plan.outputKey,
		CompletedAt:     &now,
	}
	if err := c.history.FinalizeColumnState(ctx, state); err != nil {
		return fmt.Errorf("finalize reused column %s: %w", plan.col, err)
	}
	c.logger.Info("column reused",
		slog.Int64("run", runNumber),
		slog.String("column", plan.col.String()),
		slog.Int64("source_run", plan.reuseSrcRun))
	c.record(ctx, runlog.Event{RunNumber: runNumber, Kind: runlog.EventColumnReused, Column: plan.col.String(), Detail: map[string]any{
		"source_run": plan.reuseSrcRun,
		"output_key": plan.outputKey,
	}})
	return nil
}

func (c *Controller) persistOutcome(ctx context.Context, runNumber int64, outcome columnOutcome) error {
	plan := outcome.plan
	now := c.now()
	if outcome.err != nil {
		kind := domain.ErrorKind(outcome.err)
		state := domain.ColumnState{
			ID:              c.stateID(ctx, runNumber, plan.col),
			RunNumber:       runNumber,
			Column:          plan.col,
			Status:          domain.ColumnFailed,
			Source:          plan.request.Source.Kind,
			SourceRunNumber: plan.request.Source.PriorRunNumber,
			ErrorKind:       kind,
			CompletedAt:     &now,
		}
		if err := c.history.FinalizeColumnState(ctx, state); err != nil {
			return fmt.Errorf("finalize failed column %s: %w", plan.col, err)
		}
		c.logger.Error("column failed",
			slog.Int64("run", runNumber),
			slog.String("column", plan.col.String()),
			slog.String("error_kind", kind),
			slog.String("error", outcome.err.Error()))
		c.record(ctx, runlog.Event{RunNumber: runNumber, Kind: runlog.EventColumnFailed, Column: plan.col.String(), Detail: map[string]any{
			"error_kind": kind,
			"error":      outcome.err.Error(),
		}})
		return nil
	}

	blob, err := domain.EncodeProfile(outcome.result.Profile)
	if err != nil {
		return fmt.Errorf("encode output for column %s: %w", plan.col, err)
	}
	outputSHA, err := c.artifacts.PutRuntime(ctx, plan.outputKey, blob, "application/json")
	if err != nil {
		return fmt.Errorf("store output for column %s: %w", plan.col, err)
	}
	state := domain.ColumnState{
		ID:              c.stateID(ctx, runNumber, plan.col),
		RunNumber:       runNumber,
		Column:          plan.col,
		Status:          domain.ColumnRecomputed,
		Source:          outcome.result.Source,
		SourceRunNumber: outcome.result.SourceRunNumber,
		OutputKey:       plan.outputKey,
		CompletedAt:     &now,
	}
	if err := c.history.FinalizeColumnState(ctx, state); err != nil {
		return fmt.Errorf("finalize recomputed column %s: %w", plan.col, err)
	}
	c.record(ctx, runlog.Event{RunNumber: runNumber, Kind: runlog.EventColumnRecomputed, Column: plan.col.String(), Detail: map[string]any{
		"output_key":    plan.outputKey,
		"output_sha256": outputSHA,
		"elapsed_ms":    outcome.result.Elapsed.Milliseconds(),
	}})
	return nil
}

func (c *Controller) finalize(ctx context.Context, runNumber int64, cfg domain.RunConfig) (domain.RunRecord, error) {
	states, err := c.history.ListColumnStates(ctx, runNumber)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("list column states: %w", err)
	}
	status := domain.DeriveRunStatus(states)

	anySuccess := false
	for _, st := range states {
		if st.Status.Successful() {
			anySuccess = true
			break
		}
	}
	if anySuccess {
		prefix, err := c.namer.RunPrefix(cfg.OutName, runNumber)
		if err != nil {
			return domain.RunRecord{}, err
		}
		promoted, err := c.artifacts.PromoteRun(ctx, prefix)
		if err != nil {
			return domain.RunRecord{}, fmt.Errorf("promote run %d: %w", runNumber, err)
		}
		c.record(ctx, runlog.Event{RunNumber: runNumber, Kind: runlog.EventRunPromoted, Detail: map[string]any{
			"objects": promoted,
		}})
	}

	if err := c.history.FinalizeRun(ctx, runNumber, status); err != nil {
		return domain.RunRecord{}, fmt.Errorf("finalize run %d: %w", runNumber, err)
	}
	c.logger.Info("run finalized",
		slog.Int64("run", runNumber),
		slog.String("status", string(status)))
	c.record(ctx, runlog.Event{RunNumber: runNumber, Kind: runlog.EventRunFinalized, Detail: map[string]any{
		"status": string(status),
	}})

	return c.history.GetRun(ctx, runNumber)
}

// finalArtifactExists reports whether a promoted artifact is still
// present in the final tier. History rows whose object was removed out
// of band must not schedule a copy or a seed read from it.
func (c *Controller) finalArtifactExists(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	_, err := c.artifacts.StatFinal(ctx, key)
	return err == nil
}

// stateID looks up the id the pending state was created with, so the
// finalized row keeps its identity.
func (c *Controller) stateID(ctx context.Context, runNumber int64, col domain.ColumnID) string {
	states, err := c.history.ListColumnStates(ctx, runNumber)
	if err != nil {
		return uuid.NewString()
	}
	for _, st := range states {
		if st.Column == col {
			return st.ID
		}
	}
	return uuid.NewString()
}

func (c *Controller) record(ctx context.Context, event runlog.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.now()
	}
	if err := c.recorder.Record(ctx, event); err != nil {
		c.logger.Warn("run log append failed",
			slog.Int64("run", event.RunNumber),
			slog.String("kind", string(event.Kind)),
			slog.String("error", err.Error()))
	}
}

func diffFields(diffs []configdiff.FieldDiff) []string {
	out := make([]string, 0, len(diffs))
	for _, d := range diffs {
		out = append(out, d.Field)
	}
	return out
}
