// Command vulcanrun executes one pass over the column grid: it loads
// the run configuration, decides reuse versus recompute against the run
// history, and drives the external integrator per column.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/LCLUCam/VULCAN/artifact"
	"github.com/LCLUCam/VULCAN/controller"
	"github.com/LCLUCam/VULCAN/domain"
	historypg "github.com/LCLUCam/VULCAN/history/postgres"
	"github.com/LCLUCam/VULCAN/platform/env"
	"github.com/LCLUCam/VULCAN/platform/objectstore"
	"github.com/LCLUCam/VULCAN/platform/postgres"
	"github.com/LCLUCam/VULCAN/runlog"
	"github.com/LCLUCam/VULCAN/runner"
	"github.com/LCLUCam/VULCAN/solver"
	"github.com/LCLUCam/VULCAN/storage/artifacts"
	storageobj "github.com/LCLUCam/VULCAN/storage/objectstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := env.String("VULCAN_CONFIG", "vulcan_cfg.yaml")
	integrator := strings.Fields(env.String("VULCAN_INTEGRATOR", "vulcan-integrator"))
	columnTimeout, err := env.Duration("VULCAN_COLUMN_TIMEOUT", 2*time.Hour)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	workers, err := env.Int("VULCAN_WORKERS", 4)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		logger.Error("read run config", "path", configPath, "error", err)
		os.Exit(2)
	}
	cfg, err := domain.ParseRunConfig(raw)
	if err != nil {
		logger.Error("invalid run config", "path", configPath, "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if err := historypg.EnsureSchema(ctx, db); err != nil {
		logger.Error("history schema", "error", err)
		os.Exit(1)
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	store, err := storageobj.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("object store init failed", "error", err)
		os.Exit(1)
	}
	tiers, err := artifacts.NewTiers(store, storeCfg.BucketRuntime, storeCfg.BucketFinal, logger)
	if err != nil {
		logger.Error("artifact tiers init failed", "error", err)
		os.Exit(1)
	}

	namer, err := artifact.NewNamer("", 0)
	if err != nil {
		logger.Error("artifact namer init failed", "error", err)
		os.Exit(1)
	}
	integ, err := solver.NewExecSolver(integrator)
	if err != nil {
		logger.Error("integrator init failed", "error", err)
		os.Exit(2)
	}
	profiles, err := controller.NewFinalProfileReader(tiers)
	if err != nil {
		logger.Error("profile reader init failed", "error", err)
		os.Exit(1)
	}
	columnRunner, err := runner.New(integ, integ, profiles, columnTimeout, logger)
	if err != nil {
		logger.Error("runner init failed", "error", err)
		os.Exit(1)
	}

	ctrl, err := controller.New(controller.Deps{
		History:   historypg.NewStore(db),
		Artifacts: tiers,
		Runner:    columnRunner,
		Namer:     namer,
		Recorder:  runlog.NewRecorder(runlog.NewSQLAppender(db)),
		Workers:   workers,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("controller init failed", "error", err)
		os.Exit(1)
	}

	rec, err := ctrl.StartRun(ctx, cfg, nil)
	if err != nil {
		logger.Error("run failed to start", "error", err)
		os.Exit(1)
	}

	logger.Info("run finished",
		"run", rec.RunNumber,
		"classification", rec.Classification,
		"status", string(rec.Status),
		"columns", len(rec.Columns),
		"failed_columns", len(rec.FailedColumns()))
	if rec.Status == domain.RunFailed {
		os.Exit(1)
	}
}
