package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"

	"github.com/streampanel/resolvd/internal/api"
	"github.com/streampanel/resolvd/internal/config"
	"github.com/streampanel/resolvd/internal/resolver"
	"github.com/streampanel/resolvd/internal/store"
)

// runRetention bounds the run-history table; older rows are pruned at startup.
const runRetention = 1000

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("resolvd: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"program_path", cfg.ProgramPath,
		"runtime", cfg.Runtime,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PruneRuns(ctx, runRetention); err != nil {
		logger.Warn("prune run history", "error", err)
	}

	programs := resolver.NewProgramStore(cfg.ProgramPath, cfg.Runtime, db, logger)
	if err := programs.Restore(ctx); err != nil {
		logger.Warn("restore program state", "error", err)
	}

	cache := resolver.NewCache()
	engine := resolver.NewEngine(programs, cache, db, cfg.WorkDir, cfg.ExecTimeout, logger)
	scheduler := resolver.NewScheduler(programs, cache, db, logger)
	reporter := resolver.NewStatusReporter(engine, programs, scheduler, db)

	resumeSchedule(ctx, db, scheduler, logger)

	srv := api.NewServer(cfg.ListenAddr, engine, programs, scheduler, reporter, db, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// resumeSchedule re-installs a persisted active refresh schedule so a
// restart does not silently drop the operator's refresh policy.
func resumeSchedule(ctx context.Context, db store.Store, scheduler *resolver.Scheduler, logger *slog.Logger) {
	ss, err := db.GetScheduleState(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Warn("load schedule state", "error", err)
		return
	}
	if !ss.Active {
		return
	}

	if err := scheduler.Schedule(ctx, ss.HumanInterval); err != nil {
		logger.Warn("resume schedule", "interval", ss.HumanInterval, "error", err)
		return
	}
	logger.Info("schedule resumed", "interval", ss.HumanInterval)
}
