package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantrail/signals/internal/data/repos"
	"github.com/quantrail/signals/internal/engine"
	"github.com/quantrail/signals/internal/expr"
	"github.com/quantrail/signals/internal/jobs"
	"github.com/quantrail/signals/internal/scheduler"
	"github.com/quantrail/signals/internal/scheduler/tasks"
	"github.com/quantrail/signals/pkg/config"
	"github.com/quantrail/signals/pkg/database"
	"github.com/quantrail/signals/pkg/logger"
)

// workerCmd runs the queue worker and scheduler without the HTTP API, for
// deployments that split the API from the compute process.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the queue worker and scheduler without the API",
	Long: `Runs the cron schedules and drains the recompute jobs they enqueue,
without exposing the HTTP API.

Example:
  go run ./cmd/signalsd worker`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Connected to database")

	companyRepo := repos.NewCompanyRepository(db.Pool)
	sectorRepo := repos.NewSectorRepository(db.Pool)
	formulaRepo := repos.NewFormulaRepository(db.Pool)
	signalRepo := repos.NewSignalRepository(db.Pool)
	quarterlyRepo := repos.NewQuarterlyRepository(db.Pool)
	jobRepo := repos.NewJobRepository(db.Pool)

	evaluator := expr.New(quarterlyRepo, log)
	resolver := engine.NewResolver(quarterlyRepo, evaluator, cfg.Engine.QuarterWindow, log)
	reconciler := engine.NewReconciler(resolver, signalRepo, log)

	queue := jobs.NewQueue(companyRepo, sectorRepo, formulaRepo, reconciler, jobRepo,
		cfg.Queue.DefaultBatchSize, cfg.Queue.BatchPause, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx)

	sched := scheduler.New(log)
	if err := sched.AddJob(tasks.NewIncrementalRecomputeJob(queue, log)); err != nil {
		return fmt.Errorf("schedule incremental recompute: %w", err)
	}
	if err := sched.AddJob(tasks.NewFullRecomputeJob(queue, log)); err != nil {
		return fmt.Errorf("schedule full recompute: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	log.Info("Worker started")
	fmt.Println("Worker running. Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Worker stopping")
	cancel()
	return nil
}
