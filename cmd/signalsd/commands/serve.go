package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantrail/signals/internal/api"
	"github.com/quantrail/signals/internal/api/handlers"
	"github.com/quantrail/signals/internal/data/repos"
	"github.com/quantrail/signals/internal/engine"
	"github.com/quantrail/signals/internal/expr"
	"github.com/quantrail/signals/internal/ingest"
	"github.com/quantrail/signals/internal/jobs"
	"github.com/quantrail/signals/internal/scheduler"
	"github.com/quantrail/signals/internal/scheduler/tasks"
	"github.com/quantrail/signals/pkg/config"
	"github.com/quantrail/signals/pkg/database"
	"github.com/quantrail/signals/pkg/httputil"
	"github.com/quantrail/signals/pkg/logger"
	"github.com/quantrail/signals/pkg/redis"
)

// serveCmd runs the API server, queue worker and scheduler in one process.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server, queue worker and scheduler",
	Long: `Starts the full service:
- HTTP API for jobs and signal reads
- single queue worker draining recompute jobs
- cron scheduler for recomputes and fundamentals ingest

Example:
  go run ./cmd/signalsd serve
  go run ./cmd/signalsd serve --port 8080`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "override API server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if servePort != "" {
		cfg.Port = servePort
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

	var cache *redis.Cache
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
		cache = redis.NewCache(redisClient, "signals")
		log.Info("Connected to redis")
	}

	// Repositories
	companyRepo := repos.NewCompanyRepository(db.Pool)
	sectorRepo := repos.NewSectorRepository(db.Pool)
	formulaRepo := repos.NewFormulaRepository(db.Pool)
	signalRepo := repos.NewSignalRepository(db.Pool)
	quarterlyRepo := repos.NewQuarterlyRepository(db.Pool)
	jobRepo := repos.NewJobRepository(db.Pool)

	// Evaluation engine
	evaluator := expr.New(quarterlyRepo, log)
	resolver := engine.NewResolver(quarterlyRepo, evaluator, cfg.Engine.QuarterWindow, log)
	reconciler := engine.NewReconciler(resolver, signalRepo, log)
	if cache != nil {
		reconciler = reconciler.WithCache(cache)
	}

	// Queue worker
	queue := jobs.NewQueue(companyRepo, sectorRepo, formulaRepo, reconciler, jobRepo,
		cfg.Queue.DefaultBatchSize, cfg.Queue.BatchPause, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx)

	// Scheduler
	sched := scheduler.New(log)
	if err := sched.AddJob(tasks.NewIncrementalRecomputeJob(queue, log)); err != nil {
		return fmt.Errorf("schedule incremental recompute: %w", err)
	}
	if err := sched.AddJob(tasks.NewFullRecomputeJob(queue, log)); err != nil {
		return fmt.Errorf("schedule full recompute: %w", err)
	}
	if cfg.Ingest.Enabled {
		httpClient := httputil.New(log).
			WithTimeout(30 * time.Second).
			WithRetry(3, 1*time.Second).
			WithRateLimit(cfg.Ingest.RatePerSecond)
		poller := ingest.NewPoller(httpClient, cfg.Ingest.BaseURL, companyRepo, quarterlyRepo, log)
		if err := sched.AddJob(tasks.NewFundamentalsRefreshJob(poller, cfg.Ingest.Schedule, log)); err != nil {
			return fmt.Errorf("schedule fundamentals refresh: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// HTTP API
	jobHandler := handlers.NewJobHandler(queue, jobRepo, log)
	signalHandler := handlers.NewSignalHandler(signalRepo, cache, log)
	streamHandler := handlers.NewStreamHandler(queue, log)

	router := api.NewRouter(jobHandler, signalHandler, streamHandler, log)
	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("Service started")
	fmt.Printf("Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Service stopped")
	return nil
}
