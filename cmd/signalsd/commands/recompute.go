package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/internal/data/repos"
	"github.com/quantrail/signals/internal/engine"
	"github.com/quantrail/signals/internal/expr"
	"github.com/quantrail/signals/pkg/config"
	"github.com/quantrail/signals/pkg/database"
	"github.com/quantrail/signals/pkg/logger"
)

// recomputeCmd runs one synchronous evaluation pass without the queue.
var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Run one signal recompute pass synchronously",
	Long: `Evaluates formulas and replaces signals in the current process,
without going through the job queue.

Example:
  go run ./cmd/signalsd recompute --kind incremental
  go run ./cmd/signalsd recompute --kind full
  go run ./cmd/signalsd recompute --kind company --ids 12,34`,
	RunE: runRecompute,
}

var (
	recomputeKind string
	recomputeIDs  []int64
)

func init() {
	rootCmd.AddCommand(recomputeCmd)

	recomputeCmd.Flags().StringVar(&recomputeKind, "kind", "incremental", "recompute kind (incremental|full|company)")
	recomputeCmd.Flags().Int64SliceVar(&recomputeIDs, "ids", nil, "company ids for --kind company")
}

func runRecompute(cmd *cobra.Command, args []string) error {
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

	companyRepo := repos.NewCompanyRepository(db.Pool)
	sectorRepo := repos.NewSectorRepository(db.Pool)
	formulaRepo := repos.NewFormulaRepository(db.Pool)
	signalRepo := repos.NewSignalRepository(db.Pool)
	quarterlyRepo := repos.NewQuarterlyRepository(db.Pool)

	evaluator := expr.New(quarterlyRepo, log)
	resolver := engine.NewResolver(quarterlyRepo, evaluator, cfg.Engine.QuarterWindow, log)
	reconciler := engine.NewReconciler(resolver, signalRepo, log)

	ctx := context.Background()

	var companies []*contracts.Company
	switch recomputeKind {
	case "incremental":
		companies, err = companyRepo.FindStale(ctx)
	case "full":
		companies, err = companyRepo.List(ctx)
	case "company":
		if len(recomputeIDs) == 0 {
			return fmt.Errorf("--kind company requires --ids")
		}
		companies, err = companyRepo.GetByIDs(ctx, recomputeIDs)
	default:
		return fmt.Errorf("unknown kind %q", recomputeKind)
	}
	if err != nil {
		return fmt.Errorf("load companies: %w", err)
	}

	formulas, err := formulaRepo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load formulas: %w", err)
	}
	sectors, err := sectorRepo.Map(ctx)
	if err != nil {
		return fmt.Errorf("load sectors: %w", err)
	}

	start := time.Now()
	generated := reconciler.Reconcile(ctx, companies, formulas, sectors)

	fmt.Printf("Processed %d companies, generated %d signals in %s\n",
		len(companies), generated, time.Since(start).Round(time.Millisecond))
	return nil
}
