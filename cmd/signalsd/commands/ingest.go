package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantrail/signals/internal/data/repos"
	"github.com/quantrail/signals/internal/ingest"
	"github.com/quantrail/signals/pkg/config"
	"github.com/quantrail/signals/pkg/database"
	"github.com/quantrail/signals/pkg/httputil"
	"github.com/quantrail/signals/pkg/logger"
)

// ingestCmd runs one fundamentals refresh pass.
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Refresh quarterly fundamentals once",
	Long: `Fetches the fundamentals pages for every company, updates the
quarterly series and metric snapshots, and advances updated_at so the next
incremental recompute picks the companies up.

Example:
  go run ./cmd/signalsd ingest`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Ingest.BaseURL == "" {
		return fmt.Errorf("INGEST_BASE_URL is not configured")
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

	httpClient := httputil.New(log).
		WithTimeout(30 * time.Second).
		WithRetry(3, 1*time.Second).
		WithRateLimit(cfg.Ingest.RatePerSecond)

	companyRepo := repos.NewCompanyRepository(db.Pool)
	quarterlyRepo := repos.NewQuarterlyRepository(db.Pool)
	poller := ingest.NewPoller(httpClient, cfg.Ingest.BaseURL, companyRepo, quarterlyRepo, log)

	if err := poller.RunOnce(context.Background()); err != nil {
		return fmt.Errorf("fundamentals refresh failed: %w", err)
	}

	fmt.Println("Fundamentals refresh completed")
	return nil
}
