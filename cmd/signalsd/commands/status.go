package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantrail/signals/pkg/config"
	"github.com/quantrail/signals/pkg/database"
	"github.com/quantrail/signals/pkg/redis"
)

// statusCmd checks connectivity to the service's dependencies.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check database and redis connectivity",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.New(cfg)
	if err != nil {
		fmt.Printf("database: FAIL (%v)\n", err)
		return err
	}
	defer db.Close()

	health, err := db.HealthCheck(ctx)
	if err != nil {
		fmt.Printf("database: FAIL (%v)\n", err)
		return err
	}
	fmt.Printf("database: OK (response time %s)\n", health.ResponseTime)

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(cfg)
		if err != nil {
			fmt.Printf("redis: FAIL (%v)\n", err)
			return err
		}
		defer redisClient.Close()
		fmt.Println("redis: OK")
	} else {
		fmt.Println("redis: disabled")
	}

	return nil
}
