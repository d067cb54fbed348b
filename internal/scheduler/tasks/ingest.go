package tasks

import (
	"context"

	"github.com/quantrail/signals/internal/ingest"
	"github.com/quantrail/signals/pkg/logger"
)

// FundamentalsRefreshJob runs the ingest poller on its schedule.
type FundamentalsRefreshJob struct {
	poller   *ingest.Poller
	schedule string
	logger   *logger.Logger
}

func NewFundamentalsRefreshJob(poller *ingest.Poller, schedule string, log *logger.Logger) *FundamentalsRefreshJob {
	return &FundamentalsRefreshJob{
		poller:   poller,
		schedule: schedule,
		logger:   log,
	}
}

func (j *FundamentalsRefreshJob) Name() string {
	return "fundamentals_refresh"
}

func (j *FundamentalsRefreshJob) Schedule() string {
	return j.schedule
}

func (j *FundamentalsRefreshJob) Run(ctx context.Context) error {
	return j.poller.RunOnce(ctx)
}
