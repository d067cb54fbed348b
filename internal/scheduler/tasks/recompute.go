package tasks

import (
	"context"
	"fmt"

	"github.com/quantrail/signals/internal/jobs"
	"github.com/quantrail/signals/pkg/logger"
)

// Enqueuer is the queue side the scheduled tasks need.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind jobs.Kind, companyIDs []int64, batchSize int) (*jobs.Job, error)
}

// IncrementalRecomputeJob enqueues a stale-companies recompute every morning
// after the fundamentals refresh has run.
type IncrementalRecomputeJob struct {
	queue  Enqueuer
	logger *logger.Logger
}

func NewIncrementalRecomputeJob(queue Enqueuer, log *logger.Logger) *IncrementalRecomputeJob {
	return &IncrementalRecomputeJob{queue: queue, logger: log}
}

func (j *IncrementalRecomputeJob) Name() string {
	return "incremental_recompute"
}

// Schedule runs daily at 07:00, after the 06:30 fundamentals refresh.
func (j *IncrementalRecomputeJob) Schedule() string {
	return "0 0 7 * * *"
}

func (j *IncrementalRecomputeJob) Run(ctx context.Context) error {
	job, err := j.queue.Enqueue(ctx, jobs.KindIncremental, nil, 0)
	if err != nil {
		return fmt.Errorf("enqueue incremental recompute: %w", err)
	}

	j.logger.WithField("job_id", job.ID).Info("Incremental recompute enqueued")
	return nil
}

// FullRecomputeJob enqueues a whole-universe recompute once a week to catch
// drift from formula edits that predate the staleness tracking.
type FullRecomputeJob struct {
	queue  Enqueuer
	logger *logger.Logger
}

func NewFullRecomputeJob(queue Enqueuer, log *logger.Logger) *FullRecomputeJob {
	return &FullRecomputeJob{queue: queue, logger: log}
}

func (j *FullRecomputeJob) Name() string {
	return "full_recompute"
}

// Schedule runs Sundays at 05:00.
func (j *FullRecomputeJob) Schedule() string {
	return "0 0 5 * * 0"
}

func (j *FullRecomputeJob) Run(ctx context.Context) error {
	job, err := j.queue.Enqueue(ctx, jobs.KindFull, nil, 0)
	if err != nil {
		return fmt.Errorf("enqueue full recompute: %w", err)
	}

	j.logger.WithField("job_id", job.ID).Info("Full recompute enqueued")
	return nil
}
