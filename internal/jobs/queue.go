package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/pkg/logger"
)

// Reconciler recomputes one company's signal. Satisfied by
// engine.Reconciler.
type Reconciler interface {
	ReconcileOne(ctx context.Context, company *contracts.Company, formulas []*contracts.Formula, sectors map[int64]*contracts.Sector) (bool, error)
}

// QueueStatus is a snapshot of the queue for the status endpoint.
type QueueStatus struct {
	QueueLength  int  `json:"queue_length"`
	ActiveJob    *Job `json:"active_job,omitempty"`
	IsProcessing bool `json:"is_processing"`
}

// Queue runs recompute jobs one at a time in enqueue order. A single worker
// goroutine drains the pending list; jobs never run concurrently, so two
// overlapping recomputes cannot race on the same company's signal row.
type Queue struct {
	companies contracts.CompanyRepository
	sectors   contracts.SectorRepository
	formulas  contracts.FormulaRepository
	rec       Reconciler
	store     JobStore
	log       *logger.Logger

	defaultBatchSize int
	pace             *rate.Limiter

	mu      sync.Mutex
	pending []*Job
	active  *Job
	wake    chan struct{}
	subs    map[int]chan ProgressEvent
	nextSub int
}

// NewQueue builds a queue. batchPause is the delay between batches; zero
// disables pacing.
func NewQueue(
	companies contracts.CompanyRepository,
	sectors contracts.SectorRepository,
	formulas contracts.FormulaRepository,
	rec Reconciler,
	store JobStore,
	defaultBatchSize int,
	batchPause time.Duration,
	log *logger.Logger,
) *Queue {
	if defaultBatchSize <= 0 {
		defaultBatchSize = 50
	}
	limit := rate.Inf
	if batchPause > 0 {
		limit = rate.Every(batchPause)
	}
	return &Queue{
		companies:        companies,
		sectors:          sectors,
		formulas:         formulas,
		rec:              rec,
		store:            store,
		log:              log,
		defaultBatchSize: defaultBatchSize,
		pace:             rate.NewLimiter(limit, 1),
		wake:             make(chan struct{}, 1),
		subs:             make(map[int]chan ProgressEvent),
	}
}

// Enqueue registers a job and returns its snapshot. Company jobs require at
// least one id; the ids are validated when the job runs.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, companyIDs []int64, batchSize int) (*Job, error) {
	switch kind {
	case KindIncremental, KindFull:
		if len(companyIDs) > 0 {
			return nil, fmt.Errorf("%s job does not accept company ids", kind)
		}
	case KindCompany:
		if len(companyIDs) == 0 {
			return nil, fmt.Errorf("company job requires at least one company id")
		}
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
	if batchSize <= 0 {
		batchSize = q.defaultBatchSize
	}

	job := &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		CompanyIDs: append([]int64(nil), companyIDs...),
		BatchSize:  batchSize,
		Status:     StatusPending,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.log.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"kind":   string(kind),
	}).Info("job enqueued")
	return job.clone(), nil
}

// Cancel removes a queued job before it starts. Returns false when the job
// is unknown, already running, or finished.
func (q *Queue) Cancel(ctx context.Context, id string) bool {
	q.mu.Lock()
	var canceled *Job
	for i, job := range q.pending {
		if job.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			job.Status = StatusCanceled
			now := time.Now().UTC()
			job.FinishedAt = &now
			canceled = job
			break
		}
	}
	q.mu.Unlock()

	if canceled == nil {
		return false
	}
	if err := q.store.Save(ctx, canceled); err != nil {
		q.log.WithError(err).WithField("job_id", id).Warn("failed to persist canceled job")
	}
	q.publish(canceled)
	return true
}

// GetJob returns the live snapshot for the active job, otherwise the stored
// record.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	q.mu.Lock()
	if q.active != nil && q.active.ID == id {
		snap := q.active.clone()
		q.mu.Unlock()
		return snap, nil
	}
	for _, job := range q.pending {
		if job.ID == id {
			snap := job.clone()
			q.mu.Unlock()
			return snap, nil
		}
	}
	q.mu.Unlock()
	return q.store.Get(ctx, id)
}

// Status reports queue depth and the in-flight job.
func (q *Queue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := QueueStatus{QueueLength: len(q.pending), IsProcessing: q.active != nil}
	if q.active != nil {
		st.ActiveJob = q.active.clone()
	}
	return st
}

// Subscribe registers a progress listener. Events are dropped rather than
// block the worker when a subscriber falls behind.
func (q *Queue) Subscribe() (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 64)

	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = ch
	q.mu.Unlock()

	cancel := func() {
		q.mu.Lock()
		delete(q.subs, id)
		q.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Run drains the queue until ctx is canceled. Call from a single goroutine.
func (q *Queue) Run(ctx context.Context) {
	q.log.Info("job queue worker started")
	for {
		select {
		case <-ctx.Done():
			q.log.Info("job queue worker stopped")
			return
		case <-q.wake:
		}

		for {
			job := q.dequeue()
			if job == nil {
				break
			}
			q.runJob(ctx, job)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (q *Queue) dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	q.active = job
	return job
}

func (q *Queue) runJob(ctx context.Context, job *Job) {
	start := time.Now().UTC()
	q.mu.Lock()
	job.Status = StatusProcessing
	job.StartedAt = &start
	q.mu.Unlock()
	q.save(ctx, job)
	q.publish(job)

	companies, err := q.loadCompanies(ctx, job)
	if err != nil {
		q.fail(ctx, job, err)
		return
	}
	formulas, err := q.formulas.ListEnabled(ctx)
	if err != nil {
		q.fail(ctx, job, fmt.Errorf("load formulas: %w", err))
		return
	}
	sectors, err := q.sectors.Map(ctx)
	if err != nil {
		q.fail(ctx, job, fmt.Errorf("load sectors: %w", err))
		return
	}

	q.mu.Lock()
	job.Total = len(companies)
	if job.Total == 0 {
		job.Progress = 100
	}
	q.mu.Unlock()

	for batchStart := 0; batchStart < len(companies); batchStart += job.BatchSize {
		if ctx.Err() != nil {
			q.fail(ctx, job, ctx.Err())
			return
		}
		batchEnd := batchStart + job.BatchSize
		if batchEnd > len(companies) {
			batchEnd = len(companies)
		}

		for _, company := range companies[batchStart:batchEnd] {
			generated, recErr := q.rec.ReconcileOne(ctx, company, formulas, sectors)
			if recErr != nil {
				q.log.WithError(recErr).WithFields(map[string]interface{}{
					"job_id": job.ID,
					"ticker": company.Ticker,
				}).Warn("company reconcile failed")
			}

			q.mu.Lock()
			job.Processed++
			if generated {
				job.SignalsGenerated++
			}
			job.Progress = job.Processed * 100 / job.Total
			q.mu.Unlock()
			q.publish(job)
		}

		q.save(ctx, job)
		if batchEnd < len(companies) {
			if err := q.pace.Wait(ctx); err != nil {
				q.fail(ctx, job, err)
				return
			}
		}
	}

	finish := time.Now().UTC()
	q.mu.Lock()
	job.Status = StatusCompleted
	job.FinishedAt = &finish
	q.active = nil
	q.mu.Unlock()
	q.save(ctx, job)
	q.publish(job)

	q.log.WithFields(map[string]interface{}{
		"job_id":            job.ID,
		"processed":         job.Processed,
		"signals_generated": job.SignalsGenerated,
		"duration":          finish.Sub(start).String(),
	}).Info("job completed")
}

func (q *Queue) loadCompanies(ctx context.Context, job *Job) ([]*contracts.Company, error) {
	switch job.Kind {
	case KindIncremental:
		return q.companies.FindStale(ctx)
	case KindFull:
		return q.companies.List(ctx)
	case KindCompany:
		return q.companies.GetByIDs(ctx, job.CompanyIDs)
	default:
		return nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (q *Queue) fail(ctx context.Context, job *Job, cause error) {
	finish := time.Now().UTC()
	q.mu.Lock()
	job.Status = StatusFailed
	job.Error = cause.Error()
	job.FinishedAt = &finish
	q.active = nil
	q.mu.Unlock()
	q.save(ctx, job)
	q.publish(job)

	q.log.WithError(cause).WithField("job_id", job.ID).Error("job failed")
}

// save writes through to the store. Persistence failures are logged, not
// fatal; the in-memory snapshot stays authoritative while the job runs.
func (q *Queue) save(ctx context.Context, job *Job) {
	q.mu.Lock()
	snap := job.clone()
	q.mu.Unlock()
	if err := q.store.Save(ctx, snap); err != nil {
		q.log.WithError(err).WithField("job_id", job.ID).Warn("failed to persist job state")
	}
}

func (q *Queue) publish(job *Job) {
	q.mu.Lock()
	event := ProgressEvent{
		JobID:            job.ID,
		Status:           job.Status,
		Processed:        job.Processed,
		Total:            job.Total,
		Progress:         job.Progress,
		SignalsGenerated: job.SignalsGenerated,
		Error:            job.Error,
	}
	for _, ch := range q.subs {
		select {
		case ch <- event:
		default:
		}
	}
	q.mu.Unlock()
}
