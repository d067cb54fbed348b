package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/pkg/logger"
)

type fakeCompanies struct {
	all   []*contracts.Company
	stale []*contracts.Company
}

func (f *fakeCompanies) List(ctx context.Context) ([]*contracts.Company, error) {
	return f.all, nil
}

func (f *fakeCompanies) GetByIDs(ctx context.Context, ids []int64) ([]*contracts.Company, error) {
	byID := make(map[int64]*contracts.Company, len(f.all))
	for _, c := range f.all {
		byID[c.ID] = c
	}
	out := make([]*contracts.Company, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", contracts.ErrCompanyNotFound, id)
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCompanies) FindStale(ctx context.Context) ([]*contracts.Company, error) {
	return f.stale, nil
}

type fakeSectors struct{}

func (fakeSectors) Map(ctx context.Context) (map[int64]*contracts.Sector, error) {
	return map[int64]*contracts.Sector{}, nil
}

type fakeFormulas struct {
	err error
}

func (f *fakeFormulas) ListEnabled(ctx context.Context) ([]*contracts.Formula, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*contracts.Formula{}, nil
}

// fakeReconciler records the order companies are processed in and can be
// told to fail or skip specific tickers.
type fakeReconciler struct {
	mu       sync.Mutex
	order    []string
	failOn   map[string]bool
	noSignal map[string]bool
}

func (f *fakeReconciler) ReconcileOne(ctx context.Context, company *contracts.Company, formulas []*contracts.Formula, sectors map[int64]*contracts.Sector) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, company.Ticker)
	if f.failOn[company.Ticker] {
		return false, errors.New("reconcile blew up")
	}
	if f.noSignal[company.Ticker] {
		return false, nil
	}
	return true, nil
}

func (f *fakeReconciler) processed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func makeCompanies(n int) []*contracts.Company {
	out := make([]*contracts.Company, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, &contracts.Company{
			ID:     int64(i),
			Ticker: fmt.Sprintf("CO%d", i),
			Name:   fmt.Sprintf("Company %d", i),
		})
	}
	return out
}

func newTestQueue(t *testing.T, companies *fakeCompanies, rec Reconciler) *Queue {
	t.Helper()
	return NewQueue(companies, fakeSectors{}, &fakeFormulas{}, rec, NewMemoryJobStore(), 50, 0, logger.NewNop())
}

// waitTerminal drives events until the job reaches a terminal status.
func waitTerminal(t *testing.T, events <-chan ProgressEvent, jobID string) []ProgressEvent {
	t.Helper()
	var seen []ProgressEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.JobID != jobID {
				continue
			}
			seen = append(seen, ev)
			if ev.Status == StatusCompleted || ev.Status == StatusFailed || ev.Status == StatusCanceled {
				return seen
			}
		case <-deadline:
			t.Fatalf("job %s did not finish", jobID)
		}
	}
}

func TestQueueFullJobProgressSequence(t *testing.T) {
	companies := &fakeCompanies{all: makeCompanies(5)}
	rec := &fakeReconciler{}
	q := newTestQueue(t, companies, rec)

	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	job, err := q.Enqueue(ctx, KindFull, nil, 2)
	require.NoError(t, err)

	seen := waitTerminal(t, events, job.ID)

	var progress []int
	for _, ev := range seen {
		if ev.Status == StatusProcessing && ev.Processed > 0 {
			progress = append(progress, ev.Progress)
		}
	}
	assert.Equal(t, []int{20, 40, 60, 80, 100}, progress)

	final, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 5, final.Total)
	assert.Equal(t, 5, final.Processed)
	assert.Equal(t, 5, final.SignalsGenerated)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.FinishedAt)
}

func TestQueueRunsJobsInOrder(t *testing.T) {
	companies := &fakeCompanies{
		all:   makeCompanies(2),
		stale: makeCompanies(2)[:1],
	}
	rec := &fakeReconciler{}
	q := newTestQueue(t, companies, rec)

	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Enqueue both before the worker starts so ordering is deterministic.
	first, err := q.Enqueue(ctx, KindFull, nil, 10)
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, KindIncremental, nil, 10)
	require.NoError(t, err)

	go q.Run(ctx)

	waitTerminal(t, events, first.ID)
	waitTerminal(t, events, second.ID)

	// The full job's two companies run before the incremental job's one.
	assert.Equal(t, []string{"CO1", "CO2", "CO1"}, rec.processed())
}

func TestQueueCompanyJobMissingIDFailsJob(t *testing.T) {
	companies := &fakeCompanies{all: makeCompanies(2)}
	rec := &fakeReconciler{}
	q := newTestQueue(t, companies, rec)

	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	job, err := q.Enqueue(ctx, KindCompany, []int64{1, 99}, 10)
	require.NoError(t, err)

	seen := waitTerminal(t, events, job.ID)
	assert.Equal(t, StatusFailed, seen[len(seen)-1].Status)

	final, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Error, "company not found")
	// No company was touched before the id check failed the job.
	assert.Empty(t, rec.processed())
}

func TestQueueCompanyFailureDoesNotFailJob(t *testing.T) {
	companies := &fakeCompanies{all: makeCompanies(3)}
	rec := &fakeReconciler{
		failOn:   map[string]bool{"CO2": true},
		noSignal: map[string]bool{"CO3": true},
	}
	q := newTestQueue(t, companies, rec)

	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	job, err := q.Enqueue(ctx, KindFull, nil, 10)
	require.NoError(t, err)
	waitTerminal(t, events, job.ID)

	final, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 3, final.Processed)
	assert.Equal(t, 1, final.SignalsGenerated)
	assert.Empty(t, final.Error)
}

func TestQueueCancelPendingJob(t *testing.T) {
	companies := &fakeCompanies{all: makeCompanies(1)}
	rec := &fakeReconciler{}
	q := newTestQueue(t, companies, rec)

	ctx := context.Background()

	// Worker not started, so the job stays queued.
	job, err := q.Enqueue(ctx, KindFull, nil, 10)
	require.NoError(t, err)

	assert.True(t, q.Cancel(ctx, job.ID))
	assert.False(t, q.Cancel(ctx, job.ID), "second cancel finds nothing queued")
	assert.False(t, q.Cancel(ctx, "no-such-job"))

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)

	st := q.Status()
	assert.Equal(t, 0, st.QueueLength)
	assert.False(t, st.IsProcessing)
}

func TestQueueEnqueueValidation(t *testing.T) {
	q := newTestQueue(t, &fakeCompanies{}, &fakeReconciler{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, KindCompany, nil, 10)
	assert.Error(t, err, "company job needs ids")

	_, err = q.Enqueue(ctx, KindFull, []int64{1}, 10)
	assert.Error(t, err, "full job rejects ids")

	_, err = q.Enqueue(ctx, Kind("bogus"), nil, 10)
	assert.Error(t, err)
}

func TestQueueEmptyJobCompletesImmediately(t *testing.T) {
	companies := &fakeCompanies{}
	q := newTestQueue(t, companies, &fakeReconciler{})

	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	job, err := q.Enqueue(ctx, KindIncremental, nil, 10)
	require.NoError(t, err)
	waitTerminal(t, events, job.ID)

	final, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 0, final.Total)
	assert.Equal(t, 100, final.Progress)
}

func TestQueueFormulaLoadErrorFailsJob(t *testing.T) {
	companies := &fakeCompanies{all: makeCompanies(1)}
	q := NewQueue(companies, fakeSectors{}, &fakeFormulas{err: errors.New("db down")}, &fakeReconciler{}, NewMemoryJobStore(), 50, 0, logger.NewNop())

	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	job, err := q.Enqueue(ctx, KindFull, nil, 10)
	require.NoError(t, err)
	waitTerminal(t, events, job.ID)

	final, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Error, "db down")
}

func TestMemoryJobStoreRecent(t *testing.T) {
	store := NewMemoryJobStore()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, &Job{
			ID:         fmt.Sprintf("job-%d", i),
			Status:     StatusCompleted,
			EnqueuedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "job-2", recent[0].ID)
	assert.Equal(t, "job-1", recent[1].ID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, contracts.ErrJobNotFound)
}
