package jobs

import "time"

// Kind selects which companies a recompute job covers.
type Kind string

const (
	// KindIncremental recomputes companies with stale or missing signals.
	KindIncremental Kind = "incremental"
	// KindFull recomputes every company.
	KindFull Kind = "full"
	// KindCompany recomputes an explicit id list.
	KindCompany Kind = "company"
)

// Status is the job lifecycle state. Completed, failed and canceled are
// terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusCanceled marks a queued job removed before it started. Active
	// jobs cannot be canceled.
	StatusCanceled Status = "canceled"
)

// Job is one signal recompute request and its progress bookkeeping.
type Job struct {
	ID         string  `json:"id"`
	Kind       Kind    `json:"kind"`
	CompanyIDs []int64 `json:"company_ids,omitempty"`
	BatchSize  int     `json:"batch_size"`

	Status           Status `json:"status"`
	Total            int    `json:"total"`
	Processed        int    `json:"processed"`
	SignalsGenerated int    `json:"signals_generated"`
	Progress         int    `json:"progress"` // processed/total as integer percent
	Error            string `json:"error,omitempty"`

	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCanceled
}

// clone copies the job so snapshots can escape the queue mutex.
func (j *Job) clone() *Job {
	copied := *j
	if j.CompanyIDs != nil {
		copied.CompanyIDs = append([]int64(nil), j.CompanyIDs...)
	}
	return &copied
}

// ProgressEvent is published to subscribers as a job advances.
type ProgressEvent struct {
	JobID            string `json:"job_id"`
	Status           Status `json:"status"`
	Processed        int    `json:"processed"`
	Total            int    `json:"total"`
	Progress         int    `json:"progress"`
	SignalsGenerated int    `json:"signals_generated"`
	Error            string `json:"error,omitempty"`
}
