package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/internal/jobs"
	"github.com/quantrail/signals/pkg/logger"
)

// JobHandler exposes the recompute queue over HTTP.
type JobHandler struct {
	queue  *jobs.Queue
	store  jobs.JobStore
	logger *logger.Logger
}

func NewJobHandler(queue *jobs.Queue, store jobs.JobStore, log *logger.Logger) *JobHandler {
	return &JobHandler{
		queue:  queue,
		store:  store,
		logger: log,
	}
}

// EnqueueRequest is the POST /api/jobs body.
type EnqueueRequest struct {
	Kind       string  `json:"kind"` // incremental | full | company
	CompanyIDs []int64 `json:"company_ids,omitempty"`
	BatchSize  int     `json:"batch_size,omitempty"`
}

// Enqueue registers a recompute job.
// POST /api/jobs
func (h *JobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Kind == "" {
		req.Kind = string(jobs.KindIncremental)
	}

	job, err := h.queue.Enqueue(r.Context(), jobs.Kind(req.Kind), req.CompanyIDs, req.BatchSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, job)
}

// Get returns a job's current state, live or historical.
// GET /api/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := h.queue.GetJob(r.Context(), id)
	if errors.Is(err, contracts.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load job")
		respondError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// Recent lists the newest job records.
// GET /api/jobs
func (h *JobHandler) Recent(w http.ResponseWriter, r *http.Request) {
	recent, err := h.store.Recent(r.Context(), 50)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list jobs")
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": recent,
	})
}

// Cancel removes a queued job. Running or finished jobs cannot be canceled.
// DELETE /api/jobs/{id}
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !h.queue.Cancel(r.Context(), id) {
		respondError(w, http.StatusConflict, "Job is not queued")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": string(jobs.StatusCanceled),
	})
}

// QueueStatus reports queue depth and the in-flight job.
// GET /api/queue
func (h *JobHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.queue.Status())
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
