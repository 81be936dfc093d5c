package handlers

import (
	"net/http"

	"github.com/wonny/watson/internal/scheduler"
)

// JobStatsProvider reports scheduled job statistics
type JobStatsProvider interface {
	GetJobStats() map[string]scheduler.JobStats
}

// JobHandler serves scheduler state
type JobHandler struct {
	scheduler JobStatsProvider
}

// NewJobHandler creates a new job handler
func NewJobHandler(s JobStatsProvider) *JobHandler {
	return &JobHandler{scheduler: s}
}

// GetJobs returns per-job run statistics
// GET /api/jobs
func (h *JobHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.GetJobStats())
}
