package scheduler

import (
	"context"
	"time"
)

// historyLimit bounds the results kept per job; counters keep running past it
const historyLimit = 100

// Job is a named unit of work on a cron schedule
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string
	Run(ctx context.Context) error

	// Schedule returns a cron expression with a seconds field, or a
	// descriptor: "0 45 15 * * 1-5", "@every 1h"
	Schedule() string
}

// FuncJob adapts a function to Job
type FuncJob struct {
	JobName     string
	JobSchedule string
	Fn          func(ctx context.Context) error
}

func (j FuncJob) Name() string                  { return j.JobName }
func (j FuncJob) Schedule() string              { return j.JobSchedule }
func (j FuncJob) Run(ctx context.Context) error { return j.Fn(ctx) }

// JobResult is one finished run, retries included
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobStats summarizes a job for the /jobs endpoint
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// history keeps the latest results of a job plus lifetime counters
type history struct {
	results     []JobResult
	runs        int
	failures    int
	lastSuccess time.Time
	lastFailure time.Time
	lastError   string
}

func (h *history) add(r JobResult) {
	h.results = append(h.results, r)
	if over := len(h.results) - historyLimit; over > 0 {
		h.results = h.results[over:]
	}

	h.runs++
	if r.Success {
		h.lastSuccess = r.StartTime
		return
	}
	h.failures++
	h.lastFailure = r.StartTime
	h.lastError = r.Error
}

// latest returns up to n most recent results, oldest first
func (h *history) latest(n int) []JobResult {
	if n > len(h.results) {
		n = len(h.results)
	}
	out := make([]JobResult, n)
	copy(out, h.results[len(h.results)-n:])
	return out
}

func (h *history) stats(name, schedule string) JobStats {
	st := JobStats{
		JobName:      name,
		Schedule:     schedule,
		TotalRuns:    h.runs,
		SuccessCount: h.runs - h.failures,
		FailureCount: h.failures,
		LastError:    h.lastError,
	}
	if h.runs > 0 {
		st.SuccessRate = float64(st.SuccessCount) / float64(h.runs)
		last := h.results[len(h.results)-1].StartTime
		st.LastRun = &last
	}
	if !h.lastSuccess.IsZero() {
		t := h.lastSuccess
		st.LastSuccess = &t
	}
	if !h.lastFailure.IsZero() {
		t := h.lastFailure
		st.LastFailure = &t
	}
	return st
}
