// Package notify queues durable notification jobs for downstream workers
// after a batch completes.
package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/seamline/ingest/errors"
)

// JobStatus represents the current state of a notification job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsValidStatus returns true if the status string is a valid JobStatus.
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Job is one notification owed to one worker. Payload carries the batch
// run summary; workers own its structure.
type Job struct {
	ID          string          `json:"id"`
	Worker      string          `json:"worker"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Source      string          `json:"source"`
	Status      JobStatus       `json:"status"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewJob creates a queued job for a worker. Source identifies the batch
// that produced it, for deduplication and logging.
func NewJob(worker, source string, payload json.RawMessage) (*Job, error) {
	if worker == "" {
		return nil, errors.New("worker cannot be empty")
	}

	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Worker:    worker,
		Payload:   payload,
		Source:    source,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Start marks the job running.
func (j *Job) Start() {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job done.
func (j *Job) Complete() {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job failed with the worker's error.
func (j *Job) Fail(err error) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	if err != nil {
		j.Error = err.Error()
	}
	j.CompletedAt = &now
	j.UpdatedAt = now
}
