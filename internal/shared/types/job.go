package types

import (
	"context"
	"time"
)

// JobStatus represents a job's execution state.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is one unit of app-submitted work.
type Job struct {
	ID          string                 `json:"id"`
	AppID       string                 `json:"app_id"`
	Type        string                 `json:"job_type"`
	Payload     map[string]interface{} `json:"payload"`
	Priority    int                    `json:"priority"`
	Status      JobStatus              `json:"status"`
	Progress    float64                `json:"progress"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
	Result      interface{}            `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// JobHandler executes one job attempt. It receives a snapshot of the job;
// progress is reported back through the queue.
type JobHandler func(ctx context.Context, job *Job) (interface{}, error)
