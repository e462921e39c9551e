// Package jobs records background ingestion runs.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TTL is how long a job record is kept after its last write.
const TTL = 24 * time.Hour

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Kind string

const (
	KindPending  Kind = "pending"
	KindStudyKit Kind = "study_kit"
)

var ErrNotFound = errors.New("job not found")

type Job struct {
	ID         string          `json:"job_id"`
	Kind       Kind            `json:"kind"`
	StudyKitID string          `json:"studyKitId,omitempty"`
	Status     Status          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

type Store interface {
	Put(ctx context.Context, job *Job) error
	// Get returns ErrNotFound for unknown or expired ids.
	Get(ctx context.Context, id string) (*Job, error)
}

func New(kind Kind, studyKitID string) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		StudyKitID: studyKitID,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
}

// Finish moves the job to its terminal state. result is stored as JSON
// whenever it marshals, even on failure.
func (j *Job) Finish(result any, err error) {
	now := time.Now().UTC()
	j.FinishedAt = &now
	if result != nil {
		if raw, mErr := json.Marshal(result); mErr == nil {
			j.Result = raw
		}
	}
	if err != nil {
		j.Status = StatusFailed
		j.Error = err.Error()
		return
	}
	j.Status = StatusSucceeded
}
