package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/config"
)

// StatusEvent is the ephemeral notification emitted on every job transition.
// Events exist only in transit and are never persisted; the job row is the
// sole source of truth.
type StatusEvent struct {
	JobID     uuid.UUID        `json:"job_id"`
	Status    config.JobStatus `json:"status"`
	ContentID *uuid.UUID       `json:"content_id,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventFromJob builds the event describing a job's current state.
func EventFromJob(job *GenerationJob) StatusEvent {
	return StatusEvent{
		JobID:     job.ID,
		Status:    job.Status,
		ContentID: job.ContentID,
		Error:     job.ErrorMessage,
		Timestamp: time.Now().UTC(),
	}
}
