package config

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusRunning    JobStatus = "running"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// TerminalStatuses are absorbing: a job never leaves them once entered.
var TerminalStatuses = []JobStatus{
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
}

// NonTerminalStatuses is the guard set for cancellation and failure flips.
var NonTerminalStatuses = []JobStatus{
	JobStatusPending,
	JobStatusQueued,
	JobStatusRunning,
	JobStatusProcessing,
}

func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}
