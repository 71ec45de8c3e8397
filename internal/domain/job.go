package domain

import "time"

// JobState enumerates the journal states of a submitted generation.
type JobState string

const (
	JobStatePolling   JobState = "POLLING"
	JobStateSucceeded JobState = "SUCCEEDED"
	JobStateFailed    JobState = "FAILED"
	JobStateTimedOut  JobState = "TIMED_OUT"
)

// Terminal reports whether no further polling will happen for the state. A
// timed-out job may still finish upstream but is no longer observed.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed || s == JobStateTimedOut
}

// GenerationJob is the journal entry recorded once the provider accepted a
// submission. The task id is the source of truth for recovery: a job is polled
// again after a restart, never resubmitted.
type GenerationJob struct {
	ID               string
	TaskID           string
	UserID           string
	UserEmail        string
	SourceImage      string
	Prompt           string
	CategoryLabel    string
	EnhancementLabel string
	State            JobState
	ResultURL        string
	Failure          string
	LeaseUntil       time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
