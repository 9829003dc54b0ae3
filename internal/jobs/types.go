// Package jobs tracks the lifecycle of background ingestion jobs.
//
// The Registry is the single owner of job state: at most one job per type may be
// running, progress is append-only, and terminal states are absorbing. Every
// transition is re-published on the event bus in the order it happened.
package jobs

import (
	"errors"
	"time"
)

// JobType represents the type of job
type JobType string

const (
	JobTypeScraping      JobType = "scraping"
	JobTypeChartDownload JobType = "chart_download"
)

// Valid reports whether t is a known job type
func (t JobType) Valid() bool {
	return t == JobTypeScraping || t == JobTypeChartDownload
}

// GetJobDescription returns a human-readable description for a job type
func GetJobDescription(t JobType) string {
	switch t {
	case JobTypeScraping:
		return "Scraping stock screeners"
	case JobTypeChartDownload:
		return "Capturing stock charts"
	default:
		return string(t)
	}
}

// Status is the lifecycle state of a job
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions are possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	// ErrAlreadyRunning is returned when a job of the same type is running
	ErrAlreadyRunning = errors.New("job already running")
	// ErrNotFound is returned for unknown job ids
	ErrNotFound = errors.New("job not found")
)

// ProgressEntry is one progress message
type ProgressEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// JobError describes why a job failed. The stack stays server-side.
type JobError struct {
	Message string `json:"message"`
	Stack   string `json:"-"`
}

// Job is a snapshot of a job record
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Status    Status          `json:"status"`
	StartTime time.Time       `json:"startTime"`
	EndTime   *time.Time      `json:"endTime,omitempty"`
	Progress  []ProgressEntry `json:"progress"`
	Result    interface{}     `json:"result,omitempty"`
	Error     *JobError       `json:"error,omitempty"`
	OwnerID   string          `json:"ownerId,omitempty"`

	seq uint64 // start order, breaks StartTime ties
}

// clone returns a deep copy so callers never alias registry state
func (j *Job) clone() Job {
	c := *j
	c.Progress = append([]ProgressEntry(nil), j.Progress...)
	if c.Progress == nil {
		c.Progress = []ProgressEntry{}
	}
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return c
}

// Stats summarises the registry contents
type Stats struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
