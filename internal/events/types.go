// Package events provides the in-process event bus that carries job lifecycle notifications.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	// JobStarted is emitted when a job is registered as running
	JobStarted EventType = "JOB_STARTED"
	// JobProgress is emitted for every progress message appended to a job
	JobProgress EventType = "JOB_PROGRESS"
	// JobCompleted is emitted once when a job finishes successfully
	JobCompleted EventType = "JOB_COMPLETED"
	// JobFailed is emitted once when a job ends with an error
	JobFailed EventType = "JOB_FAILED"
	// JobCancelled is emitted once when a running job is cancelled
	JobCancelled EventType = "JOB_CANCELLED"
)

// JobEventTypes lists every job lifecycle topic
var JobEventTypes = []EventType{JobStarted, JobProgress, JobCompleted, JobFailed, JobCancelled}

// IsTerminal reports whether the event type ends a job
func (t EventType) IsTerminal() bool {
	return t == JobCompleted || t == JobFailed || t == JobCancelled
}

// Event represents a system event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// JobData returns the payload as job status data, or nil
func (e *Event) JobData() *JobStatusData {
	if d, ok := e.Data.(*JobStatusData); ok {
		return d
	}
	return nil
}
