package events

import "time"

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// JobStatusData describes a job lifecycle transition or progress message
type JobStatusData struct {
	JobID     string      `json:"jobId"`
	JobType   string      `json:"jobType"`
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`

	// Type is the concrete topic; one payload shape serves all job topics
	Type EventType `json:"-"`
}

// EventType returns the event type for JobStatusData
func (d *JobStatusData) EventType() EventType {
	return d.Type
}
