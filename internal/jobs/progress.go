package jobs

import "fmt"

// Reporter lets long-running work report progress and poll for cancellation
type Reporter interface {
	Report(message string)
	Reportf(format string, args ...interface{})
	Cancelled() bool
}

// ProgressReporter reports progress for one job in the registry
type ProgressReporter struct {
	registry *Registry
	jobID    string
}

// Reporter returns a progress reporter bound to jobID
func (r *Registry) Reporter(jobID string) *ProgressReporter {
	return &ProgressReporter{registry: r, jobID: jobID}
}

// JobID returns the job this reporter writes to
func (pr *ProgressReporter) JobID() string {
	return pr.jobID
}

// Report appends a progress message
func (pr *ProgressReporter) Report(message string) {
	pr.registry.Progress(pr.jobID, message)
}

// Reportf appends a formatted progress message
func (pr *ProgressReporter) Reportf(format string, args ...interface{}) {
	pr.registry.Progress(pr.jobID, fmt.Sprintf(format, args...))
}

// Cancelled reports whether the job was cancelled
func (pr *ProgressReporter) Cancelled() bool {
	return pr.registry.IsCancelled(pr.jobID)
}

// NopReporter discards progress and is never cancelled
type NopReporter struct{}

// Report discards the message
func (NopReporter) Report(string) {}

// Reportf discards the message
func (NopReporter) Reportf(string, ...interface{}) {}

// Cancelled always reports false
func (NopReporter) Cancelled() bool { return false }
