package jobs

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/aristath/stockscan/internal/events"
	"github.com/rs/zerolog"
)

// Registry owns every job record for the lifetime of the process
type Registry struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	running map[JobType]string
	counter uint64

	events   *events.Manager
	dispatch *dispatcher
	log      zerolog.Logger
	now      func() time.Time
}

// NewRegistry creates a registry that publishes transitions through em
func NewRegistry(em *events.Manager, log zerolog.Logger) *Registry {
	r := &Registry{
		jobs:    make(map[string]*Job),
		running: make(map[JobType]string),
		events:  em,
		log:     log.With().Str("component", "job_registry").Logger(),
		now:     time.Now,
	}
	r.dispatch = newDispatcher(func(t events.EventType, data *events.JobStatusData) {
		if r.events != nil {
			r.events.EmitTyped(t, "jobs", data)
		}
	})
	return r
}

// Close delivers pending events and stops the dispatcher
func (r *Registry) Close() {
	r.dispatch.close()
}

// Sync blocks until every event published so far has been delivered.
// It must not be called from an event handler.
func (r *Registry) Sync() {
	r.dispatch.sync()
}

// Start registers a new running job. It fails with ErrAlreadyRunning while
// another job of the same type is running.
func (r *Registry) Start(jobType JobType, ownerID string) (string, error) {
	if !jobType.Valid() {
		return "", fmt.Errorf("unknown job type %q", jobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.running[jobType]; ok {
		return "", fmt.Errorf("%w: %s job %s", ErrAlreadyRunning, jobType, id)
	}

	r.counter++
	now := r.now()
	id := fmt.Sprintf("%s_%d_%d", jobType, r.counter, now.UnixMilli())
	job := &Job{
		ID:        id,
		Type:      jobType,
		Status:    StatusRunning,
		StartTime: now,
		Progress:  []ProgressEntry{},
		OwnerID:   ownerID,
		seq:       r.counter,
	}
	r.jobs[id] = job
	r.running[jobType] = id

	r.log.Info().Str("job_id", id).Str("job_type", string(jobType)).Msg("Job started")
	r.publish(events.JobStarted, job, GetJobDescription(jobType), now)
	return id, nil
}

// Progress appends a progress message to a running job. Unknown or finished
// jobs are ignored.
func (r *Registry) Progress(id, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != StatusRunning {
		r.log.Debug().Str("job_id", id).Str("message", message).Msg("Progress for inactive job ignored")
		return
	}

	ts := r.now()
	if n := len(job.Progress); n > 0 && ts.Before(job.Progress[n-1].Timestamp) {
		ts = job.Progress[n-1].Timestamp
	}
	job.Progress = append(job.Progress, ProgressEntry{Timestamp: ts, Message: message})
	r.publish(events.JobProgress, job, message, ts)
}

// Complete marks a running job as completed with result
func (r *Registry) Complete(id string, result interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.finish(id, StatusCompleted)
	if !ok {
		return false
	}
	job.Result = result

	r.log.Info().Str("job_id", id).Dur("duration", job.EndTime.Sub(job.StartTime)).Msg("Job completed")
	r.publish(events.JobCompleted, job, "", *job.EndTime)
	return true
}

// Fail marks a running job as failed
func (r *Registry) Fail(id string, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.finish(id, StatusFailed)
	if !ok {
		return false
	}

	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	job.Error = &JobError{Message: msg, Stack: string(debug.Stack())}

	r.log.Error().Err(err).Str("job_id", id).Msg("Job failed")
	r.publish(events.JobFailed, job, msg, *job.EndTime)
	return true
}

// Cancel flags a running job as cancelled. Work in flight notices the flag at
// its next checkpoint.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.finish(id, StatusCancelled)
	if !ok {
		return false
	}

	r.log.Info().Str("job_id", id).Msg("Job cancelled")
	r.publish(events.JobCancelled, job, "Job cancelled", *job.EndTime)
	return true
}

// IsCancelled reports whether id was cancelled
func (r *Registry) IsCancelled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	return ok && job.Status == StatusCancelled
}

// finish moves a running job into a terminal state. Callers hold r.mu.
func (r *Registry) finish(id string, status Status) (*Job, bool) {
	job, ok := r.jobs[id]
	if !ok || job.Status != StatusRunning {
		return nil, false
	}

	end := r.now()
	if end.Before(job.StartTime) {
		end = job.StartTime
	}
	job.Status = status
	job.EndTime = &end

	if r.running[job.Type] == id {
		delete(r.running, job.Type)
	}
	return job, true
}

// publish queues an event for ordered delivery. Callers hold r.mu.
func (r *Registry) publish(t events.EventType, job *Job, message string, ts time.Time) {
	data := &events.JobStatusData{
		Type:      t,
		JobID:     job.ID,
		JobType:   string(job.Type),
		Status:    string(job.Status),
		Message:   message,
		Result:    job.Result,
		Timestamp: ts,
	}
	if job.Error != nil {
		data.Error = job.Error.Message
	}
	r.dispatch.push(pending{eventType: t, data: data})
}

// Status returns a snapshot of a job
func (r *Registry) Status(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// List returns every job, newest first
func (r *Registry) List() []Job {
	return r.collect(func(*Job) bool { return true }, byStartDesc)
}

// ListRunning returns the running jobs, newest first
func (r *Registry) ListRunning() []Job {
	return r.collect(func(j *Job) bool { return j.Status == StatusRunning }, byStartDesc)
}

// History returns finished jobs ordered by end time, newest first.
// A non-positive limit returns all of them.
func (r *Registry) History(limit int) []Job {
	out := r.collect(func(j *Job) bool { return j.Status.IsTerminal() }, byEndDesc)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats counts jobs by status
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Total: len(r.jobs)}
	for _, job := range r.jobs {
		switch job.Status {
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Cleanup removes finished jobs that ended more than maxAge ago and returns
// how many were removed. Running jobs are never removed.
func (r *Registry) Cleanup(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	removed := 0
	for id, job := range r.jobs {
		if job.Status.IsTerminal() && job.EndTime != nil && job.EndTime.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		r.log.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("Cleaned up job history")
	}
	return removed
}

func (r *Registry) collect(keep func(*Job) bool, less func(a, b *Job) bool) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if keep(job) {
			matched = append(matched, job)
		}
	}
	sort.Slice(matched, func(i, k int) bool { return less(matched[i], matched[k]) })

	out := make([]Job, len(matched))
	for i, job := range matched {
		out[i] = job.clone()
	}
	return out
}

func byStartDesc(a, b *Job) bool {
	if a.StartTime.Equal(b.StartTime) {
		return a.seq > b.seq
	}
	return a.StartTime.After(b.StartTime)
}

func byEndDesc(a, b *Job) bool {
	if a.EndTime.Equal(*b.EndTime) {
		return byStartDesc(a, b)
	}
	return a.EndTime.After(*b.EndTime)
}
