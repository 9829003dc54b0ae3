// Package scheduler runs named jobs on cron schedules. Tasks are registered
// inactive and only fire after Start.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownSchedule is returned for names that were never registered
	ErrUnknownSchedule = errors.New("unknown scheduled job")
	// ErrDuplicateSchedule is returned when a name is registered twice
	ErrDuplicateSchedule = errors.New("scheduled job already registered")
)

// TriggerFunc starts the work of a scheduled task and returns the job id
type TriggerFunc func() (string, error)

// ScheduledJob describes a registered task
type ScheduledJob struct {
	Name           string `json:"name"`
	CronExpression string `json:"cronExpression"`
	Description    string `json:"description"`
	IsActive       bool   `json:"isActive"`
}

type task struct {
	name        string
	expr        string
	description string
	trigger     TriggerFunc
	entry       cron.EntryID
	active      bool
	order       int
}

// Scheduler wraps a cron engine with named, individually switchable tasks
type Scheduler struct {
	mu    sync.Mutex
	cron  *cron.Cron
	tasks map[string]*task
	log   zerolog.Logger
}

// New creates a scheduler evaluating expressions in loc
func New(loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	log = log.With().Str("component", "scheduler").Logger()
	cronLog := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		tasks: make(map[string]*task),
		log:   log,
	}
}

// Register adds an inactive task. Expressions use the standard five fields.
func (s *Scheduler) Register(name, expr, description string, trigger TriggerFunc) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", expr, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSchedule, name)
	}
	s.tasks[name] = &task{
		name:        name,
		expr:        expr,
		description: description,
		trigger:     trigger,
		order:       len(s.tasks),
	}

	s.log.Info().Str("job", name).Str("schedule", expr).Msg("Job registered")
	return nil
}

// Reschedule replaces a task's expression. An active task is re-armed.
func (s *Scheduler) Reschedule(name, expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", expr, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}
	wasActive := t.active
	if wasActive {
		s.stopLocked(t)
	}
	t.expr = expr
	if wasActive {
		if err := s.startLocked(t); err != nil {
			return err
		}
	}
	return nil
}

// Start activates a task. It returns false for unknown names.
func (s *Scheduler) Start(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[name]
	if !ok {
		return false
	}
	if t.active {
		return true
	}
	if err := s.startLocked(t); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("Failed to start scheduled job")
		return false
	}
	return true
}

// Stop deactivates a task. It returns false for unknown names.
func (s *Scheduler) Stop(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[name]
	if !ok {
		return false
	}
	s.stopLocked(t)
	return true
}

// StartAll activates every registered task
func (s *Scheduler) StartAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.sortedLocked() {
		if t.active {
			continue
		}
		if err := s.startLocked(t); err != nil {
			s.log.Error().Err(err).Str("job", t.name).Msg("Failed to start scheduled job")
		}
	}
}

// StopAll deactivates every registered task
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		s.stopLocked(t)
	}
}

// Trigger runs a task immediately, whether or not it is active
func (s *Scheduler) Trigger(name string) (string, error) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}

	s.log.Info().Str("job", name).Msg("Running job immediately")
	return t.trigger()
}

// List returns every task in registration order
func (s *Scheduler) List() []ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScheduledJob, 0, len(s.tasks))
	for _, t := range s.sortedLocked() {
		out = append(out, ScheduledJob{
			Name:           t.name,
			CronExpression: t.expr,
			Description:    t.description,
			IsActive:       t.active,
		})
	}
	return out
}

// Run starts the cron engine in the background
func (s *Scheduler) Run() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Shutdown stops the engine and waits for running triggers to return
func (s *Scheduler) Shutdown() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) startLocked(t *task) error {
	name := t.name
	trigger := t.trigger
	id, err := s.cron.AddFunc(t.expr, func() {
		jobID, err := trigger()
		if err != nil {
			s.log.Warn().Err(err).Str("job", name).Msg("Scheduled job did not start")
			return
		}
		s.log.Info().Str("job", name).Str("job_id", jobID).Msg("Scheduled job started")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	t.entry = id
	t.active = true
	s.log.Info().Str("job", name).Str("schedule", t.expr).Msg("Scheduled job activated")
	return nil
}

func (s *Scheduler) stopLocked(t *task) {
	if !t.active {
		return
	}
	s.cron.Remove(t.entry)
	t.entry = 0
	t.active = false
	s.log.Info().Str("job", t.name).Msg("Scheduled job deactivated")
}

func (s *Scheduler) sortedLocked() []*task {
	out := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// cronLogger routes the engine's own logging through zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
