package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stockscan/internal/events"
	"github.com/aristath/stockscan/internal/jobs"
)

func noop() (string, error) { return "", nil }

// TestRegister tests expression validation and duplicate rejection
func TestRegister(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())

	require.NoError(t, s.Register("a", "0 18 * * 1-5", "", noop))

	err := s.Register("a", "0 18 * * 1-5", "", noop)
	assert.ErrorIs(t, err, ErrDuplicateSchedule)

	err = s.Register("bad", "not a cron", "", noop)
	assert.Error(t, err)

	err = s.Register("seconds", "*/5 * * * * *", "", noop)
	assert.Error(t, err, "six-field expressions are rejected")
}

// TestStartStop tests that tasks are inert until started
func TestStartStop(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	require.NoError(t, s.Register("a", "*/30 9-15 * * 1-5", "charts", noop))

	list := s.List()
	require.Len(t, list, 1)
	assert.False(t, list[0].IsActive)
	assert.Empty(t, s.cron.Entries())

	assert.True(t, s.Start("a"))
	assert.True(t, s.Start("a"))
	assert.True(t, s.List()[0].IsActive)
	assert.Len(t, s.cron.Entries(), 1)

	assert.True(t, s.Stop("a"))
	assert.False(t, s.List()[0].IsActive)
	assert.Empty(t, s.cron.Entries())

	assert.False(t, s.Start("missing"))
	assert.False(t, s.Stop("missing"))
}

// TestStartAllStopAll tests bulk activation
func TestStartAllStopAll(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	require.NoError(t, s.Register("a", "0 * * * *", "", noop))
	require.NoError(t, s.Register("b", "0 10 * * 6", "", noop))

	s.StartAll()
	for _, job := range s.List() {
		assert.True(t, job.IsActive, job.Name)
	}
	assert.Len(t, s.cron.Entries(), 2)

	s.StopAll()
	for _, job := range s.List() {
		assert.False(t, job.IsActive, job.Name)
	}
	assert.Empty(t, s.cron.Entries())
}

// TestList tests that tasks are listed in registration order
func TestList(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, s.Register(name, "0 * * * *", "desc "+name, noop))
	}

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].Name)
	assert.Equal(t, "a", list[1].Name)
	assert.Equal(t, "b", list[2].Name)
	assert.Equal(t, "desc a", list[1].Description)
	assert.Equal(t, "0 * * * *", list[2].CronExpression)
}

// TestTrigger tests immediate execution
func TestTrigger(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	var calls int32
	require.NoError(t, s.Register("a", "0 * * * *", "", func() (string, error) {
		atomic.AddInt32(&calls, 1)
		return "job-1", nil
	}))
	require.NoError(t, s.Register("failing", "0 * * * *", "", func() (string, error) {
		return "", jobs.ErrAlreadyRunning
	}))

	id, err := s.Trigger("a")
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = s.Trigger("failing")
	assert.ErrorIs(t, err, jobs.ErrAlreadyRunning)

	_, err = s.Trigger("missing")
	assert.ErrorIs(t, err, ErrUnknownSchedule)
}

// TestReschedule tests replacing an expression on active and inactive tasks
func TestReschedule(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	require.NoError(t, s.Register("a", "0 * * * *", "", noop))

	require.NoError(t, s.Reschedule("a", "15 * * * *"))
	assert.Equal(t, "15 * * * *", s.List()[0].CronExpression)
	assert.False(t, s.List()[0].IsActive)

	require.True(t, s.Start("a"))
	require.NoError(t, s.Reschedule("a", "30 * * * *"))
	assert.True(t, s.List()[0].IsActive)
	assert.Len(t, s.cron.Entries(), 1)

	assert.Error(t, s.Reschedule("a", "bad"))
	assert.ErrorIs(t, s.Reschedule("missing", "0 * * * *"), ErrUnknownSchedule)
}

// TestRunShutdown tests that the engine schedules active tasks and stops cleanly
func TestRunShutdown(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	require.NoError(t, s.Register("a", "* * * * *", "", noop))
	require.True(t, s.Start("a"))

	s.Run()
	entries := s.cron.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Next.After(time.Now()))
	assert.Equal(t, 0, entries[0].Next.Second())

	s.Shutdown()
}

// TestDefaultSchedules tests the built-in task set
func TestDefaultSchedules(t *testing.T) {
	log := zerolog.Nop()
	bus := events.NewBus(log)
	registry := jobs.NewRegistry(events.NewManager(bus, log), log)
	defer registry.Close()

	s := New(time.UTC, log)
	require.NoError(t, s.RegisterAll(DefaultSchedules(Deps{
		Bus:       bus,
		Starter:   &registryStarter{registry: registry},
		Registry:  registry,
		Retention: 24 * time.Hour,
		Log:       log,
	})))

	list := s.List()
	require.Len(t, list, 4)
	assert.Equal(t, DailyScraping, list[0].Name)
	assert.Equal(t, "0 18 * * 1-5", list[0].CronExpression)
	assert.Equal(t, MarketHoursCharts, list[1].Name)
	assert.Equal(t, "*/30 9-15 * * 1-5", list[1].CronExpression)
	assert.Equal(t, WeekendFullRefresh, list[2].Name)
	assert.Equal(t, "0 10 * * 6", list[2].CronExpression)
	assert.Equal(t, JobHistoryCleanup, list[3].Name)
	assert.Equal(t, "0 * * * *", list[3].CronExpression)

	_, err := s.Trigger(JobHistoryCleanup)
	assert.NoError(t, err)
}

// TestCronLogger tests that engine logs do not panic with odd key-value lists
func TestCronLogger(t *testing.T) {
	l := cronLogger{log: zerolog.Nop()}
	assert.NotPanics(t, func() {
		l.Info("wake", "now", time.Now(), "entry", 1)
		l.Error(errors.New("boom"), "panic", "odd")
	})
}
