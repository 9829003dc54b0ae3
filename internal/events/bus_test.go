package events

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobData(t EventType, id string) *JobStatusData {
	return &JobStatusData{Type: t, JobID: id, JobType: "scraping"}
}

// TestBus_MultipleSubscribers tests that every subscriber of a topic receives the event
func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var a, b int32
	bus.Subscribe(JobProgress, func(*Event) { atomic.AddInt32(&a, 1) })
	bus.Subscribe(JobProgress, func(*Event) { atomic.AddInt32(&b, 1) })
	bus.Subscribe(JobCompleted, func(*Event) { t.Error("wrong topic delivered") })

	bus.Emit(JobProgress, "test", jobData(JobProgress, "job-1"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&a))
	assert.Equal(t, int32(1), atomic.LoadInt32(&b))
}

// TestBus_PanickingSubscriberIsolated tests that a panicking handler does not affect others
func TestBus_PanickingSubscriberIsolated(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []string
	bus.Subscribe(JobFailed, func(*Event) { panic("subscriber bug") })
	bus.Subscribe(JobFailed, func(e *Event) { received = append(received, e.JobData().JobID) })

	require.NotPanics(t, func() {
		bus.Emit(JobFailed, "test", jobData(JobFailed, "job-7"))
	})
	assert.Equal(t, []string{"job-7"}, received)
}

// TestBus_Unsubscribe tests subscription removal
func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var calls int32
	id := bus.Subscribe(JobCancelled, func(*Event) { atomic.AddInt32(&calls, 1) })
	assert.Equal(t, 1, bus.SubscriberCount(JobCancelled))

	assert.True(t, bus.Unsubscribe(id))
	assert.False(t, bus.Unsubscribe(id), "second removal reports unknown id")
	assert.Equal(t, 0, bus.SubscriberCount(JobCancelled))

	bus.Emit(JobCancelled, "test", jobData(JobCancelled, "job-2"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

// TestBus_UnsubscribeDuringEmit tests that a handler may remove itself while being delivered
func TestBus_UnsubscribeDuringEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var id SubscriptionID
	var calls int32
	id = bus.Subscribe(JobCompleted, func(*Event) {
		atomic.AddInt32(&calls, 1)
		bus.Unsubscribe(id)
	})

	bus.Emit(JobCompleted, "test", jobData(JobCompleted, "a"))
	bus.Emit(JobCompleted, "test", jobData(JobCompleted, "b"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// TestBus_ConcurrentEmit tests concurrent publishers and subscribers
func TestBus_ConcurrentEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var total int64
	for i := 0; i < 4; i++ {
		bus.Subscribe(JobProgress, func(*Event) { atomic.AddInt64(&total, 1) })
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Emit(JobProgress, "test", jobData(JobProgress, "x"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(200), atomic.LoadInt64(&total))
}

func TestEventType_IsTerminal(t *testing.T) {
	assert.False(t, JobStarted.IsTerminal())
	assert.False(t, JobProgress.IsTerminal())
	assert.True(t, JobCompleted.IsTerminal())
	assert.True(t, JobFailed.IsTerminal())
	assert.True(t, JobCancelled.IsTerminal())
}

func TestManager_EmitTyped(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(JobStarted, func(e *Event) { got = e })

	manager.EmitTyped(JobStarted, "jobs", jobData(JobStarted, "job-9"))

	require.NotNil(t, got)
	assert.Equal(t, "jobs", got.Module)
	assert.Equal(t, "job-9", got.JobData().JobID)
	assert.False(t, got.Timestamp.IsZero())
}
