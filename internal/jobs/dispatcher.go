package jobs

import (
	"sync"

	"github.com/aristath/stockscan/internal/events"
)

type pending struct {
	eventType events.EventType
	data      *events.JobStatusData
	barrier   chan struct{}
}

// dispatcher delivers events from an unbounded FIFO on one goroutine.
// Pushing never blocks, so it is safe while holding the registry lock, and
// handlers may call back into the registry.
type dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []pending
	closed bool
	done   chan struct{}
	emit   func(events.EventType, *events.JobStatusData)
}

func newDispatcher(emit func(events.EventType, *events.JobStatusData)) *dispatcher {
	d := &dispatcher{
		done: make(chan struct{}),
		emit: emit,
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) push(p pending) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.queue = append(d.queue, p)
	d.cond.Signal()
	return true
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		p := d.queue[0]
		d.queue[0] = pending{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if p.barrier != nil {
			close(p.barrier)
			continue
		}
		d.emit(p.eventType, p.data)
	}
}

// sync blocks until everything pushed before the call has been delivered.
// Must not be called from an event handler.
func (d *dispatcher) sync() {
	barrier := make(chan struct{})
	if !d.push(pending{barrier: barrier}) {
		<-d.done
		return
	}
	<-barrier
}

// close drains the queue and stops the goroutine
func (d *dispatcher) close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.cond.Broadcast()
	}
	d.mu.Unlock()
	<-d.done
}
