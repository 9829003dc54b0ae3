package events

import (
	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus for subscribers
func (m *Manager) Bus() *Bus {
	return m.bus
}

// EmitTyped emits an event with typed data to the bus and logs it
func (m *Manager) EmitTyped(eventType EventType, module string, data EventData) {
	m.bus.Emit(eventType, module, data)

	// Progress is chatty; everything else is worth an info line
	evt := m.log.Info()
	if eventType == JobProgress {
		evt = m.log.Debug()
	}
	if d, ok := data.(*JobStatusData); ok {
		evt = evt.Str("job_id", d.JobID).Str("job_type", d.JobType)
	}
	evt.Str("event_type", string(eventType)).
		Str("module", module).
		Msg("Event emitted")
}
