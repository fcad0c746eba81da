package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types published after schedule configuration changes.
const (
	VersionChanged   = "schedule.version_changed"
	WeeklyDayChanged = "schedule.weekly_day_changed"
	PolicyChanged    = "schedule.policy_changed"
	ExceptionChanged = "schedule.exception_changed"
	SchedulesSynced  = "schedule.synced"
)

// Event is a lightweight domain event about one service's configuration.
type Event struct {
	ID        string
	Type      string
	ServiceID int64
	VersionID int64
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged to logger.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish notifies subscribers of the event type. Handlers run synchronously in
// subscription order; a failing handler does not stop the others.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil && b.logger != nil {
			b.logger.Error().Err(err).
				Str("event_id", event.ID).
				Str("event_type", event.Type).
				Int64("service_id", event.ServiceID).
				Msg("Event handler failed")
		}
	}
}
