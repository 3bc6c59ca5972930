// Package events provides the append-only feed of survival events.
// The engine emits into it; the WebSocket hub and the durable journal
// consume from it.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a survival event.
type EventType string

const (
	EventTypeAttached       EventType = "ATTACHED"
	EventTypeDetached       EventType = "DETACHED"
	EventTypeThirstChanged  EventType = "THIRST_CHANGED"
	EventTypeThirstDamage   EventType = "THIRST_DAMAGE"
	EventTypeItemConsumed   EventType = "ITEM_CONSUMED"
	EventTypeTerminalReset  EventType = "TERMINAL_RESET"
	EventTypeConfigReloaded EventType = "CONFIG_RELOADED"
)

// GameEvent represents an immutable record of a survival state transition.
type GameEvent struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       EventType   `json:"type"`
	SurvivorID string      `json:"survivor_id"` // Empty for process-wide events
	Payload    interface{} `json:"payload"`     // Event-specific data
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// EventLog is the in-memory append-only log of survival events.
type EventLog struct {
	mu        sync.RWMutex
	events    []GameEvent
	persister EventPersister
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:    make([]GameEvent, 0),
		persister: persister,
	}
}

// Append adds a new event to the log. Events are immutable once appended.
func (el *EventLog) Append(event GameEvent) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.events = append(el.events, event)

	if el.persister != nil {
		// Write through to persistent storage off the caller's path; a
		// failed journal write never blocks the tick loop.
		go func(e GameEvent) {
			_ = el.persister.Append(e)
		}(event)
	}
}

// GetBySurvivor returns all events concerning a specific survivor.
func (el *EventLog) GetBySurvivor(survivorID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.SurvivorID == survivorID {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns the full history of events.
func (el *EventLog) Replay() []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.events
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
