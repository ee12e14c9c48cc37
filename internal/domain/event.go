package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Entity mirror events.
	EventEntitiesRefreshed EventType = "entities.refreshed"
	EventGroupCreated      EventType = "group.created"
	EventGroupUpdated      EventType = "group.updated"
	EventGroupDeleted      EventType = "group.deleted"
	EventCommandAdded      EventType = "command.added"
	EventCommandUpdated    EventType = "command.updated"
	EventCommandDeleted    EventType = "command.deleted"
	EventDataImported      EventType = "data.imported"

	// Schedule events.
	EventScheduleCreated   EventType = "schedule.created"
	EventScheduleUpdated   EventType = "schedule.updated"
	EventScheduleDeleted   EventType = "schedule.deleted"
	EventScheduleToggled   EventType = "schedule.toggled"
	EventScheduleRefreshed EventType = "schedule.refreshed"
	EventScheduleFired     EventType = "schedule.fired"

	// Execution ledger events.
	EventExecutionRecorded EventType = "execution.recorded"
	EventLedgerCleared     EventType = "ledger.cleared"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// ScheduleFired is the payload of EventScheduleFired.
type ScheduleFired struct {
	ScheduleID     string           `json:"schedule_id"`
	Label          string           `json:"label"`
	Summary        ExecutionSummary `json:"summary"`
	ExecutionCount uint             `json:"execution_count"`
	IsActive       bool             `json:"is_active"`
}

// ExecutionRecorded is the payload of EventExecutionRecorded.
type ExecutionRecorded struct {
	RecordID     string           `json:"record_id"`
	Label        string           `json:"label"`
	Summary      ExecutionSummary `json:"summary"`
	SuccessCount int              `json:"success_count"`
	ErrorCount   int              `json:"error_count"`
}

// GroupChanged is the payload of the group events.
type GroupChanged struct {
	GroupID string `json:"group_id"`
	Title   string `json:"title,omitempty"`
}

// CommandChanged is the payload of the command events.
type CommandChanged struct {
	GroupID   string `json:"group_id"`
	CommandID string `json:"command_id"`
	Label     string `json:"label,omitempty"`
}

// ScheduleChanged is the payload of the schedule mutation events.
type ScheduleChanged struct {
	ScheduleID string `json:"schedule_id"`
	IsActive   bool   `json:"is_active"`
}
