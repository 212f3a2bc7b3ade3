package models

import "fmt"

// EventType is the closed set of activity tags accepted by the backend.
type EventType string

// Activity event types. The backend schema rejects anything outside this set.
const (
	EventTypeTaskCompleted          EventType = "task_completed"
	EventTypeTaskCreated            EventType = "task_created"
	EventTypeTaskUpdated            EventType = "task_updated"
	EventTypeFileCreated            EventType = "file_created"
	EventTypeFileUpdated            EventType = "file_updated"
	EventTypeFileDeleted            EventType = "file_deleted"
	EventTypeMemoryUpdated          EventType = "memory_updated"
	EventTypeToolExecuted           EventType = "tool_executed"
	EventTypeSearchPerformed        EventType = "search_performed"
	EventTypeScheduledTaskCreated   EventType = "scheduled_task_created"
	EventTypeScheduledTaskCompleted EventType = "scheduled_task_completed"
	EventTypeAgentAction            EventType = "agent_action"
	EventTypeSystemEvent            EventType = "system_event"
)

// AllEventTypes lists every valid EventType in declaration order.
//
//nolint:gochecknoglobals // read-only lookup table
var AllEventTypes = []EventType{
	EventTypeTaskCompleted,
	EventTypeTaskCreated,
	EventTypeTaskUpdated,
	EventTypeFileCreated,
	EventTypeFileUpdated,
	EventTypeFileDeleted,
	EventTypeMemoryUpdated,
	EventTypeToolExecuted,
	EventTypeSearchPerformed,
	EventTypeScheduledTaskCreated,
	EventTypeScheduledTaskCompleted,
	EventTypeAgentAction,
	EventTypeSystemEvent,
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseEventType converts a raw tag into an EventType.
func ParseEventType(raw string) (EventType, error) {
	t := EventType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", raw)
	}
	return t, nil
}
