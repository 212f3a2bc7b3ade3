package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event payload constraints enforced by NewEvent.
const (
	MaxEventDescriptionLength = 4096
	MaxEventAgentLength       = 128
	MaxEventSourceLength      = 128
)

// Event is a single activity record. It cannot be modified after NewEvent
// returns; accessors hand out copies of the metadata.
type Event struct {
	typ         EventType
	description string
	agent       string
	source      string
	metadata    Metadata
	timestamp   int64
}

// NewEvent validates its inputs and builds an Event stamped with at.
//
//nolint:revive // argument-limit: every wire field is required at construction
func NewEvent(typ EventType, description, agent, source string, metadata Metadata, at time.Time) (Event, error) {
	if !typ.Valid() {
		return Event{}, fmt.Errorf("unknown event type %q", typ)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return Event{}, errors.New("event description is required")
	}
	if len(description) > MaxEventDescriptionLength {
		return Event{}, fmt.Errorf("event description exceeds max length (%d)", MaxEventDescriptionLength)
	}
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return Event{}, errors.New("event agent is required")
	}
	if len(agent) > MaxEventAgentLength {
		return Event{}, fmt.Errorf("event agent exceeds max length (%d)", MaxEventAgentLength)
	}
	if len(source) > MaxEventSourceLength {
		return Event{}, fmt.Errorf("event source exceeds max length (%d)", MaxEventSourceLength)
	}
	if err := metadata.Validate(); err != nil {
		return Event{}, err
	}

	return Event{
		typ:         typ,
		description: description,
		agent:       agent,
		source:      strings.TrimSpace(source),
		metadata:    metadata.Clone(),
		timestamp:   at.UnixMilli(),
	}, nil
}

// Type returns the event's type tag.
func (e Event) Type() EventType { return e.typ }

// Description returns the human-readable text.
func (e Event) Description() string { return e.description }

// Agent returns the reporting identity.
func (e Event) Agent() string { return e.agent }

// Source returns the origin tag, or "" when unset.
func (e Event) Source() string { return e.source }

// Metadata returns a copy of the event metadata.
func (e Event) Metadata() Metadata { return e.metadata.Clone() }

// Timestamp returns the creation time in epoch milliseconds.
func (e Event) Timestamp() int64 { return e.timestamp }

// wireEvent is the JSON shape the ingestion endpoint expects.
type wireEvent struct {
	Type        EventType `json:"type"`
	Description string    `json:"description"`
	Agent       string    `json:"agent"`
	Source      string    `json:"source,omitempty"`
	Metadata    Metadata  `json:"metadata"`
	Timestamp   int64     `json:"timestamp"`
}

// MarshalJSON encodes the event in wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		Type:        e.typ,
		Description: e.description,
		Agent:       e.agent,
		Source:      e.source,
		Metadata:    e.metadata,
		Timestamp:   e.timestamp,
	})
}

// UnmarshalJSON decodes and validates a wire-form event.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ev, err := NewEvent(w.Type, w.Description, w.Agent, w.Source, w.Metadata, time.UnixMilli(w.Timestamp))
	if err != nil {
		return err
	}
	*e = ev
	return nil
}
