package a2a

import (
	"encoding/json"
)

// Event is a single entry in a task's event log. Concrete variants are
// *Message, *Task, *StatusUpdateEvent and *ArtifactUpdateEvent,
// discriminated on the wire by "kind".
type Event interface {
	EventKind() string
}

// StatusUpdateEvent reports a task state transition. Final marks the last
// event of the task's log.
type StatusUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventKind returns the discriminator value for status update events.
func (e *StatusUpdateEvent) EventKind() string { return KindStatusUpdate }

// MarshalJSON writes the event with "kind" as the first property.
func (e *StatusUpdateEvent) MarshalJSON() ([]byte, error) {
	type alias StatusUpdateEvent
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{Kind: KindStatusUpdate, alias: (*alias)(e)})
}

// ArtifactUpdateEvent delivers an artifact or artifact chunk. Append selects
// chunk accumulation instead of replacement; LastChunk finalizes the artifact.
type ArtifactUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId,omitempty"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventKind returns the discriminator value for artifact update events.
func (e *ArtifactUpdateEvent) EventKind() string { return KindArtifactUpdate }

// MarshalJSON writes the event with "kind" as the first property.
func (e *ArtifactUpdateEvent) MarshalJSON() ([]byte, error) {
	type alias ArtifactUpdateEvent
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{Kind: KindArtifactUpdate, alias: (*alias)(e)})
}

// UnmarshalEvent decodes a single Event from its JSON representation,
// dispatching on the "kind" discriminator.
func UnmarshalEvent(raw []byte) (Event, error) {
	kind, err := readKind(raw)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindMessage:
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, ErrInvalidRequest("malformed message event").WithCause(err)
		}
		return &m, nil
	case KindTask:
		var t Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, ErrInvalidRequest("malformed task event").WithCause(err)
		}
		return &t, nil
	case KindStatusUpdate:
		var e StatusUpdateEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, ErrInvalidRequest("malformed status update event").WithCause(err)
		}
		return &e, nil
	case KindArtifactUpdate:
		var e ArtifactUpdateEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, ErrInvalidRequest("malformed artifact update event").WithCause(err)
		}
		return &e, nil
	default:
		return nil, ErrInvalidRequest("unknown event kind: " + kind)
	}
}

// FinalEvent reports whether ev terminates a task's event log.
func FinalEvent(ev Event) bool {
	if e, ok := ev.(*StatusUpdateEvent); ok {
		return e.Final
	}
	return false
}
