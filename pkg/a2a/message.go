package a2a

import (
	"encoding/json"
)

// Message is a single conversational turn between user and agent.
type Message struct {
	MessageID string         `json:"messageId"`
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	ContextID string         `json:"contextId,omitempty"`
	TaskID    string         `json:"taskId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventKind returns the discriminator value for message events.
func (m *Message) EventKind() string { return KindMessage }

// MarshalJSON writes the message with "kind" as the first property.
func (m *Message) MarshalJSON() ([]byte, error) {
	type alias Message
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{Kind: KindMessage, alias: (*alias)(m)})
}

// UnmarshalJSON decodes the message, dispatching each part on its kind.
func (m *Message) UnmarshalJSON(raw []byte) error {
	type alias Message
	aux := struct {
		*alias
		Parts []json.RawMessage `json:"parts"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return ErrInvalidRequest("malformed message").WithCause(err)
	}
	parts, err := unmarshalParts(aux.Parts)
	if err != nil {
		return err
	}
	m.Parts = parts
	return nil
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if tp, ok := p.(*TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// Artifact is a named task output, possibly delivered in chunks.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UnmarshalJSON decodes the artifact, dispatching each part on its kind.
func (a *Artifact) UnmarshalJSON(raw []byte) error {
	type alias Artifact
	aux := struct {
		*alias
		Parts []json.RawMessage `json:"parts"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return ErrInvalidRequest("malformed artifact").WithCause(err)
	}
	parts, err := unmarshalParts(aux.Parts)
	if err != nil {
		return err
	}
	a.Parts = parts
	return nil
}

// Task is the unit of work tracked by the server.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	History   []*Message     `json:"history,omitempty"`
	Artifacts []*Artifact    `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventKind returns the discriminator value for task snapshot events.
func (t *Task) EventKind() string { return KindTask }

// MarshalJSON writes the task with "kind" as the first property.
func (t *Task) MarshalJSON() ([]byte, error) {
	type alias Task
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{Kind: KindTask, alias: (*alias)(t)})
}

// Clone returns a copy of the task with independent history, artifact and
// metadata containers. Parts are immutable by convention and shared.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := &Task{
		ID:        t.ID,
		ContextID: t.ContextID,
		Status:    t.Status,
	}
	if t.History != nil {
		out.History = make([]*Message, len(t.History))
		copy(out.History, t.History)
	}
	if t.Artifacts != nil {
		out.Artifacts = make([]*Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			ac := *a
			out.Artifacts[i] = &ac
		}
	}
	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// TruncateHistory returns a copy whose history keeps only the last n
// messages. A nil limit leaves the task untouched.
func (t *Task) TruncateHistory(n *int) *Task {
	if n == nil {
		return t
	}
	out := t.Clone()
	if *n >= len(out.History) {
		return out
	}
	if *n <= 0 {
		out.History = nil
		return out
	}
	out.History = out.History[len(out.History)-*n:]
	return out
}
