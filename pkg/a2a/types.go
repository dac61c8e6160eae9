package a2a

import (
	"time"
)

// Discriminator values for serialized Part and Event objects.
const (
	KindText           = "text"
	KindFile           = "file"
	KindData           = "data"
	KindMessage        = "message"
	KindTask           = "task"
	KindStatusUpdate   = "status-update"
	KindArtifactUpdate = "artifact-update"
)

// TaskState is the closed set of task lifecycle states.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateRejected      TaskState = "rejected"
	TaskStateUnknown       TaskState = "unknown"
)

// Terminal reports whether no further task mutation is permitted.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	}
	return false
}

// Valid reports whether s is a member of the closed state set.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateAuthRequired, TaskStateCompleted, TaskStateFailed,
		TaskStateCanceled, TaskStateRejected, TaskStateUnknown:
		return true
	}
	return false
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TaskStatus is the current state of a task with an optional accompanying
// agent message and the time of the transition.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// timestampLayout is RFC 3339 with millisecond resolution, always UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t as the wire timestamp string.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp parses a wire timestamp. The zero time is returned for
// empty or malformed input.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FileContent is a file payload carried inline (base64 bytes) or by reference
// (uri). Exactly one of the two must be set.
type FileContent struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Validate enforces the bytes/uri exclusivity rule.
func (f *FileContent) Validate() error {
	if f.Bytes != "" && f.URI != "" {
		return ErrInvalidRequest("file content has both bytes and uri")
	}
	if f.Bytes == "" && f.URI == "" {
		return ErrInvalidRequest("file content has neither bytes nor uri")
	}
	return nil
}

// SetBytes sets inline content, failing if a uri is already present.
func (f *FileContent) SetBytes(b string) error {
	if f.URI != "" {
		return ErrInvalidRequest("cannot set bytes on file content with uri")
	}
	f.Bytes = b
	return nil
}

// SetURI sets reference content, failing if inline bytes are already present.
func (f *FileContent) SetURI(uri string) error {
	if f.Bytes != "" {
		return ErrInvalidRequest("cannot set uri on file content with bytes")
	}
	f.URI = uri
	return nil
}

// PushNotificationAuthenticationInfo describes how the receiving endpoint
// authenticates pushed notifications.
type PushNotificationAuthenticationInfo struct {
	Schemes     []string `json:"schemes,omitempty"`
	Credentials string   `json:"credentials,omitempty"`
}

// PushNotificationConfig is a webhook registration for task updates.
type PushNotificationConfig struct {
	ID             string                              `json:"id,omitempty"`
	URL            string                              `json:"url"`
	Token          string                              `json:"token,omitempty"`
	Authentication *PushNotificationAuthenticationInfo `json:"authentication,omitempty"`
}

// TaskPushNotificationConfig binds a push config to a task.
type TaskPushNotificationConfig struct {
	TaskID                 string                 `json:"taskId"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}
