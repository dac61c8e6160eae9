package a2a

import (
	"encoding/json"
)

// JSON-RPC method names.
const (
	MethodMessageSend      = "message/send"
	MethodMessageStream    = "message/stream"
	MethodTasksGet         = "tasks/get"
	MethodTasksCancel      = "tasks/cancel"
	MethodTasksList        = "tasks/list"
	MethodTasksResubscribe = "tasks/resubscribe"
	MethodPushConfigSet    = "tasks/pushNotificationConfig/set"
	MethodPushConfigGet    = "tasks/pushNotificationConfig/get"
	MethodPushConfigList   = "tasks/pushNotificationConfig/list"
	MethodPushConfigDelete = "tasks/pushNotificationConfig/delete"
)

// StreamingMethod reports whether the method responds with an event stream.
func StreamingMethod(method string) bool {
	return method == MethodMessageStream || method == MethodTasksResubscribe
}

// MessageSendConfiguration tunes a single message/send or message/stream call.
type MessageSendConfiguration struct {
	AcceptedOutputModes    []string                `json:"acceptedOutputModes,omitempty"`
	HistoryLength          *int                    `json:"historyLength,omitempty"`
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig,omitempty"`
	Blocking               bool                    `json:"blocking,omitempty"`
}

// MessageSendParams are the params of message/send and message/stream.
type MessageSendParams struct {
	Message       Message                   `json:"message"`
	Configuration *MessageSendConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]any            `json:"metadata,omitempty"`
}

// TaskQueryParams are the params of tasks/get.
type TaskQueryParams struct {
	ID            string         `json:"id"`
	HistoryLength *int           `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TaskIDParams are the params of tasks/cancel and tasks/resubscribe.
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskListParams are the params of tasks/list.
type TaskListParams struct {
	ContextID string `json:"contextId,omitempty"`
	PageSize  int    `json:"pageSize,omitempty"`
	PageToken string `json:"pageToken,omitempty"`
}

// TaskList is the result of tasks/list.
type TaskList struct {
	Tasks         []*Task `json:"tasks"`
	TotalSize     int     `json:"totalSize"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// GetPushConfigParams are the params of tasks/pushNotificationConfig/get.
type GetPushConfigParams struct {
	ID                       string `json:"id"`
	PushNotificationConfigID string `json:"pushNotificationConfigId,omitempty"`
}

// DeletePushConfigParams are the params of tasks/pushNotificationConfig/delete.
type DeletePushConfigParams struct {
	ID                       string `json:"id"`
	PushNotificationConfigID string `json:"pushNotificationConfigId"`
}

// SendMessageResult is the polymorphic result of message/send: either a task
// snapshot or a bare agent message.
type SendMessageResult struct {
	Task    *Task
	Message *Message
}

// MarshalJSON writes whichever variant is populated.
func (r SendMessageResult) MarshalJSON() ([]byte, error) {
	if r.Message != nil {
		return json.Marshal(r.Message)
	}
	return json.Marshal(r.Task)
}

// UnmarshalJSON dispatches on the "kind" discriminator.
func (r *SendMessageResult) UnmarshalJSON(raw []byte) error {
	kind, err := readKind(raw)
	if err != nil {
		return err
	}
	switch kind {
	case KindTask:
		var t Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return ErrInvalidRequest("malformed task result").WithCause(err)
		}
		r.Task = &t
	case KindMessage:
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		r.Message = &m
	default:
		return ErrInvalidRequest("unexpected result kind: " + kind)
	}
	return nil
}
