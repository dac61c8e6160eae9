// Package bus provides the event bus that mirrors task lifecycle changes
// to in-process and external consumers.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published by the task manager.
const (
	EventTypeTaskStatus   = "task.status"
	EventTypeTaskArtifact = "task.artifact"
)

// TaskStatusSubject returns the subject carrying status transitions of one task.
func TaskStatusSubject(taskID string) string {
	return "a2a.task." + taskID + ".status"
}

// TaskStatusWildcard matches status transitions of every task.
const TaskStatusWildcard = "a2a.task.*.status"

// TaskArtifactSubject returns the subject carrying artifact updates of one task.
func TaskArtifactSubject(taskID string) string {
	return "a2a.task." + taskID + ".artifact"
}

// Event represents a message on the event bus.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewEvent creates a new event with a UUID and current timestamp.
func NewEvent(eventType, source string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus interface for event bus operations.
type EventBus interface {
	// Publish sends an event to a subject.
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe creates a subscription to a subject pattern.
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// QueueSubscribe creates a queue subscription for load balancing.
	QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error)

	// Request sends a request and waits for a response (with timeout).
	Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error)

	// Close closes the connection.
	Close()

	// IsConnected returns connection status.
	IsConnected() bool
}
