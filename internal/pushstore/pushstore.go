// Package pushstore stores per-task push notification configs.
package pushstore

import (
	"context"

	"github.com/agentry/agentry/pkg/a2a"
)

// Store defines the interface for push-notification config storage.
// Configs are unique per (taskID, configID).
type Store interface {
	// Set upserts a config, assigning an id when absent, and returns the
	// stored config.
	Set(ctx context.Context, taskID string, cfg a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error)

	// List returns all configs registered for the task.
	List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error)

	// Get returns one config by id, or nil if absent.
	Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error)

	// Delete removes one config by id. Deleting an absent config is a no-op.
	Delete(ctx context.Context, taskID, configID string) error

	// Close releases backend resources.
	Close() error
}
