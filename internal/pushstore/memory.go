package pushstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/agentry/agentry/pkg/a2a"
)

// MemoryStore is an in-memory push-config store.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string][]*a2a.PushNotificationConfig
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory push-config store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string][]*a2a.PushNotificationConfig)}
}

// Set upserts a config, assigning an id when absent.
func (s *MemoryStore) Set(ctx context.Context, taskID string, cfg a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.configs[taskID]
	for i, existing := range list {
		if existing.ID == cfg.ID {
			list[i] = &cfg
			return &cfg, nil
		}
	}
	s.configs[taskID] = append(list, &cfg)
	return &cfg, nil
}

// List returns all configs registered for the task.
func (s *MemoryStore) List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.configs[taskID]
	out := make([]*a2a.PushNotificationConfig, len(list))
	for i, cfg := range list {
		c := *cfg
		out[i] = &c
	}
	return out, nil
}

// Get returns one config by id, or nil if absent.
func (s *MemoryStore) Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cfg := range s.configs[taskID] {
		if cfg.ID == configID {
			c := *cfg
			return &c, nil
		}
	}
	return nil, nil
}

// Delete removes one config by id.
func (s *MemoryStore) Delete(ctx context.Context, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.configs[taskID]
	for i, cfg := range list {
		if cfg.ID == configID {
			s.configs[taskID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error {
	return nil
}
