package pushstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/agentry/agentry/pkg/a2a"
)

// FileStore persists each task's config list as a single JSON file under
// <dir>/pushConfigs/<TaskId>.json, atomically rewritten on every change.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed push-config store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	configsDir := filepath.Join(dir, "pushConfigs")
	if err := os.MkdirAll(configsDir, 0755); err != nil {
		return nil, fmt.Errorf("create pushConfigs dir: %w", err)
	}
	return &FileStore{dir: configsDir}, nil
}

func (s *FileStore) path(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}

// read loads the task's config list. A missing file is an empty list.
func (s *FileStore) read(taskID string) ([]*a2a.PushNotificationConfig, error) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, a2a.ErrInternal(fmt.Errorf("read push configs %s: %w", taskID, err))
	}
	var list []*a2a.PushNotificationConfig
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, a2a.ErrInternal(fmt.Errorf("decode push configs %s: %w", taskID, err))
	}
	return list, nil
}

// write rewrites the task's config list atomically. Caller must hold s.mu.
func (s *FileStore) write(taskID string, list []*a2a.PushNotificationConfig) error {
	data, err := json.Marshal(list)
	if err != nil {
		return a2a.ErrInternal(err)
	}
	tmp, err := os.CreateTemp(s.dir, taskID+".json.tmp")
	if err != nil {
		return a2a.ErrInternal(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return a2a.ErrInternal(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return a2a.ErrInternal(err)
	}
	if err := os.Rename(tmpName, s.path(taskID)); err != nil {
		os.Remove(tmpName)
		return a2a.ErrInternal(err)
	}
	return nil
}

// Set upserts a config, assigning an id when absent.
func (s *FileStore) Set(ctx context.Context, taskID string, cfg a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.read(taskID)
	if err != nil {
		return nil, err
	}
	replaced := false
	for i, existing := range list {
		if existing.ID == cfg.ID {
			list[i] = &cfg
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, &cfg)
	}
	if err := s.write(taskID, list); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// List returns all configs registered for the task.
func (s *FileStore) List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.read(taskID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*a2a.PushNotificationConfig{}
	}
	return list, nil
}

// Get returns one config by id, or nil if absent.
func (s *FileStore) Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.read(taskID)
	if err != nil {
		return nil, err
	}
	for _, cfg := range list {
		if cfg.ID == configID {
			return cfg, nil
		}
	}
	return nil, nil
}

// Delete removes one config by id.
func (s *FileStore) Delete(ctx context.Context, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.read(taskID)
	if err != nil {
		return err
	}
	for i, cfg := range list {
		if cfg.ID == configID {
			return s.write(taskID, append(list[:i], list[i+1:]...))
		}
	}
	return nil
}

// Close is a no-op; files are opened per operation.
func (s *FileStore) Close() error {
	return nil
}
