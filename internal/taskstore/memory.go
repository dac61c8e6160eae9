package taskstore

import (
	"context"
	"sort"
	"sync"

	"github.com/agentry/agentry/pkg/a2a"
)

// MemoryStore provides in-memory task storage.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*a2a.Task)}
}

// Get retrieves a task by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, a2a.ErrTaskNotFound(id)
	}
	return task.Clone(), nil
}

// Save upserts a task.
func (s *MemoryStore) Save(ctx context.Context, task *a2a.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task.Clone()
	return nil
}

// UpdateStatus replaces the task's status.
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status a2a.TaskStatus) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, a2a.ErrTaskNotFound(id)
	}
	task.Status = status
	return task.Clone(), nil
}

// AppendHistory appends a message to the task's history.
func (s *MemoryStore) AppendHistory(ctx context.Context, id string, msg *a2a.Message) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, a2a.ErrTaskNotFound(id)
	}
	task.History = append(task.History, msg)
	return task.Clone(), nil
}

// List returns a page of tasks matching the filter, ordered by id.
func (s *MemoryStore) List(ctx context.Context, filter Filter) (*ListResult, error) {
	s.mu.RLock()
	matched := make([]*a2a.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if filter.ContextID != "" && task.ContextID != filter.ContextID {
			continue
		}
		matched = append(matched, task.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginate(matched, filter), nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error {
	return nil
}
