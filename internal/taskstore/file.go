package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agentry/agentry/pkg/a2a"
)

// FileStore persists each task as a single JSON file under
// <dir>/tasks/<TaskId>.json. Writes are atomic (temp + rename) and listing
// walks the directory, so no in-memory index needs rebuilding on startup.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// Ensure FileStore implements Store interface
var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed task store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	tasksDir := filepath.Join(dir, "tasks")
	if err := os.MkdirAll(tasksDir, 0755); err != nil {
		return nil, fmt.Errorf("create tasks dir: %w", err)
	}
	return &FileStore{dir: tasksDir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// read loads a task file. Caller may hold s.mu for read-modify-write cycles.
func (s *FileStore) read(id string) (*a2a.Task, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, a2a.ErrTaskNotFound(id)
		}
		return nil, a2a.ErrInternal(fmt.Errorf("read task %s: %w", id, err))
	}
	var task a2a.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, a2a.ErrInternal(fmt.Errorf("decode task %s: %w", id, err))
	}
	return &task, nil
}

// write persists a task atomically. Caller must hold s.mu.
func (s *FileStore) write(task *a2a.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return a2a.ErrInternal(fmt.Errorf("encode task %s: %w", task.ID, err))
	}
	tmp, err := os.CreateTemp(s.dir, task.ID+".json.tmp")
	if err != nil {
		return a2a.ErrInternal(fmt.Errorf("create temp for task %s: %w", task.ID, err))
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return a2a.ErrInternal(fmt.Errorf("write task %s: %w", task.ID, err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return a2a.ErrInternal(fmt.Errorf("sync task %s: %w", task.ID, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return a2a.ErrInternal(err)
	}
	if err := os.Rename(tmpName, s.path(task.ID)); err != nil {
		os.Remove(tmpName)
		return a2a.ErrInternal(fmt.Errorf("rename task %s: %w", task.ID, err))
	}
	return nil
}

// Get retrieves a task by id.
func (s *FileStore) Get(ctx context.Context, id string) (*a2a.Task, error) {
	return s.read(id)
}

// Save upserts a task.
func (s *FileStore) Save(ctx context.Context, task *a2a.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(task)
}

// UpdateStatus replaces the task's status.
func (s *FileStore) UpdateStatus(ctx context.Context, id string, status a2a.TaskStatus) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, err := s.read(id)
	if err != nil {
		return nil, err
	}
	task.Status = status
	if err := s.write(task); err != nil {
		return nil, err
	}
	return task, nil
}

// AppendHistory appends a message to the task's history.
func (s *FileStore) AppendHistory(ctx context.Context, id string, msg *a2a.Message) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, err := s.read(id)
	if err != nil {
		return nil, err
	}
	task.History = append(task.History, msg)
	if err := s.write(task); err != nil {
		return nil, err
	}
	return task, nil
}

// List walks the tasks directory and returns a page of matching tasks,
// ordered by id.
func (s *FileStore) List(ctx context.Context, filter Filter) (*ListResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, a2a.ErrInternal(fmt.Errorf("list tasks dir: %w", err))
	}

	var matched []*a2a.Task
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		task, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			// Concurrent rewrite may remove the file between walk and read.
			if a2a.CodeOf(err) == a2a.CodeTaskNotFound {
				continue
			}
			return nil, err
		}
		if filter.ContextID != "" && task.ContextID != filter.ContextID {
			continue
		}
		matched = append(matched, task)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginate(matched, filter), nil
}

// Close is a no-op; files are opened per operation.
func (s *FileStore) Close() error {
	return nil
}
