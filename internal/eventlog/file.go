package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentry/agentry/pkg/a2a"
)

// FileLog is a file-backed event log. Each task's log is an append-only
// JSONL file under <dir>/events/<TaskId>.log with one record per line,
// fsynced after every append. A zero-byte <TaskId>.closed sentinel marks a
// closed log; it is created atomically only after the final record is
// durable, so recovery never considers a closed log still open.
type FileLog struct {
	dir  string
	mu   sync.Mutex
	logs map[string]*fileTaskLog
}

type fileTaskLog struct {
	taskLog
	f *os.File
}

var _ Log = (*FileLog)(nil)

// NewFileLog creates a file-backed event log rooted at dir.
func NewFileLog(dir string) (*FileLog, error) {
	eventsDir := filepath.Join(dir, "events")
	if err := os.MkdirAll(eventsDir, 0755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	return &FileLog{dir: eventsDir, logs: make(map[string]*fileTaskLog)}, nil
}

func (f *FileLog) logPath(taskID string) string {
	return filepath.Join(f.dir, taskID+".log")
}

func (f *FileLog) sentinelPath(taskID string) string {
	return filepath.Join(f.dir, taskID+".closed")
}

// load opens the task's log file, replaying existing records and the closed
// sentinel. The loaded state is cached for the life of the process.
func (f *FileLog) load(taskID string) (*fileTaskLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.logs[taskID]; ok {
		return l, nil
	}

	l := &fileTaskLog{taskLog: taskLog{notify: make(chan struct{})}}

	file, err := os.OpenFile(f.logPath(taskID), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			file.Close()
			return nil, fmt.Errorf("corrupt event log %s at seq %d: %w", taskID, len(l.records), err)
		}
		l.records = append(l.records, rec)
	}
	if err := scanner.Err(); err != nil {
		file.Close()
		return nil, fmt.Errorf("scan event log %s: %w", taskID, err)
	}

	if _, err := os.Stat(f.sentinelPath(taskID)); err == nil {
		l.closed = true
	} else if !os.IsNotExist(err) {
		file.Close()
		return nil, fmt.Errorf("stat close sentinel %s: %w", taskID, err)
	}

	l.f = file
	f.logs[taskID] = l
	return l, nil
}

// Append adds an event to the task's log, flushing before returning.
func (f *FileLog) Append(ctx context.Context, taskID string, ev a2a.Event) (uint64, error) {
	l, err := f.load(taskID)
	if err != nil {
		return 0, a2a.ErrInternal(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, a2a.ErrUnsupportedOperation("append to closed event log: " + taskID)
	}

	seq := uint64(len(l.records))
	rec, err := NewRecord(seq, ev)
	if err != nil {
		return 0, a2a.ErrInternal(err)
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return 0, a2a.ErrInternal(err)
	}
	line = append(line, '\n')
	if _, err := l.f.Write(line); err != nil {
		return 0, a2a.ErrInternal(fmt.Errorf("append event log %s: %w", taskID, err))
	}
	if err := l.f.Sync(); err != nil {
		return 0, a2a.ErrInternal(fmt.Errorf("sync event log %s: %w", taskID, err))
	}

	l.records = append(l.records, rec)
	l.wake()
	return seq, nil
}

// ReadAll returns the task's log as it exists now.
func (f *FileLog) ReadAll(ctx context.Context, taskID string) ([]Record, error) {
	l, err := f.load(taskID)
	if err != nil {
		return nil, a2a.ErrInternal(err)
	}
	batch, _, _ := l.snapshot(0)
	return batch, nil
}

// TailFrom yields records from the given sequence, then live appends.
func (f *FileLog) TailFrom(ctx context.Context, taskID string, from uint64) (<-chan Record, error) {
	l, err := f.load(taskID)
	if err != nil {
		return nil, a2a.ErrInternal(err)
	}
	return tail(ctx, &l.taskLog, from), nil
}

// Close marks the task's log terminal by creating the sentinel. Idempotent.
func (f *FileLog) Close(ctx context.Context, taskID string) error {
	l, err := f.load(taskID)
	if err != nil {
		return a2a.ErrInternal(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}

	// Appends are synced individually, so the final record is already
	// durable when the sentinel appears.
	tmp, err := os.CreateTemp(f.dir, taskID+".closed.tmp")
	if err != nil {
		return a2a.ErrInternal(fmt.Errorf("create close sentinel %s: %w", taskID, err))
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return a2a.ErrInternal(err)
	}
	if err := os.Rename(tmpName, f.sentinelPath(taskID)); err != nil {
		os.Remove(tmpName)
		return a2a.ErrInternal(fmt.Errorf("rename close sentinel %s: %w", taskID, err))
	}

	l.closed = true
	l.wake()
	return nil
}

// IsClosed reports whether the task's log has been closed.
func (f *FileLog) IsClosed(ctx context.Context, taskID string) (bool, error) {
	l, err := f.load(taskID)
	if err != nil {
		return false, a2a.ErrInternal(err)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed, nil
}

// Release closes all cached file handles.
func (f *FileLog) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for id, l := range f.logs {
		l.mu.Lock()
		if err := l.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		l.mu.Unlock()
		delete(f.logs, id)
	}
	return firstErr
}
