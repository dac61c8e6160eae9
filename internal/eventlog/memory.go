package eventlog

import (
	"context"
	"sync"

	"github.com/agentry/agentry/pkg/a2a"
)

// MemoryLog is an in-memory event log.
type MemoryLog struct {
	mu   sync.Mutex
	logs map[string]*taskLog
}

var _ Log = (*MemoryLog)(nil)

// NewMemoryLog creates an empty in-memory event log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{logs: make(map[string]*taskLog)}
}

func (m *MemoryLog) get(taskID string) *taskLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[taskID]
	if !ok {
		l = newTaskLog()
		m.logs[taskID] = l
	}
	return l
}

// Append adds an event to the task's log.
func (m *MemoryLog) Append(ctx context.Context, taskID string, ev a2a.Event) (uint64, error) {
	l := m.get(taskID)
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
	l.records = append(l.records, rec)
	l.wake()
	return seq, nil
}

// ReadAll returns the task's log as it exists now.
func (m *MemoryLog) ReadAll(ctx context.Context, taskID string) ([]Record, error) {
	l := m.get(taskID)
	batch, _, _ := l.snapshot(0)
	return batch, nil
}

// TailFrom yields records from the given sequence, then live appends.
func (m *MemoryLog) TailFrom(ctx context.Context, taskID string, from uint64) (<-chan Record, error) {
	return tail(ctx, m.get(taskID), from), nil
}

// Close marks the task's log terminal. Idempotent.
func (m *MemoryLog) Close(ctx context.Context, taskID string) error {
	l := m.get(taskID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.wake()
	return nil
}

// IsClosed reports whether the task's log has been closed.
func (m *MemoryLog) IsClosed(ctx context.Context, taskID string) (bool, error) {
	m.mu.Lock()
	l, ok := m.logs[taskID]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed, nil
}

// Release is a no-op for the in-memory backend.
func (m *MemoryLog) Release() error {
	return nil
}
