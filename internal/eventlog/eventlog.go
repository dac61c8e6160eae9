// Package eventlog implements the per-task append-only event log that
// drives live subscribers and survives restarts.
package eventlog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/agentry/agentry/pkg/a2a"
)

// Record is a single persisted log entry. Seq is dense and 0-based per task.
type Record struct {
	Seq       uint64          `json:"seq"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"ts"`
}

// NewRecord serializes an event into a record with the given sequence number.
func NewRecord(seq uint64, ev a2a.Event) (Record, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Seq:       seq,
		Kind:      ev.EventKind(),
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Event decodes the record payload back into its event variant.
func (r Record) Event() (a2a.Event, error) {
	return a2a.UnmarshalEvent(r.Payload)
}

// Log is the per-task append-only event log.
//
// Appends are serialized per task and assign dense sequence numbers starting
// at 0. Tailers are pull-based: the log itself is the only buffer, so a slow
// consumer never blocks the producer or other consumers.
type Log interface {
	// Append adds an event to the task's log and returns its sequence
	// number. Appending to a closed log fails with UnsupportedOperation.
	Append(ctx context.Context, taskID string, ev a2a.Event) (uint64, error)

	// ReadAll returns the log as it exists at call time, ordered by seq.
	ReadAll(ctx context.Context, taskID string) ([]Record, error)

	// TailFrom yields existing records starting at from, then blocks for
	// future appends. The channel is closed when the log closes or ctx is
	// cancelled. Multiple concurrent tailers are allowed.
	TailFrom(ctx context.Context, taskID string, from uint64) (<-chan Record, error)

	// Close marks the log terminal. Open tailers drain outstanding records
	// and complete. Idempotent.
	Close(ctx context.Context, taskID string) error

	// IsClosed reports whether the task's log has been closed.
	IsClosed(ctx context.Context, taskID string) (bool, error)

	// Release frees process-level resources (open file handles). It does
	// not close any task log.
	Release() error
}

// taskLog is the in-memory spine shared by both backends: the record slice,
// the closed flag and a notify channel that is closed and replaced on every
// append or close to wake all waiting tailers.
type taskLog struct {
	mu      sync.RWMutex
	records []Record
	closed  bool
	notify  chan struct{}
}

func newTaskLog() *taskLog {
	return &taskLog{notify: make(chan struct{})}
}

// wake closes the current notify channel and installs a fresh one.
// Caller must hold l.mu.
func (l *taskLog) wake() {
	ch := l.notify
	l.notify = make(chan struct{})
	close(ch)
}

// snapshot returns the records from seq, the closed flag and the notify
// channel to wait on, all consistent with each other.
func (l *taskLog) snapshot(from uint64) ([]Record, bool, <-chan struct{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var batch []Record
	if int(from) < len(l.records) {
		batch = make([]Record, len(l.records)-int(from))
		copy(batch, l.records[from:])
	}
	return batch, l.closed, l.notify
}

// tail runs the cursor loop for one consumer: deliver buffered records,
// then wait on the notifier, until the log closes or ctx is cancelled.
func tail(ctx context.Context, l *taskLog, from uint64) <-chan Record {
	ch := make(chan Record)
	go func() {
		defer close(ch)
		cursor := from
		for {
			batch, closed, notify := l.snapshot(cursor)
			for _, rec := range batch {
				select {
				case ch <- rec:
				case <-ctx.Done():
					return
				}
				cursor = rec.Seq + 1
			}
			if closed {
				return
			}
			select {
			case <-notify:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
