// Package taskstore provides durable storage for tasks, their history and
// artifacts, with filtered listing by context.
package taskstore

import (
	"context"

	"github.com/agentry/agentry/pkg/a2a"
)

// DefaultPageSize bounds listing when the caller does not specify one.
const DefaultPageSize = 50

// Filter narrows and paginates a List call. PageToken is opaque to callers;
// it is the id of the last task on the previous page.
type Filter struct {
	ContextID string
	PageSize  int
	PageToken string
}

// ListResult is one page of tasks. Tasks are ordered by id so pagination
// is stable across calls.
type ListResult struct {
	Tasks         []*a2a.Task
	TotalSize     int
	NextPageToken string
}

// Store defines the interface for task storage operations.
type Store interface {
	// Get retrieves a task by id, failing with TaskNotFound if absent.
	Get(ctx context.Context, id string) (*a2a.Task, error)

	// Save upserts a task.
	Save(ctx context.Context, task *a2a.Task) error

	// UpdateStatus replaces the task's status, failing with TaskNotFound.
	UpdateStatus(ctx context.Context, id string, status a2a.TaskStatus) (*a2a.Task, error)

	// AppendHistory appends a message to the task's history, failing with
	// TaskNotFound.
	AppendHistory(ctx context.Context, id string, msg *a2a.Message) (*a2a.Task, error)

	// List returns a page of tasks matching the filter. All shipped
	// backends support enumeration.
	List(ctx context.Context, filter Filter) (*ListResult, error)

	// Close releases backend resources.
	Close() error
}

// paginate applies page-token and page-size bounds to an id-sorted slice.
func paginate(tasks []*a2a.Task, filter Filter) *ListResult {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	start := 0
	if filter.PageToken != "" {
		for i, task := range tasks {
			if task.ID > filter.PageToken {
				start = i
				break
			}
			start = i + 1
		}
	}

	result := &ListResult{TotalSize: len(tasks)}
	end := start + pageSize
	if end > len(tasks) {
		end = len(tasks)
	}
	result.Tasks = tasks[start:end]
	if end < len(tasks) {
		result.NextPageToken = tasks[end-1].ID
	}
	return result
}
