package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentry/agentry/pkg/a2a"
)

// SQLiteStore provides SQLite-based task storage.
//
// The full task document is stored as JSON alongside indexed columns for
// id, context and state, which is enough for filtered listing.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates the database tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		context_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'submitted',
		task_json TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_context_id ON tasks(context_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanTask(taskJSON string) (*a2a.Task, error) {
	var task a2a.Task
	if err := json.Unmarshal([]byte(taskJSON), &task); err != nil {
		return nil, a2a.ErrInternal(fmt.Errorf("decode stored task: %w", err))
	}
	return &task, nil
}

// Get retrieves a task by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*a2a.Task, error) {
	var taskJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT task_json FROM tasks WHERE id = ?`, id).Scan(&taskJSON)
	if err == sql.ErrNoRows {
		return nil, a2a.ErrTaskNotFound(id)
	}
	if err != nil {
		return nil, a2a.ErrInternal(err)
	}
	return scanTask(taskJSON)
}

// Save upserts a task.
func (s *SQLiteStore) Save(ctx context.Context, task *a2a.Task) error {
	taskJSON, err := json.Marshal(task)
	if err != nil {
		return a2a.ErrInternal(err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, context_id, state, task_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			context_id = excluded.context_id,
			state = excluded.state,
			task_json = excluded.task_json,
			updated_at = excluded.updated_at
	`, task.ID, task.ContextID, string(task.Status.State), string(taskJSON), now, now)
	if err != nil {
		return a2a.ErrInternal(err)
	}
	return nil
}

// mutate runs a read-modify-write cycle on one task inside a transaction.
func (s *SQLiteStore) mutate(ctx context.Context, id string, fn func(*a2a.Task)) (*a2a.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, a2a.ErrInternal(err)
	}
	defer tx.Rollback()

	var taskJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT task_json FROM tasks WHERE id = ?`, id).Scan(&taskJSON)
	if err == sql.ErrNoRows {
		return nil, a2a.ErrTaskNotFound(id)
	}
	if err != nil {
		return nil, a2a.ErrInternal(err)
	}
	task, err := scanTask(taskJSON)
	if err != nil {
		return nil, err
	}

	fn(task)

	updated, err := json.Marshal(task)
	if err != nil {
		return nil, a2a.ErrInternal(err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET state = ?, task_json = ?, updated_at = ? WHERE id = ?
	`, string(task.Status.State), string(updated), time.Now().UTC(), id)
	if err != nil {
		return nil, a2a.ErrInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, a2a.ErrInternal(err)
	}
	return task, nil
}

// UpdateStatus replaces the task's status.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status a2a.TaskStatus) (*a2a.Task, error) {
	return s.mutate(ctx, id, func(task *a2a.Task) {
		task.Status = status
	})
}

// AppendHistory appends a message to the task's history.
func (s *SQLiteStore) AppendHistory(ctx context.Context, id string, msg *a2a.Message) (*a2a.Task, error) {
	return s.mutate(ctx, id, func(task *a2a.Task) {
		task.History = append(task.History, msg)
	})
}

// List returns a page of tasks matching the filter, ordered by id.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) (*ListResult, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	where := `WHERE id > ?`
	args := []any{filter.PageToken}
	countWhere := ``
	var countArgs []any
	if filter.ContextID != "" {
		where += ` AND context_id = ?`
		args = append(args, filter.ContextID)
		countWhere = `WHERE context_id = ?`
		countArgs = append(countArgs, filter.ContextID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks `+countWhere, countArgs...).Scan(&total); err != nil {
		return nil, a2a.ErrInternal(err)
	}

	args = append(args, pageSize+1)
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_json FROM tasks `+where+` ORDER BY id LIMIT ?`, args...)
	if err != nil {
		return nil, a2a.ErrInternal(err)
	}
	defer rows.Close()

	var tasks []*a2a.Task
	for rows.Next() {
		var taskJSON string
		if err := rows.Scan(&taskJSON); err != nil {
			return nil, a2a.ErrInternal(err)
		}
		task, err := scanTask(taskJSON)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, a2a.ErrInternal(err)
	}

	result := &ListResult{TotalSize: total}
	if len(tasks) > pageSize {
		tasks = tasks[:pageSize]
		result.NextPageToken = tasks[len(tasks)-1].ID
	}
	result.Tasks = tasks
	return result, nil
}
