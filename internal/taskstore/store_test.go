package taskstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentry/agentry/pkg/a2a"
)

func createTestTask(id, contextID string) *a2a.Task {
	return &a2a.Task{
		ID:        id,
		ContextID: contextID,
		Status: a2a.TaskStatus{
			State:     a2a.TaskStateSubmitted,
			Timestamp: a2a.FormatTimestamp(time.Now()),
		},
		History: []*a2a.Message{
			{MessageID: "m-" + id, Role: a2a.RoleUser, Parts: []a2a.Part{a2a.NewTextPart("hi")}},
		},
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestSaveAndGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := createTestTask("t1", "c1")
			if err := store.Save(ctx, task); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := store.Get(ctx, "t1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.ID != "t1" || got.ContextID != "c1" {
				t.Errorf("got %s/%s", got.ID, got.ContextID)
			}
			if len(got.History) != 1 || got.History[0].Text() != "hi" {
				t.Errorf("history not preserved: %+v", got.History)
			}

			// Upsert replaces.
			task.Status.State = a2a.TaskStateWorking
			if err := store.Save(ctx, task); err != nil {
				t.Fatalf("Save (upsert): %v", err)
			}
			got, _ = store.Get(ctx, "t1")
			if got.Status.State != a2a.TaskStateWorking {
				t.Errorf("upsert not applied: %s", got.Status.State)
			}
		})
	}
}

func TestGetNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "missing")
			if a2a.CodeOf(err) != a2a.CodeTaskNotFound {
				t.Errorf("got %v, want task not found", err)
			}
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, createTestTask("t1", "c1")); err != nil {
				t.Fatalf("Save: %v", err)
			}

			status := a2a.TaskStatus{State: a2a.TaskStateCompleted, Timestamp: a2a.FormatTimestamp(time.Now())}
			got, err := store.UpdateStatus(ctx, "t1", status)
			if err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
			if got.Status.State != a2a.TaskStateCompleted {
				t.Errorf("status not updated: %s", got.Status.State)
			}

			_, err = store.UpdateStatus(ctx, "missing", status)
			if a2a.CodeOf(err) != a2a.CodeTaskNotFound {
				t.Errorf("missing task: got %v", err)
			}
		})
	}
}

func TestAppendHistoryIsMonotonic(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, createTestTask("t1", "c1")); err != nil {
				t.Fatalf("Save: %v", err)
			}

			prev := 1
			for i := 0; i < 3; i++ {
				msg := &a2a.Message{
					MessageID: fmt.Sprintf("m%d", i),
					Role:      a2a.RoleAgent,
					Parts:     []a2a.Part{a2a.NewTextPart("reply")},
				}
				got, err := store.AppendHistory(ctx, "t1", msg)
				if err != nil {
					t.Fatalf("AppendHistory %d: %v", i, err)
				}
				if len(got.History) <= prev-1 {
					t.Errorf("history shrank: %d -> %d", prev, len(got.History))
				}
				prev = len(got.History)
			}
			if prev != 4 {
				t.Errorf("got %d messages, want 4", prev)
			}

			_, err := store.AppendHistory(ctx, "missing", &a2a.Message{MessageID: "x"})
			if a2a.CodeOf(err) != a2a.CodeTaskNotFound {
				t.Errorf("missing task: got %v", err)
			}
		})
	}
}

func TestListFilterAndPagination(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				contextID := "alpha"
				if i >= 3 {
					contextID = "beta"
				}
				task := createTestTask(fmt.Sprintf("t%d", i), contextID)
				if err := store.Save(ctx, task); err != nil {
					t.Fatalf("Save %d: %v", i, err)
				}
			}

			all, err := store.List(ctx, Filter{})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if all.TotalSize != 5 || len(all.Tasks) != 5 {
				t.Errorf("all: total=%d page=%d", all.TotalSize, len(all.Tasks))
			}

			alpha, err := store.List(ctx, Filter{ContextID: "alpha"})
			if err != nil {
				t.Fatalf("List alpha: %v", err)
			}
			if alpha.TotalSize != 3 || len(alpha.Tasks) != 3 {
				t.Errorf("alpha: total=%d page=%d", alpha.TotalSize, len(alpha.Tasks))
			}

			// Page through with size 2: expect 2 + 2 + 1.
			var seen []string
			token := ""
			for {
				page, err := store.List(ctx, Filter{PageSize: 2, PageToken: token})
				if err != nil {
					t.Fatalf("List page: %v", err)
				}
				for _, task := range page.Tasks {
					seen = append(seen, task.ID)
				}
				if page.NextPageToken == "" {
					break
				}
				token = page.NextPageToken
			}
			if len(seen) != 5 {
				t.Fatalf("paged through %d tasks, want 5: %v", len(seen), seen)
			}
			for i := 1; i < len(seen); i++ {
				if seen[i-1] >= seen[i] {
					t.Errorf("page order broken: %v", seen)
				}
			}
		})
	}
}

func TestRestartRecovery(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileStore(dir)
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		seedRecoveryTasks(t, store)
		store.Close()

		store2, err := NewFileStore(dir)
		if err != nil {
			t.Fatalf("NewFileStore (restart): %v", err)
		}
		verifyRecoveredTasks(t, store2)
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tasks.db")
		store, err := NewSQLiteStore(path)
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		seedRecoveryTasks(t, store)
		store.Close()

		store2, err := NewSQLiteStore(path)
		if err != nil {
			t.Fatalf("NewSQLiteStore (restart): %v", err)
		}
		defer store2.Close()
		verifyRecoveredTasks(t, store2)
	})
}

func seedRecoveryTasks(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	for i, contextID := range []string{"alpha", "alpha", "beta"} {
		task := createTestTask(fmt.Sprintf("t%d", i), contextID)
		task.Artifacts = []*a2a.Artifact{
			{ArtifactID: fmt.Sprintf("a%d", i), Parts: []a2a.Part{a2a.NewTextPart("out")}},
		}
		if err := store.Save(ctx, task); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
}

func verifyRecoveredTasks(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	all, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if all.TotalSize != 3 {
		t.Fatalf("got %d tasks after restart, want 3", all.TotalSize)
	}

	alpha, err := store.List(ctx, Filter{ContextID: "alpha"})
	if err != nil {
		t.Fatalf("List alpha: %v", err)
	}
	if len(alpha.Tasks) != 2 {
		t.Errorf("alpha filter: got %d, want 2", len(alpha.Tasks))
	}

	task, err := store.Get(ctx, "t0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(task.History) != 1 || task.History[0].Text() != "hi" {
		t.Errorf("history lost across restart: %+v", task.History)
	}
	if len(task.Artifacts) != 1 || task.Artifacts[0].ArtifactID != "a0" {
		t.Errorf("artifacts lost across restart: %+v", task.Artifacts)
	}
}

func TestClonedReadsDoNotAliasStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Save(ctx, createTestTask("t1", "c1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, _ := store.Get(ctx, "t1")
	got.History = append(got.History, &a2a.Message{MessageID: "rogue"})
	got.Status.State = a2a.TaskStateFailed

	fresh, _ := store.Get(ctx, "t1")
	if len(fresh.History) != 1 {
		t.Errorf("store history mutated through returned copy")
	}
	if fresh.Status.State != a2a.TaskStateSubmitted {
		t.Errorf("store status mutated through returned copy")
	}
}
