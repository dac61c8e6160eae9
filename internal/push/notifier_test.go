package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentry/agentry/internal/common/config"
	"github.com/agentry/agentry/internal/common/logger"
	"github.com/agentry/agentry/internal/events/bus"
	"github.com/agentry/agentry/internal/pushstore"
	"github.com/agentry/agentry/internal/taskstore"
	"github.com/agentry/agentry/pkg/a2a"
)

type fixture struct {
	bus     *bus.MemoryEventBus
	store   taskstore.Store
	configs pushstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	f := &fixture{
		bus:     bus.NewMemoryEventBus(log),
		store:   taskstore.NewMemoryStore(),
		configs: pushstore.NewMemoryStore(),
	}
	n, err := NewNotifier(config.PushConfig{Enabled: true, TimeoutSeconds: 5, MaxRetries: 2}, f.bus, f.store, f.configs, log)
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	t.Cleanup(func() {
		n.Close()
		f.bus.Close()
	})
	return f
}

func (f *fixture) seedTask(t *testing.T, id string) {
	t.Helper()
	task := &a2a.Task{
		ID:        id,
		ContextID: "ctx-" + id,
		Status: a2a.TaskStatus{
			State:     a2a.TaskStateCompleted,
			Timestamp: a2a.FormatTimestamp(time.Now().UTC()),
		},
	}
	if err := f.store.Save(context.Background(), task); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func (f *fixture) publishStatus(t *testing.T, id string) {
	t.Helper()
	ev := bus.NewEvent(bus.EventTypeTaskStatus, "manager", map[string]any{
		"task_id": id,
		"state":   "completed",
		"final":   true,
	})
	if err := f.bus.Publish(context.Background(), bus.TaskStatusSubject(id), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestWebhookDeliversTaskSnapshot(t *testing.T) {
	f := newFixture(t)
	f.seedTask(t, "t1")

	received := make(chan *http.Request, 1)
	var body a2a.Task
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		received <- r
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, err := f.configs.Set(context.Background(), "t1", a2a.PushNotificationConfig{URL: srv.URL, Token: "secret"})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	f.publishStatus(t, "t1")

	select {
	case req := <-received:
		if got := req.Header.Get(TokenHeader); got != "secret" {
			t.Errorf("token header = %q, want secret", got)
		}
		if got := req.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("webhook not delivered")
	}
	if body.ID != "t1" || body.Status.State != a2a.TaskStateCompleted {
		t.Errorf("payload = %+v", body)
	}
}

func TestWebhookRetriesOnServerError(t *testing.T) {
	f := newFixture(t)
	f.seedTask(t, "t1")

	var calls atomic.Int32
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		close(done)
	}))
	defer srv.Close()

	if _, err := f.configs.Set(context.Background(), "t1", a2a.PushNotificationConfig{URL: srv.URL}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	f.publishStatus(t, "t1")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("delivery not retried to success, calls=%d", calls.Load())
	}
}

func TestNoConfigsNoRequests(t *testing.T) {
	f := newFixture(t)
	f.seedTask(t, "t1")

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	// Config registered for a different task only.
	f.seedTask(t, "t2")
	if _, err := f.configs.Set(context.Background(), "t2", a2a.PushNotificationConfig{URL: srv.URL}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	f.publishStatus(t, "t1")
	time.Sleep(200 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("got %d requests, want 0", got)
	}
}
