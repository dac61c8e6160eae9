package manager

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/agentry/agentry/internal/common/logger"
	"github.com/agentry/agentry/internal/eventlog"
	"github.com/agentry/agentry/internal/pushstore"
	"github.com/agentry/agentry/internal/taskstore"
	"github.com/agentry/agentry/pkg/a2a"
)

// handlerFunc adapts plain functions into an AgentHandler.
type handlerFunc struct {
	execute func(ctx context.Context, u *Updater) (*a2a.Message, error)
	cancel  func(ctx context.Context, taskID string) error
}

func (h handlerFunc) Execute(ctx context.Context, u *Updater) (*a2a.Message, error) {
	return h.execute(ctx, u)
}

func (h handlerFunc) Cancel(ctx context.Context, taskID string) error {
	if h.cancel != nil {
		return h.cancel(ctx, taskID)
	}
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	return log
}

func testManager(t *testing.T, h AgentHandler) *Manager {
	t.Helper()
	return New(h, taskstore.NewMemoryStore(), eventlog.NewMemoryLog(), pushstore.NewMemoryStore(), nil, testLogger(t))
}

func userMessage(text string) a2a.Message {
	return a2a.Message{
		Role:  a2a.RoleUser,
		Parts: []a2a.Part{a2a.NewTextPart(text)},
	}
}

func sendText(t *testing.T, m *Manager, text string) *a2a.Task {
	t.Helper()
	result, err := m.SendMessage(context.Background(), a2a.MessageSendParams{Message: userMessage(text)})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if result.Task == nil {
		t.Fatalf("expected task result, got %+v", result)
	}
	return result.Task
}

func collectEvents(t *testing.T, stream *Stream, timeout time.Duration) []a2a.Event {
	t.Helper()
	var events []a2a.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-stream.Events:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("stream did not terminate, got %d events so far", len(events))
		}
	}
}

func TestTransitionMatrix(t *testing.T) {
	cases := []struct {
		from, to a2a.TaskState
		ok       bool
	}{
		{a2a.TaskStateSubmitted, a2a.TaskStateWorking, true},
		{a2a.TaskStateSubmitted, a2a.TaskStateRejected, true},
		{a2a.TaskStateSubmitted, a2a.TaskStateCompleted, true},
		{a2a.TaskStateWorking, a2a.TaskStateWorking, true},
		{a2a.TaskStateWorking, a2a.TaskStateInputRequired, true},
		{a2a.TaskStateWorking, a2a.TaskStateRejected, false},
		{a2a.TaskStateInputRequired, a2a.TaskStateWorking, true},
		{a2a.TaskStateInputRequired, a2a.TaskStateAuthRequired, false},
		{a2a.TaskStateAuthRequired, a2a.TaskStateCanceled, true},
		{a2a.TaskStateCompleted, a2a.TaskStateWorking, false},
		{a2a.TaskStateFailed, a2a.TaskStateCanceled, false},
		{a2a.TaskStateCanceled, a2a.TaskStateCompleted, false},
		{a2a.TaskStateRejected, a2a.TaskStateWorking, false},
	}
	for _, tc := range cases {
		if got := canTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestUpdaterTimestampsStrictlyIncrease(t *testing.T) {
	store := taskstore.NewMemoryStore()
	log := eventlog.NewMemoryLog()
	ctx := context.Background()

	task := &a2a.Task{
		ID:        "ts-task",
		ContextID: "ts-ctx",
		Status:    a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: a2a.FormatTimestamp(time.Now().UTC())},
	}
	if err := store.Save(ctx, task); err != nil {
		t.Fatalf("Save: %v", err)
	}

	u := newUpdater(ctx, task, store, log, nil, testLogger(t))
	steps := []func() error{
		u.StartWork,
		func() error { return u.RequireInput(u.NewAgentMessage("more?")) },
		u.StartWork,
		func() error { return u.Complete(nil) },
	}
	prev := a2a.ParseTimestamp(task.Status.Timestamp)
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		got, err := store.Get(ctx, task.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		ts := a2a.ParseTimestamp(got.Status.Timestamp)
		if !ts.After(prev) {
			t.Fatalf("step %d: timestamp %s not after %s", i, got.Status.Timestamp, a2a.FormatTimestamp(prev))
		}
		prev = ts
	}
}

func TestSendMessageEcho(t *testing.T) {
	m := testManager(t, &EchoHandler{})

	task := sendText(t, m, "hi")

	if task.Status.State != a2a.TaskStateCompleted {
		t.Errorf("state = %s, want completed", task.Status.State)
	}
	if len(task.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(task.History))
	}
	if task.History[0].Role != a2a.RoleUser || task.History[1].Role != a2a.RoleAgent {
		t.Errorf("history roles = %s, %s", task.History[0].Role, task.History[1].Role)
	}
	if got := task.History[1].Text(); got != "You said: hi" {
		t.Errorf("reply = %q", got)
	}
	if len(task.Artifacts) != 0 {
		t.Errorf("artifacts = %d, want 0", len(task.Artifacts))
	}
	if task.ContextID == "" {
		t.Error("context id not assigned")
	}
}

func TestSendMessageStreamDrawing(t *testing.T) {
	m := testManager(t, &EchoHandler{})

	stream, err := m.SendMessageStream(context.Background(), a2a.MessageSendParams{Message: userMessage("draw a cat")})
	if err != nil {
		t.Fatalf("SendMessageStream: %v", err)
	}
	events := collectEvents(t, stream, 5*time.Second)

	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	snapshot, ok := events[0].(*a2a.Task)
	if !ok {
		t.Fatalf("event 0 is %T, want *a2a.Task", events[0])
	}
	if snapshot.Status.State != a2a.TaskStateSubmitted {
		t.Errorf("snapshot state = %s, want submitted", snapshot.Status.State)
	}
	working, ok := events[1].(*a2a.StatusUpdateEvent)
	if !ok || working.Status.State != a2a.TaskStateWorking {
		t.Errorf("event 1 = %+v, want working status update", events[1])
	}
	artifact, ok := events[2].(*a2a.ArtifactUpdateEvent)
	if !ok {
		t.Fatalf("event 2 is %T, want *a2a.ArtifactUpdateEvent", events[2])
	}
	if !artifact.LastChunk || artifact.Artifact.ArtifactID != "echo-drawing" {
		t.Errorf("artifact event = %+v", artifact)
	}
	done, ok := events[3].(*a2a.StatusUpdateEvent)
	if !ok || done.Status.State != a2a.TaskStateCompleted || !done.Final {
		t.Errorf("event 3 = %+v, want final completed status update", events[3])
	}

	final, err := m.GetTask(context.Background(), a2a.TaskQueryParams{ID: stream.TaskID})
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(final.Artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(final.Artifacts))
	}
	if got := final.Artifacts[0].Parts[0].(*a2a.TextPart).Text; !strings.Contains(got, "draw a cat") {
		t.Errorf("artifact text = %q", got)
	}
}

func TestArtifactChunkSemantics(t *testing.T) {
	m := testManager(t, handlerFunc{
		execute: func(ctx context.Context, u *Updater) (*a2a.Message, error) {
			if err := u.StartWork(); err != nil {
				return nil, err
			}
			report := a2a.Artifact{
				ArtifactID: "report",
				Name:       "report.txt",
				Parts:      []a2a.Part{a2a.NewTextPart("draft")},
			}
			if err := u.ReturnArtifact(report, false, false); err != nil {
				return nil, err
			}
			// Same id without append replaces the draft.
			report.Parts = []a2a.Part{a2a.NewTextPart("final ")}
			if err := u.ReturnArtifact(report, false, false); err != nil {
				return nil, err
			}
			chunk := a2a.Artifact{
				ArtifactID: "report",
				Parts:      []a2a.Part{a2a.NewTextPart("words")},
			}
			if err := u.ReturnArtifact(chunk, true, true); err != nil {
				return nil, err
			}
			// Appending to an id never seen before creates the artifact.
			appendix := a2a.Artifact{
				ArtifactID: "appendix",
				Parts:      []a2a.Part{a2a.NewTextPart("footnotes")},
			}
			if err := u.ReturnArtifact(appendix, true, true); err != nil {
				return nil, err
			}
			return nil, u.Complete(nil)
		},
	})

	stream, err := m.SendMessageStream(context.Background(), a2a.MessageSendParams{Message: userMessage("build the report")})
	if err != nil {
		t.Fatalf("SendMessageStream: %v", err)
	}
	events := collectEvents(t, stream, 5*time.Second)

	// snapshot, working, four artifact updates, final completed
	if len(events) != 7 {
		t.Fatalf("got %d events, want 7", len(events))
	}
	flags := []struct{ append, last bool }{
		{false, false}, {false, false}, {true, true}, {true, true},
	}
	for i, want := range flags {
		ev, ok := events[2+i].(*a2a.ArtifactUpdateEvent)
		if !ok {
			t.Fatalf("event %d is %T, want *a2a.ArtifactUpdateEvent", 2+i, events[2+i])
		}
		if ev.Append != want.append || ev.LastChunk != want.last {
			t.Errorf("event %d flags = append %v last %v, want append %v last %v",
				2+i, ev.Append, ev.LastChunk, want.append, want.last)
		}
	}

	final, err := m.GetTask(context.Background(), a2a.TaskQueryParams{ID: stream.TaskID})
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(final.Artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(final.Artifacts))
	}
	report := final.Artifacts[0]
	if report.ArtifactID != "report" || report.Name != "report.txt" {
		t.Errorf("artifact 0 = %s (%s), want report (report.txt)", report.ArtifactID, report.Name)
	}
	var text strings.Builder
	for _, part := range report.Parts {
		text.WriteString(part.(*a2a.TextPart).Text)
	}
	if got := text.String(); got != "final words" {
		t.Errorf("report text = %q, want %q", got, "final words")
	}
	appendix := final.Artifacts[1]
	if appendix.ArtifactID != "appendix" || len(appendix.Parts) != 1 {
		t.Errorf("artifact 1 = %+v, want single-part appendix", appendix)
	}
}

func TestMessageToTerminalTaskRejected(t *testing.T) {
	m := testManager(t, &EchoHandler{})
	task := sendText(t, m, "hi")

	msg := userMessage("again")
	msg.TaskID = task.ID
	_, err := m.SendMessage(context.Background(), a2a.MessageSendParams{Message: msg})
	if got := a2a.CodeOf(err); got != a2a.CodeUnsupportedOperation {
		t.Fatalf("error code = %d (%v), want %d", got, err, a2a.CodeUnsupportedOperation)
	}
}

func TestMultiTurnConversation(t *testing.T) {
	turn := 0
	m := testManager(t, handlerFunc{
		execute: func(ctx context.Context, u *Updater) (*a2a.Message, error) {
			turn++
			if err := u.StartWork(); err != nil {
				return nil, err
			}
			if turn == 1 {
				return nil, u.RequireInput(u.NewAgentMessage("which color?"))
			}
			return nil, u.Complete(u.NewAgentMessage("done: " + u.LastUserText()))
		},
	})

	first := sendText(t, m, "paint the fence")
	if first.Status.State != a2a.TaskStateInputRequired {
		t.Fatalf("state = %s, want input-required", first.Status.State)
	}

	msg := userMessage("green")
	msg.TaskID = first.ID
	result, err := m.SendMessage(context.Background(), a2a.MessageSendParams{Message: msg})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	second := result.Task
	if second.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", second.Status.State)
	}
	if second.ID != first.ID || second.ContextID != first.ContextID {
		t.Errorf("task identity changed across turns")
	}
	// user, prompt, user, reply
	if len(second.History) != 4 {
		t.Errorf("history length = %d, want 4", len(second.History))
	}
}

func TestConcurrentSendRejectedCleanly(t *testing.T) {
	turn := 0
	started := make(chan struct{})
	release := make(chan struct{})
	m := testManager(t, handlerFunc{
		execute: func(ctx context.Context, u *Updater) (*a2a.Message, error) {
			turn++
			if turn == 1 {
				if err := u.StartWork(); err != nil {
					return nil, err
				}
				return nil, u.RequireInput(u.NewAgentMessage("which file?"))
			}
			close(started)
			<-release
			if err := u.StartWork(); err != nil {
				return nil, err
			}
			return nil, u.Complete(u.NewAgentMessage("done"))
		},
	})

	first := sendText(t, m, "open it")
	if first.Status.State != a2a.TaskStateInputRequired {
		t.Fatalf("state = %s, want input-required", first.Status.State)
	}

	// Second turn parks in the handler.
	msg := userMessage("the big one")
	msg.TaskID = first.ID
	stream, err := m.SendMessageStream(context.Background(), a2a.MessageSendParams{Message: msg})
	if err != nil {
		t.Fatalf("SendMessageStream: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	// A send racing the in-flight turn is rejected and must leave no trace.
	dup := userMessage("sneaky")
	dup.TaskID = first.ID
	_, err = m.SendMessage(context.Background(), a2a.MessageSendParams{Message: dup})
	if got := a2a.CodeOf(err); got != a2a.CodeUnsupportedOperation {
		t.Fatalf("error code = %d (%v), want %d", got, err, a2a.CodeUnsupportedOperation)
	}
	busy, err := m.GetTask(context.Background(), a2a.TaskQueryParams{ID: first.ID})
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	for _, h := range busy.History {
		if h.Text() == "sneaky" {
			t.Error("rejected message persisted to history")
		}
	}

	close(release)
	events := collectEvents(t, stream, 5*time.Second)
	for _, ev := range events {
		if msg, ok := ev.(*a2a.Message); ok && msg.Text() == "sneaky" {
			t.Error("rejected message reached the event log")
		}
	}
	final, err := m.GetTask(context.Background(), a2a.TaskQueryParams{ID: first.ID})
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if final.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", final.Status.State)
	}
}

func TestHandlerErrorFailsTask(t *testing.T) {
	m := testManager(t, handlerFunc{
		execute: func(ctx context.Context, u *Updater) (*a2a.Message, error) {
			if err := u.StartWork(); err != nil {
				return nil, err
			}
			return nil, context.DeadlineExceeded
		},
	})

	task := sendText(t, m, "boom")
	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.Status.State)
	}
}

func TestCleanReturnAutoCompletes(t *testing.T) {
	m := testManager(t, handlerFunc{
		execute: func(ctx context.Context, u *Updater) (*a2a.Message, error) {
			return nil, u.StartWork()
		},
	})

	task := sendText(t, m, "quick")
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}
}

func TestMessagingOnlyReply(t *testing.T) {
	m := testManager(t, handlerFunc{
		execute: func(ctx context.Context, u *Updater) (*a2a.Message, error) {
			return u.NewAgentMessage("pong"), nil
		},
	})

	result, err := m.SendMessage(context.Background(), a2a.MessageSendParams{Message: userMessage("ping")})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if result.Task != nil || result.Message == nil {
		t.Fatalf("expected bare message result, got %+v", result)
	}
	if got := result.Message.Text(); got != "pong" {
		t.Errorf("reply = %q", got)
	}

	// The reply completes the task, so the stored snapshot is terminal.
	task, err := m.GetTask(context.Background(), a2a.TaskQueryParams{ID: result.Message.TaskID})
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}

	// The log is closed, so a late subscriber replays and terminates.
	stream, err := m.Resubscribe(context.Background(), result.Message.TaskID)
	if err != nil {
		t.Fatalf("Resubscribe: %v", err)
	}
	events := collectEvents(t, stream, 2*time.Second)
	if len(events) != 3 {
		t.Fatalf("got %d replayed events, want 3", len(events))
	}
	if _, ok := events[1].(*a2a.Message); !ok {
		t.Errorf("event 1 is %T, want *a2a.Message", events[1])
	}
	final, ok := events[2].(*a2a.StatusUpdateEvent)
	if !ok || final.Status.State != a2a.TaskStateCompleted || !final.Final {
		t.Errorf("event 2 = %+v, want final completed status update", events[2])
	}

	// A later send to the completed task is rejected.
	msg := userMessage("ping again")
	msg.TaskID = task.ID
	_, err = m.SendMessage(context.Background(), a2a.MessageSendParams{Message: msg})
	if got := a2a.CodeOf(err); got != a2a.CodeUnsupportedOperation {
		t.Errorf("error code = %d (%v), want %d", got, err, a2a.CodeUnsupportedOperation)
	}
}

func TestCancelMidFlight(t *testing.T) {
	started := make(chan struct{})
	m := testManager(t, handlerFunc{
		execute: func(ctx context.Context, u *Updater) (*a2a.Message, error) {
			if err := u.StartWork(); err != nil {
				return nil, err
			}
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	stream, err := m.SendMessageStream(context.Background(), a2a.MessageSendParams{Message: userMessage("never ends")})
	if err != nil {
		t.Fatalf("SendMessageStream: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	task, err := m.CancelTask(context.Background(), stream.TaskID)
	if err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if task.Status.State != a2a.TaskStateCanceled {
		t.Fatalf("state = %s, want canceled", task.Status.State)
	}

	events := collectEvents(t, stream, 5*time.Second)
	last, ok := events[len(events)-1].(*a2a.StatusUpdateEvent)
	if !ok || last.Status.State != a2a.TaskStateCanceled || !last.Final {
		t.Errorf("last event = %+v, want final canceled status update", events[len(events)-1])
	}

	// A second cancel must report the task as not cancelable.
	_, err = m.CancelTask(context.Background(), stream.TaskID)
	if got := a2a.CodeOf(err); got != a2a.CodeTaskNotCancelable {
		t.Errorf("error code = %d (%v), want %d", got, err, a2a.CodeTaskNotCancelable)
	}
}

func TestCancelUnknownTask(t *testing.T) {
	m := testManager(t, &EchoHandler{})
	_, err := m.CancelTask(context.Background(), "missing")
	if got := a2a.CodeOf(err); got != a2a.CodeTaskNotFound {
		t.Fatalf("error code = %d (%v), want %d", got, err, a2a.CodeTaskNotFound)
	}
}

func TestGetTaskHistoryLength(t *testing.T) {
	m := testManager(t, &EchoHandler{})
	task := sendText(t, m, "hi")

	one := 1
	got, err := m.GetTask(context.Background(), a2a.TaskQueryParams{ID: task.ID, HistoryLength: &one})
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(got.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(got.History))
	}
	if got.History[0].Role != a2a.RoleAgent {
		t.Errorf("kept message role = %s, want agent", got.History[0].Role)
	}

	neg := -1
	_, err = m.GetTask(context.Background(), a2a.TaskQueryParams{ID: task.ID, HistoryLength: &neg})
	if got := a2a.CodeOf(err); got != a2a.CodeInvalidParams {
		t.Fatalf("error code = %d (%v), want %d", got, err, a2a.CodeInvalidParams)
	}

	_, err = m.GetTask(context.Background(), a2a.TaskQueryParams{ID: "missing"})
	if got := a2a.CodeOf(err); got != a2a.CodeTaskNotFound {
		t.Fatalf("error code = %d (%v), want %d", got, err, a2a.CodeTaskNotFound)
	}
}

func TestSendMessageNegativeHistoryLength(t *testing.T) {
	m := testManager(t, &EchoHandler{})
	neg := -1
	_, err := m.SendMessage(context.Background(), a2a.MessageSendParams{
		Message:       userMessage("hi"),
		Configuration: &a2a.MessageSendConfiguration{HistoryLength: &neg},
	})
	if got := a2a.CodeOf(err); got != a2a.CodeInvalidParams {
		t.Fatalf("error code = %d (%v), want %d", got, err, a2a.CodeInvalidParams)
	}
}

func TestListTasksByContext(t *testing.T) {
	m := testManager(t, &EchoHandler{})
	ctx := context.Background()

	msg := userMessage("one")
	msg.ContextID = "shared"
	if _, err := m.SendMessage(ctx, a2a.MessageSendParams{Message: msg}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	msg2 := userMessage("two")
	msg2.ContextID = "shared"
	if _, err := m.SendMessage(ctx, a2a.MessageSendParams{Message: msg2}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	sendText(t, m, "other context")

	list, err := m.ListTasks(ctx, a2a.TaskListParams{ContextID: "shared"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if list.TotalSize != 2 || len(list.Tasks) != 2 {
		t.Fatalf("got total=%d len=%d, want 2/2", list.TotalSize, len(list.Tasks))
	}

	all, err := m.ListTasks(ctx, a2a.TaskListParams{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if all.TotalSize != 3 {
		t.Fatalf("total = %d, want 3", all.TotalSize)
	}
}

func TestResubscribeReplaysFinishedTask(t *testing.T) {
	m := testManager(t, &EchoHandler{})
	task := sendText(t, m, "draw me")

	stream, err := m.Resubscribe(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Resubscribe: %v", err)
	}
	events := collectEvents(t, stream, 2*time.Second)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	if _, ok := events[0].(*a2a.Task); !ok {
		t.Errorf("event 0 is %T, want *a2a.Task", events[0])
	}
	last, ok := events[len(events)-1].(*a2a.StatusUpdateEvent)
	if !ok || !last.Final {
		t.Errorf("last event = %+v, want final status update", events[len(events)-1])
	}

	_, err = m.Resubscribe(context.Background(), "missing")
	if got := a2a.CodeOf(err); got != a2a.CodeTaskNotFound {
		t.Fatalf("error code = %d (%v), want %d", got, err, a2a.CodeTaskNotFound)
	}
}

func TestPushConfigLifecycle(t *testing.T) {
	m := testManager(t, &EchoHandler{})
	ctx := context.Background()
	task := sendText(t, m, "hi")

	stored, err := m.SetPushConfig(ctx, a2a.TaskPushNotificationConfig{
		TaskID:                 task.ID,
		PushNotificationConfig: a2a.PushNotificationConfig{URL: "https://callback.example/hook"},
	})
	if err != nil {
		t.Fatalf("SetPushConfig: %v", err)
	}
	if stored.PushNotificationConfig.ID == "" {
		t.Fatal("config id not assigned")
	}

	got, err := m.GetPushConfig(ctx, a2a.GetPushConfigParams{ID: task.ID})
	if err != nil {
		t.Fatalf("GetPushConfig: %v", err)
	}
	if got.PushNotificationConfig.URL != "https://callback.example/hook" {
		t.Errorf("url = %q", got.PushNotificationConfig.URL)
	}

	list, err := m.ListPushConfigs(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListPushConfigs: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d configs, want 1", len(list))
	}

	if err := m.DeletePushConfig(ctx, a2a.DeletePushConfigParams{
		ID: task.ID, PushNotificationConfigID: stored.PushNotificationConfig.ID,
	}); err != nil {
		t.Fatalf("DeletePushConfig: %v", err)
	}
	list, err = m.ListPushConfigs(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListPushConfigs: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("got %d configs after delete, want 0", len(list))
	}

	_, err = m.SetPushConfig(ctx, a2a.TaskPushNotificationConfig{
		TaskID:                 "missing",
		PushNotificationConfig: a2a.PushNotificationConfig{URL: "https://callback.example/hook"},
	})
	if got := a2a.CodeOf(err); got != a2a.CodeTaskNotFound {
		t.Fatalf("error code = %d (%v), want %d", got, err, a2a.CodeTaskNotFound)
	}
}

func TestPushConfigWithoutStore(t *testing.T) {
	m := New(&EchoHandler{}, taskstore.NewMemoryStore(), eventlog.NewMemoryLog(), nil, nil, testLogger(t))
	task := sendText(t, m, "hi")

	_, err := m.SetPushConfig(context.Background(), a2a.TaskPushNotificationConfig{TaskID: task.ID})
	if got := a2a.CodeOf(err); got != a2a.CodePushNotificationNotSupported {
		t.Fatalf("error code = %d (%v), want %d", got, err, a2a.CodePushNotificationNotSupported)
	}
}

func TestUnsupportedOutputModes(t *testing.T) {
	m := testManager(t, &EchoHandler{})

	_, err := m.SendMessage(context.Background(), a2a.MessageSendParams{
		Message: userMessage("hi"),
		Configuration: &a2a.MessageSendConfiguration{
			AcceptedOutputModes: []string{"image/png"},
		},
	})
	if got := a2a.CodeOf(err); got != a2a.CodeContentTypeNotSupported {
		t.Fatalf("error code = %d (%v), want %d", got, err, a2a.CodeContentTypeNotSupported)
	}

	// Wildcard and overlapping modes are accepted.
	for _, modes := range [][]string{{"*/*"}, {"image/png", "text/plain"}, nil} {
		_, err := m.SendMessage(context.Background(), a2a.MessageSendParams{
			Message:       userMessage("hi"),
			Configuration: &a2a.MessageSendConfiguration{AcceptedOutputModes: modes},
		})
		if err != nil {
			t.Errorf("modes %v rejected: %v", modes, err)
		}
	}
}

func TestSendMessageNoParts(t *testing.T) {
	m := testManager(t, &EchoHandler{})
	_, err := m.SendMessage(context.Background(), a2a.MessageSendParams{Message: a2a.Message{Role: a2a.RoleUser}})
	if got := a2a.CodeOf(err); got != a2a.CodeInvalidParams {
		t.Fatalf("error code = %d (%v), want %d", got, err, a2a.CodeInvalidParams)
	}
}
