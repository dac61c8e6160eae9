package manager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentry/agentry/internal/common/logger"
	"github.com/agentry/agentry/internal/eventlog"
	"github.com/agentry/agentry/internal/events/bus"
	"github.com/agentry/agentry/internal/taskstore"
	"github.com/agentry/agentry/pkg/a2a"
)

// allowedTransitions is the task state machine. Terminal states have no
// outgoing edges.
var allowedTransitions = map[a2a.TaskState][]a2a.TaskState{
	a2a.TaskStateSubmitted: {
		a2a.TaskStateSubmitted, a2a.TaskStateWorking, a2a.TaskStateInputRequired,
		a2a.TaskStateAuthRequired, a2a.TaskStateCompleted, a2a.TaskStateFailed,
		a2a.TaskStateCanceled, a2a.TaskStateRejected,
	},
	a2a.TaskStateWorking: {
		a2a.TaskStateWorking, a2a.TaskStateInputRequired, a2a.TaskStateAuthRequired,
		a2a.TaskStateCompleted, a2a.TaskStateFailed, a2a.TaskStateCanceled,
	},
	a2a.TaskStateInputRequired: {
		a2a.TaskStateWorking, a2a.TaskStateCompleted, a2a.TaskStateFailed, a2a.TaskStateCanceled,
	},
	a2a.TaskStateAuthRequired: {
		a2a.TaskStateWorking, a2a.TaskStateCompleted, a2a.TaskStateFailed, a2a.TaskStateCanceled,
	},
}

func canTransition(from, to a2a.TaskState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Updater is the handler-facing helper that serializes a task's state
// machine. It is the single producer for the task's event log: every
// operation emits exactly one event and one store mutation.
type Updater struct {
	taskID    string
	contextID string

	store  taskstore.Store
	log    eventlog.Log
	bus    bus.EventBus
	logger *logger.Logger

	mu     sync.Mutex
	state  a2a.TaskState
	lastTS time.Time
	ctx    context.Context
}

// newUpdater binds an updater to an existing task, resuming the state
// machine from the stored snapshot.
func newUpdater(ctx context.Context, task *a2a.Task, store taskstore.Store, log eventlog.Log, eventBus bus.EventBus, lg *logger.Logger) *Updater {
	return &Updater{
		taskID:    task.ID,
		contextID: task.ContextID,
		store:     store,
		log:       log,
		bus:       eventBus,
		logger:    lg.WithTaskID(task.ID),
		state:     task.Status.State,
		lastTS:    a2a.ParseTimestamp(task.Status.Timestamp),
		ctx:       ctx,
	}
}

// TaskID returns the bound task's id.
func (u *Updater) TaskID() string { return u.taskID }

// ContextID returns the bound task's context id.
func (u *Updater) ContextID() string { return u.contextID }

// Context returns the handler context; it is cancelled when the task is
// cancelled.
func (u *Updater) Context() context.Context { return u.ctx }

// State returns the last state this updater transitioned to.
func (u *Updater) State() a2a.TaskState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Terminal reports whether the task has reached a terminal state.
func (u *Updater) Terminal() bool {
	return u.State().Terminal()
}

// NewAgentMessage builds an agent text message bound to this task.
func (u *Updater) NewAgentMessage(text string) *a2a.Message {
	return &a2a.Message{
		MessageID: uuid.New().String(),
		Role:      a2a.RoleAgent,
		Parts:     []a2a.Part{a2a.NewTextPart(text)},
		TaskID:    u.taskID,
		ContextID: u.contextID,
	}
}

// LastUserText returns the text of the most recent user message in the
// task's history, or "" when there is none.
func (u *Updater) LastUserText() string {
	task, err := u.store.Get(u.ctx, u.taskID)
	if err != nil {
		return ""
	}
	for i := len(task.History) - 1; i >= 0; i-- {
		if task.History[i].Role == a2a.RoleUser {
			return task.History[i].Text()
		}
	}
	return ""
}

// nextTimestamp clamps wall clock time so status timestamps are strictly
// increasing per task. Caller must hold u.mu.
func (u *Updater) nextTimestamp() time.Time {
	now := time.Now().UTC()
	if floor := u.lastTS.Add(time.Millisecond); now.Before(floor) {
		now = floor
	}
	u.lastTS = now
	return now
}

// transition applies one state change: store mutation, event append, log
// close on final, bus mirror.
func (u *Updater) transition(to a2a.TaskState, msg *a2a.Message) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !canTransition(u.state, to) {
		return a2a.ErrUnsupportedOperation(
			"transition " + string(u.state) + " -> " + string(to) + " for task " + u.taskID)
	}

	status := a2a.TaskStatus{
		State:     to,
		Message:   msg,
		Timestamp: a2a.FormatTimestamp(u.nextTimestamp()),
	}

	task, err := u.store.Get(u.ctx, u.taskID)
	if err != nil {
		return err
	}
	task.Status = status
	if msg != nil {
		task.History = append(task.History, msg)
	}
	if err := u.store.Save(u.ctx, task); err != nil {
		return err
	}

	final := to.Terminal()
	event := &a2a.StatusUpdateEvent{
		TaskID:    u.taskID,
		ContextID: u.contextID,
		Status:    status,
		Final:     final,
	}
	if _, err := u.log.Append(u.ctx, u.taskID, event); err != nil {
		return err
	}
	if final {
		if err := u.log.Close(u.ctx, u.taskID); err != nil {
			return err
		}
	}

	u.state = to
	u.publishStatus(status, final)
	return nil
}

// publishStatus mirrors the transition onto the event bus. Failures are
// logged, never surfaced: the log and store are the source of truth.
func (u *Updater) publishStatus(status a2a.TaskStatus, final bool) {
	if u.bus == nil {
		return
	}
	ev := bus.NewEvent(bus.EventTypeTaskStatus, "manager", map[string]any{
		"task_id":    u.taskID,
		"context_id": u.contextID,
		"state":      string(status.State),
		"final":      final,
		"timestamp":  status.Timestamp,
	})
	if err := u.bus.Publish(u.ctx, bus.TaskStatusSubject(u.taskID), ev); err != nil {
		u.logger.Warn("failed to mirror status to bus", zap.Error(err))
	}
}

// Submit records the submitted state (non-final event). It is emitted by
// the manager when a task is created; handlers normally start at StartWork.
func (u *Updater) Submit() error {
	return u.transition(a2a.TaskStateSubmitted, nil)
}

// StartWork transitions the task to working.
func (u *Updater) StartWork() error {
	return u.transition(a2a.TaskStateWorking, nil)
}

// RequireInput pauses the task waiting for more user input, carrying the
// prompt to the user.
func (u *Updater) RequireInput(msg *a2a.Message) error {
	return u.transition(a2a.TaskStateInputRequired, msg)
}

// RequireAuth pauses the task waiting for credentials.
func (u *Updater) RequireAuth(msg *a2a.Message) error {
	return u.transition(a2a.TaskStateAuthRequired, msg)
}

// Complete transitions the task to completed. The event is final and
// closes the log.
func (u *Updater) Complete(msg *a2a.Message) error {
	return u.transition(a2a.TaskStateCompleted, msg)
}

// Fail transitions the task to failed. The event is final and closes the log.
func (u *Updater) Fail(reason string) error {
	var msg *a2a.Message
	if reason != "" {
		msg = u.NewAgentMessage(reason)
	}
	return u.transition(a2a.TaskStateFailed, msg)
}

// Cancel transitions the task to canceled. The event is final and closes
// the log.
func (u *Updater) Cancel() error {
	return u.transition(a2a.TaskStateCanceled, nil)
}

// Reject transitions the task to rejected; only valid before work starts.
func (u *Updater) Reject(msg *a2a.Message) error {
	return u.transition(a2a.TaskStateRejected, msg)
}

// Reply emits an agent message event and appends it to history without
// changing the task state.
func (u *Updater) Reply(msg *a2a.Message) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state.Terminal() {
		return a2a.ErrUnsupportedOperation("reply on terminal task " + u.taskID)
	}
	if _, err := u.store.AppendHistory(u.ctx, u.taskID, msg); err != nil {
		return err
	}
	if _, err := u.log.Append(u.ctx, u.taskID, msg); err != nil {
		return err
	}
	return nil
}

// ReturnArtifact emits an artifact-update event and applies it to the
// task's artifact list: replace by id (default), or append chunks when
// append is true. An append to an unknown artifact id creates it.
func (u *Updater) ReturnArtifact(artifact a2a.Artifact, appendChunk, lastChunk bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state.Terminal() {
		return a2a.ErrUnsupportedOperation("artifact on terminal task " + u.taskID)
	}
	if artifact.ArtifactID == "" {
		artifact.ArtifactID = uuid.New().String()
	}

	task, err := u.store.Get(u.ctx, u.taskID)
	if err != nil {
		return err
	}
	applyArtifact(task, &artifact, appendChunk)
	if err := u.store.Save(u.ctx, task); err != nil {
		return err
	}

	event := &a2a.ArtifactUpdateEvent{
		TaskID:    u.taskID,
		ContextID: u.contextID,
		Artifact:  artifact,
		Append:    appendChunk,
		LastChunk: lastChunk,
	}
	if _, err := u.log.Append(u.ctx, u.taskID, event); err != nil {
		return err
	}
	u.publishArtifact(&artifact, lastChunk)
	return nil
}

// publishArtifact mirrors an artifact update onto the event bus.
func (u *Updater) publishArtifact(artifact *a2a.Artifact, lastChunk bool) {
	if u.bus == nil {
		return
	}
	ev := bus.NewEvent(bus.EventTypeTaskArtifact, "manager", map[string]any{
		"task_id":     u.taskID,
		"context_id":  u.contextID,
		"artifact_id": artifact.ArtifactID,
		"last_chunk":  lastChunk,
	})
	if err := u.bus.Publish(u.ctx, bus.TaskArtifactSubject(u.taskID), ev); err != nil {
		u.logger.Warn("failed to mirror artifact to bus", zap.Error(err))
	}
}

// applyArtifact merges an artifact update into the task snapshot.
func applyArtifact(task *a2a.Task, artifact *a2a.Artifact, appendChunk bool) {
	for i, existing := range task.Artifacts {
		if existing.ArtifactID != artifact.ArtifactID {
			continue
		}
		if appendChunk {
			merged := *existing
			merged.Parts = append(append([]a2a.Part{}, existing.Parts...), artifact.Parts...)
			task.Artifacts[i] = &merged
		} else {
			replacement := *artifact
			task.Artifacts[i] = &replacement
		}
		return
	}
	created := *artifact
	task.Artifacts = append(task.Artifacts, &created)
}
