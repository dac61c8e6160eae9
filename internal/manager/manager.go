package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentry/agentry/internal/common/logger"
	"github.com/agentry/agentry/internal/eventlog"
	"github.com/agentry/agentry/internal/events/bus"
	"github.com/agentry/agentry/internal/pushstore"
	"github.com/agentry/agentry/internal/taskstore"
	"github.com/agentry/agentry/pkg/a2a"
)

// Manager drives tasks end to end: it creates or resumes a task for each
// inbound message, runs the agent handler, records events and answers
// query, cancel, list and subscribe calls. Operations on the same task are
// serialized; different tasks run in parallel.
type Manager struct {
	handler AgentHandler
	store   taskstore.Store
	log     eventlog.Log
	push    pushstore.Store
	bus     bus.EventBus
	logger  *logger.Logger

	mu      sync.Mutex
	running map[string]*runningTask
	locks   map[string]*taskLock
}

// runningTask tracks an in-flight handler execution.
type runningTask struct {
	ctx     context.Context
	updater *Updater
	cancel  context.CancelFunc
}

// taskLock serializes the check-and-reserve sequences on one task so
// concurrent sends and cancels on the same id cannot interleave between
// the state check and the slot registration.
type taskLock struct {
	mu   sync.Mutex
	refs int
}

// Stream is a live event subscription on one task.
type Stream struct {
	TaskID string
	Events <-chan a2a.Event
}

// New creates a task manager.
func New(handler AgentHandler, store taskstore.Store, log eventlog.Log, push pushstore.Store, eventBus bus.EventBus, lg *logger.Logger) *Manager {
	return &Manager{
		handler: handler,
		store:   store,
		log:     log,
		push:    push,
		bus:     eventBus,
		logger:  lg,
		running: make(map[string]*runningTask),
		locks:   make(map[string]*taskLock),
	}
}

func (m *Manager) lockTask(id string) {
	m.mu.Lock()
	l := m.locks[id]
	if l == nil {
		l = &taskLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()
	l.mu.Lock()
}

func (m *Manager) unlockTask(id string) {
	m.mu.Lock()
	l := m.locks[id]
	l.refs--
	if l.refs == 0 {
		delete(m.locks, id)
	}
	m.mu.Unlock()
	l.mu.Unlock()
}

// openTask resolves the task an inbound message addresses and reserves its
// execution slot: resume when TaskId is present and non-terminal, create
// otherwise. On the resume path the terminal and busy checks, the history
// append and the reservation all happen under the task's lock, so a
// rejected concurrent send leaves no trace in history or the event log.
// For new tasks the initial snapshot event (seq 0) is appended so streaming
// subscribers see the full lifecycle from the start.
func (m *Manager) openTask(ctx context.Context, msg *a2a.Message) (*a2a.Task, *runningTask, error) {
	if len(msg.Parts) == 0 {
		return nil, nil, a2a.ErrInvalidParams("message has no parts")
	}
	if msg.Role == "" {
		msg.Role = a2a.RoleUser
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.New().String()
	}

	if msg.TaskID != "" {
		m.lockTask(msg.TaskID)
		defer m.unlockTask(msg.TaskID)

		task, err := m.store.Get(ctx, msg.TaskID)
		if err != nil {
			return nil, nil, err
		}
		if task.Status.State.Terminal() {
			return nil, nil, a2a.ErrUnsupportedOperation(
				"message to task " + task.ID + " in terminal state " + string(task.Status.State))
		}
		if m.isRunning(task.ID) {
			return nil, nil, a2a.ErrUnsupportedOperation("task " + task.ID + " is already processing a message")
		}
		msg.ContextID = task.ContextID
		task, err = m.store.AppendHistory(ctx, task.ID, msg)
		if err != nil {
			return nil, nil, err
		}
		// Resumed turns surface the inbound message to subscribers.
		if _, err := m.log.Append(ctx, task.ID, msg); err != nil {
			return nil, nil, err
		}
		return task, m.registerRun(ctx, task), nil
	}

	task := &a2a.Task{
		ID:        uuid.New().String(),
		ContextID: msg.ContextID,
		Status: a2a.TaskStatus{
			State:     a2a.TaskStateSubmitted,
			Timestamp: a2a.FormatTimestamp(nowUTC()),
		},
	}
	if task.ContextID == "" {
		task.ContextID = uuid.New().String()
	}
	msg.TaskID = task.ID
	msg.ContextID = task.ContextID
	task.History = []*a2a.Message{msg}

	if err := m.store.Save(ctx, task); err != nil {
		return nil, nil, err
	}
	if _, err := m.log.Append(ctx, task.ID, task); err != nil {
		return nil, nil, err
	}
	return task, m.registerRun(ctx, task), nil
}

// registerRun reserves a task's execution slot. The runner context is
// detached from the request so client disconnects do not abort the handler.
func (m *Manager) registerRun(ctx context.Context, task *a2a.Task) *runningTask {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &runningTask{
		ctx:     runCtx,
		updater: newUpdater(runCtx, task, m.store, m.log, m.bus, m.logger),
		cancel:  cancel,
	}
	m.mu.Lock()
	m.running[task.ID] = run
	m.mu.Unlock()
	return run
}

// releaseRun frees a task's execution slot.
func (m *Manager) releaseRun(id string) {
	m.mu.Lock()
	run := m.running[id]
	delete(m.running, id)
	m.mu.Unlock()
	if run != nil {
		run.cancel()
	}
}

func nowUTC() time.Time { return time.Now().UTC() }

// supportedOutputModes are the media types the built-in handlers can
// produce.
var supportedOutputModes = []string{"text/plain", "application/json"}

// checkOutputModes rejects sends whose acceptedOutputModes exclude every
// mode this server can produce. An empty list accepts anything.
func checkOutputModes(cfg *a2a.MessageSendConfiguration) error {
	if cfg == nil || len(cfg.AcceptedOutputModes) == 0 {
		return nil
	}
	for _, accepted := range cfg.AcceptedOutputModes {
		if accepted == "*/*" {
			return nil
		}
		for _, mode := range supportedOutputModes {
			if accepted == mode {
				return nil
			}
		}
	}
	return a2a.ErrContentTypeNotSupported(
		"no overlap between accepted output modes and " + strings.Join(supportedOutputModes, ", "))
}

func (m *Manager) isRunning(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[taskID]
	return ok
}

// execute runs the agent handler for a reserved task slot. Handler errors
// fail the task, clean returns from submitted or working complete it,
// paused states survive for the next turn, and a non-nil reply message
// selects the messaging-only mode: the reply is emitted and the task
// completes with it.
func (m *Manager) execute(run *runningTask, task *a2a.Task) (*a2a.Message, error) {
	defer m.releaseRun(task.ID)
	updater := run.updater

	reply, err := m.handler.Execute(run.ctx, updater)
	if err != nil {
		if !updater.Terminal() {
			m.logger.WithTaskID(task.ID).Error("agent handler failed", zap.Error(err))
			if failErr := updater.Fail("agent error: " + err.Error()); failErr != nil {
				m.logger.WithTaskID(task.ID).Error("failed to record task failure", zap.Error(failErr))
			}
		}
		return nil, nil
	}

	if reply != nil {
		// Messaging-only mode: the message is the whole reply and the
		// task completes with it, which also closes the log.
		if _, appendErr := m.log.Append(run.ctx, task.ID, reply); appendErr != nil {
			m.logger.WithTaskID(task.ID).Error("failed to append reply", zap.Error(appendErr))
		}
		if !updater.Terminal() {
			if err := updater.Complete(nil); err != nil {
				m.logger.WithTaskID(task.ID).Error("failed to complete task after reply", zap.Error(err))
			}
		}
		return reply, nil
	}

	switch updater.State() {
	case a2a.TaskStateSubmitted, a2a.TaskStateWorking:
		// Clean return without an explicit outcome completes the task.
		// Input-required and auth-required stay paused for the next turn.
		if err := updater.Complete(nil); err != nil {
			m.logger.WithTaskID(task.ID).Error("failed to auto-complete task", zap.Error(err))
		}
	}
	return nil, nil
}

// SendMessage handles message/send: run the handler to completion and
// return the final task snapshot, or the bare reply message in
// messaging-only mode.
func (m *Manager) SendMessage(ctx context.Context, params a2a.MessageSendParams) (*a2a.SendMessageResult, error) {
	if err := checkOutputModes(params.Configuration); err != nil {
		return nil, err
	}
	if cfg := params.Configuration; cfg != nil && cfg.HistoryLength != nil && *cfg.HistoryLength < 0 {
		return nil, a2a.ErrInvalidParams("historyLength must be non-negative")
	}
	task, run, err := m.openTask(ctx, &params.Message)
	if err != nil {
		return nil, err
	}

	reply, err := m.execute(run, task)
	if err != nil {
		return nil, err
	}
	if reply != nil {
		return &a2a.SendMessageResult{Message: reply}, nil
	}

	final, err := m.store.Get(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if params.Configuration != nil {
		final = final.TruncateHistory(params.Configuration.HistoryLength)
	}
	return &a2a.SendMessageResult{Task: final}, nil
}

// SendMessageStream handles message/stream: the handler runs concurrently
// and the returned stream delivers the task's events from seq 0. Cancelling
// the subscription does not cancel the task.
func (m *Manager) SendMessageStream(ctx context.Context, params a2a.MessageSendParams) (*Stream, error) {
	if err := checkOutputModes(params.Configuration); err != nil {
		return nil, err
	}
	task, run, err := m.openTask(ctx, &params.Message)
	if err != nil {
		return nil, err
	}

	stream, err := m.subscribe(ctx, task.ID, 0)
	if err != nil {
		m.releaseRun(task.ID)
		return nil, err
	}

	go func() {
		if _, err := m.execute(run, task); err != nil {
			m.logger.WithTaskID(task.ID).Error("streaming execution failed", zap.Error(err))
		}
	}()

	return stream, nil
}

// GetTask handles tasks/get. historyLength truncates the returned history
// to the last N messages; negative values are invalid.
func (m *Manager) GetTask(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error) {
	if params.HistoryLength != nil && *params.HistoryLength < 0 {
		return nil, a2a.ErrInvalidParams("historyLength must be non-negative")
	}
	task, err := m.store.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	return task.TruncateHistory(params.HistoryLength), nil
}

// CancelTask handles tasks/cancel: transition to canceled, signal the
// running handler, and notify the agent best-effort. The task lock keeps
// the transition from interleaving with a concurrent send on the same id.
func (m *Manager) CancelTask(ctx context.Context, id string) (*a2a.Task, error) {
	m.lockTask(id)
	defer m.unlockTask(id)

	task, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status.State.Terminal() {
		return nil, a2a.ErrTaskNotCancelable(id)
	}

	m.mu.Lock()
	run := m.running[id]
	m.mu.Unlock()

	if run != nil {
		err = run.updater.Cancel()
		run.cancel()
	} else {
		updater := newUpdater(ctx, task, m.store, m.log, m.bus, m.logger)
		err = updater.Cancel()
	}
	if err != nil {
		// A concurrent final transition won the race.
		if a2a.CodeOf(err) == a2a.CodeUnsupportedOperation {
			return nil, a2a.ErrTaskNotCancelable(id)
		}
		return nil, err
	}

	if cancelErr := m.handler.Cancel(ctx, id); cancelErr != nil {
		m.logger.WithTaskID(id).Warn("agent cancel hook failed", zap.Error(cancelErr))
	}

	return m.store.Get(ctx, id)
}

// ListTasks handles tasks/list with stable pagination.
func (m *Manager) ListTasks(ctx context.Context, params a2a.TaskListParams) (*a2a.TaskList, error) {
	result, err := m.store.List(ctx, taskstore.Filter{
		ContextID: params.ContextID,
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		return nil, err
	}
	tasks := result.Tasks
	if tasks == nil {
		tasks = []*a2a.Task{}
	}
	return &a2a.TaskList{
		Tasks:         tasks,
		TotalSize:     result.TotalSize,
		NextPageToken: result.NextPageToken,
	}, nil
}

// Resubscribe handles tasks/resubscribe: replay the full event log from
// seq 0, then tail live until the log closes. On a closed log the stream
// replays history and terminates.
func (m *Manager) Resubscribe(ctx context.Context, id string) (*Stream, error) {
	if _, err := m.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.subscribe(ctx, id, 0)
}

// subscribe couples the event log tail with event decoding.
func (m *Manager) subscribe(ctx context.Context, id string, from uint64) (*Stream, error) {
	records, err := m.log.TailFrom(ctx, id, from)
	if err != nil {
		return nil, err
	}

	events := make(chan a2a.Event)
	go func() {
		defer close(events)
		for rec := range records {
			ev, decodeErr := rec.Event()
			if decodeErr != nil {
				m.logger.WithTaskID(id).Error("corrupt event record",
					zap.Uint64("seq", rec.Seq), zap.Error(decodeErr))
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Stream{TaskID: id, Events: events}, nil
}

// SetPushConfig handles tasks/pushNotificationConfig/set.
func (m *Manager) SetPushConfig(ctx context.Context, cfg a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	if m.push == nil {
		return nil, a2a.ErrPushNotificationNotSupported()
	}
	if _, err := m.store.Get(ctx, cfg.TaskID); err != nil {
		return nil, err
	}
	stored, err := m.push.Set(ctx, cfg.TaskID, cfg.PushNotificationConfig)
	if err != nil {
		return nil, err
	}
	return &a2a.TaskPushNotificationConfig{TaskID: cfg.TaskID, PushNotificationConfig: *stored}, nil
}

// GetPushConfig handles tasks/pushNotificationConfig/get. An empty config
// id returns the first registered config.
func (m *Manager) GetPushConfig(ctx context.Context, params a2a.GetPushConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	if m.push == nil {
		return nil, a2a.ErrPushNotificationNotSupported()
	}
	if _, err := m.store.Get(ctx, params.ID); err != nil {
		return nil, err
	}

	var cfg *a2a.PushNotificationConfig
	var err error
	if params.PushNotificationConfigID != "" {
		cfg, err = m.push.Get(ctx, params.ID, params.PushNotificationConfigID)
	} else {
		var list []*a2a.PushNotificationConfig
		list, err = m.push.List(ctx, params.ID)
		if err == nil && len(list) > 0 {
			cfg = list[0]
		}
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, a2a.ErrInvalidParams("push notification config not found")
	}
	return &a2a.TaskPushNotificationConfig{TaskID: params.ID, PushNotificationConfig: *cfg}, nil
}

// ListPushConfigs handles tasks/pushNotificationConfig/list.
func (m *Manager) ListPushConfigs(ctx context.Context, taskID string) ([]*a2a.TaskPushNotificationConfig, error) {
	if m.push == nil {
		return nil, a2a.ErrPushNotificationNotSupported()
	}
	if _, err := m.store.Get(ctx, taskID); err != nil {
		return nil, err
	}
	list, err := m.push.List(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]*a2a.TaskPushNotificationConfig, len(list))
	for i, cfg := range list {
		out[i] = &a2a.TaskPushNotificationConfig{TaskID: taskID, PushNotificationConfig: *cfg}
	}
	return out, nil
}

// DeletePushConfig handles tasks/pushNotificationConfig/delete.
func (m *Manager) DeletePushConfig(ctx context.Context, params a2a.DeletePushConfigParams) error {
	if m.push == nil {
		return a2a.ErrPushNotificationNotSupported()
	}
	if _, err := m.store.Get(ctx, params.ID); err != nil {
		return err
	}
	return m.push.Delete(ctx, params.ID, params.PushNotificationConfigID)
}
