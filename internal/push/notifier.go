// Package push delivers task status webhooks to registered callback URLs.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/agentry/agentry/internal/common/config"
	"github.com/agentry/agentry/internal/common/logger"
	"github.com/agentry/agentry/internal/events/bus"
	"github.com/agentry/agentry/internal/pushstore"
	"github.com/agentry/agentry/internal/taskstore"
)

// TokenHeader carries the client-supplied verification token on webhook
// requests.
const TokenHeader = "X-A2A-Notification-Token"

// Notifier listens for task status events on the bus and POSTs the current
// task snapshot to every push config registered for the task. Delivery is
// best-effort: failures are retried a bounded number of times and then
// logged.
type Notifier struct {
	store   taskstore.Store
	configs pushstore.Store
	client  *http.Client
	logger  *logger.Logger
	retries int

	sub bus.Subscription
}

// NewNotifier creates a notifier and subscribes it to task status events.
func NewNotifier(cfg config.PushConfig, eventBus bus.EventBus, store taskstore.Store, configs pushstore.Store, log *logger.Logger) (*Notifier, error) {
	n := &Notifier{
		store:   store,
		configs: configs,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger:  log,
		retries: cfg.MaxRetries,
	}

	sub, err := eventBus.Subscribe(bus.TaskStatusWildcard, n.handleStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to task status events: %w", err)
	}
	n.sub = sub
	return n, nil
}

// Close stops listening for status events.
func (n *Notifier) Close() error {
	if n.sub == nil {
		return nil
	}
	return n.sub.Unsubscribe()
}

// handleStatus fans one status event out to the task's registered callbacks.
func (n *Notifier) handleStatus(ctx context.Context, ev *bus.Event) error {
	// The publisher may cancel its context right after the transition;
	// delivery must not be cut short by it.
	ctx = context.WithoutCancel(ctx)

	taskID, _ := ev.Data["task_id"].(string)
	if taskID == "" {
		return nil
	}

	configs, err := n.configs.List(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to list push configs: %w", err)
	}
	if len(configs) == 0 {
		return nil
	}

	task, err := n.store.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", taskID, err)
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", taskID, err)
	}

	for _, cfg := range configs {
		n.deliver(ctx, taskID, cfg.URL, cfg.Token, body)
	}
	return nil
}

// deliver POSTs one payload with bounded retries.
func (n *Notifier) deliver(ctx context.Context, taskID, url, token string, body []byte) {
	log := n.logger.WithTaskID(taskID).WithFields(zap.String("url", url))

	var lastErr error
	for attempt := 0; attempt <= n.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			log.Error("failed to build webhook request", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set(TokenHeader, token)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			log.Debug("webhook delivered", zap.Int("status", resp.StatusCode))
			return
		}
		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	log.Warn("webhook delivery failed",
		zap.Int("attempts", n.retries+1),
		zap.Error(lastErr),
	)
}
