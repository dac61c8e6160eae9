// Package client is a Go client for A2A servers: JSON-RPC calls over HTTP
// with SSE decoding for the streaming methods.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/agentry/agentry/pkg/a2a"
	"github.com/agentry/agentry/pkg/jsonrpc"
)

// Client talks to one A2A server endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Int64
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the given JSON-RPC endpoint URL.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call performs one JSON-RPC round trip, decoding the result into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	req, id, err := c.newRequest(ctx, method, params)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope jsonrpc.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("call %s: decode response: %w", method, err)
	}
	if envelope.Err != nil {
		return a2a.NewError(envelope.Err.Code, envelope.Err.Message)
	}
	if !bytes.Equal(envelope.ID, id) {
		return fmt.Errorf("call %s: response id mismatch", method)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("call %s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, params any) (*http.Request, json.RawMessage, error) {
	id := json.RawMessage(strconv.FormatInt(c.nextID.Add(1), 10))

	var rawParams json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, nil, fmt.Errorf("call %s: encode params: %w", method, err)
		}
		rawParams = raw
	}

	body, err := json.Marshal(jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, id, nil
}

// SendMessage calls message/send and blocks until the task finishes.
func (c *Client) SendMessage(ctx context.Context, params a2a.MessageSendParams) (*a2a.SendMessageResult, error) {
	var result a2a.SendMessageResult
	if err := c.call(ctx, a2a.MethodMessageSend, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTask calls tasks/get.
func (c *Client) GetTask(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error) {
	var task a2a.Task
	if err := c.call(ctx, a2a.MethodTasksGet, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask calls tasks/cancel.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	var task a2a.Task
	if err := c.call(ctx, a2a.MethodTasksCancel, a2a.TaskIDParams{ID: taskID}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks calls tasks/list.
func (c *Client) ListTasks(ctx context.Context, params a2a.TaskListParams) (*a2a.TaskList, error) {
	var list a2a.TaskList
	if err := c.call(ctx, a2a.MethodTasksList, params, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// SetPushConfig calls tasks/pushNotificationConfig/set.
func (c *Client) SetPushConfig(ctx context.Context, cfg a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	var stored a2a.TaskPushNotificationConfig
	if err := c.call(ctx, a2a.MethodPushConfigSet, cfg, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetPushConfig calls tasks/pushNotificationConfig/get.
func (c *Client) GetPushConfig(ctx context.Context, params a2a.GetPushConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	var cfg a2a.TaskPushNotificationConfig
	if err := c.call(ctx, a2a.MethodPushConfigGet, params, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListPushConfigs calls tasks/pushNotificationConfig/list.
func (c *Client) ListPushConfigs(ctx context.Context, taskID string) ([]*a2a.TaskPushNotificationConfig, error) {
	var configs []*a2a.TaskPushNotificationConfig
	if err := c.call(ctx, a2a.MethodPushConfigList, a2a.TaskIDParams{ID: taskID}, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// DeletePushConfig calls tasks/pushNotificationConfig/delete.
func (c *Client) DeletePushConfig(ctx context.Context, params a2a.DeletePushConfigParams) error {
	return c.call(ctx, a2a.MethodPushConfigDelete, params, nil)
}

// StreamItem is one decoded event from a streaming method, or the error
// that ended the stream.
type StreamItem struct {
	Event a2a.Event
	Err   error
}

// SendMessageStream calls message/stream and decodes the SSE response.
// The channel closes when the server ends the stream; cancel ctx to stop
// early.
func (c *Client) SendMessageStream(ctx context.Context, params a2a.MessageSendParams) (<-chan StreamItem, error) {
	return c.stream(ctx, a2a.MethodMessageStream, params)
}

// Resubscribe calls tasks/resubscribe and decodes the SSE response.
func (c *Client) Resubscribe(ctx context.Context, taskID string) (<-chan StreamItem, error) {
	return c.stream(ctx, a2a.MethodTasksResubscribe, a2a.TaskIDParams{ID: taskID})
}

func (c *Client) stream(ctx context.Context, method string, params any) (<-chan StreamItem, error) {
	req, _, err := c.newRequest(ctx, method, params)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	// A non-SSE response is an immediate JSON-RPC error.
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		defer resp.Body.Close()
		var envelope jsonrpc.Response
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, fmt.Errorf("call %s: unexpected response (%s)", method, ct)
		}
		if envelope.Err != nil {
			return nil, a2a.NewError(envelope.Err.Code, envelope.Err.Message)
		}
		return nil, fmt.Errorf("call %s: expected event stream", method)
	}

	items := make(chan StreamItem)
	go func() {
		defer close(items)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}

			var envelope jsonrpc.Response
			if err := json.Unmarshal([]byte(data), &envelope); err != nil {
				items <- StreamItem{Err: fmt.Errorf("decode stream frame: %w", err)}
				return
			}
			if envelope.Err != nil {
				items <- StreamItem{Err: a2a.NewError(envelope.Err.Code, envelope.Err.Message)}
				return
			}
			ev, err := a2a.UnmarshalEvent(envelope.Result)
			if err != nil {
				items <- StreamItem{Err: err}
				return
			}

			select {
			case items <- StreamItem{Event: ev}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			items <- StreamItem{Err: err}
		}
	}()
	return items, nil
}

// FetchAgentCard retrieves the discovery document from a server's base URL.
func FetchAgentCard(ctx context.Context, hc *http.Client, baseURL string) (*a2a.AgentCard, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/.well-known/agent.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent card request returned status %d", resp.StatusCode)
	}

	var card a2a.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("decode agent card: %w", err)
	}
	return &card, nil
}
