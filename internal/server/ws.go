package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentry/agentry/internal/common/logger"
	"github.com/agentry/agentry/internal/manager"
	"github.com/agentry/agentry/pkg/a2a"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 1024 * 1024
	wsSendBuffer     = 64
)

// wsRequest is the client-to-server control message: subscribe or
// unsubscribe from task event feeds.
type wsRequest struct {
	Action  string   `json:"action"`
	TaskIDs []string `json:"taskIds"`
}

// wsFrame is one server-to-client message. Either Event or Error is set.
type wsFrame struct {
	TaskID string          `json:"taskId"`
	Event  json.RawMessage `json:"event,omitempty"`
	Error  *a2a.Error      `json:"error,omitempty"`
}

// Gateway serves task event feeds over a WebSocket connection. Each
// subscription replays the task's event log from the start and then tails
// it live, like tasks/resubscribe.
type Gateway struct {
	manager  *manager.Manager
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewGateway creates a WebSocket gateway backed by the task manager.
func NewGateway(m *manager.Manager, log *logger.Logger) *Gateway {
	return &Gateway{
		manager: m,
		logger:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and runs the connection's pumps.
func (g *Gateway) Handle(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	client := &wsClient{
		gateway: g,
		conn:    conn,
		send:    make(chan []byte, wsSendBuffer),
		subs:    make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}

	go client.writePump()
	client.readPump()
}

// wsClient is one connected consumer with its active task subscriptions.
type wsClient struct {
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte

	mu   sync.Mutex
	subs map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
}

// readPump consumes control messages until the connection drops.
func (c *wsClient) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gateway.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			c.gateway.logger.Warn("invalid websocket request", zap.Error(err))
			continue
		}

		switch req.Action {
		case "subscribe":
			for _, taskID := range req.TaskIDs {
				c.subscribe(taskID)
			}
		case "unsubscribe":
			for _, taskID := range req.TaskIDs {
				c.unsubscribe(taskID)
			}
		default:
			c.gateway.logger.Warn("unknown websocket action", zap.String("action", req.Action))
		}
	}
}

// writePump serializes outbound frames and keeps the connection alive
// with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}

// subscribe starts a tail of the task's event log. Subscribing twice to
// the same task is a no-op.
func (c *wsClient) subscribe(taskID string) {
	c.mu.Lock()
	if _, ok := c.subs[taskID]; ok {
		c.mu.Unlock()
		return
	}
	subCtx, subCancel := context.WithCancel(c.ctx)
	c.subs[taskID] = subCancel
	c.mu.Unlock()

	stream, err := c.gateway.manager.Resubscribe(subCtx, taskID)
	if err != nil {
		subCancel()
		c.mu.Lock()
		delete(c.subs, taskID)
		c.mu.Unlock()
		c.push(wsFrame{TaskID: taskID, Error: a2a.AsError(err)})
		return
	}

	go func() {
		defer c.unsubscribe(taskID)
		for ev := range stream.Events {
			raw, err := json.Marshal(ev)
			if err != nil {
				c.gateway.logger.WithTaskID(taskID).Error("failed to encode event", zap.Error(err))
				return
			}
			if !c.push(wsFrame{TaskID: taskID, Event: raw}) {
				return
			}
		}
	}()
}

// unsubscribe stops the task's tail, if active.
func (c *wsClient) unsubscribe(taskID string) {
	c.mu.Lock()
	cancel, ok := c.subs[taskID]
	if ok {
		delete(c.subs, taskID)
	}
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// push queues one frame, dropping the subscription when the client cannot
// keep up.
func (c *wsClient) push(frame wsFrame) bool {
	raw, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	select {
	case c.send <- raw:
		return true
	case <-c.ctx.Done():
		return false
	default:
		c.gateway.logger.Warn("websocket client too slow, dropping subscription",
			zap.String("task_id", frame.TaskID))
		return false
	}
}
