package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentry/agentry/internal/manager"
	"github.com/agentry/agentry/pkg/a2a"
	"github.com/agentry/agentry/pkg/jsonrpc"
)

// handleRPC is the single JSON-RPC entry point. Streaming methods switch
// the response to SSE; everything else answers with one envelope.
func (s *Server) handleRPC(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.writeRPCError(c, nil, a2a.ErrParseError(err))
		return
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeRPCError(c, nil, a2a.ErrParseError(err))
		return
	}
	if err := req.Validate(); err != nil {
		s.writeRPCError(c, req.ID, a2a.ErrInvalidRequest(err.Error()))
		return
	}

	ctx := c.Request.Context()

	switch req.Method {
	case a2a.MethodMessageSend:
		var params a2a.MessageSendParams
		if !s.decodeParams(c, &req, &params) {
			return
		}
		result, err := s.manager.SendMessage(ctx, params)
		s.writeRPCResult(c, &req, result, err)

	case a2a.MethodMessageStream:
		var params a2a.MessageSendParams
		if !s.decodeParams(c, &req, &params) {
			return
		}
		stream, err := s.manager.SendMessageStream(ctx, params)
		if err != nil {
			s.writeRPCError(c, req.ID, err)
			return
		}
		s.streamSSE(c, req.ID, stream)

	case a2a.MethodTasksGet:
		var params a2a.TaskQueryParams
		if !s.decodeParams(c, &req, &params) {
			return
		}
		task, err := s.manager.GetTask(ctx, params)
		s.writeRPCResult(c, &req, task, err)

	case a2a.MethodTasksCancel:
		var params a2a.TaskIDParams
		if !s.decodeParams(c, &req, &params) {
			return
		}
		task, err := s.manager.CancelTask(ctx, params.ID)
		s.writeRPCResult(c, &req, task, err)

	case a2a.MethodTasksList:
		var params a2a.TaskListParams
		if len(req.Params) > 0 && !s.decodeParams(c, &req, &params) {
			return
		}
		list, err := s.manager.ListTasks(ctx, params)
		s.writeRPCResult(c, &req, list, err)

	case a2a.MethodTasksResubscribe:
		var params a2a.TaskIDParams
		if !s.decodeParams(c, &req, &params) {
			return
		}
		stream, err := s.manager.Resubscribe(ctx, params.ID)
		if err != nil {
			s.writeRPCError(c, req.ID, err)
			return
		}
		s.streamSSE(c, req.ID, stream)

	case a2a.MethodPushConfigSet:
		var params a2a.TaskPushNotificationConfig
		if !s.decodeParams(c, &req, &params) {
			return
		}
		cfg, err := s.manager.SetPushConfig(ctx, params)
		s.writeRPCResult(c, &req, cfg, err)

	case a2a.MethodPushConfigGet:
		var params a2a.GetPushConfigParams
		if !s.decodeParams(c, &req, &params) {
			return
		}
		cfg, err := s.manager.GetPushConfig(ctx, params)
		s.writeRPCResult(c, &req, cfg, err)

	case a2a.MethodPushConfigList:
		var params a2a.TaskIDParams
		if !s.decodeParams(c, &req, &params) {
			return
		}
		configs, err := s.manager.ListPushConfigs(ctx, params.ID)
		s.writeRPCResult(c, &req, configs, err)

	case a2a.MethodPushConfigDelete:
		var params a2a.DeletePushConfigParams
		if !s.decodeParams(c, &req, &params) {
			return
		}
		err := s.manager.DeletePushConfig(ctx, params)
		s.writeRPCResult(c, &req, struct{}{}, err)

	default:
		s.writeRPCError(c, req.ID, a2a.ErrMethodNotFound(req.Method))
	}
}

// decodeParams unmarshals req.Params into dst, answering with
// InvalidParams on failure.
func (s *Server) decodeParams(c *gin.Context, req *jsonrpc.Request, dst any) bool {
	if len(req.Params) == 0 {
		s.writeRPCError(c, req.ID, a2a.ErrInvalidParams("missing params"))
		return false
	}
	if err := json.Unmarshal(req.Params, dst); err != nil {
		var ae *a2a.Error
		if errors.As(err, &ae) {
			s.writeRPCError(c, req.ID, ae)
		} else {
			s.writeRPCError(c, req.ID, a2a.ErrInvalidParams(err.Error()))
		}
		return false
	}
	return true
}

func (s *Server) writeRPCResult(c *gin.Context, req *jsonrpc.Request, result any, err error) {
	if err != nil {
		s.writeRPCError(c, req.ID, err)
		return
	}
	resp, err := jsonrpc.NewResponse(req.ID, result)
	if err != nil {
		s.writeRPCError(c, req.ID, a2a.ErrInternal(err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// writeRPCError serializes any error as a JSON-RPC error envelope. The
// transport status stays 200; the protocol error carries the code.
func (s *Server) writeRPCError(c *gin.Context, id json.RawMessage, err error) {
	ae := a2a.AsError(err)
	if ae.Code == a2a.CodeInternalError {
		s.logger.Error("request failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, jsonrpc.NewErrorResponse(id, ae.Code, ae.Message, ae.Data))
}

// streamSSE writes each task event as one SSE data frame wrapping a
// JSON-RPC response envelope, per the A2A streaming binding.
func (s *Server) streamSSE(c *gin.Context, id json.RawMessage, stream *manager.Stream) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case ev, ok := <-stream.Events:
			if !ok {
				return
			}
			resp, err := jsonrpc.NewResponse(id, ev)
			if err != nil {
				s.logger.WithTaskID(stream.TaskID).Error("failed to encode stream event", zap.Error(err))
				return
			}
			frame, err := json.Marshal(resp)
			if err != nil {
				return
			}
			if _, err := c.Writer.WriteString("data: " + string(frame) + "\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}
