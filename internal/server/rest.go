package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentry/agentry/internal/manager"
	"github.com/agentry/agentry/pkg/a2a"
)

// restStatus maps protocol error codes onto HTTP statuses for the REST
// binding.
func restStatus(code int) int {
	switch code {
	case a2a.CodeParseError, a2a.CodeInvalidRequest, a2a.CodeInvalidParams:
		return http.StatusBadRequest
	case a2a.CodeTaskNotFound:
		return http.StatusNotFound
	case a2a.CodeTaskNotCancelable, a2a.CodeUnsupportedOperation:
		return http.StatusConflict
	case a2a.CodePushNotificationNotSupported:
		return http.StatusNotImplemented
	case a2a.CodeContentTypeNotSupported:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeRESTError(c *gin.Context, err error) {
	ae := a2a.AsError(err)
	if ae.Code == a2a.CodeInternalError {
		s.logger.Error("request failed", zap.Error(err))
	}
	c.JSON(restStatus(ae.Code), gin.H{
		"error": gin.H{"code": ae.Code, "message": ae.Message},
	})
}

// restSendMessage handles POST /v1/message/send.
func (s *Server) restSendMessage(c *gin.Context) {
	var params a2a.MessageSendParams
	if err := c.ShouldBindJSON(&params); err != nil {
		s.writeRESTError(c, a2a.ErrInvalidParams(err.Error()))
		return
	}
	result, err := s.manager.SendMessage(c.Request.Context(), params)
	if err != nil {
		s.writeRESTError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// restStreamMessage handles POST /v1/message/stream with an SSE response
// of raw task events.
func (s *Server) restStreamMessage(c *gin.Context) {
	var params a2a.MessageSendParams
	if err := c.ShouldBindJSON(&params); err != nil {
		s.writeRESTError(c, a2a.ErrInvalidParams(err.Error()))
		return
	}
	stream, err := s.manager.SendMessageStream(c.Request.Context(), params)
	if err != nil {
		s.writeRESTError(c, err)
		return
	}
	s.streamRawSSE(c, stream)
}

// restGetTask handles GET /v1/tasks/:taskId.
func (s *Server) restGetTask(c *gin.Context) {
	params := a2a.TaskQueryParams{ID: c.Param("taskId")}
	if raw := c.Query("historyLength"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeRESTError(c, a2a.ErrInvalidParams("historyLength must be an integer"))
			return
		}
		params.HistoryLength = &n
	}
	task, err := s.manager.GetTask(c.Request.Context(), params)
	if err != nil {
		s.writeRESTError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// restCancelTask handles POST /v1/tasks/:taskId/cancel.
func (s *Server) restCancelTask(c *gin.Context) {
	task, err := s.manager.CancelTask(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		s.writeRESTError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// restListTasks handles GET /v1/tasks.
func (s *Server) restListTasks(c *gin.Context) {
	params := a2a.TaskListParams{
		ContextID: c.Query("contextId"),
		PageToken: c.Query("pageToken"),
	}
	if raw := c.Query("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeRESTError(c, a2a.ErrInvalidParams("pageSize must be an integer"))
			return
		}
		params.PageSize = n
	}
	list, err := s.manager.ListTasks(c.Request.Context(), params)
	if err != nil {
		s.writeRESTError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// restResubscribe handles GET /v1/tasks/:taskId/events as an SSE stream.
func (s *Server) restResubscribe(c *gin.Context) {
	stream, err := s.manager.Resubscribe(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		s.writeRESTError(c, err)
		return
	}
	s.streamRawSSE(c, stream)
}

// restSetPushConfig handles POST /v1/tasks/:taskId/pushNotificationConfigs.
func (s *Server) restSetPushConfig(c *gin.Context) {
	var cfg a2a.PushNotificationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		s.writeRESTError(c, a2a.ErrInvalidParams(err.Error()))
		return
	}
	stored, err := s.manager.SetPushConfig(c.Request.Context(), a2a.TaskPushNotificationConfig{
		TaskID:                 c.Param("taskId"),
		PushNotificationConfig: cfg,
	})
	if err != nil {
		s.writeRESTError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// restListPushConfigs handles GET /v1/tasks/:taskId/pushNotificationConfigs.
func (s *Server) restListPushConfigs(c *gin.Context) {
	configs, err := s.manager.ListPushConfigs(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		s.writeRESTError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

// restGetPushConfig handles GET /v1/tasks/:taskId/pushNotificationConfigs/:configId.
func (s *Server) restGetPushConfig(c *gin.Context) {
	cfg, err := s.manager.GetPushConfig(c.Request.Context(), a2a.GetPushConfigParams{
		ID:                       c.Param("taskId"),
		PushNotificationConfigID: c.Param("configId"),
	})
	if err != nil {
		s.writeRESTError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// restDeletePushConfig handles DELETE /v1/tasks/:taskId/pushNotificationConfigs/:configId.
func (s *Server) restDeletePushConfig(c *gin.Context) {
	err := s.manager.DeletePushConfig(c.Request.Context(), a2a.DeletePushConfigParams{
		ID:                       c.Param("taskId"),
		PushNotificationConfigID: c.Param("configId"),
	})
	if err != nil {
		s.writeRESTError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// streamRawSSE writes task events as bare SSE data frames, without the
// JSON-RPC envelope.
func (s *Server) streamRawSSE(c *gin.Context, stream *manager.Stream) {
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
			frame, err := json.Marshal(ev)
			if err != nil {
				s.logger.WithTaskID(stream.TaskID).Error("failed to encode stream event", zap.Error(err))
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
