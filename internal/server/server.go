// Package server exposes the task manager over HTTP: a JSON-RPC endpoint
// with SSE streaming, a REST binding, a WebSocket gateway and the agent
// discovery card.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentry/agentry/internal/common/config"
	"github.com/agentry/agentry/internal/common/logger"
	"github.com/agentry/agentry/internal/manager"
	"github.com/agentry/agentry/pkg/a2a"
)

// ProtocolVersion is the A2A protocol revision this server speaks.
const ProtocolVersion = "0.3.0"

// Server wires the manager into the HTTP surface.
type Server struct {
	cfg     config.ServerConfig
	card    a2a.AgentCard
	manager *manager.Manager
	gateway *Gateway
	logger  *logger.Logger

	engine *gin.Engine
	http   *http.Server
}

// New builds the server and its routes.
func New(cfg *config.Config, m *manager.Manager, log *logger.Logger) *Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg.Server,
		card:    buildCard(cfg),
		manager: m,
		gateway: NewGateway(m, log),
		logger:  log,
	}

	engine := gin.New()
	engine.Use(Recovery(log), RequestLogger(log), CORS())
	s.routes(engine)
	s.engine = engine

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/.well-known/agent.json", s.handleAgentCard)
	r.GET("/health", s.handleHealth)

	r.POST(s.cfg.BasePath, s.handleRPC)
	r.GET("/ws", s.gateway.Handle)

	v1 := r.Group("/v1")
	{
		v1.POST("/message/send", s.restSendMessage)
		v1.POST("/message/stream", s.restStreamMessage)

		tasks := v1.Group("/tasks")
		{
			tasks.GET("", s.restListTasks)
			tasks.GET("/:taskId", s.restGetTask)
			tasks.POST("/:taskId/cancel", s.restCancelTask)
			tasks.GET("/:taskId/events", s.restResubscribe)

			tasks.POST("/:taskId/pushNotificationConfigs", s.restSetPushConfig)
			tasks.GET("/:taskId/pushNotificationConfigs", s.restListPushConfigs)
			tasks.GET("/:taskId/pushNotificationConfigs/:configId", s.restGetPushConfig)
			tasks.DELETE("/:taskId/pushNotificationConfigs/:configId", s.restDeletePushConfig)
		}
	}
}

// Handler exposes the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAgentCard(c *gin.Context) {
	c.JSON(http.StatusOK, s.card)
}

// buildCard assembles the discovery document from configuration.
func buildCard(cfg *config.Config) a2a.AgentCard {
	skills := make([]a2a.AgentSkill, 0, len(cfg.Card.Skills))
	for _, sk := range cfg.Card.Skills {
		skills = append(skills, a2a.AgentSkill{
			ID:          sk.ID,
			Name:        sk.Name,
			Description: sk.Description,
			Tags:        sk.Tags,
		})
	}

	return a2a.AgentCard{
		Name:            cfg.Card.Name,
		Description:     cfg.Card.Description,
		Version:         cfg.Card.Version,
		URL:             cfg.Card.URL,
		ProtocolVersion: ProtocolVersion,
		Capabilities: a2a.AgentCapabilities{
			Streaming:              true,
			PushNotifications:      cfg.Push.Enabled,
			StateTransitionHistory: true,
		},
		Skills:             skills,
		DefaultInputModes:  []string{"text/plain", "application/json"},
		DefaultOutputModes: []string{"text/plain", "application/json"},
		SupportedInterfaces: []a2a.AgentInterface{
			{URL: cfg.Card.URL, Transport: "JSONRPC"},
		},
	}
}
