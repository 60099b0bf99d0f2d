// Package http exposes the workflow services over a JSON API.
// Handlers translate requests into service calls and nothing more.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/barangay-docflow/internal/application/service"
	"github.com/garyjia/barangay-docflow/internal/metrics"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Mode            string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Mode:            gin.ReleaseMode,
	}
}

// Services groups the application services the API fronts
type Services struct {
	Workflows service.WorkflowConfigService
	Requests  service.RequestService
	Sync      service.SyncService
	Export    service.ExportService
}

// HealthFunc reports dependency health; a nil result means healthy
type HealthFunc func(ctx context.Context) map[string]error

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	health     HealthFunc
	logger     Logger
}

// NewServer creates a new HTTP server with the given services. health may be nil.
func NewServer(config ServerConfig, services Services, health HealthFunc, logger Logger) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		health:   health,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery(), requestID(), requestLogger(s.logger))
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.health, s.logger)

	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.router.Group("/api/v1", identityMiddleware())
	{
		api.GET("/document-types/:docType/workflow", h.GetWorkflow)
		api.GET("/approvers/:userId/assignments", h.ListApproverAssignments)

		api.POST("/requests", h.CreateRequest)
		api.GET("/requests", h.ListRequests)
		api.GET("/requests/:id", h.GetRequest)
		api.POST("/requests/:id/advance", h.AdvanceRequest)
		api.POST("/requests/:id/approve", h.ApproveRequest)
		api.POST("/requests/:id/reject", h.RejectRequest)

		admin := api.Group("", requireAdmin())
		admin.POST("/document-types/:docType/workflow/steps", h.AddStep)
		admin.PATCH("/document-types/:docType/workflow/steps/:stepId", h.UpdateStep)
		admin.DELETE("/document-types/:docType/workflow/steps/:stepId", h.RemoveStep)
		admin.POST("/document-types/:docType/workflow/steps/:stepId/move", h.MoveStep)
		admin.PUT("/document-types/:docType/workflow/steps/:stepId/approvers", h.AssignApprovers)
		admin.POST("/document-types/:docType/workflow/reset", h.ResetToDefault)
		admin.POST("/sync", h.Sync)
		admin.GET("/workflows/export", h.ExportWorkflows)
	}
}

// Start serves until ctx is cancelled or the listener fails.
// Cancellation triggers a graceful Stop.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.Address(),
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	served := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "address", s.httpServer.Addr)
		served <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("HTTP server error", "error", err)
		return err
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Address() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}
