// Package api is the External HTTP surface (spec.md §6): a thin gin
// router translating the core's narrow service APIs (Workspace/Attempt
// State, Execution Pipeline, Queued-Message Service, Approval Registry)
// into the read-API and control endpoints named there.
//
// Grounded on pkg/api/server.go's Server-struct-with-Set*-wiring shape
// (collapsed here to constructor args, since this module has a fixed set
// of required collaborators rather than the donor's optional phased
// wiring) and its healthHandler/Start/Shutdown lifecycle.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/execflow/internal/approval"
	"github.com/codeready-toolchain/execflow/internal/pipeline"
	"github.com/codeready-toolchain/execflow/internal/queuedmsg"
	"github.com/codeready-toolchain/execflow/internal/store"
	"github.com/codeready-toolchain/execflow/internal/workspace"
)

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	store     *store.Client
	pipeline  *pipeline.Pipeline
	approvals *approval.Registry
	queued    *queuedmsg.Service
	workspace *workspace.Service
}

// NewServer wires routes over the given collaborators.
func NewServer(
	s *store.Client,
	p *pipeline.Pipeline,
	approvals *approval.Registry,
	queued *queuedmsg.Service,
	ws *workspace.Service,
) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{
		router:    router,
		store:     s,
		pipeline:  p,
		approvals: approvals,
		queued:    queued,
		workspace: ws,
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthHandler)

	s.router.GET("/containers/attempt-context", s.attemptContextHandler)

	s.router.GET("/processes/:id/logs", s.processLogsHandler)

	s.router.POST("/workspaces/:id/queue", s.queueMessageHandler)
	s.router.DELETE("/workspaces/:id/queue", s.cancelQueueHandler)
	s.router.GET("/workspaces/:id/queue", s.queueStatusHandler)

	s.router.POST("/approvals/:id", s.resolveApprovalHandler)
	s.router.GET("/approvals", s.listApprovalsHandler)
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /healthz.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.DB().PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}

	stats := s.store.DB().Stats()
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"database": gin.H{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
		},
	})
}
