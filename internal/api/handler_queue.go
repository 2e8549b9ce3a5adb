package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/execflow/internal/queuedmsg"
)

// queueMessageHandler handles POST /workspaces/:id/queue (spec.md §6).
func (s *Server) queueMessageHandler(c *gin.Context) {
	workspaceID := c.Param("id")

	var req queueMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := s.queued.Queue(workspaceID, req.Message, time.Now().UnixNano())
	c.JSON(http.StatusOK, toQueueStatusResponse(status))
}

// cancelQueueHandler handles DELETE /workspaces/:id/queue.
func (s *Server) cancelQueueHandler(c *gin.Context) {
	status := s.queued.Cancel(c.Param("id"))
	c.JSON(http.StatusOK, toQueueStatusResponse(status))
}

// queueStatusHandler handles GET /workspaces/:id/queue.
func (s *Server) queueStatusHandler(c *gin.Context) {
	status := s.queued.CurrentStatus(c.Param("id"))
	c.JSON(http.StatusOK, toQueueStatusResponse(status))
}

func toQueueStatusResponse(status queuedmsg.Status) queueStatusResponse {
	if !status.Queued {
		return queueStatusResponse{Status: "Empty"}
	}
	return queueStatusResponse{Status: "Queued", Message: status.Draft}
}
