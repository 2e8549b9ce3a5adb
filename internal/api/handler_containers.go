package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// attemptContextHandler handles GET /containers/attempt-context?ref=<opaque>
// (spec.md §6, §4.7).
func (s *Server) attemptContextHandler(c *gin.Context) {
	ref := c.Query("ref")
	if ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ref is required"})
		return
	}

	ctx := c.Request.Context()

	containerRef, err := s.workspace.ResolveContainerRef(ctx, ref)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	snapshot, err := s.workspace.LoadContext(ctx, containerRef.AttemptID, containerRef.TaskID, containerRef.ProjectID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, workspaceContextResponse{
		Workspace:       snapshot.Attempt,
		Task:            containerRef.TaskID,
		Project:         containerRef.ProjectID,
		LatestProcess:   snapshot.LatestProcess,
		PendingApproval: snapshot.PendingApproval,
	})
}
