package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/execflow/internal/store"
)

// resolveApprovalHandler handles POST /approvals/:id (spec.md §6).
func (s *Server) resolveApprovalHandler(c *gin.Context) {
	id := c.Param("id")

	var req resolveApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome := store.ApprovalApproved
	if req.Outcome == "denied" {
		outcome = store.ApprovalDenied
	}

	ctx := c.Request.Context()

	var reviewerID *string
	if v := c.GetHeader("X-Reviewer-Id"); v != "" {
		reviewerID = &v
	}
	var reason *string
	if req.Reason != "" {
		reason = &req.Reason
	}

	if err := s.approvals.Resolve(ctx, id, outcome, reviewerID, reason); err != nil {
		writeServiceError(c, err)
		return
	}

	approval, err := s.store.GetApproval(ctx, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, approval)
}

// listApprovalsHandler handles GET /approvals?execution_id=....
func (s *Server) listApprovalsHandler(c *gin.Context) {
	executionID := c.Query("execution_id")
	if executionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "execution_id is required"})
		return
	}

	approvals, err := s.store.ListByExecution(c.Request.Context(), executionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approvals": approvals})
}
