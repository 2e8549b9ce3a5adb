package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/execflow/internal/executor"
	"github.com/codeready-toolchain/execflow/internal/pipeline"
	"github.com/codeready-toolchain/execflow/internal/store"
)

// writeServiceError maps a core error to an HTTP response, mirroring
// pkg/api/errors.go's mapServiceError errors.Is chain (spec.md §7's
// Input/Conflict/NotFound error kinds translated to status codes).
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case errors.Is(err, store.ErrAttemptBusy), errors.Is(err, pipeline.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "attempt already has a running execution process"})
	case errors.Is(err, store.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "approval already resolved"})
	case errors.Is(err, executor.ErrUnknownExecutorType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown executor type"})
	default:
		slog.Error("unexpected api error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
