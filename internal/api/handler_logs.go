package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/execflow/internal/logwriter"
)

// processLogsHandler handles GET /processes/:id/logs?since_seq=<u64>
// (spec.md §6). An `Accept: text/event-stream` request switches to
// streaming mode, subscribing to the execution's live Log Channel if it
// is still held by the pipeline; a terminated execution falls back to
// the durable snapshot since a finished channel has nothing further to
// deliver.
func (s *Server) processLogsHandler(c *gin.Context) {
	executionID := c.Param("id")

	sinceSeq := int64(0)
	if raw := c.Query("since_seq"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since_seq must be an integer"})
			return
		}
		sinceSeq = v
	}

	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		s.streamProcessLogs(c, executionID)
		return
	}

	rows, err := s.store.LogsSince(c.Request.Context(), executionID, sinceSeq)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)
	for _, row := range rows {
		_, _ = c.Writer.WriteString(row.Payload)
	}
}

// streamProcessLogs implements the open/streaming mode: a full replay of
// whatever history the in-memory Log Channel still holds, followed by
// live messages, terminating when the channel closes or the client
// disconnects.
func (s *Server) streamProcessLogs(c *gin.Context, executionID string) {
	channel := s.pipeline.Channel(executionID)
	if channel == nil {
		// Already terminated: nothing further will ever arrive. Emit the
		// durable snapshot as a single SSE burst and end the stream.
		rows, err := s.store.LogsSince(c.Request.Context(), executionID, 0)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.Header("Content-Type", "text/event-stream")
		c.Status(http.StatusOK)
		for _, row := range rows {
			writeSSELine(c, row.Payload)
		}
		return
	}

	sub := channel.Subscribe()
	defer sub.Unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(interface{ Flush() })

	ctx := c.Request.Context()
	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			m, ok := msg.(logwriter.Msg)
			if !ok {
				continue
			}
			line, err := logwriter.MarshalLine(m)
			if err != nil {
				continue
			}
			writeSSELine(c, line)
			if canFlush {
				flusher.Flush()
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeSSELine(c *gin.Context, payload string) {
	_, _ = c.Writer.WriteString("data: " + strings.TrimSuffix(payload, "\n") + "\n\n")
}
