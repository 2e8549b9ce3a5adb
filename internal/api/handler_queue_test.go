package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/execflow/internal/queuedmsg"
)

func newTestServer() *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(nil, nil, nil, queuedmsg.New(nil), nil)
}

func TestQueueLifecycleOverHTTP(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(queueMessageRequest{Message: "keep going"})
	req := httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/queue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var queued queueStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queued))
	require.Equal(t, "Queued", queued.Status)
	require.Equal(t, "keep going", queued.Message)

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/workspaces/ws-1/queue", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status queueStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "Queued", status.Status)

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/workspaces/ws-1/queue", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var emptied queueStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &emptied))
	require.Equal(t, "Empty", emptied.Status)
}

func TestQueueMessageRequiresBody(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/queue", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
