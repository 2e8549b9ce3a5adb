package api

import "github.com/codeready-toolchain/execflow/internal/store"

// workspaceContextResponse is returned by GET /containers/attempt-context
// (spec.md §6 "WorkspaceContext{ workspace, task, project, latest_process? }").
type workspaceContextResponse struct {
	Workspace       store.TaskAttempt       `json:"workspace"`
	Task            string                  `json:"task"`
	Project         string                  `json:"project"`
	LatestProcess   *store.ExecutionProcess `json:"latest_process,omitempty"`
	PendingApproval *store.ApprovalRequest  `json:"pending_approval,omitempty"`
}

// queueStatusResponse is returned by all three /workspaces/:id/queue routes.
type queueStatusResponse struct {
	Status  string `json:"status"` // "Queued" or "Empty"
	Message string `json:"message,omitempty"`
}
