package store

import "time"

// ProcessStatus is the terminal-or-running status of an ExecutionProcess.
// Transitions are monotone: Running -> {Completed, Failed, Killed}.
type ProcessStatus string

const (
	ProcessRunning   ProcessStatus = "running"
	ProcessCompleted ProcessStatus = "completed"
	ProcessFailed    ProcessStatus = "failed"
	ProcessKilled    ProcessStatus = "killed"
)

// Terminal reports whether status is a sink state.
func (s ProcessStatus) Terminal() bool {
	return s == ProcessCompleted || s == ProcessFailed || s == ProcessKilled
}

// RunKind identifies what an ExecutionProcess is running for.
type RunKind string

const (
	RunKindSetup       RunKind = "setup"
	RunKindCodingAgent RunKind = "coding-agent"
	RunKindFollowUp    RunKind = "follow-up"
	RunKindCleanup     RunKind = "cleanup"
	// RunKindDevServer tracks the original source's optional dev-server
	// process for data-model completeness; no component in this module
	// spawns one (see SPEC_FULL.md §3).
	RunKindDevServer RunKind = "devserver"
)

// ApprovalStatus is the terminal-or-pending status of an ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalDenied    ApprovalStatus = "denied"
	ApprovalExpired   ApprovalStatus = "expired"
	ApprovalCancelled ApprovalStatus = "cancelled"
)

// Terminal reports whether status is a sink state.
func (s ApprovalStatus) Terminal() bool {
	return s != ApprovalPending
}

// TaskAttempt is a single run-context ("workspace") of a task.
type TaskAttempt struct {
	ID           string
	TaskID       string
	ProjectID    string
	TargetBranch string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExecutionProcess is one run of a coding agent against an attempt.
type ExecutionProcess struct {
	ID                string
	AttemptID         string
	RunKind           RunKind
	Status            ProcessStatus
	ExecutorSessionID *string
	ExitCode          *int
	StartedAt         time.Time
	CompletedAt       *time.Time
}

// ExecutionProcessLog is one appended chunk of JSON-lines log payload.
type ExecutionProcessLog struct {
	Seq         int64
	ExecutionID string
	InsertedAt  time.Time
	Payload     string
	ByteLength  int
}

// ApprovalRequest is a synchronous human-approval gate for one tool call.
type ApprovalRequest struct {
	ID          string
	ExecutionID string
	ToolName    string
	ToolInput   string // raw JSON
	ToolCallID  string
	Status      ApprovalStatus
	ReviewerID  *string
	Reason      *string
	DeadlineAt  time.Time
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Sentinel errors surfaced by store operations. Callers distinguish Input
// and Conflict kinds (spec.md §7) via errors.Is against these.
var (
	ErrNotFound         = sentinel("not found")
	ErrAttemptBusy      = sentinel("attempt already has a running execution process")
	ErrAlreadyResolved  = sentinel("approval already resolved")
	ErrSessionIDSet     = sentinel("executor session id already assigned")
	ErrProcessNotRunning = sentinel("execution process is not running")
)

type sentinelError string

func sentinel(msg string) error { return sentinelError(msg) }

func (e sentinelError) Error() string { return string(e) }
