// Package executor defines the Executor Adapter contract (C3): the
// polymorphic interface a model-specific driver fulfills, and a registry
// mapping executor-type tags to concrete adapters.
//
// Grounded on pkg/agent/agent.go's Agent interface doc-comment convention
// (distinguishing agent-level failure, returned as a result value, from
// infra-level failure, returned as a Go error) and pkg/queue/executor.go's
// use of a capability interface the pipeline depends on without knowing
// concrete adapter types.
package executor

import (
	"context"
	"errors"
	"io"
)

// Availability is a cheap probe result for UI/status display
// (spec.md §4.3).
type Availability string

const (
	Installed     Availability = "Installed"
	NotFound      Availability = "NotFound"
	RequiresSetup Availability = "RequiresSetup"
)

// Error variants named in spec.md §4.3.
var (
	ErrSpawnFailed          = errors.New("executor: spawn failed")
	ErrFollowUpNotSupported = errors.New("executor: follow-up not supported")
	ErrInstallationMissing  = errors.New("executor: installation missing")
	ErrUnknownExecutorType  = errors.New("executor: unknown executor type")
)

// Env is the set of environment variables passed through to a spawned
// child unchanged (spec.md §6 "adapter-specific vars... passed through
// ExecutionEnv unchanged").
type Env map[string]string

// SpawnedChild is the live handle to a spawned agent session.
type SpawnedChild struct {
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	// Wait blocks until the child exits, returning its exit code (or a
	// non-nil error for an I/O-level failure distinct from a non-zero
	// exit). Wait must be safe to call exactly once.
	Wait func(ctx context.Context) (exitCode int, err error)

	// Cancel requests termination: SIGTERM then SIGKILL after a grace
	// period for local processes, or the adapter's equivalent signal for
	// remote ones. Cancel must be idempotent.
	Cancel func()
}

// Adapter is the capability set the Execution Pipeline depends on
// (spec.md §4.3). Concrete drivers: a local CLI subprocess adapter, a
// gRPC "marker" adapter delegating to a remote service, and a stub used
// by tests and as a safe fallback.
type Adapter interface {
	// Spawn starts a new session. Must not block after the child is
	// running.
	Spawn(ctx context.Context, cwd, prompt string, env Env) (*SpawnedChild, error)

	// SpawnFollowUp continues an existing session identified by
	// sessionID, the value carried by a prior SessionId log message.
	SpawnFollowUp(ctx context.Context, cwd, prompt, sessionID string, env Env) (*SpawnedChild, error)

	// NormalizeLogs is installed on the Log Channel by the pipeline; it
	// consumes raw Stdout/Stderr messages and emits Normalized entries
	// alongside via emit. It runs as a cooperative task bound to ctx.
	NormalizeLogs(ctx context.Context, sub Subscriber, worktreePath string, emit func(msg any)) error

	// DefaultConfigPath is an optional path hint for the adapter's
	// installation; empty if not applicable.
	DefaultConfigPath() string

	// Availability is a cheap probe for UI/status.
	Availability(ctx context.Context) Availability
}

// Subscriber is the minimal Log Channel read surface NormalizeLogs needs,
// narrowed so this package does not import logchannel's concrete type;
// *logchannel.Subscription satisfies it.
type Subscriber interface {
	Messages() <-chan any
}

// Registry maps executor-type tags to adapter constructors (spec.md §9:
// "a registry maps executor-type tags to adapter constructors; unknown
// tags produce an UnknownExecutorType error rather than panicking").
type Registry struct {
	constructors map[string]func() Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]func() Adapter)}
}

// Register associates a tag with a constructor.
func (r *Registry) Register(tag string, ctor func() Adapter) {
	r.constructors[tag] = ctor
}

// New constructs the adapter for tag, or ErrUnknownExecutorType.
func (r *Registry) New(tag string) (Adapter, error) {
	ctor, ok := r.constructors[tag]
	if !ok {
		return nil, ErrUnknownExecutorType
	}
	return ctor(), nil
}
