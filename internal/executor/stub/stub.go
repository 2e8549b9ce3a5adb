// Package stub provides a no-op Adapter used by tests and as the
// composition root's safe fallback when no real adapter is configured,
// grounded on pkg/queue/executor_stub.go's stub-fallback convention.
package stub

import (
	"context"
	"io"

	"github.com/codeready-toolchain/execflow/internal/executor"
)

// Adapter spawns nothing: Spawn returns an already-closed child whose
// Wait returns exit code 0 immediately. Useful for exercising the
// pipeline's plumbing without a real coding-agent binary.
type Adapter struct{}

// New constructs a stub Adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Spawn(_ context.Context, _, _ string, _ executor.Env) (*executor.SpawnedChild, error) {
	return a.spawnedChild(), nil
}

func (a *Adapter) SpawnFollowUp(_ context.Context, _, _, _ string, _ executor.Env) (*executor.SpawnedChild, error) {
	return a.spawnedChild(), nil
}

func (a *Adapter) spawnedChild() *executor.SpawnedChild {
	stdout := io.NopCloser(newEmptyReader())
	stderr := io.NopCloser(newEmptyReader())
	return &executor.SpawnedChild{
		Stdout: stdout,
		Stderr: stderr,
		Wait:   func(context.Context) (int, error) { return 0, nil },
		Cancel: func() {},
	}
}

func (a *Adapter) NormalizeLogs(ctx context.Context, sub executor.Subscriber, _ string, emit func(any)) error {
	for {
		select {
		case _, ok := <-sub.Messages():
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *Adapter) DefaultConfigPath() string { return "" }

func (a *Adapter) Availability(context.Context) executor.Availability {
	return executor.Installed
}

type emptyReader struct{}

func newEmptyReader() *emptyReader { return &emptyReader{} }

func (*emptyReader) Read(_ []byte) (int, error) { return 0, io.EOF }
