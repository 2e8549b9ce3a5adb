// Package localcli implements the local-CLI-subprocess variant of the
// Executor Adapter: each model is a different binary, spawned as a child
// process whose stdio is piped back to the Log Writer.
package localcli

import (
	"context"
	"os/exec"
	"strings"

	"github.com/codeready-toolchain/execflow/internal/executor"
)

// Adapter spawns Binary with Args, passing prompt on stdin.
type Adapter struct {
	Binary string
	Args   []string
}

// New constructs an Adapter for the given binary.
func New(binary string, args ...string) *Adapter {
	return &Adapter{Binary: binary, Args: args}
}

func (a *Adapter) Spawn(ctx context.Context, cwd, prompt string, env executor.Env) (*executor.SpawnedChild, error) {
	return a.spawn(ctx, cwd, prompt, env, nil)
}

func (a *Adapter) SpawnFollowUp(ctx context.Context, cwd, prompt, sessionID string, env executor.Env) (*executor.SpawnedChild, error) {
	return a.spawn(ctx, cwd, prompt, env, &sessionID)
}

func (a *Adapter) spawn(ctx context.Context, cwd, prompt string, env executor.Env, sessionID *string) (*executor.SpawnedChild, error) {
	args := append([]string{}, a.Args...)
	if sessionID != nil {
		args = append(args, "--resume", *sessionID)
	}

	cmd := exec.CommandContext(ctx, a.Binary, args...)
	cmd.Dir = cwd
	cmd.Stdin = strings.NewReader(prompt)
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errSpawn(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errSpawn(err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errSpawn(err)
	}

	return &executor.SpawnedChild{
		Stdout: stdout,
		Stderr: stderr,
		Wait: func(context.Context) (int, error) {
			err := cmd.Wait()
			if err == nil {
				return 0, nil
			}
			if exitErr, ok := err.(*exec.ExitError); ok {
				return exitErr.ExitCode(), nil
			}
			return -1, err // I/O error, not a clean non-zero exit
		},
		Cancel: func() {
			if cmd.Process == nil {
				return
			}
			_ = cmd.Process.Signal(terminateSignal())
			go killAfterGrace(cmd)
		},
	}, nil
}

func (a *Adapter) NormalizeLogs(ctx context.Context, sub executor.Subscriber, _ string, emit func(any)) error {
	// No structured normalization for a generic local CLI binary without
	// a known output grammar; pass raw messages through unmodified. A
	// model-specific adapter (not implemented here — spec.md §1 excludes
	// "model-specific executor adapters... except for the minimal
	// interface the core consumes") would parse stdout here instead.
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

func (a *Adapter) Availability(ctx context.Context) executor.Availability {
	if _, err := exec.LookPath(a.Binary); err != nil {
		return executor.NotFound
	}
	return executor.Installed
}

func errSpawn(err error) error {
	return &spawnError{err: err}
}

type spawnError struct{ err error }

func (e *spawnError) Error() string { return "executor: spawn failed: " + e.err.Error() }
func (e *spawnError) Unwrap() error { return executor.ErrSpawnFailed }
