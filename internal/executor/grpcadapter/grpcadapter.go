// Package grpcadapter implements the "marker adapter" variant of the
// Executor Adapter (spec.md §4.3): one that delegates the actual run to a
// remote service (e.g. a hosted issue-tracker-integrated executor)
// reached over gRPC, rather than spawning a local subprocess.
//
// Grounded on pkg/agent/llm_grpc.go's pattern of a long-lived
// grpc.ClientConn wrapping calls to an out-of-process service. No
// generated protobuf service stub ships in this module (there is no
// .proto compiler step to run here); requests and responses instead use
// the well-known google.golang.org/protobuf/types/known/structpb message
// type via grpc.ClientConn.Invoke, which needs no generated code while
// still exercising the real grpc/protobuf wire path.
package grpcadapter

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/codeready-toolchain/execflow/internal/executor"
)

const (
	methodSpawn         = "/execflow.remote.RemoteExecutor/Spawn"
	methodSpawnFollowUp = "/execflow.remote.RemoteExecutor/SpawnFollowUp"
	methodAvailability  = "/execflow.remote.RemoteExecutor/Availability"
)

// Adapter delegates spawn/follow-up calls to a remote executor service.
type Adapter struct {
	conn *grpc.ClientConn
}

// New wraps an already-dialed connection (ownership stays with the
// caller — Close is not called here, matching llm_grpc.go's convention
// of a shared, long-lived connection reused across calls).
func New(conn *grpc.ClientConn) *Adapter {
	return &Adapter{conn: conn}
}

func (a *Adapter) Spawn(ctx context.Context, cwd, prompt string, env executor.Env) (*executor.SpawnedChild, error) {
	return a.invoke(ctx, methodSpawn, cwd, prompt, "", env)
}

func (a *Adapter) SpawnFollowUp(ctx context.Context, cwd, prompt, sessionID string, env executor.Env) (*executor.SpawnedChild, error) {
	if sessionID == "" {
		return nil, executor.ErrFollowUpNotSupported
	}
	return a.invoke(ctx, methodSpawnFollowUp, cwd, prompt, sessionID, env)
}

func (a *Adapter) invoke(ctx context.Context, method, cwd, prompt, sessionID string, env executor.Env) (*executor.SpawnedChild, error) {
	fields := map[string]any{
		"cwd":    cwd,
		"prompt": prompt,
	}
	if sessionID != "" {
		fields["session_id"] = sessionID
	}
	if len(env) > 0 {
		envMap := make(map[string]any, len(env))
		for k, v := range env {
			envMap[k] = v
		}
		fields["env"] = envMap
	}

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", executor.ErrSpawnFailed, err)
	}

	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, method, req, resp); err != nil {
		return nil, fmt.Errorf("%w: %v", executor.ErrSpawnFailed, err)
	}

	child := &executor.SpawnedChild{
		Stdout: io.NopCloser(strings.NewReader(resp.Fields["stdout"].GetStringValue())),
		Stderr: io.NopCloser(strings.NewReader(resp.Fields["stderr"].GetStringValue())),
		Wait: func(context.Context) (int, error) {
			return int(resp.Fields["exit_code"].GetNumberValue()), nil
		},
		Cancel: func() {},
	}
	return child, nil
}

func (a *Adapter) NormalizeLogs(ctx context.Context, sub executor.Subscriber, _ string, _ func(any)) error {
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
	req := &structpb.Struct{}
	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, methodAvailability, req, resp); err != nil {
		return executor.NotFound
	}
	return executor.Installed
}
