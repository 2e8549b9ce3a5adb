// Package mcpapi exposes a subset of the Workspace/Attempt State
// operations (C7) as MCP tools, the "external tool" surface spec.md §4.7
// names as a caller of resolve_container_ref/load_context.
//
// Grounded on the southerncoder-gh-aw mcp-server command's
// mcp.NewServer/mcp.AddTool wiring (typed args struct, jsonschema tags,
// tool-level failures returned as a *jsonrpc.Error rather than a bare Go
// error) and pkg/mcp/executor.go's convention that a failed tool call is
// content, not a connection-level error.
package mcpapi

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/execflow/internal/workspace"
)

// NewServer builds an MCP server exposing resolve_container_ref and
// load_context over svc.
func NewServer(svc *workspace.Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "execflow",
		Version: "1",
	}, &mcp.ServerOptions{
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	})

	type resolveArgs struct {
		OpaqueRef string `json:"opaque_ref" jsonschema:"Opaque container reference produced by an external tool"`
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_container_ref",
		Description: "Resolve an opaque container reference into attempt_id, task_id, and project_id.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args resolveArgs) (*mcp.CallToolResult, any, error) {
		ref, err := svc.ResolveContainerRef(ctx, args.OpaqueRef)
		if err != nil {
			return nil, nil, &jsonrpc.Error{
				Code:    jsonrpc.CodeInvalidParams,
				Message: "could not resolve container ref",
				Data:    errorData(err),
			}
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: ref.AttemptID}},
		}, ref, nil
	})

	type loadContextArgs struct {
		AttemptID string `json:"attempt_id" jsonschema:"Attempt id (workspace)"`
		TaskID    string `json:"task_id" jsonschema:"Task id; accepted but not used to build the snapshot"`
		ProjectID string `json:"project_id" jsonschema:"Project id; accepted but not used to build the snapshot"`
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "load_context",
		Description: "Load the current workspace snapshot: attempt, latest execution process, and any pending approval.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args loadContextArgs) (*mcp.CallToolResult, any, error) {
		snap, err := svc.LoadContext(ctx, args.AttemptID, args.TaskID, args.ProjectID)
		if err != nil {
			return nil, nil, &jsonrpc.Error{
				Code:    jsonrpc.CodeInternalError,
				Message: "could not load workspace context",
				Data:    errorData(err),
			}
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: snap.Attempt.ID}},
		}, snap, nil
	})

	return server
}

func errorData(err error) json.RawMessage {
	data, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
	if marshalErr != nil {
		return nil
	}
	return data
}
