package threeprof

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/3jsLive/tasks/idgen"
	"github.com/3jsLive/tasks/kit"
)

// RegisterMCP registers the threeprof tools on an MCP server.
func (t *Tools) RegisterMCP(srv *mcp.Server) {
	t.registerResolveTool(srv)
	t.registerCatalogTool(srv)
	t.registerRunsTool(srv)
	t.registerRunArtifactsTool(srv)
}

func (t *Tools) wrap(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(requestID, kit.Logging(t.logger, name))(e)
}

func requestID(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		if kit.GetRequestID(ctx) == "" {
			ctx = kit.WithRequestID(ctx, idgen.New())
		}
		return next(ctx, req)
	}
}

// --- resolve ---

type resolveReq struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

func (t *Tools) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "threeprof_resolve",
		Description: "Resolve a raw coverage file (or full profiling result) to a dependency table of authored source locations.",
		InputSchema: kit.InputSchema(map[string]any{
			"input":  map[string]any{"type": "string", "description": "Coverage or profiling result JSON file"},
			"output": map[string]any{"type": "string", "description": "Output file; defaults to <input>_parsed"},
		}, "input"),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(resolveReq)
		return t.Resolve(ctx, r.Input, r.Output)
	}
	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), kit.DecodeJSON[resolveReq]())
}

// --- catalog ---

type catalogReq struct {
	Repo string `json:"repo"`
}

func (t *Tools) registerCatalogTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "threeprof_catalog",
		Description: "List the shader chunks, shader libraries and uniform groups of a three.js checkout.",
		InputSchema: kit.InputSchema(map[string]any{
			"repo": map[string]any{"type": "string", "description": "Repository path; defaults to the configured one"},
		}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return t.Catalog(ctx, req.(catalogReq).Repo)
	}
	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), kit.DecodeJSON[catalogReq]())
}

// --- runs ---

type runsReq struct {
	Limit int `json:"limit"`
}

func (t *Tools) registerRunsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "threeprof_runs",
		Description: "List recorded profiling campaigns, newest first.",
		InputSchema: kit.InputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum runs (default 20)"},
		}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		runs, err := t.Runs(ctx, req.(runsReq).Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"runs": runs}, nil
	}
	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), kit.DecodeJSON[runsReq]())
}

// --- run artifacts ---

type runArtifactsReq struct {
	RunID       string `json:"run_id"`
	ChangedOnly bool   `json:"changed_only"`
}

func (t *Tools) registerRunArtifactsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "threeprof_run_artifacts",
		Description: "List the artifacts of a run with their digests, optionally only those changed since the previous run.",
		InputSchema: kit.InputSchema(map[string]any{
			"run_id":       map[string]any{"type": "string", "description": "Run identifier"},
			"changed_only": map[string]any{"type": "boolean", "description": "Keep artifacts whose digest changed"},
		}, "run_id"),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(runArtifactsReq)
		arts, err := t.RunArtifacts(ctx, r.RunID, r.ChangedOnly)
		if err != nil {
			return nil, err
		}
		return map[string]any{"run_id": r.RunID, "artifacts": arts}, nil
	}
	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), kit.DecodeJSON[runArtifactsReq]())
}
