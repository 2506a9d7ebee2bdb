// Package mcpserver exposes the pipeline controller to AI assistants over
// the Model Context Protocol. Tools map one-to-one onto controller
// operations; the transport is stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"aetherlens/internal/config"
	"aetherlens/internal/pipeline"
	"aetherlens/pkg/logging"
)

// Server wires controller operations into MCP tools.
type Server struct {
	ctrl    *pipeline.Controller
	version string

	// serveStdio is swapped in tests.
	serveStdio func(*server.MCPServer) error
}

// New creates an MCP server around the controller.
func New(ctrl *pipeline.Controller, version string) *Server {
	return &Server{
		ctrl:       ctrl,
		version:    version,
		serveStdio: func(s *server.MCPServer) error { return server.ServeStdio(s) },
	}
}

// Serve registers all tools and blocks on the stdio transport.
func (s *Server) Serve() error {
	mcpServer := server.NewMCPServer(
		"aether-lens",
		s.version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	logging.Info("MCPServer", "serving %d tools over stdio", len(s.toolNames()))
	return s.serveStdio(mcpServer)
}

func (s *Server) toolNames() []string {
	return []string{"run_pipeline", "get_insight", "get_pipeline_history", "start_watch", "stop_watch", "list_watches", "init_lens"}
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("run_pipeline",
		mcp.WithDescription("Run the full test pipeline against a project directory"),
		mcp.WithString("target_dir",
			mcp.Required(),
			mcp.Description("Project directory to run against"),
		),
		mcp.WithString("diff",
			mcp.Description("Change set to analyze; read from version control when omitted"),
		),
		mcp.WithString("strategy",
			mcp.Description("Override the configured analysis strategy (comma-separated labels allowed)"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Run the plan even when no changes are detected"),
		),
	), s.handleRunPipeline)

	mcpServer.AddTool(mcp.NewTool("get_insight",
		mcp.WithDescription("Analyze pending changes and return the recommended test plan without executing it"),
		mcp.WithString("target_dir",
			mcp.Required(),
			mcp.Description("Project directory to analyze"),
		),
		mcp.WithString("diff",
			mcp.Description("Change set to analyze; read from version control when omitted"),
		),
	), s.handleGetInsight)

	mcpServer.AddTool(mcp.NewTool("get_pipeline_history",
		mcp.WithDescription("Return the most recent pipeline session recorded for a project"),
		mcp.WithString("target_dir",
			mcp.Required(),
			mcp.Description("Project directory to inspect"),
		),
	), s.handleGetPipelineHistory)

	mcpServer.AddTool(mcp.NewTool("start_watch",
		mcp.WithDescription("Start a dev-loop watch on a project directory; changes trigger pipeline runs"),
		mcp.WithString("target_dir",
			mcp.Required(),
			mcp.Description("Project directory to watch"),
		),
	), s.handleStartWatch)

	mcpServer.AddTool(mcp.NewTool("stop_watch",
		mcp.WithDescription("Stop the watch on a project directory"),
		mcp.WithString("target_dir",
			mcp.Required(),
			mcp.Description("Project directory to stop watching"),
		),
	), s.handleStopWatch)

	mcpServer.AddTool(mcp.NewTool("list_watches",
		mcp.WithDescription("List directories currently being watched"),
	), s.handleListWatches)

	mcpServer.AddTool(mcp.NewTool("init_lens",
		mcp.WithDescription("Write a default aether-lens config file into a project directory"),
		mcp.WithString("target_dir",
			mcp.Required(),
			mcp.Description("Project directory to initialize"),
		),
		mcp.WithString("strategy",
			mcp.Description("Initial analysis strategy (default: auto)"),
		),
		mcp.WithString("endpoint_strategy",
			mcp.Description("Initial endpoint strategy: local, docker, kubernetes, or dry-run"),
		),
		mcp.WithString("allure_strategy",
			mcp.Description("Report export mode (default: none)"),
		),
	), s.handleInitLens)
}

func (s *Server) handleRunPipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	targetDir := stringArg(args, "target_dir")
	if targetDir == "" {
		return mcp.NewToolResultError("target_dir parameter is required"), nil
	}

	opts := pipeline.Options{
		Diff:  stringArg(args, "diff"),
		Force: boolArg(args, "force"),
	}
	opts.Overrides.Strategy = stringArg(args, "strategy")

	results, err := s.ctrl.RunPipeline(ctx, targetDir, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Pipeline failed: %v", err)), nil
	}
	if results == nil {
		return mcp.NewToolResultText("No changes detected, nothing to run."), nil
	}
	return jsonResult(results)
}

func (s *Server) handleGetInsight(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	targetDir := stringArg(args, "target_dir")
	if targetDir == "" {
		return mcp.NewToolResultError("target_dir parameter is required"), nil
	}

	plan, err := s.ctrl.GetInsight(ctx, targetDir, pipeline.Options{Diff: stringArg(args, "diff")})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}
	return jsonResult(plan)
}

func (s *Server) handleGetPipelineHistory(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targetDir := stringArg(request.GetArguments(), "target_dir")
	if targetDir == "" {
		return mcp.NewToolResultError("target_dir parameter is required"), nil
	}
	session, err := pipeline.LoadLatestSession(targetDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("No session history for %s: %v", targetDir, err)), nil
	}
	return jsonResult(session)
}

func (s *Server) handleStartWatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targetDir := stringArg(request.GetArguments(), "target_dir")
	if targetDir == "" {
		return mcp.NewToolResultError("target_dir parameter is required"), nil
	}
	if err := s.ctrl.StartWatch(context.WithoutCancel(ctx), targetDir, pipeline.Options{}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Could not start watch: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Watching %s", targetDir)), nil
}

func (s *Server) handleStopWatch(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targetDir := stringArg(request.GetArguments(), "target_dir")
	if targetDir == "" {
		return mcp.NewToolResultError("target_dir parameter is required"), nil
	}
	if !s.ctrl.StopWatch(targetDir) {
		return mcp.NewToolResultError(fmt.Sprintf("No watch active on %s", targetDir)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Stopped watching %s", targetDir)), nil
}

func (s *Server) handleListWatches(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dirs := s.ctrl.ListWatches()
	if len(dirs) == 0 {
		return mcp.NewToolResultText("No active watches."), nil
	}
	return jsonResult(dirs)
}

func (s *Server) handleInitLens(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	targetDir := stringArg(args, "target_dir")
	if targetDir == "" {
		return mcp.NewToolResultError("target_dir parameter is required"), nil
	}

	path, err := config.WriteDefault(targetDir,
		stringArg(args, "strategy"),
		stringArg(args, "endpoint_strategy"),
		stringArg(args, "allure_strategy"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Could not write config: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Wrote %s", path)), nil
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func boolArg(args map[string]interface{}, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
