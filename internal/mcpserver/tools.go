package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	agentdetector "github.com/kandev/agenthost/internal/agents/detector"
	agentmodels "github.com/kandev/agenthost/internal/agents/models"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/launch"
)

func registerTools(s *server.MCPServer, deps Deps, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("list_applications",
			mcp.WithDescription("List the terminals, editors and file managers installed on this machine. "+
				"Use the identifier of an entry with open_with."),
			mcp.WithString("category",
				mcp.Description("Only return applications of this category: terminal, editor, file_manager or other (optional)"),
			),
		),
		listApplicationsHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("list_agents",
			mcp.WithDescription("List the coding agent CLIs and whether each is installed, with its version."),
			mcp.WithBoolean("include_wsl",
				mcp.Description("Also probe agents inside WSL (Windows only)"),
			),
		),
		listAgentsHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("open_with",
			mcp.WithDescription("Open a file or directory in an installed application."),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Absolute path of the file or directory"),
			),
			mcp.WithString("identifier",
				mcp.Required(),
				mcp.Description("Application identifier from list_applications"),
			),
			mcp.WithNumber("line",
				mcp.Description("Line to jump to when opening a file in an editor (optional)"),
			),
			mcp.WithString("workspace_path",
				mcp.Description("Workspace to open alongside the file (optional)"),
			),
		),
		openWithHandler(deps, log),
	)

	log.Info("registered MCP tools", zap.Int("count", 3))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func listApplicationsHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category := req.GetString("category", "")
		snap := deps.Apps.Detect(ctx)
		if category == "" {
			return jsonResult(snap.Apps)
		}
		filtered := snap.Apps[:0:0]
		for _, app := range snap.Apps {
			if string(app.Category) == category {
				filtered = append(filtered, app)
			}
		}
		return jsonResult(filtered)
	}
}

func listAgentsHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts := agentdetector.DetectOptions{IncludeWSL: req.GetBool("include_wsl", false)}
		var custom []agentmodels.CustomAgent
		if deps.CustomAgents != nil {
			custom = deps.CustomAgents()
		}
		status := deps.Agents.DetectAll(ctx, custom, opts)
		return jsonResult(status.Agents)
	}
}

func openWithHandler(deps Deps, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		identifier, err := req.RequireString("identifier")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts := launch.Options{
			Line:          req.GetInt("line", 0),
			WorkspacePath: req.GetString("workspace_path", ""),
		}

		err = deps.Launcher.Open(ctx, path, identifier, opts)
		switch {
		case errors.Is(err, launch.ErrApplicationNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("Application %q not found. Call list_applications first.", identifier)), nil
		case err != nil:
			log.Warn("open_with failed", zap.String("identifier", identifier), zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to open %s: %v", path, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Opened %s with %s", path, identifier)), nil
	}
}
