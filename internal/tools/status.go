package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pedroramos256/bundlecarte/internal/council"
)

// StatusTool handles the council_status MCP tool: stage-by-stage progress
// for one run.
type StatusTool struct {
	store Store
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(store Store) *StatusTool {
	return &StatusTool{store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("council_status",
		mcp.WithDescription(
			"Show the stage progress of a council run: which stages have "+
				"completed, where an interrupted run would resume, and the "+
				"run's lifecycle status.",
		),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("The run to inspect."),
		),
	)
}

// Handle processes the council_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("run_id", "")
	if runID == "" {
		return mcp.NewToolResultError("`run_id` is required."), nil
	}

	state, err := t.store.LoadRun(runID)
	if err != nil {
		if errors.Is(err, council.ErrRunNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Run %q not found.", runID)), nil
		}
		return nil, fmt.Errorf("loading run: %w", err)
	}

	response := fmt.Sprintf(
		"# Run Status\n\n"+
			"**ID:** `%s`\n"+
			"**Conversation:** `%s`\n"+
			"**Status:** %s\n"+
			"**Created:** %s\n"+
			"**Updated:** %s\n\n"+
			"## Stages\n\n%s",
		state.ID, state.ConversationID, state.Status,
		state.CreatedAt, state.UpdatedAt,
		renderStages(state),
	)
	return mcp.NewToolResultText(response), nil
}
