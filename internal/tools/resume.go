package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pedroramos256/bundlecarte/internal/council"
)

// ResumeTool handles the council_resume MCP tool: it re-invokes the
// pipeline against an interrupted run. Completed stages are replayed
// from storage; only the remaining stages hit the backends.
type ResumeTool struct {
	ctrl  *council.Controller
	store Store
}

// NewResumeTool creates a ResumeTool.
func NewResumeTool(ctrl *council.Controller, store Store) *ResumeTool {
	return &ResumeTool{ctrl: ctrl, store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *ResumeTool) Definition() mcp.Tool {
	return mcp.NewTool("council_resume",
		mcp.WithDescription(
			"Resume an interrupted council run from its first incomplete "+
				"stage. Already-completed stages are not recomputed.",
		),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("The run to resume."),
		),
	)
}

// Handle processes the council_resume tool call.
func (t *ResumeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("run_id", "")
	if runID == "" {
		return mcp.NewToolResultError("`run_id` is required."), nil
	}

	report, err := t.ctrl.Run(ctx, runID)
	if err != nil {
		switch {
		case errors.Is(err, council.ErrRunNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("Run %q not found.", runID)), nil
		case errors.Is(err, council.ErrEmptyPanel):
			return mcp.NewToolResultError(fmt.Sprintf(
				"Run %s failed: no agents responded. Nothing was settled.", runID)), nil
		}
		return nil, fmt.Errorf("resuming run: %w", err)
	}

	final, err := t.store.LoadRun(runID)
	if err != nil {
		return nil, fmt.Errorf("loading finished run: %w", err)
	}
	return mcp.NewToolResultText(renderRunResult(final, report)), nil
}
