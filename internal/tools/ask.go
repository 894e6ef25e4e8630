package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pedroramos256/bundlecarte/internal/council"
)

// AskTool handles the council_ask MCP tool: it creates a run for a query
// and executes the full auction pipeline to completion.
type AskTool struct {
	ctrl  *council.Controller
	store Store
}

// NewAskTool creates an AskTool.
func NewAskTool(ctrl *council.Controller, store Store) *AskTool {
	return &AskTool{ctrl: ctrl, store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool("council_ask",
		mcp.WithDescription(
			"Submit a query to the agent council. Runs the full seven-stage "+
				"auction: bidding, answer collection, aggregation, negotiation, "+
				"and settlement. Returns the synthesized answer and the payout "+
				"table. Long-running — each stage waits on multiple model calls.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The user question to put before the council."),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Conversation to attach the run to. A new conversation is created when omitted."),
		),
	)
}

// Handle processes the council_ask tool call.
func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("`query` is required."), nil
	}

	convID := req.GetString("conversation_id", "")
	if convID == "" {
		convID = uuid.NewString()
		if _, err := t.store.CreateConversation(convID, ""); err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
	} else {
		conv, err := t.store.GetConversation(convID)
		if err != nil {
			return nil, fmt.Errorf("loading conversation: %w", err)
		}
		if conv == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Conversation %q not found.", convID)), nil
		}
	}

	state, err := t.ctrl.StartRun(convID, query)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	report, err := t.ctrl.Run(ctx, state.ID)
	if err != nil {
		if errors.Is(err, council.ErrEmptyPanel) {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Run %s failed: no agents responded. Nothing was settled.", state.ID)), nil
		}
		return nil, fmt.Errorf("running pipeline: %w", err)
	}

	final, err := t.store.LoadRun(state.ID)
	if err != nil {
		return nil, fmt.Errorf("loading finished run: %w", err)
	}
	return mcp.NewToolResultText(renderRunResult(final, report)), nil
}
