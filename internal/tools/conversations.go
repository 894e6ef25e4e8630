package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ConversationsTool handles the council_conversations MCP tool: list the
// stored conversations and, optionally, the runs inside one.
type ConversationsTool struct {
	store Store
}

// NewConversationsTool creates a ConversationsTool.
func NewConversationsTool(store Store) *ConversationsTool {
	return &ConversationsTool{store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *ConversationsTool) Definition() mcp.Tool {
	return mcp.NewTool("council_conversations",
		mcp.WithDescription(
			"List stored conversations with their run counts. When "+
				"`conversation_id` is given, lists that conversation's runs "+
				"instead.",
		),
		mcp.WithString("conversation_id",
			mcp.Description("Conversation whose runs should be listed."),
		),
	)
}

// Handle processes the council_conversations tool call.
func (t *ConversationsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	convID := req.GetString("conversation_id", "")

	if convID != "" {
		runs, err := t.store.ListRuns(convID)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		if len(runs) == 0 {
			return mcp.NewToolResultText("No runs in this conversation."), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "# Runs in `%s`\n\n", convID)
		b.WriteString("| Run | Status | Next stage | Query |\n")
		b.WriteString("|-----|--------|------------|-------|\n")
		for _, r := range runs {
			query := r.Query
			if len(query) > 60 {
				query = query[:57] + "..."
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", r.ID, r.Status, r.NextStage, query)
		}
		return mcp.NewToolResultText(b.String()), nil
	}

	convs, err := t.store.ListConversations()
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if len(convs) == 0 {
		return mcp.NewToolResultText("No conversations yet. Use `council_ask` to start one."), nil
	}

	var b strings.Builder
	b.WriteString("# Conversations\n\n")
	b.WriteString("| ID | Title | Runs | Created |\n")
	b.WriteString("|----|-------|------|--------|\n")
	for _, c := range convs {
		fmt.Fprintf(&b, "| `%s` | %s | %d | %s |\n", c.ID, c.Title, c.RunCount, c.CreatedAt)
	}
	return mcp.NewToolResultText(b.String()), nil
}
