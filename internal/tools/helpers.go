// Package tools implements the MCP tools exposed by councild: submit a
// query to the council, resume an interrupted run, and inspect progress.
// Tools only translate arguments and render results — the protocol lives
// in the council package.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pedroramos256/bundlecarte/internal/council"
	"github.com/pedroramos256/bundlecarte/internal/store"
)

// Store is what the tools need from persistence. *store.SQLite satisfies
// it; tests use fakes.
type Store interface {
	CreateConversation(id, title string) (*store.Conversation, error)
	GetConversation(id string) (*store.Conversation, error)
	ListConversations() ([]store.Conversation, error)
	ListRuns(conversationID string) ([]council.RunState, error)
	LoadRun(runID string) (*council.RunState, error)
}

// decodeAggregate pulls the synthesized answer out of a run's stored
// aggregation payload, or "" when the stage has not completed.
func decodeAggregate(state *council.RunState) string {
	payload := state.Payloads[council.StageAggregation]
	if payload == nil {
		return ""
	}
	var agg council.AggregateAnswer
	if err := json.Unmarshal(payload, &agg); err != nil {
		return ""
	}
	return agg.Text
}

// renderRunResult renders the aggregate answer plus the settlement table.
func renderRunResult(state *council.RunState, report *council.SettlementReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Council Result\n\n**Run:** `%s`\n\n", state.ID)

	if answer := decodeAggregate(state); answer != "" {
		fmt.Fprintf(&b, "## Answer\n\n%s\n\n", answer)
	}

	b.WriteString(renderSettlement(report))
	return b.String()
}

// renderSettlement renders the per-agent payout table and the
// aggregator's bottom line.
func renderSettlement(report *council.SettlementReport) string {
	var b strings.Builder
	b.WriteString("## Settlement\n\n")
	b.WriteString("| Agent | Payout | Paid | Cost | Profit |\n")
	b.WriteString("|-------|--------|------|------|--------|\n")
	for _, s := range report.Settlements {
		fmt.Fprintf(&b, "| %s | %.1f%% | $%.4f | $%.4f | $%.4f |\n",
			s.AgentID, s.PayoutScore, s.PayoutAmount, s.Cost, s.Profit)
	}
	fmt.Fprintf(&b, "\n**Total panel cost:** $%.4f\n", report.TotalPanelCost)
	fmt.Fprintf(&b, "**Aggregator earnings:** $%.4f (%.1f%% of pool)\n",
		report.AggregatorEarnings, report.AggregatorScore)
	return b.String()
}

// renderStages renders a stage progress table for a run.
func renderStages(state *council.RunState) string {
	var b strings.Builder
	b.WriteString("| Stage | Status |\n")
	b.WriteString("|-------|--------|\n")
	for st := council.Stage(0); st < council.NumStages; st++ {
		marker := "⬜ pending"
		switch {
		case st < state.NextStage && state.Payloads[st] != nil:
			marker = "✅ completed"
		case st == state.NextStage && state.Status == council.StatusProcessing:
			marker = "🔄 in progress"
		case st == state.NextStage && state.Status == council.StatusError:
			marker = "❌ failed"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", st, marker)
	}
	return b.String()
}
