// Package server wires all MCP components and creates the server instance.
//
// This is the composition root (DIP): it creates concrete implementations
// and injects them into the tools that depend on abstractions. No business
// logic lives here — only wiring.
package server

import (
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/pedroramos256/bundlecarte/internal/config"
	"github.com/pedroramos256/bundlecarte/internal/council"
	"github.com/pedroramos256/bundlecarte/internal/openrouter"
	"github.com/pedroramos256/bundlecarte/internal/store"
	"github.com/pedroramos256/bundlecarte/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all council tools
// registered. This is the single place where all dependencies are
// resolved.
//
// The returned cleanup function closes the store's database connection
// and must be called on shutdown (typically via defer). It is always
// non-nil and safe to call.
func New(cfg config.Config) (*server.MCPServer, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, noop, fmt.Errorf("validating config: %w", err)
	}

	// --- Create shared dependencies ---

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, noop, fmt.Errorf("opening store: %w", err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Printf("WARNING: store close: %v", err)
		}
	}

	gen := openrouter.NewClient(cfg.APIKey, cfg.BaseURL)

	// Stage progress goes to stderr; stdout carries the MCP transport.
	ctrl := council.NewController(cfg.Council(), gen, st, logSink)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"councild",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register council tools ---

	askTool := tools.NewAskTool(ctrl, st)
	s.AddTool(askTool.Definition(), askTool.Handle)

	resumeTool := tools.NewResumeTool(ctrl, st)
	s.AddTool(resumeTool.Definition(), resumeTool.Handle)

	statusTool := tools.NewStatusTool(st)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	conversationsTool := tools.NewConversationsTool(st)
	s.AddTool(conversationsTool.Definition(), conversationsTool.Handle)

	return s, cleanup, nil
}

// noop is a no-op cleanup function used when initialization fails
// before the store is opened.
func noop() {}

// logSink logs pipeline events to stderr so progress is visible in the
// server log while a long run executes.
func logSink(ev council.Event) {
	switch ev.Type {
	case council.EventRunError:
		log.Printf("run %s: stage %s failed: %s", ev.RunID, ev.Stage, ev.Message)
	case council.EventRunComplete:
		log.Printf("run %s: complete", ev.RunID)
	case council.EventStageComplete:
		if ev.Replayed {
			log.Printf("run %s: stage %s replayed", ev.RunID, ev.Stage)
			return
		}
		log.Printf("run %s: stage %s complete", ev.RunID, ev.Stage)
	}
}

// serverInstructions returns the system instructions that tell the AI
// how to use the council effectively.
func serverInstructions() string {
	return `You have access to an LLM council: a panel of models that answer
queries through a token-bid auction and settle payment by negotiation.

## WHEN TO USE THE COUNCIL

Suggest council_ask when the user:
- Asks a hard, open-ended question where a single model's answer may be
  unreliable
- Explicitly wants multiple models' perspectives synthesized
- Asks to "ask the council" or compare model answers

Do NOT use it for trivial lookups or quick factual questions — each run
makes many model calls and takes minutes.

## HOW A RUN WORKS

1. BIDDING — every configured agent bids a token count for the query;
   the cheapest bids (token count × per-token rate) win panel seats.
   The cheapest bidder also becomes the aggregator.
2. ANSWERS — panel members answer within their bid token budgets.
3. AGGREGATION — the aggregator synthesizes one answer and scores each
   contribution (scores sum to at most 100).
4. SELF-EVALUATION — each agent argues for its contribution and claims
   a score (never below the aggregator's initial score).
5. COUNTER-DECISION — the aggregator decides internal payout scores and
   communicates (possibly bluffed, lower) offers.
6. FINAL ACCEPTANCE — each agent states the score it accepts.
7. SETTLEMENT — payouts are computed; over-claiming past the
   aggregator's internal decision is penalized for both sides.

## TOOLS

- council_ask: run the full pipeline for a query. Pass conversation_id
  to group related runs; omit it to start a new conversation.
- council_resume: continue an interrupted run. Completed stages are
  replayed from storage, not recomputed.
- council_status: per-stage progress of a run — use it when a run was
  cut off to see where it stopped.
- council_conversations: list conversations, or the runs inside one.

## IMPORTANT

- Runs are long. If a call times out or the session is interrupted,
  use council_status to find the run and council_resume to finish it.
- Present the synthesized answer to the user first; the settlement
  table is secondary detail unless the user asks about the economics.`
}
