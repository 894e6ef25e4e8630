// Council-cli: run the council pipeline from a terminal, without an MCP
// client. Useful for trying a query, watching stage progress, and
// finishing interrupted runs.
//
// Usage:
//
//	council-cli ask "question"        # Run the full pipeline for a query
//	council-cli resume <run-id>       # Resume an interrupted run
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/pedroramos256/bundlecarte/internal/config"
	"github.com/pedroramos256/bundlecarte/internal/council"
	"github.com/pedroramos256/bundlecarte/internal/openrouter"
	"github.com/pedroramos256/bundlecarte/internal/store"
)

func main() {
	if len(os.Args) < 3 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "ask":
		err = run(os.Args[2], "")
	case "resume":
		err = run("", os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the pipeline: a fresh run for query, or a resume of
// runID. Exactly one of the two is set.
func run(query, runID string) error {
	cfg, err := config.Load(os.Getenv("COUNCIL_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	gen := openrouter.NewClient(cfg.APIKey, cfg.BaseURL)
	ctrl := council.NewController(cfg.Council(), gen, st, printEvent)

	if runID == "" {
		conv, err := st.CreateConversation(uuid.NewString(), "")
		if err != nil {
			return fmt.Errorf("creating conversation: %w", err)
		}
		state, err := ctrl.StartRun(conv.ID, query)
		if err != nil {
			return fmt.Errorf("starting run: %w", err)
		}
		runID = state.ID
		fmt.Fprintf(os.Stderr, "run %s started\n", runID)
	}

	// Interrupting leaves the run resumable; completed stages stay in
	// the store.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := ctrl.Run(ctx, runID)
	if err != nil {
		if errors.Is(err, council.ErrEmptyPanel) {
			return fmt.Errorf("no agents responded, nothing was settled")
		}
		return fmt.Errorf("run %s: %w (resume with: council-cli resume %s)", runID, err, runID)
	}

	printAnswer(st, runID)
	printReport(report)
	return nil
}

// printAnswer prints the synthesized answer from the stored aggregation
// stage. Best-effort: the settlement report is the primary output.
func printAnswer(st *store.SQLite, runID string) {
	state, err := st.LoadRun(runID)
	if err != nil {
		return
	}
	payload := state.Payloads[council.StageAggregation]
	if payload == nil {
		return
	}
	var agg council.AggregateAnswer
	if err := json.Unmarshal(payload, &agg); err != nil {
		return
	}
	fmt.Println(agg.Text)
}

// printEvent streams stage progress to stderr as the run executes.
func printEvent(ev council.Event) {
	switch ev.Type {
	case council.EventStageStart:
		fmt.Fprintf(os.Stderr, "▶ %s\n", ev.Stage)
	case council.EventStageComplete:
		if ev.Replayed {
			fmt.Fprintf(os.Stderr, "↻ %s (replayed)\n", ev.Stage)
			return
		}
		fmt.Fprintf(os.Stderr, "✔ %s\n", ev.Stage)
	case council.EventRunError:
		fmt.Fprintf(os.Stderr, "✖ %s: %s\n", ev.Stage, ev.Message)
	}
}

func printReport(report *council.SettlementReport) {
	fmt.Println("\nSettlement:")
	for _, s := range report.Settlements {
		fmt.Printf("  %-12s payout %5.1f%%  paid $%.4f  cost $%.4f  profit $%+.4f\n",
			s.AgentID, s.PayoutScore, s.PayoutAmount, s.Cost, s.Profit)
	}
	fmt.Printf("  total panel cost    $%.4f\n", report.TotalPanelCost)
	fmt.Printf("  aggregator earnings $%.4f (%.1f%% of pool)\n",
		report.AggregatorEarnings, report.AggregatorScore)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `council-cli — run the council from a terminal

Usage:
  council-cli ask "question"    Run the full pipeline for a query
  council-cli resume <run-id>   Resume an interrupted run

Environment:
  OPENROUTER_API_KEY   API key used for all model calls (required)
  COUNCIL_CONFIG       Optional path to a YAML config file
`)
}
