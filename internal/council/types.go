// Package council implements the seven-stage auction-and-negotiation
// protocol that produces one synthesized answer and a monetary settlement
// reflecting each agent's marginal contribution.
//
// A run walks a fixed stage sequence: bidding, answer collection,
// aggregation, self-evaluation, counter-decision, final acceptance,
// settlement. Stage functions are pure with respect to storage — they take
// inputs and produce outputs; the Controller is the only writer of run
// state. Concurrency exists only inside a stage, across independent agents.
//
// This package follows the same design principles as the rest of the repo:
// - SRP: types, parsing, prompts, stages, and the controller in separate files
// - DIP: Generator and Store are interfaces; the controller depends on the abstractions
// - OCP: stage framing lives in prompts.go; stage mechanics never inspect prompt text
package council

import (
	"context"
	"errors"
	"time"
)

// --- Stage enum ---

// Stage is the ordinal position of a step in the fixed pipeline.
type Stage int

const (
	StageBidding Stage = iota
	StageAnswers
	StageAggregation
	StageSelfEvaluation
	StageCounterDecision
	StageFinalAcceptance
	StageSettlement

	// NumStages is the total number of pipeline stages.
	NumStages = 7
)

var stageNames = [NumStages]string{
	"bidding",
	"answers",
	"aggregation",
	"self-evaluation",
	"counter-decision",
	"final-acceptance",
	"settlement",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= NumStages {
		return "unknown"
	}
	return stageNames[s]
}

// --- Run status enum ---

// Status tracks the overall lifecycle of a run.
type Status string

const (
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// --- Errors ---

// ErrEmptyPanel is the only fatal protocol condition: zero responsive
// agents in bidding or answer collection. No settlement is computed.
var ErrEmptyPanel = errors.New("council: no responsive agents")

// ErrRunNotFound is returned by stores when a run id is unknown.
var ErrRunNotFound = errors.New("council: run not found")

// --- Core data structures ---

// Agent identifies one answering model: an id, the backend model string,
// and its cost rate in dollars per million tokens. Immutable per run.
type Agent struct {
	ID    string  `json:"id"`
	Model string  `json:"model"`
	Rate  float64 `json:"rate_per_million"`
}

// Bid is one agent's self-declared token usage from the bidding stage.
type Bid struct {
	Agent         Agent   `json:"agent"`
	ClaimedTokens int     `json:"claimed_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
	Selected      bool    `json:"selected"`
	Outcome       Outcome `json:"parse_outcome"`
}

// BidSheet is the bidding stage output: every received bid (sorted
// ascending by estimated cost, annotated selected/not), the selected
// panel, and the aggregator for the run.
type BidSheet struct {
	Bids       []Bid   `json:"bids"`
	Panel      []Agent `json:"panel"`
	Aggregator Agent   `json:"aggregator"`
}

// TotalPanelCost is the sum of estimated costs over selected bids only.
func (s *BidSheet) TotalPanelCost() float64 {
	var total float64
	for _, b := range s.Bids {
		if b.Selected {
			total += b.EstimatedCost
		}
	}
	return total
}

// Budget returns the claimed token count for a panel agent, or 0 if the
// agent has no bid.
func (s *BidSheet) Budget(agentID string) int {
	for _, b := range s.Bids {
		if b.Agent.ID == agentID {
			return b.ClaimedTokens
		}
	}
	return 0
}

// cost returns the estimated cost for an agent's bid, or 0.
func (s *BidSheet) cost(agentID string) float64 {
	for _, b := range s.Bids {
		if b.Agent.ID == agentID {
			return b.EstimatedCost
		}
	}
	return 0
}

// Answer is one panel agent's individual answer. An agent absent from the
// answer set has dropped out for the rest of the run.
type Answer struct {
	Agent Agent  `json:"agent"`
	Text  string `json:"text"`
}

// AggregateAnswer is the aggregation stage output: the synthesized answer
// plus the aggregator's initial contribution score per answering agent.
// Invariant: the scores sum to at most 100 (renormalized when the raw
// response violates it).
type AggregateAnswer struct {
	Text          string             `json:"aggregated_answer"`
	InitialScores map[string]float64 `json:"initial_scores"`
	Renormalized  bool               `json:"renormalized"`
	Outcome       Outcome            `json:"parse_outcome"`
}

// SelfEvaluation is one agent's contested (or confirmed) score claim.
// Invariant: Claim >= the agent's initial score.
type SelfEvaluation struct {
	Agent     Agent   `json:"agent"`
	Arguments string  `json:"arguments"`
	Claim     float64 `json:"self_claim"`
	Outcome   Outcome `json:"parse_outcome"`
}

// CounterDecision is the aggregator's arbitration: an authoritative
// internal decision per agent (used for settlement) and a communicated
// decision (shown to the agent — the aggregator may bluff).
// Invariant: Internal[id] >= that agent's initial score.
type CounterDecision struct {
	Internal     map[string]float64 `json:"internal"`
	Communicated map[string]float64 `json:"communicated"`
	Fallback     bool               `json:"fallback"`
	Outcome      Outcome            `json:"parse_outcome"`
}

// FinalClaim is one agent's final score submission.
// Invariant: 0 <= Claim <= the agent's self claim.
type FinalClaim struct {
	Agent   Agent   `json:"agent"`
	Claim   float64 `json:"final_claim"`
	Outcome Outcome `json:"parse_outcome"`
}

// Settlement holds one agent's computed payout.
type Settlement struct {
	AgentID        string  `json:"agent_id"`
	PayoutScore    float64 `json:"payout_score"`
	AggregatorPays float64 `json:"aggregator_pays"`
	PayoutAmount   float64 `json:"payout_amount"`
	Cost           float64 `json:"cost"`
	Profit         float64 `json:"profit"`
}

// SettlementReport is the settlement stage output for the whole panel.
type SettlementReport struct {
	Settlements        []Settlement `json:"settlements"`
	TotalPanelCost     float64      `json:"total_panel_cost"`
	TotalPaidScore     float64      `json:"total_paid_score"`
	AggregatorScore    float64      `json:"aggregator_score"`
	AggregatorEarnings float64      `json:"aggregator_earnings"`
}

// RunState is the persisted state of one pipeline run: stage payloads
// (nil until produced), the lifecycle status, and the next stage index.
// The Controller is its only writer after each stage boundary.
type RunState struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Query          string            `json:"query"`
	Status         Status            `json:"status"`
	NextStage      Stage             `json:"next_stage"`
	Payloads       [NumStages][]byte `json:"-"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
}

// --- Ports ---

// Generator is the sole required outside capability: produce text for a
// model under a token cap and a deadline. Any backend satisfying this
// contract is pluggable.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, maxTokens int, timeout time.Duration) (string, error)
}

// Store is the persistence contract for run state. It must support
// partial writes (one stage's completion writes only its own payload) so
// the controller can resume from the first incomplete stage.
type Store interface {
	CreateRun(state *RunState) error
	LoadRun(runID string) (*RunState, error)
	SaveStage(runID string, stage Stage, payload []byte) error
	SetStatus(runID string, status Status, nextStage Stage) error
}

// --- Config ---

// Config holds the protocol parameters for a run. Injected explicitly at
// construction; there are no ambient globals.
type Config struct {
	// Agents is the ordered candidate roster solicited during bidding.
	Agents []Agent
	// FallbackAggregator arbitrates when no bid selects an aggregator.
	FallbackAggregator Agent
	// PanelSize is the number of cheapest bidders selected to answer.
	PanelSize int
	// PenaltyAlpha scales the asymmetric overreach penalty in settlement.
	PenaltyAlpha float64

	// Bids must be fast; answer generation may be slow.
	BidTimeout        time.Duration
	AnswerTimeout     time.Duration
	AggregatorTimeout time.Duration
}

// DefaultConfig returns protocol parameters matching the production
// deployment: a panel of 3, a 20% overreach penalty, and a bid timeout
// markedly shorter than the generation timeouts.
func DefaultConfig() Config {
	return Config{
		PanelSize:         3,
		PenaltyAlpha:      0.2,
		BidTimeout:        15 * time.Second,
		AnswerTimeout:     240 * time.Second,
		AggregatorTimeout: 120 * time.Second,
	}
}

// Validate returns an error if the configuration cannot drive a run.
func (c Config) Validate() error {
	if len(c.Agents) == 0 {
		return errors.New("council: config has no agents")
	}
	if c.PanelSize < 1 {
		return errors.New("council: panel size must be at least 1")
	}
	if c.PenaltyAlpha < 0 {
		return errors.New("council: penalty alpha must be non-negative")
	}
	if c.BidTimeout <= 0 || c.AnswerTimeout <= 0 || c.AggregatorTimeout <= 0 {
		return errors.New("council: timeouts must be positive")
	}
	return nil
}
