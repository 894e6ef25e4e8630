package council

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeNow is a package-level var to allow test injection.
var timeNow = time.Now

// Controller sequences the seven stages against one RunState: produce a
// payload, persist it, advance. It is the only writer of run state, and
// stages run strictly sequentially relative to one run — concurrency
// exists only inside a stage, across independent agents.
type Controller struct {
	cfg   Config
	gen   Generator
	store Store
	sink  EventSink
}

// NewController creates a pipeline controller. The sink may be nil.
func NewController(cfg Config, gen Generator, store Store, sink EventSink) *Controller {
	return &Controller{cfg: cfg, gen: gen, store: store, sink: sink}
}

// StartRun creates and persists a fresh run for a query.
func (c *Controller) StartRun(conversationID, query string) (*RunState, error) {
	now := timeNow().UTC().Format(time.RFC3339)
	state := &RunState{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Query:          query,
		Status:         StatusActive,
		NextStage:      StageBidding,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.store.CreateRun(state); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return state, nil
}

// Run executes a run to completion, resuming from the first incomplete
// stage. Stages already completed are re-emitted from stored payloads
// rather than recomputed, which makes re-invocation idempotent: an
// interrupted run picks up exactly where it left off.
func (c *Controller) Run(ctx context.Context, runID string) (*SettlementReport, error) {
	state, err := c.store.LoadRun(runID)
	if err != nil {
		return nil, err
	}

	if state.Status != StatusCompleted {
		if err := c.store.SetStatus(runID, StatusProcessing, state.NextStage); err != nil {
			return nil, fmt.Errorf("marking run processing: %w", err)
		}
	}

	var data runData
	for st := Stage(0); st < NumStages; st++ {
		if payload := state.Payloads[st]; payload != nil && st < state.NextStage {
			if err := data.decode(st, payload); err != nil {
				return nil, fmt.Errorf("run %s: decoding stored %s payload: %w", runID, st, err)
			}
			c.emit(Event{Type: EventStageStart, RunID: runID, Stage: st, Replayed: true})
			c.emit(Event{Type: EventStageComplete, RunID: runID, Stage: st, Replayed: true, Payload: json.RawMessage(payload)})
			continue
		}

		c.emit(Event{Type: EventStageStart, RunID: runID, Stage: st})

		payload, err := c.executeStage(ctx, st, state.Query, &data)
		if err != nil {
			_ = c.store.SetStatus(runID, StatusError, st)
			c.emit(Event{Type: EventRunError, RunID: runID, Stage: st, Message: err.Error()})
			return nil, err
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("run %s: encoding %s payload: %w", runID, st, err)
		}
		if err := c.store.SaveStage(runID, st, raw); err != nil {
			return nil, fmt.Errorf("run %s: persisting %s payload: %w", runID, st, err)
		}
		if err := c.store.SetStatus(runID, StatusProcessing, st+1); err != nil {
			return nil, fmt.Errorf("run %s: advancing past %s: %w", runID, st, err)
		}

		c.emit(Event{Type: EventStageComplete, RunID: runID, Stage: st, Payload: payload})
	}

	if err := c.store.SetStatus(runID, StatusCompleted, NumStages); err != nil {
		return nil, fmt.Errorf("marking run completed: %w", err)
	}
	c.emit(Event{Type: EventRunComplete, RunID: runID, Stage: StageSettlement})
	return data.report, nil
}

func (c *Controller) emit(ev Event) {
	if c.sink != nil {
		c.sink(ev)
	}
}

// executeStage computes one stage from the typed outputs of its
// predecessors. Stage functions never touch storage.
func (c *Controller) executeStage(ctx context.Context, st Stage, query string, data *runData) (any, error) {
	switch st {
	case StageBidding:
		sheet, err := CollectBids(ctx, c.gen, c.cfg, query)
		data.sheet = sheet
		return sheet, err
	case StageAnswers:
		answers, err := CollectAnswers(ctx, c.gen, c.cfg, query, data.sheet)
		data.answers = answers
		return answers, err
	case StageAggregation:
		agg, err := Aggregate(ctx, c.gen, c.cfg, query, data.sheet, data.answers)
		data.agg = agg
		return agg, err
	case StageSelfEvaluation:
		evals, err := SelfEvaluate(ctx, c.gen, c.cfg, query, data.answers, data.agg, data.sheet)
		data.evals = evals
		return evals, err
	case StageCounterDecision:
		dec, err := CounterDecide(ctx, c.gen, c.cfg, query, data.sheet, data.answers, data.agg, data.evals)
		data.dec = dec
		return dec, err
	case StageFinalAcceptance:
		finals, err := CollectFinalClaims(ctx, c.gen, c.cfg, query, data.answers, data.agg, data.dec, data.evals)
		data.finals = finals
		return finals, err
	case StageSettlement:
		data.report = ComputeSettlement(data.sheet, data.dec, data.finals, c.cfg.PenaltyAlpha)
		return data.report, nil
	}
	return nil, fmt.Errorf("unknown stage %d", st)
}

// runData carries the typed stage outputs threaded through a run,
// whether computed fresh or decoded from stored payloads.
type runData struct {
	sheet   *BidSheet
	answers []Answer
	agg     *AggregateAnswer
	evals   []SelfEvaluation
	dec     *CounterDecision
	finals  []FinalClaim
	report  *SettlementReport
}

func (d *runData) decode(st Stage, payload []byte) error {
	switch st {
	case StageBidding:
		d.sheet = &BidSheet{}
		return json.Unmarshal(payload, d.sheet)
	case StageAnswers:
		return json.Unmarshal(payload, &d.answers)
	case StageAggregation:
		d.agg = &AggregateAnswer{}
		return json.Unmarshal(payload, d.agg)
	case StageSelfEvaluation:
		return json.Unmarshal(payload, &d.evals)
	case StageCounterDecision:
		d.dec = &CounterDecision{}
		return json.Unmarshal(payload, d.dec)
	case StageFinalAcceptance:
		return json.Unmarshal(payload, &d.finals)
	case StageSettlement:
		d.report = &SettlementReport{}
		return json.Unmarshal(payload, d.report)
	}
	return fmt.Errorf("unknown stage %d", st)
}
