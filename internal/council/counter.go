package council

import "context"

// CounterDecide makes the single arbitration call: the aggregator sees
// every self-claim and returns, per agent, an authoritative internal
// decision and a communicated decision that may legitimately differ.
//
// Two things are enforced by the core rather than trusted from the
// response: every internal decision is at least the agent's initial
// score, and the internal decisions may not sum beyond 100. A response
// whose raw sum exceeds 100 — or a failed or unparseable call — is
// replaced wholesale by the deterministic fallback:
//
//	internal     = (initial + self) / 2   when self > initial
//	internal     = initial * 1.1          otherwise
//	communicated = internal * 0.85
func CounterDecide(ctx context.Context, gen Generator, cfg Config, query string, sheet *BidSheet, answers []Answer, agg *AggregateAnswer, evals []SelfEvaluation) (*CounterDecision, error) {
	spec := FieldSpec{}
	for i := range evals {
		spec.NumberFields = append(spec.NumberFields, decisionKey(i), communicatedKey(i))
	}

	raw, err := gen.Generate(ctx, sheet.Aggregator.Model, counterPrompt(query, answers, agg, evals), aggregatorMaxTokens, cfg.AggregatorTimeout)
	if err != nil {
		return fallbackDecision(agg, evals, OutcomeDefault), nil
	}

	obj := ParseObject(raw, spec)
	if obj.Outcome == OutcomeDefault {
		return fallbackDecision(agg, evals, OutcomeDefault), nil
	}

	dec := &CounterDecision{
		Internal:     make(map[string]float64, len(evals)),
		Communicated: make(map[string]float64, len(evals)),
		Outcome:      obj.Outcome,
	}
	for i, ev := range evals {
		dec.Internal[ev.Agent.ID] = obj.Numbers[decisionKey(i)]
		dec.Communicated[ev.Agent.ID] = obj.Numbers[communicatedKey(i)]
	}

	if scoreSum(dec.Internal) > 100 {
		return fallbackDecision(agg, evals, obj.Outcome), nil
	}

	// Floor enforcement on the trusted path.
	for _, ev := range evals {
		if floor := agg.InitialScores[ev.Agent.ID]; dec.Internal[ev.Agent.ID] < floor {
			dec.Internal[ev.Agent.ID] = floor
		}
	}
	return dec, nil
}

// fallbackDecision applies the deterministic arbitration formulas.
func fallbackDecision(agg *AggregateAnswer, evals []SelfEvaluation, outcome Outcome) *CounterDecision {
	dec := &CounterDecision{
		Internal:     make(map[string]float64, len(evals)),
		Communicated: make(map[string]float64, len(evals)),
		Fallback:     true,
		Outcome:      outcome,
	}
	for _, ev := range evals {
		initial := agg.InitialScores[ev.Agent.ID]
		var internal float64
		if ev.Claim > initial {
			internal = (initial + ev.Claim) / 2
		} else {
			internal = initial * 1.1
		}
		dec.Internal[ev.Agent.ID] = internal
		dec.Communicated[ev.Agent.ID] = internal * 0.85
	}
	return dec
}
