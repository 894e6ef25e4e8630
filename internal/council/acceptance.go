package council

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// acceptanceMaxTokens caps the final claim response: a single number.
const acceptanceMaxTokens = 1000

// CollectFinalClaims shows each agent only the communicated decision and
// collects a bounded final claim, concurrently. The first number in the
// response is taken; an unparseable response falls back to the agent's
// self-claim. Every claim is clamped into [0,100] and then ceiling-bounded
// by the agent's own self-claim — an agent cannot demand more than it
// already claimed.
func CollectFinalClaims(ctx context.Context, gen Generator, cfg Config, query string, answers []Answer, agg *AggregateAnswer, dec *CounterDecision, evals []SelfEvaluation) ([]FinalClaim, error) {
	selfClaims := make(map[string]float64, len(evals))
	for _, ev := range evals {
		selfClaims[ev.Agent.ID] = ev.Claim
	}

	claims := make([]FinalClaim, len(answers))
	g, gctx := errgroup.WithContext(ctx)
	for i, answer := range answers {
		g.Go(func() error {
			id := answer.Agent.ID
			initial := agg.InitialScores[id]
			communicated, ok := dec.Communicated[id]
			if !ok {
				communicated = initial
			}
			prompt := acceptancePrompt(query, answer, agg, initial, communicated, cfg.PenaltyAlpha)

			claim := selfClaims[id]
			outcome := OutcomeDefault
			if raw, err := gen.Generate(gctx, answer.Agent.Model, prompt, acceptanceMaxTokens, cfg.AnswerTimeout); err == nil {
				if v, found := ParseScore(raw); found {
					claim = v
					outcome = OutcomePrimary
				}
			}

			if claim < 0 {
				claim = 0
			}
			if claim > 100 {
				claim = 100
			}
			if ceiling := selfClaims[id]; claim > ceiling {
				claim = ceiling
			}
			claims[i] = FinalClaim{Agent: answer.Agent, Claim: claim, Outcome: outcome}
			return nil
		})
	}
	_ = g.Wait()

	return claims, nil
}
