package council

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SelfEvaluate lets each answering agent contest or confirm its initial
// score, concurrently. The floor invariant is enforced here, not trusted:
// a parsed claim below the agent's initial score is clamped up, never
// down. An unusable response degrades to the floor itself.
func SelfEvaluate(ctx context.Context, gen Generator, cfg Config, query string, answers []Answer, agg *AggregateAnswer, sheet *BidSheet) ([]SelfEvaluation, error) {
	spec := FieldSpec{TextField: "arguments", NumberFields: []string{"SCORE"}}

	evals := make([]SelfEvaluation, len(answers))
	g, gctx := errgroup.WithContext(ctx)
	for i, answer := range answers {
		g.Go(func() error {
			floor := agg.InitialScores[answer.Agent.ID]
			prompt := selfEvalPrompt(query, answer, answers, agg, floor, sheet.cost(answer.Agent.ID))

			raw, err := gen.Generate(gctx, answer.Agent.Model, prompt, aggregatorMaxTokens, cfg.AnswerTimeout)
			if err != nil {
				evals[i] = SelfEvaluation{Agent: answer.Agent, Claim: floor, Outcome: OutcomeDefault}
				return nil
			}

			obj := ParseObject(raw, spec)
			claim := obj.Numbers["SCORE"]
			if claim < floor {
				claim = floor
			}
			evals[i] = SelfEvaluation{
				Agent:     answer.Agent,
				Arguments: obj.Text,
				Claim:     claim,
				Outcome:   obj.Outcome,
			}
			return nil
		})
	}
	_ = g.Wait()

	return evals, nil
}
