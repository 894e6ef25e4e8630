package council

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// CollectAnswers dispatches the query to every panel member concurrently,
// each under its own claimed token budget and the long answer timeout.
// There are no retries: an error or timeout drops the agent for all later
// stages. Zero answers is the fatal empty-panel condition.
func CollectAnswers(ctx context.Context, gen Generator, cfg Config, query string, sheet *BidSheet) ([]Answer, error) {
	prompt := answerPrompt(query, len(sheet.Panel))

	received := make([]*Answer, len(sheet.Panel))
	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range sheet.Panel {
		g.Go(func() error {
			raw, err := gen.Generate(gctx, agent.Model, prompt, sheet.Budget(agent.ID), cfg.AnswerTimeout)
			if err != nil {
				return nil // dropped for the rest of the run
			}
			received[i] = &Answer{Agent: agent, Text: raw}
			return nil
		})
	}
	_ = g.Wait()

	var answers []Answer
	for _, a := range received {
		if a != nil {
			answers = append(answers, *a)
		}
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("answer collection: %w", ErrEmptyPanel)
	}
	return answers, nil
}
