package council

import "context"

// aggregatorMaxTokens caps aggregator calls (synthesis and arbitration).
const aggregatorMaxTokens = 8192

// aggregationFailedText is the sentinel answer recorded when the
// aggregator call fails outright. Downstream scores then default to 0.
const aggregationFailedText = "Error: unable to generate an aggregated answer."

// Aggregate makes the single aggregator call that merges the panel's
// answers into one synthesized answer and assigns initial contribution
// scores. The aggregator keeps 100 minus the sum of the scores, so the sum
// must be at most 100; a raw response violating that is renormalized
// proportionally so the sum equals exactly 100.
func Aggregate(ctx context.Context, gen Generator, cfg Config, query string, sheet *BidSheet, answers []Answer) (*AggregateAnswer, error) {
	spec := FieldSpec{TextField: "aggregated_answer"}
	for i := range answers {
		spec.NumberFields = append(spec.NumberFields, scoreKey(i))
	}

	raw, err := gen.Generate(ctx, sheet.Aggregator.Model, aggregatePrompt(query, answers), aggregatorMaxTokens, cfg.AggregatorTimeout)
	if err != nil {
		return &AggregateAnswer{
			Text:          aggregationFailedText,
			InitialScores: map[string]float64{},
			Outcome:       OutcomeDefault,
		}, nil
	}

	obj := ParseObject(raw, spec)
	agg := &AggregateAnswer{
		Text:          obj.Text,
		InitialScores: make(map[string]float64, len(answers)),
		Outcome:       obj.Outcome,
	}
	for i, a := range answers {
		agg.InitialScores[a.Agent.ID] = obj.Numbers[scoreKey(i)]
	}

	if sum := scoreSum(agg.InitialScores); sum > 100 {
		factor := 100 / sum
		for id, v := range agg.InitialScores {
			agg.InitialScores[id] = v * factor
		}
		agg.Renormalized = true
	}
	return agg, nil
}

func scoreSum(scores map[string]float64) float64 {
	var sum float64
	for _, v := range scores {
		sum += v
	}
	return sum
}
