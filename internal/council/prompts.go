package council

import (
	"fmt"
	"strings"
)

// --- Prompt builders ---
//
// Each stage's economic framing lives here, away from the stage mechanics.
// The framings are part of the protocol: bidding is strategic (payment is
// proportional to contribution, so agents balance quality against cost),
// answering is competitive (unique information beats redundancy), and the
// counter-decision explicitly allows the aggregator to bluff.

// scoreKey returns the numeric field name for the i-th answer (1-based).
func scoreKey(i int) string { return fmt.Sprintf("SCORE_%d", i+1) }

func decisionKey(i int) string { return fmt.Sprintf("DECISION_%d", i+1) }

func communicatedKey(i int) string { return fmt.Sprintf("COMMUNICATED_%d", i+1) }

// bidPrompt asks one candidate for a token count in the accepted range.
func bidPrompt(query string, candidates int, rate float64) string {
	return fmt.Sprintf(`This user prompt:
<prompt>
%s
</prompt>

is being answered by %d agents. Each agent quotes the amount of tokens it
wants to use, and the user is charged the sum of all quotes. You will be
paid that sum times your contribution score: the probability of the user
preferring your answer over the aggregate answer. Only the cheapest quotes
are selected to answer, so balance answer quality against cost.

Your cost is $%.2f per million tokens. Estimate how many tokens you should
use to make a profit, between %d and %d.

IMPORTANT: Respond with ONLY a single integer token count. No other text.`,
		query, candidates, rate, MinTokenBid, MaxTokenBid)
}

// answerPrompt carries the query and the competitive framing to one
// panel member.
func answerPrompt(query string, panelSize int) string {
	return fmt.Sprintf(`Answer the following user prompt:
<prompt>
%s
</prompt>

%d other agents are answering as well, and you will be paid based on your
contribution score: the probability of the user preferring your answer over
the aggregate answer. Give a complete answer, and bring value the other
agents may not bring — information nobody else mentions is worth more than
what everyone mentions.

IMPORTANT: Respond with just your answer to the user prompt.`,
		query, panelSize-1)
}

// aggregatePrompt asks the aggregator for a synthesized answer plus one
// score per agent, under the keep-the-remainder rule that bounds the sum.
func aggregatePrompt(query string, answers []Answer) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are the aggregator of a panel of agents.

Given the user prompt:
<prompt>
%s
</prompt>

and the following agent answers:
%s

Produce a final aggregated answer that takes in all the relevant
information, and score each answer by its contribution: the probability of
the user preferring that agent's answer over your aggregated answer.

You will be paid the difference between 100 and the sum of the scores, so
the sum must be <= 100.

Answer in the following JSON format (no additional text):
{
  "aggregated_answer": "your comprehensive answer here"`,
		query, numberedAnswers(answers, ""))
	for i := range answers {
		fmt.Fprintf(&b, ",\n  %q: percentage between 0 and 100", scoreKey(i))
	}
	b.WriteString("\n}\n\nIMPORTANT: Return ONLY valid JSON, nothing else.")
	return b.String()
}

// selfEvalPrompt invites one agent to contest its initial score.
func selfEvalPrompt(query string, own Answer, answers []Answer, agg *AggregateAnswer, initial, cost float64) string {
	return fmt.Sprintf(`For the given user prompt:
<prompt>
%s
</prompt>

you gave this answer:
<your_answer>
%s
</your_answer>

and %d other agents gave these answers:
%s

The final aggregated answer was:
<aggregated_answer>
%s
</aggregated_answer>

Now evaluate your own contribution score: the probability of the user
preferring your answer over the aggregated answer. The aggregator scored
your answer at %.1f%%. You spent $%.4f and will be paid proportionally to
your score, so give arguments in favor of your evaluation.

Answer in the following JSON format (no additional text):
{
  "arguments": "what unique value your answer brings",
  "SCORE": percentage between 0 and 100
}

IMPORTANT: Return ONLY valid JSON, nothing else.`,
		query, own.Text, len(answers)-1, numberedAnswers(answers, own.Agent.ID),
		agg.Text, initial, cost)
}

// counterPrompt shows the aggregator every self-claim next to its own
// initial score and asks for a decision plus a (possibly different)
// communicated value per agent.
func counterPrompt(query string, answers []Answer, agg *AggregateAnswer, evals []SelfEvaluation) string {
	var comparisons strings.Builder
	for i, ev := range evals {
		args := ev.Arguments
		if len(args) > 200 {
			args = args[:200] + "..."
		}
		fmt.Fprintf(&comparisons, `"agent %d": {
  "your score": %.1f,
  "agent self-evaluation": {"arguments": %q, "SCORE": %.1f}
}
`, i+1, agg.InitialScores[ev.Agent.ID], args, ev.Claim)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `For the following user prompt:
<prompt>
%s
</prompt>

and the following agent answers:
%s

you gave this aggregated answer:
<aggregated_answer>
%s
</aggregated_answer>

Here is your initial score for each agent next to its self-evaluation:
%s
Submit a final decision per agent, and the value you will communicate to
that agent. The communicated value may differ from your decision — the
agents only ever see what you communicate.

Answer in the following JSON format (no additional text):
{`, query, numberedAnswers(answers, ""), agg.Text, comparisons.String())
	for i := range evals {
		fmt.Fprintf(&b, "\n  %q: percentage from 0 to 100,", decisionKey(i))
		fmt.Fprintf(&b, "\n  %q: percentage from 0 to 100,", communicatedKey(i))
	}
	body := strings.TrimRight(b.String(), ",")
	return body + "\n}\n\nIMPORTANT: Return ONLY valid JSON, nothing else."
}

// acceptancePrompt shows one agent only the communicated decision and asks
// for a bounded final claim, framed to discourage overreach.
func acceptancePrompt(query string, own Answer, agg *AggregateAnswer, initial, communicated, alpha float64) string {
	return fmt.Sprintf(`For the following user prompt:
<prompt>
%s
</prompt>

you gave this answer:
<your_answer>
%s
</your_answer>

The final aggregated answer was:
<aggregated_answer>
%s
</aggregated_answer>

The aggregator first scored your answer at %.1f%% and, after reading your
arguments, says its final decision is %.1f%%.

Submit your final contribution score. If your claim is above the
aggregator's decision you are paid the decision minus %.0f%% of the
difference; if it is at or below the decision you are paid the midpoint of
the two values. You cannot claim more than your earlier self-evaluation.

IMPORTANT: Answer with just your final score between 0 and 100 (only the
number, no other text).`,
		query, own.Text, agg.Text, initial, communicated, alpha*100)
}

// numberedAnswers renders answers as a numbered block, skipping one agent
// when its id is given (used for "the other agents said" sections).
func numberedAnswers(answers []Answer, skipID string) string {
	var b strings.Builder
	for i, a := range answers {
		if skipID != "" && a.Agent.ID == skipID {
			continue
		}
		fmt.Fprintf(&b, "\nAgent %d:\n%s\n", i+1, a.Text)
	}
	return b.String()
}
