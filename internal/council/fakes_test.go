package council

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// --- Test fakes ---

// fakeGen is a scripted Generator. Responses are routed by stage (detected
// from prompt markers) and keyed by model; a missing entry behaves like an
// unavailable backend.
type fakeGen struct {
	mu       sync.Mutex
	bids     map[string]string
	answers  map[string]string
	selfEval map[string]string
	accept   map[string]string

	aggregate string // "" means the aggregator call fails
	counter   string // "" means the arbitration call fails

	calls int
}

func (g *fakeGen) Generate(ctx context.Context, model, prompt string, maxTokens int, timeout time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	switch {
	case strings.Contains(prompt, "single integer token count"):
		return g.lookup(g.bids, model)
	case strings.Contains(prompt, "Respond with just your answer"):
		return g.lookup(g.answers, model)
	case strings.Contains(prompt, "You are the aggregator"):
		if g.aggregate == "" {
			return "", errors.New("aggregator unavailable")
		}
		return g.aggregate, nil
	case strings.Contains(prompt, "DECISION_1"):
		if g.counter == "" {
			return "", errors.New("arbitration unavailable")
		}
		return g.counter, nil
	case strings.Contains(prompt, "final contribution score"):
		return g.lookup(g.accept, model)
	case strings.Contains(prompt, `"arguments"`):
		return g.lookup(g.selfEval, model)
	}
	return "", fmt.Errorf("unrecognized prompt for %s", model)
}

func (g *fakeGen) lookup(m map[string]string, model string) (string, error) {
	v, ok := m[model]
	if !ok {
		return "", errors.New(model + " unavailable")
	}
	return v, nil
}

func (g *fakeGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// testConfig returns a four-agent roster with distinct rates so equal
// token bids produce a strict cost ordering: alpha < beta < gamma < delta.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Agents = []Agent{
		{ID: "alpha", Model: "m/alpha", Rate: 10},
		{ID: "beta", Model: "m/beta", Rate: 20},
		{ID: "gamma", Model: "m/gamma", Rate: 30},
		{ID: "delta", Model: "m/delta", Rate: 50},
	}
	cfg.FallbackAggregator = Agent{ID: "fallback", Model: "m/fallback", Rate: 12}
	return cfg
}

// fullScriptGen returns a fakeGen scripting a clean end-to-end run for
// testConfig: alpha, beta, gamma selected; alpha aggregates.
func fullScriptGen() *fakeGen {
	return &fakeGen{
		bids: map[string]string{
			"m/alpha": "1000",
			"m/beta":  "1000",
			"m/gamma": "1000",
			"m/delta": "1000",
		},
		answers: map[string]string{
			"m/alpha": "answer from alpha",
			"m/beta":  "answer from beta",
			"m/gamma": "answer from gamma",
		},
		aggregate: `{"aggregated_answer": "the combined answer", "SCORE_1": 30, "SCORE_2": 20, "SCORE_3": 10}`,
		selfEval: map[string]string{
			"m/alpha": `{"arguments": "unique depth", "SCORE": 40}`,
			"m/beta":  `{"arguments": "breadth", "SCORE": 25}`,
			"m/gamma": `{"arguments": "examples", "SCORE": 10}`,
		},
		counter: `{"DECISION_1": 35, "COMMUNICATED_1": 30, "DECISION_2": 22, "COMMUNICATED_2": 20, "DECISION_3": 12, "COMMUNICATED_3": 10}`,
		accept: map[string]string{
			"m/alpha": "35",
			"m/beta":  "22",
			"m/gamma": "10",
		},
	}
}
