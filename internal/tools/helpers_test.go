package tools

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pedroramos256/bundlecarte/internal/council"
)

func completedRunState(t *testing.T) *council.RunState {
	t.Helper()
	agg := council.AggregateAnswer{Text: "the combined answer"}
	payload, err := json.Marshal(agg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	state := &council.RunState{
		ID:        "run-1",
		Status:    council.StatusCompleted,
		NextStage: council.NumStages,
	}
	for st := council.Stage(0); st < council.NumStages; st++ {
		state.Payloads[st] = []byte(`{}`)
	}
	state.Payloads[council.StageAggregation] = payload
	return state
}

func testReport() *council.SettlementReport {
	return &council.SettlementReport{
		Settlements: []council.Settlement{
			{AgentID: "alpha", PayoutScore: 35, PayoutAmount: 0.021, Cost: 0.01, Profit: 0.011},
			{AgentID: "beta", PayoutScore: 22, PayoutAmount: 0.0132, Cost: 0.02, Profit: -0.0068},
		},
		TotalPanelCost:     0.06,
		TotalPaidScore:     68,
		AggregatorScore:    32,
		AggregatorEarnings: 0.0192,
	}
}

// --- renderRunResult ---

func TestRenderRunResult_IncludesAnswerAndSettlement(t *testing.T) {
	out := renderRunResult(completedRunState(t), testReport())

	if !strings.Contains(out, "the combined answer") {
		t.Error("output missing the aggregated answer")
	}
	if !strings.Contains(out, "`run-1`") {
		t.Error("output missing the run id")
	}
	if !strings.Contains(out, "| alpha | 35.0% |") {
		t.Errorf("output missing alpha's settlement row:\n%s", out)
	}
	if !strings.Contains(out, "**Total panel cost:** $0.0600") {
		t.Errorf("output missing the total panel cost:\n%s", out)
	}
}

func TestRenderRunResult_NoAggregationStage(t *testing.T) {
	state := &council.RunState{ID: "run-1"}
	out := renderRunResult(state, testReport())
	if strings.Contains(out, "## Answer") {
		t.Error("output should omit the answer section when the stage is absent")
	}
	if !strings.Contains(out, "## Settlement") {
		t.Error("output missing the settlement section")
	}
}

// --- renderStages ---

func TestRenderStages_Completed(t *testing.T) {
	out := renderStages(completedRunState(t))
	if strings.Contains(out, "⬜") || strings.Contains(out, "🔄") || strings.Contains(out, "❌") {
		t.Errorf("completed run should show only completed stages:\n%s", out)
	}
	if strings.Count(out, "✅") != int(council.NumStages) {
		t.Errorf("want %d completed markers:\n%s", council.NumStages, out)
	}
}

func TestRenderStages_InProgress(t *testing.T) {
	state := &council.RunState{
		ID:        "run-1",
		Status:    council.StatusProcessing,
		NextStage: council.StageAggregation,
	}
	state.Payloads[council.StageBidding] = []byte(`{}`)
	state.Payloads[council.StageAnswers] = []byte(`{}`)

	out := renderStages(state)
	if strings.Count(out, "✅") != 2 {
		t.Errorf("want 2 completed markers:\n%s", out)
	}
	if !strings.Contains(out, "| aggregation | 🔄 in progress |") {
		t.Errorf("aggregation should be in progress:\n%s", out)
	}
	if strings.Count(out, "⬜") != 4 {
		t.Errorf("want 4 pending markers:\n%s", out)
	}
}

func TestRenderStages_Failed(t *testing.T) {
	state := &council.RunState{
		ID:        "run-1",
		Status:    council.StatusError,
		NextStage: council.StageBidding,
	}
	out := renderStages(state)
	if !strings.Contains(out, "| bidding | ❌ failed |") {
		t.Errorf("bidding should be marked failed:\n%s", out)
	}
}
