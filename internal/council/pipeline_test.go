package council

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func init() {
	// Freeze time for deterministic run timestamps.
	timeNow = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
}

// --- In-memory store fake ---

// memStore is an in-memory Store with an optional injected SaveStage
// failure, used to simulate an interruption at a stage boundary.
type memStore struct {
	mu         sync.Mutex
	runs       map[string]*RunState
	failSaveAt Stage
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*RunState), failSaveAt: -1}
}

func (s *memStore) CreateRun(state *RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.runs[state.ID] = &cp
	return nil
}

func (s *memStore) LoadRun(runID string) (*RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *state
	return &cp, nil
}

func (s *memStore) SaveStage(runID string, stage Stage, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stage == s.failSaveAt {
		return errors.New("injected save failure")
	}
	state, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	state.Payloads[stage] = append([]byte(nil), payload...)
	return nil
}

func (s *memStore) SetStatus(runID string, status Status, nextStage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	state.Status = status
	state.NextStage = nextStage
	return nil
}

// eventLog collects emitted events in order. The controller emits from a
// single goroutine, so no locking is needed.
type eventLog struct {
	events []Event
}

func (l *eventLog) sink(ev Event) { l.events = append(l.events, ev) }

// --- Full pipeline ---

func runToCompletion(t *testing.T, gen Generator, store Store, log *eventLog) (*RunState, *SettlementReport) {
	t.Helper()
	var sink EventSink
	if log != nil {
		sink = log.sink
	}
	ctrl := NewController(testConfig(), gen, store, sink)
	state, err := ctrl.StartRun("conv-1", "what is the answer?")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	report, err := ctrl.Run(context.Background(), state.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return state, report
}

func TestRun_FullPipeline(t *testing.T) {
	store := newMemStore()
	state, report := runToCompletion(t, fullScriptGen(), store, nil)

	// alpha: D=35 F=35 -> 35. beta: D=22 F=22 -> 22. gamma: D=12 F=10 -> 11.
	if len(report.Settlements) != 3 {
		t.Fatalf("settlements = %d, want 3", len(report.Settlements))
	}
	byID := make(map[string]Settlement)
	for _, s := range report.Settlements {
		byID[s.AgentID] = s
	}
	if !almostEqual(byID["alpha"].PayoutScore, 35) {
		t.Errorf("alpha payout = %v, want 35", byID["alpha"].PayoutScore)
	}
	if !almostEqual(byID["beta"].PayoutScore, 22) {
		t.Errorf("beta payout = %v, want 22", byID["beta"].PayoutScore)
	}
	if !almostEqual(byID["gamma"].PayoutScore, 11) {
		t.Errorf("gamma payout = %v, want 11", byID["gamma"].PayoutScore)
	}
	if !almostEqual(report.TotalPanelCost, 0.06) {
		t.Errorf("total panel cost = %v, want 0.06", report.TotalPanelCost)
	}
	if !almostEqual(report.AggregatorScore, 100-68) {
		t.Errorf("aggregator score = %v, want 32", report.AggregatorScore)
	}

	final, err := store.LoadRun(state.ID)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if final.Status != StatusCompleted {
		t.Errorf("status = %s, want %s", final.Status, StatusCompleted)
	}
	if final.NextStage != NumStages {
		t.Errorf("next stage = %d, want %d", final.NextStage, NumStages)
	}
	for st := Stage(0); st < NumStages; st++ {
		if final.Payloads[st] == nil {
			t.Errorf("stage %s payload not persisted", st)
		}
	}
}

func TestRun_EventOrdering(t *testing.T) {
	log := &eventLog{}
	state, _ := runToCompletion(t, fullScriptGen(), newMemStore(), log)

	// start+complete per stage, then the run-complete marker.
	if len(log.events) != 2*NumStages+1 {
		t.Fatalf("events = %d, want %d", len(log.events), 2*NumStages+1)
	}
	for st := Stage(0); st < NumStages; st++ {
		start, complete := log.events[2*st], log.events[2*st+1]
		if start.Type != EventStageStart || start.Stage != st {
			t.Errorf("event %d = %s/%s, want start of %s", 2*st, start.Type, start.Stage, st)
		}
		if complete.Type != EventStageComplete || complete.Stage != st {
			t.Errorf("event %d = %s/%s, want completion of %s", 2*st+1, complete.Type, complete.Stage, st)
		}
		if start.Replayed || complete.Replayed {
			t.Errorf("fresh stage %s must not be marked replayed", st)
		}
	}
	last := log.events[len(log.events)-1]
	if last.Type != EventRunComplete {
		t.Errorf("last event = %s, want %s", last.Type, EventRunComplete)
	}
	if last.RunID != state.ID {
		t.Errorf("last event run id = %s, want %s", last.RunID, state.ID)
	}
}

func TestRun_EmptyBiddingFailsRun(t *testing.T) {
	store := newMemStore()
	ctrl := NewController(testConfig(), &fakeGen{bids: map[string]string{}}, store, nil)

	state, err := ctrl.StartRun("conv-1", "q")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	_, err = ctrl.Run(context.Background(), state.ID)
	if !errors.Is(err, ErrEmptyPanel) {
		t.Fatalf("err = %v, want ErrEmptyPanel", err)
	}

	final, _ := store.LoadRun(state.ID)
	if final.Status != StatusError {
		t.Errorf("status = %s, want %s", final.Status, StatusError)
	}
	if final.NextStage != StageBidding {
		t.Errorf("next stage = %s, want %s", final.NextStage, StageBidding)
	}
}

func TestRun_UnknownRun(t *testing.T) {
	ctrl := NewController(testConfig(), fullScriptGen(), newMemStore(), nil)
	_, err := ctrl.Run(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

// --- Resume ---

func TestRun_ResumeAfterInterruptionMatchesFullPass(t *testing.T) {
	_, want := runToCompletion(t, fullScriptGen(), newMemStore(), nil)

	// Interrupt at every stage boundary in turn; the resumed run must
	// settle identically to the uninterrupted one.
	for failAt := Stage(0); failAt < NumStages; failAt++ {
		store := newMemStore()
		store.failSaveAt = failAt
		ctrl := NewController(testConfig(), fullScriptGen(), store, nil)

		state, err := ctrl.StartRun("conv-1", "what is the answer?")
		if err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		if _, err := ctrl.Run(context.Background(), state.ID); err == nil {
			t.Fatalf("failAt %s: interrupted run should error", failAt)
		}

		store.failSaveAt = -1
		got, err := ctrl.Run(context.Background(), state.ID)
		if err != nil {
			t.Fatalf("failAt %s: resume: %v", failAt, err)
		}
		if got.TotalPaidScore != want.TotalPaidScore {
			t.Errorf("failAt %s: total paid = %v, want %v", failAt, got.TotalPaidScore, want.TotalPaidScore)
		}
		if len(got.Settlements) != len(want.Settlements) {
			t.Errorf("failAt %s: settlements = %d, want %d", failAt, len(got.Settlements), len(want.Settlements))
		}
	}
}

func TestRun_ResumeReplaysCompletedStagesFromStorage(t *testing.T) {
	store := newMemStore()
	gen := fullScriptGen()
	ctrl := NewController(testConfig(), gen, store, nil)

	state, err := ctrl.StartRun("conv-1", "q")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, err := ctrl.Run(context.Background(), state.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	callsAfterFirst := gen.callCount()

	// Re-running a completed run must not touch the generator at all.
	log := &eventLog{}
	ctrl2 := NewController(testConfig(), gen, store, log.sink)
	report, err := ctrl2.Run(context.Background(), state.ID)
	if err != nil {
		t.Fatalf("re-run: %v", err)
	}
	if gen.callCount() != callsAfterFirst {
		t.Errorf("re-run made %d generator calls", gen.callCount()-callsAfterFirst)
	}
	if report == nil || len(report.Settlements) != 3 {
		t.Fatalf("re-run report = %+v", report)
	}

	for _, ev := range log.events {
		if ev.Type == EventRunComplete {
			continue
		}
		if !ev.Replayed {
			t.Errorf("event %s/%s should be marked replayed", ev.Type, ev.Stage)
		}
	}
}

func TestRun_ResumeRecomputesOnlyMissingStages(t *testing.T) {
	store := newMemStore()
	store.failSaveAt = StageCounterDecision
	gen := fullScriptGen()
	ctrl := NewController(testConfig(), gen, store, nil)

	state, err := ctrl.StartRun("conv-1", "q")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, err := ctrl.Run(context.Background(), state.ID); err == nil {
		t.Fatal("interrupted run should error")
	}

	// Resume with a generator that can only serve the remaining stages:
	// replay must cover bidding through self-evaluation from storage.
	store.failSaveAt = -1
	tail := &fakeGen{
		counter: gen.counter,
		accept:  gen.accept,
	}
	log := &eventLog{}
	ctrl2 := NewController(testConfig(), tail, store, log.sink)
	report, err := ctrl2.Run(context.Background(), state.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(report.Settlements) != 3 {
		t.Fatalf("settlements = %d, want 3", len(report.Settlements))
	}

	replayed := 0
	for _, ev := range log.events {
		if ev.Type == EventStageComplete && ev.Replayed {
			replayed++
		}
	}
	if replayed != 4 {
		t.Errorf("replayed stage completions = %d, want 4", replayed)
	}
}
