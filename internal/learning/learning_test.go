package learning

import (
	"context"
	"strconv"
	"testing"

	domAssessment "gohypo/domain/assessment"
	domMemory "gohypo/domain/memory"
	"gohypo/internal/adaptive"
	"gohypo/internal/config"
	"gohypo/internal/memory"
)

// fakeLevelStore mirrors the real postgres adapter: a level with no row yet
// returns (nil, nil), relying on the Bank to construct it lazily.
type fakeLevelStore struct {
	levels map[string]*domMemory.Level
}

func levelKey(agent memory.AgentID, level int) string {
	return string(agent) + ":" + strconv.Itoa(level)
}

func newFakeStore() *fakeLevelStore { return &fakeLevelStore{levels: map[string]*domMemory.Level{}} }

func (f *fakeLevelStore) GetMemoryLevel(ctx context.Context, agent memory.AgentID, level int) (*domMemory.Level, error) {
	return f.levels[levelKey(agent, level)], nil
}

func (f *fakeLevelStore) UpsertMemoryLevel(ctx context.Context, agent memory.AgentID, level *domMemory.Level) error {
	f.levels[levelKey(agent, level.Level)] = level
	return nil
}

func memCfg() config.MemoryConfig {
	return config.MemoryConfig{Levels: 2, ChunkMin: 4, ChunkMax: 512, AdaptationRate: 0.1, SlidingWindow: 50}
}

func newHandler() *Handler {
	store := newFakeStore()
	bank := memory.New(store, memCfg(), memory.NewTitans(false, 5))
	return New(bank, adaptive.New(memCfg()), 2)
}

func TestHandleValidationPerfectMatchYieldsHighAccuracy(t *testing.T) {
	h := newHandler()
	original := domAssessment.ProvisionalAssessment{
		DamageType: "water_damage",
		Severity:   domAssessment.SeverityMidway,
		Urgency:    domAssessment.UrgencySoon,
		Confidence: 80,
		CostEstimate: &domAssessment.CostEstimate{Recommended: 1000},
	}
	actual := original

	result, err := h.HandleValidation(context.Background(), ValidationOutcome{
		Agent:    "agent-1",
		Key:      []float64{0.1, 0.2, 0.3, 0.4, 0.5},
		Original: original,
		Actual:   actual,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OverallAccuracy < 0.99 {
		t.Errorf("expected near-1.0 accuracy for an exact match, got %f", result.OverallAccuracy)
	}
	if result.SignalAdaptive {
		t.Error("should not signal adaptive engine on a high-accuracy outcome")
	}
}

func TestHandleValidationMismatchSignalsAdaptiveEngine(t *testing.T) {
	h := newHandler()
	original := domAssessment.ProvisionalAssessment{
		DamageType: "water_damage",
		Severity:   domAssessment.SeverityEarly,
		Urgency:    domAssessment.UrgencyMonitor,
		Confidence: 10,
		CostEstimate: &domAssessment.CostEstimate{Recommended: 100},
	}
	actual := domAssessment.ProvisionalAssessment{
		DamageType: "structural_major",
		Severity:   domAssessment.SeverityFull,
		Urgency:    domAssessment.UrgencyImmediate,
		Confidence: 95,
		CostEstimate: &domAssessment.CostEstimate{Recommended: 10000},
	}

	result, err := h.HandleValidation(context.Background(), ValidationOutcome{
		Agent:    "agent-1",
		Key:      []float64{0.1, 0.2, 0.3, 0.4, 0.5},
		Original: original,
		Actual:   actual,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.SignalAdaptive {
		t.Error("a badly mismatched outcome should signal the adaptive engine")
	}
	if result.OverallAccuracy >= accuracyThreshold {
		t.Errorf("expected overall accuracy below threshold, got %f", result.OverallAccuracy)
	}
}

func TestHandleRepairZeroesUnrelatedDimensions(t *testing.T) {
	h := newHandler()
	original := domAssessment.ProvisionalAssessment{
		Severity:     domAssessment.SeverityMidway,
		Urgency:      domAssessment.UrgencySoon,
		CostEstimate: &domAssessment.CostEstimate{Recommended: 1000},
	}

	result, err := h.HandleRepair(context.Background(), RepairOutcome{
		Agent:          "agent-1",
		Key:            []float64{0, 0, 0, 0, 0},
		Original:       original,
		ActualSeverity: domAssessment.SeverityMidway,
		ActualCost:     1000,
		ActualUrgency:  domAssessment.UrgencySoon,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Values[idxDamageTypeAcc] != 0 || result.Values[idxConfidenceErr] != 0 {
		t.Error("repair outcome must leave damage-type and confidence dimensions at zero")
	}
	if result.Values[idxSeverityAcc] != 1 || result.Values[idxUrgencyAcc] != 1 {
		t.Errorf("expected perfect severity/urgency match, got %+v", result.Values)
	}
}

func TestHandleProgressionNormalizesToUnitRange(t *testing.T) {
	h := newHandler()
	earlier := domAssessment.ProvisionalAssessment{Severity: domAssessment.SeverityEarly}
	later := domAssessment.ProvisionalAssessment{Severity: domAssessment.SeverityFull}

	result, err := h.HandleProgression(context.Background(), ProgressionOutcome{
		Agent:       "agent-1",
		Key:         []float64{0, 0, 0, 0, 0},
		Earlier:     earlier,
		Later:       later,
		DaysBetween: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Values[idxSeverityAcc] != 1 {
		t.Errorf("expected full severity delta of 1, got %f", result.Values[idxSeverityAcc])
	}
	if result.Values[idxConfidenceErr] < -1 || result.Values[idxConfidenceErr] > 1 {
		t.Errorf("rate_per_day must stay within [-1,1], got %f", result.Values[idxConfidenceErr])
	}
}
