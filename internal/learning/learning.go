// Package learning converts validated, repaired, and progressing outcomes
// into the 5-dimensional reward vectors the continuum memory and the
// adaptive update engine consume: [damage_type_acc, severity_acc, cost_err,
// urgency_acc, confidence_err].
package learning

import (
	"context"
	"math"

	domAssessment "gohypo/domain/assessment"
	"gohypo/internal/adaptive"
	"gohypo/internal/memory"
)

// vectorDim is the fixed width of the outcome reward vector.
const vectorDim = 5

// Vector indices, named for readability at call sites.
const (
	idxDamageTypeAcc = 0
	idxSeverityAcc   = 1
	idxCostErr       = 2
	idxUrgencyAcc    = 3
	idxConfidenceErr = 4
)

// accuracyThreshold below overall accuracy signals the adaptive engine.
const accuracyThreshold = 0.7

// Handler wires the memory bank and adaptive engine together so outcome
// events can push context-flow records and trend-drive chunk sizes.
type Handler struct {
	memory   *memory.Bank
	adaptive *adaptive.Engine
	levels   int
}

// New builds a learning Handler over a given agent's memory bank and
// adaptive engine.
func New(bank *memory.Bank, adaptiveEngine *adaptive.Engine, levels int) *Handler {
	return &Handler{memory: bank, adaptive: adaptiveEngine, levels: levels}
}

// ValidationOutcome is a human-validated ProvisionalAssessment compared
// against the engine's original output.
type ValidationOutcome struct {
	Agent    memory.AgentID
	Key      []float64 // the recomputed feature vector for this assessment
	Original domAssessment.ProvisionalAssessment
	Actual   domAssessment.ProvisionalAssessment
}

// OutcomeResult reports the reward vector pushed to memory and whether the
// overall accuracy fell low enough to signal the adaptive engine.
type OutcomeResult struct {
	Values          [5]float64
	OverallAccuracy float64
	SignalAdaptive  bool
}

// HandleValidation implements the validation-outcome entry point: recompute
// the feature vector (the caller is expected to have already done so via
// contextvec.Construct on the original request), emit the 5-vector, push to
// every memory level, and signal the adaptive engine when overall accuracy
// degrades below the threshold.
func (h *Handler) HandleValidation(ctx context.Context, out ValidationOutcome) (OutcomeResult, error) {
	values := [vectorDim]float64{
		idxDamageTypeAcc: damageTypeAccuracy(out.Original, out.Actual),
		idxSeverityAcc:   severityAccuracy(out.Original, out.Actual),
		idxCostErr:       costError(out.Original, out.Actual),
		idxUrgencyAcc:    urgencyAccuracy(out.Original, out.Actual),
		idxConfidenceErr: confidenceError(out.Original, out.Actual),
	}

	if err := h.pushToAllLevels(ctx, out.Agent, out.Key, values[:]); err != nil {
		return OutcomeResult{}, err
	}

	overall := overallAccuracy(values)
	result := OutcomeResult{Values: values, OverallAccuracy: overall}
	if overall < accuracyThreshold {
		result.SignalAdaptive = true
		h.adaptive.Observe(overall)
	}
	return result, nil
}

// RepairOutcome is an actual-repair record compared against the engine's
// originally provisional severity, cost, and urgency.
type RepairOutcome struct {
	Agent            memory.AgentID
	Key              []float64
	Original         domAssessment.ProvisionalAssessment
	ActualSeverity   domAssessment.Severity
	ActualCost       float64
	ActualUrgency    domAssessment.Urgency
}

// HandleRepair implements the repair-outcome entry point: [0, sev_acc,
// cost_err, urg_acc, 0].
func (h *Handler) HandleRepair(ctx context.Context, out RepairOutcome) (OutcomeResult, error) {
	sevAcc := 1 - math.Abs(float64(out.Original.Severity.Step()-out.ActualSeverity.Step()))/2.0
	costErr := 0.0
	if out.Original.CostEstimate != nil && out.ActualCost > 0 {
		costErr = clamp01(math.Abs(out.Original.CostEstimate.Recommended-out.ActualCost) / out.ActualCost)
	}
	urgAcc := 1 - math.Abs(float64(out.Original.Urgency.Step()-out.ActualUrgency.Step()))/float64(len(urgencySteps)-1)

	values := [vectorDim]float64{
		idxSeverityAcc: sevAcc,
		idxCostErr:     costErr,
		idxUrgencyAcc:  urgAcc,
	}

	if err := h.pushToAllLevels(ctx, out.Agent, out.Key, values[:]); err != nil {
		return OutcomeResult{}, err
	}
	return OutcomeResult{Values: values, OverallAccuracy: overallAccuracy(values)}, nil
}

// urgencySteps mirrors the five-step urgency timeline for normalization.
var urgencySteps = []domAssessment.Urgency{
	domAssessment.UrgencyImmediate,
	domAssessment.UrgencyUrgent,
	domAssessment.UrgencySoon,
	domAssessment.UrgencyPlanned,
	domAssessment.UrgencyMonitor,
}

// ProgressionOutcome is two time-ordered assessments of the same property
// site, used to measure damage progression rate.
type ProgressionOutcome struct {
	Agent      memory.AgentID
	Key        []float64
	Earlier    domAssessment.ProvisionalAssessment
	Later      domAssessment.ProvisionalAssessment
	DaysBetween float64
}

// HandleProgression implements the progression entry point: [0,
// severity_delta, 0, 0, rate_per_day], both normalized to [-1,1].
func (h *Handler) HandleProgression(ctx context.Context, out ProgressionOutcome) (OutcomeResult, error) {
	delta := float64(out.Later.Severity.Step()-out.Earlier.Severity.Step()) / 2.0
	delta = clampSigned(delta)

	ratePerDay := 0.0
	if out.DaysBetween > 0 {
		ratePerDay = clampSigned(delta / out.DaysBetween)
	}

	values := [vectorDim]float64{
		idxSeverityAcc:   delta,
		idxConfidenceErr: ratePerDay,
	}

	if err := h.pushToAllLevels(ctx, out.Agent, out.Key, values[:]); err != nil {
		return OutcomeResult{}, err
	}
	return OutcomeResult{Values: values}, nil
}

func (h *Handler) pushToAllLevels(ctx context.Context, agent memory.AgentID, key []float64, values []float64) error {
	for level := 0; level < h.levels; level++ {
		if err := h.memory.AddContextFlow(ctx, agent, level, key, values); err != nil {
			return err
		}
	}
	return nil
}

func damageTypeAccuracy(original, actual domAssessment.ProvisionalAssessment) float64 {
	if original.DamageType == actual.DamageType {
		return 1.0
	}
	return 0.0
}

func severityAccuracy(original, actual domAssessment.ProvisionalAssessment) float64 {
	return 1 - math.Abs(float64(original.Severity.Step()-actual.Severity.Step()))/2.0
}

func urgencyAccuracy(original, actual domAssessment.ProvisionalAssessment) float64 {
	return 1 - math.Abs(float64(original.Urgency.Step()-actual.Urgency.Step()))/float64(len(urgencySteps)-1)
}

func costError(original, actual domAssessment.ProvisionalAssessment) float64 {
	if original.CostEstimate == nil || actual.CostEstimate == nil || actual.CostEstimate.Recommended == 0 {
		return 0
	}
	return clamp01(math.Abs(original.CostEstimate.Recommended-actual.CostEstimate.Recommended) / actual.CostEstimate.Recommended)
}

func confidenceError(original, actual domAssessment.ProvisionalAssessment) float64 {
	return clamp01(math.Abs(original.Confidence-actual.Confidence) / 100.0)
}

func overallAccuracy(values [vectorDim]float64) float64 {
	return (values[idxDamageTypeAcc] +
		values[idxSeverityAcc] +
		(1 - values[idxCostErr]) +
		values[idxUrgencyAcc] +
		(1 - values[idxConfidenceErr])) / 5.0
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func clampSigned(x float64) float64 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}
