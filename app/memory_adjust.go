package app

import (
	domAssessment "gohypo/domain/assessment"
	"gohypo/internal/memory"
)

// memoryAdjustment is the single scalar the continuum memory's recall
// collapses to for the purpose of nudging a provisional assessment: the
// five learned dimensions are wire-compatible with the vector the learning
// handlers push, but the orchestrator only ever needs a confidence-weighted
// severity/urgency/cost/confidence scalar.
type memoryAdjustment struct {
	Value      float64 // in [-1,1]
	Confidence float64
}

// neutralAdjustment carries no signal; applying it leaves the provisional
// assessment untouched.
func neutralAdjustment() memoryAdjustment { return memoryAdjustment{} }

// adjustmentFromMemory collapses a memory query result into the scalar
// adjustment applied to the provisional assessment. A query that returned
// no value (zero confidence, empty history) is itself neutral.
func adjustmentFromMemory(q memory.QueryResult) memoryAdjustment {
	if q.Confidence == 0 || len(q.Value) == 0 {
		return neutralAdjustment()
	}
	sum := 0.0
	for _, v := range q.Value {
		sum += v
	}
	mean := sum / float64(len(q.Value))
	return memoryAdjustment{Value: clampSigned(mean), Confidence: q.Confidence}
}

// ruleBasedAdjustment is the fallback applied when every memory level is
// neutral: no adjustment at all, letting the VLM's own output stand
// unmodified rather than guessing at a correction with no learned basis.
func ruleBasedAdjustment() memoryAdjustment { return neutralAdjustment() }

// applyMemoryAdjustment applies the per-field rules: severity and urgency
// shift by one ordinal step when the adjustment's magnitude exceeds 0.3,
// cost scales by (1 + 0.5*adj), and confidence receives an offset of
// 20*adj, clamped back into [0,100].
func applyMemoryAdjustment(p domAssessment.ProvisionalAssessment, adj memoryAdjustment) domAssessment.ProvisionalAssessment {
	if adj.Value == 0 {
		return p
	}

	if adj.Value > 0.3 {
		p.Severity = domAssessment.SeverityFromStep(p.Severity.Step() + 1)
		p.Urgency = domAssessment.UrgencyFromStep(p.Urgency.Step() - 1)
	} else if adj.Value < -0.3 {
		p.Severity = domAssessment.SeverityFromStep(p.Severity.Step() - 1)
		p.Urgency = domAssessment.UrgencyFromStep(p.Urgency.Step() + 1)
	}

	if p.CostEstimate != nil {
		scale := 1 + 0.5*adj.Value
		p.CostEstimate = &domAssessment.CostEstimate{
			Min:         p.CostEstimate.Min * scale,
			Max:         p.CostEstimate.Max * scale,
			Recommended: p.CostEstimate.Recommended * scale,
		}
	}

	p.Confidence = domAssessment.ClampConfidence(p.Confidence + 20*adj.Value)

	return p
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
