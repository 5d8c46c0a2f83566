// Package drift detects seasonal, material, and temporal drift in detector
// performance and proposes an additive weight adjustment for the fusion
// engine.
package drift

import (
	"math"

	"gohypo/domain/evidence"
)

// Type is the kind of drift detected, or Type "none" when below threshold.
type Type string

const (
	TypeNone     Type = "none"
	TypeSeasonal Type = "seasonal"
	TypeMaterial Type = "material"
	TypeTemporal Type = "temporal"
)

const (
	scoreThreshold  = 0.2
	adjustmentScale = 0.1
)

// Result is the output of one drift detection run.
type Result struct {
	HasDrift bool
	Type     Type
	Score    float64
	DeltaW   map[evidence.SourceName]float64
}

// WindowStats summarizes an assessment-rate window matching a
// property/region filter, as consumed by the drift comparison.
type WindowStats struct {
	Rate float64 // assessments per day (or other fixed unit), over the window
}

// Context carries the two comparison windows plus the candidate drift type
// hint (the caller knows which comparison it is running: seasonal across
// a year boundary, material against a novel-material filter, or temporal
// as the catch-all recency comparison).
type Context struct {
	Recent     WindowStats
	Historical WindowStats
	Candidate  Type
}

// Detect implements the drift contract: detect(context) -> {has_drift, type,
// score, delta_w}.
func Detect(ctx Context) Result {
	if ctx.Historical.Rate == 0 {
		return Result{HasDrift: false, Type: TypeNone, Score: 0, DeltaW: nil}
	}

	score := math.Abs(ctx.Recent.Rate-ctx.Historical.Rate) / ctx.Historical.Rate
	if score > 1 {
		score = 1
	}

	if score < scoreThreshold {
		return Result{HasDrift: false, Type: TypeNone, Score: score}
	}

	driftType := ctx.Candidate
	if driftType == "" {
		driftType = TypeTemporal
	}

	return Result{
		HasDrift: true,
		Type:     driftType,
		Score:    score,
		DeltaW:   deltaFor(driftType, score),
	}
}

// deltaFor dispatches the additive weight adjustment per drift type:
// seasonal favours the secondary masker in wet seasons, material favours
// segmentation for novel materials, temporal rebalances conservatively by
// trimming every source slightly toward the primary detector.
func deltaFor(t Type, score float64) map[evidence.SourceName]float64 {
	scale := adjustmentScale * score
	switch t {
	case TypeSeasonal:
		return map[evidence.SourceName]float64{
			evidence.SourceSecondaryMasker:       scale,
			evidence.SourcePrimaryObjectDetector: -scale,
		}
	case TypeMaterial:
		return map[evidence.SourceName]float64{
			evidence.SourceSegmentation:           scale,
			evidence.SourceSecondaryMasker:        -scale,
		}
	case TypeTemporal:
		return map[evidence.SourceName]float64{
			evidence.SourcePrimaryObjectDetector: scale,
			evidence.SourceSecondaryMasker:       -scale / 2,
			evidence.SourceSegmentation:          -scale / 2,
		}
	default:
		return nil
	}
}
