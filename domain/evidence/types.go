// Package evidence holds the value objects produced and consumed by the
// detector and high-level evidence fusion stages.
package evidence

// SourceName identifies a detector in the closed set the fusion stage knows
// how to combine.
type SourceName string

const (
	SourcePrimaryObjectDetector SourceName = "primary_object_detector"
	SourceSecondaryMasker       SourceName = "secondary_masker"
	SourceSegmentation          SourceName = "segmentation"
	SourceLabeler               SourceName = "labeler"
	SourceVLMAssessor           SourceName = "vlm_assessor"
)

// InstanceScore is a per-instance confidence/box pair reported by a detector
// that produces multiple detections per image.
type InstanceScore struct {
	Score float64
	Box   BoundingBox
}

// BoundingBox is a normalized or pixel bounding box; detectors document which.
type BoundingBox struct {
	X, Y, W, H float64
}

// Record is the evidence contributed by a single detector.
type Record struct {
	Source     SourceName
	Confidence float64 // 0..1
	Count      int
	Instances  []InstanceScore // optional per-instance detail
}

// SourceBreakdown decomposes the fused variance into its contributing terms.
type SourceBreakdown struct {
	Epistemic       float64
	Disagreement    float64
	CorrelationTerm float64
}

// FusionResult is the output of fuse(): a calibrated (mean, variance) pair
// plus the breakdown and detector weights used to produce it.
type FusionResult struct {
	Mean            float64
	Variance        float64
	Breakdown       SourceBreakdown
	DetectorWeights map[SourceName]float64
	LowEvidence     bool
	ReasonNotes     []string
}
