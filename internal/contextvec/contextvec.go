// Package contextvec assembles and validates the fixed 12-dimension context
// feature vector consumed by the Safe-LUCB critic.
package contextvec

import (
	"gohypo/domain/core"
	context "gohypo/domain/context"
)

// Features collects the raw signals the orchestrator has gathered by the
// time it is ready to build a context vector. Fields are already expected to
// be roughly in-range; Construct performs the fixed normalizations and
// Validate clamps anything that still falls outside [0,1].
type Features struct {
	FusionConfidence    float64
	FusionVariance      float64
	PredictionSetSize   int
	SafetyCriticalCand  bool
	LightingQuality     float64
	ImageClarity        float64
	PropertyAgeYears    float64
	NumDamageSites      int
	DetectorDisagreement float64
	OODScore            float64
	Region              string
}

// Construct implements the contract construct(features) -> vec[12], applying
// the fixed per-index normalizations from the data model.
func Construct(f Features) context.Vector {
	var v context.Vector
	v[context.IdxFusionConfidence] = f.FusionConfidence
	v[context.IdxFusionVariance] = f.FusionVariance
	v[context.IdxCPSetSize] = float64(f.PredictionSetSize) / 10.0
	if f.SafetyCriticalCand {
		v[context.IdxSafetyCritical] = 1
	}
	v[context.IdxLightingQuality] = f.LightingQuality
	v[context.IdxImageClarity] = f.ImageClarity
	v[context.IdxPropertyAge] = f.PropertyAgeYears / 100.0
	v[context.IdxNumDamageSites] = float64(f.NumDamageSites) / 10.0
	v[context.IdxDetectorDisagree] = f.DetectorDisagreement
	v[context.IdxOODScore] = f.OODScore
	v[context.IdxRegionHash01] = core.RegionHash01(f.Region)
	v[context.IdxPropertyAgeBinCode] = context.AgeBinCode(f.PropertyAgeYears)
	return v
}

// Validate implements the contract validate(v) -> {valid, normalized}.
func Validate(v context.Vector) (valid bool, normalized context.Vector) {
	return v.Validate()
}
