// Package app wires the Evidence Fusion, Mondrian Conformal Prediction,
// Safe-LUCB Critic, and Continuum Memory subsystems into the single
// assessment operation external callers invoke.
package app

import (
	domAssessment "gohypo/domain/assessment"
	"gohypo/domain/core"
	domCritic "gohypo/domain/critic"
	"gohypo/internal/drift"
	"gohypo/internal/memory"
)

// AssessRequest carries one assessment call's image references and the
// surrounding context the orchestrator cannot itself derive: the core
// performs no image I/O, so property metadata and image-quality scalars
// arrive from the caller rather than being computed here.
type AssessRequest struct {
	ImageRefs []string

	Agent      memory.AgentID
	PropertyID core.PropertyID

	PropertyType  string // e.g. "residential", "rail"
	PropertyClass string // safety-threshold class: residential/commercial, construction, rail
	AgeBin        string
	Region        string

	PropertyAgeYears float64
	LightingQuality  float64 // 0..1, from the caller's image-quality pipeline
	ImageClarity     float64 // 0..1

	DamageTypeHint string // optional: damage type requested from segmentation and recorded on a forced escalate

	SystemPrompt string
	UserPrompt   string

	// Drift carries the two comparison windows the drift monitor needs; a
	// nil Drift skips detection entirely and fusion runs with its base
	// weights unadjusted.
	Drift *drift.Context
}

// AssessResult is the public output of assess(): the structured assessment
// plus the decision the Critic attached to it.
type AssessResult struct {
	Assessment     domAssessment.ProvisionalAssessment
	Decision       domCritic.Decision
	DecisionRecord domCritic.Record
}
