// Package assessment holds the provisional assessment value object produced
// by the orchestrator once detector evidence and the VLM payload have been
// combined and validated.
package assessment

import (
	"gohypo/domain/core"
	"gohypo/domain/evidence"
)

// Severity is one of the three damage progression stages the engine
// recognizes.
type Severity string

const (
	SeverityEarly  Severity = "early"
	SeverityMidway Severity = "midway"
	SeverityFull   Severity = "full"
)

// Step returns the ordinal position of the severity in its progression,
// used by the memory adjustment rule to shift severity by whole steps.
func (s Severity) Step() int {
	switch s {
	case SeverityEarly:
		return 0
	case SeverityMidway:
		return 1
	case SeverityFull:
		return 2
	default:
		return 1
	}
}

// SeverityFromStep clamps an ordinal back into the closed severity set.
func SeverityFromStep(step int) Severity {
	switch {
	case step <= 0:
		return SeverityEarly
	case step >= 2:
		return SeverityFull
	default:
		return SeverityMidway
	}
}

// Urgency is the engine's recommended response timeline.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyUrgent    Urgency = "urgent"
	UrgencySoon      Urgency = "soon"
	UrgencyPlanned   Urgency = "planned"
	UrgencyMonitor   Urgency = "monitor"
)

var urgencyOrder = []Urgency{UrgencyImmediate, UrgencyUrgent, UrgencySoon, UrgencyPlanned, UrgencyMonitor}

// Step returns the ordinal position of the urgency on its timeline, where 0
// is most urgent.
func (u Urgency) Step() int {
	for i, v := range urgencyOrder {
		if v == u {
			return i
		}
	}
	return 2
}

// UrgencyFromStep clamps an ordinal back into the closed urgency set.
func UrgencyFromStep(step int) Urgency {
	if step < 0 {
		step = 0
	}
	if step >= len(urgencyOrder) {
		step = len(urgencyOrder) - 1
	}
	return urgencyOrder[step]
}

// CostEstimate is a bounded repair cost range with a recommended point
// estimate.
type CostEstimate struct {
	Min         float64
	Max         float64
	Recommended float64
}

// DetectedItem is one line item surfaced by the VLM assessor's detectedItems
// field.
type DetectedItem struct {
	Name       string
	Confidence float64
}

// ProvisionalAssessment is the immutable output of one orchestrator run,
// before a human validates it.
type ProvisionalAssessment struct {
	ID                core.AssessmentID
	PropertyID        core.PropertyID
	DamageType        string
	Severity          Severity
	Confidence        float64 // 0..100
	Urgency           Urgency
	HasCriticalHazard bool
	CostEstimate      *CostEstimate
	DetectedItems     []DetectedItem
	Evidence          evidence.FusionResult
	CreatedAt         core.Timestamp
}

// ClampConfidence keeps confidence within the documented [0,100] range.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
