package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	AssessmentID ID
	DecisionID   ID
	PropertyID   ID
	AgentID      ID
)

// String conversions for domain IDs
func (id AssessmentID) String() string { return ID(id).String() }
func (id DecisionID) String() string   { return ID(id).String() }
func (id PropertyID) String() string   { return ID(id).String() }
func (id AgentID) String() string      { return ID(id).String() }

// NewAssessmentID mints a fresh assessment identifier.
func NewAssessmentID() AssessmentID { return AssessmentID(NewID()) }

// NewDecisionID mints a fresh decision identifier.
func NewDecisionID() DecisionID { return DecisionID(NewID()) }

// ParseAssessmentID parses a string into AssessmentID
func ParseAssessmentID(s string) (AssessmentID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("assessment ID cannot be empty")
	}
	return AssessmentID(s), nil
}

// ParsePropertyID parses a string into PropertyID
func ParsePropertyID(s string) (PropertyID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("property ID cannot be empty")
	}
	return PropertyID(s), nil
}

// ParseAgentID parses a string into AgentID
func ParseAgentID(s string) (AgentID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("agent ID cannot be empty")
	}
	return AgentID(s), nil
}

// StratumKey is the hierarchical back-off key used by Mondrian conformal
// prediction and the Safe-LUCB critic: "pt_ageBin_region_dmg", with
// components progressively dropped until calibration size is sufficient.
type StratumKey string

// Global is the maximally general stratum: the final back-off step, and the
// conservative fallback when the calibration store is unavailable.
const Global StratumKey = "global"

func (k StratumKey) String() string { return string(k) }

// IsEmpty reports whether the stratum key carries no information.
func (k StratumKey) IsEmpty() bool { return k == "" }
