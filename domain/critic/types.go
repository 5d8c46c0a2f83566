// Package critic holds the Safe-LUCB critic's per-stratum linear model state
// and the decisions it produces.
package critic

import (
	"gonum.org/v1/gonum/mat"

	"gohypo/domain/conformal"
	"gohypo/domain/context"
	"gohypo/domain/core"
	"gohypo/domain/evidence"
)

// Arm is one of the two actions the critic chooses between.
type Arm string

const (
	ArmAutomate Arm = "automate"
	ArmEscalate Arm = "escalate"
)

// Model is the per-(arm, stratum) linear regressor pair for reward and
// safety, as maintained by the Safe-LUCB update rule.
type Model struct {
	Dim int
	Ar  *mat.SymDense // reward design matrix, d x d, starts at lambda*I
	Br  *mat.VecDense // reward response vector, d
	As  *mat.SymDense // safety design matrix, d x d, starts at lambda*I
	Bs  *mat.VecDense // safety response vector, d
	N   int
}

// NewModel returns a fresh ridge-initialized model for a d-dimensional
// context, as required before any observation has been seen.
func NewModel(d int, lambda float64) *Model {
	ar := mat.NewSymDense(d, nil)
	as := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		ar.SetSym(i, i, lambda)
		as.SetSym(i, i, lambda)
	}
	return &Model{
		Dim: d,
		Ar:  ar,
		Br:  mat.NewVecDense(d, nil),
		As:  as,
		Bs:  mat.NewVecDense(d, nil),
		N:   0,
	}
}

// Decision is the outcome of one select_arm invocation, not yet persisted.
type Decision struct {
	Arm             Arm
	Reason          string
	RewardUCB       float64
	SafetyUCB       float64
	SafetyThreshold float64
	Exploration     bool
}

// Record is the append-only persisted form of a Decision, with the
// surrounding evidence and context snapshot attached.
type Record struct {
	ID              core.DecisionID
	AssessmentID    core.AssessmentID
	Decision        Arm
	Reason          string
	SafetyUCB       float64
	RewardUCB       float64
	SafetyThreshold float64
	Exploration     bool
	Shadow          bool
	Stratum         core.StratumKey
	PredictionSet   []string
	FusionMean      float64
	FusionVariance  float64
	Context         context.Vector
	CreatedAt       core.Timestamp
}

// NewRecordFromDecision assembles a Record from a Decision plus the
// surrounding request state, per the decision-output contract.
func NewRecordFromDecision(
	id core.DecisionID,
	assessmentID core.AssessmentID,
	d Decision,
	shadow bool,
	stratum core.StratumKey,
	cr conformal.Result,
	fr evidence.FusionResult,
	ctx context.Vector,
	at core.Timestamp,
) Record {
	return Record{
		ID:              id,
		AssessmentID:    assessmentID,
		Decision:        d.Arm,
		Reason:          d.Reason,
		SafetyUCB:       d.SafetyUCB,
		RewardUCB:       d.RewardUCB,
		SafetyThreshold: d.SafetyThreshold,
		Exploration:     d.Exploration,
		Shadow:          shadow,
		Stratum:         stratum,
		PredictionSet:   cr.PredictionSet,
		FusionMean:      fr.Mean,
		FusionVariance:  fr.Variance,
		Context:         ctx,
		CreatedAt:       at,
	}
}
