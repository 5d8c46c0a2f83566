// Package critic implements the Safe-LUCB contextual linear bandit: per-arm
// reward/safety ridge regressors, a seed-safe-set gate backed by historical
// validation, and a hard safety veto.
package critic

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	domcontext "gohypo/domain/context"
	"gohypo/domain/core"
	domvalidation "gohypo/domain/validation"
	"gohypo/internal/config"
)

// Arms in deterministic lexicographic tie-break order.
var arms = []Arm{ArmAutomate, ArmEscalate}

// ModelStore is the narrow read/write dependency this package needs from the
// repository.
type ModelStore interface {
	GetCriticModel(ctx context.Context, arm Arm, stratum core.StratumKey, dim int, lambda float64) (*Model, error)
	UpsertCriticModel(ctx context.Context, arm Arm, stratum core.StratumKey, model *Model) error
}

// ValidationStore is the narrow read dependency for the seed-safe gate.
type ValidationStore interface {
	GetHistoricalValidation(ctx context.Context, propertyType, ageBin, region string, since time.Time) (domvalidation.HistoricalValidation, error)
}

// Critic runs Safe-LUCB arm selection and serializes per-stratum updates.
type Critic struct {
	models     ModelStore
	validation ValidationStore
	safety     config.SafetyConfig
	seedSafe   config.SeedSafeConfig

	mu           sync.Mutex
	stratumLocks map[core.StratumKey]*sync.Mutex
}

// New builds a Critic.
func New(models ModelStore, validation ValidationStore, safety config.SafetyConfig, seedSafe config.SeedSafeConfig) *Critic {
	return &Critic{
		models:       models,
		validation:   validation,
		safety:       safety,
		seedSafe:     seedSafe,
		stratumLocks: make(map[core.StratumKey]*sync.Mutex),
	}
}

func (c *Critic) lockFor(stratum core.StratumKey) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.stratumLocks[stratum]
	if !ok {
		l = &sync.Mutex{}
		c.stratumLocks[stratum] = l
	}
	return l
}

// SelectArmInputs carries everything select_arm needs beyond the model
// store: the feature vector, property class (for delta selection), the
// (property_type, age_bin, region) tuple for the seed-safe gate, and the
// critical-candidate flag.
type SelectArmInputs struct {
	Context          domcontext.Vector
	PropertyClass    string
	PropertyType     string
	AgeBin           string
	Region           string
	Stratum          core.StratumKey
	CriticalCandidate bool
	Step             int // global step counter, for the exploration schedule
}

// SelectArm implements the contract select_arm(context, delta, stratum?,
// critical_candidate?) -> {arm, reason, reward_ucb, safety_ucb,
// safety_threshold, exploration}.
func (c *Critic) SelectArm(ctx context.Context, in SelectArmInputs) (Decision, error) {
	delta := c.safety.DeltaFor(in.PropertyClass)

	hv, err := c.validation.GetHistoricalValidation(ctx, in.PropertyType, in.AgeBin, in.Region, time.Time{})
	if err != nil {
		return Decision{}, err
	}
	if !hv.SeedSafe(c.seedSafe.MinN, c.seedSafe.MaxWilsonUpper, c.seedSafe.Confidence) {
		return Decision{
			Arm:             ArmEscalate,
			Reason:          "context not in verified safe set",
			SafetyThreshold: delta,
		}, nil
	}

	x := mat.NewVecDense(domcontext.Length, in.Context.Slice())

	type armStat struct {
		arm       Arm
		rewardUCB float64
		safetyUCB float64
		explored  bool
	}
	stats := make([]armStat, 0, len(arms))

	for _, arm := range arms {
		model, err := c.models.GetCriticModel(ctx, arm, in.Stratum, domcontext.Length, c.safety.Lambda)
		if err != nil {
			return Decision{}, err
		}

		arInv, err := safeInverse(model.Ar)
		if err != nil {
			return Decision{}, err
		}
		asInv, err := safeInverse(model.As)
		if err != nil {
			return Decision{}, err
		}

		thetaR := solveTheta(arInv, model.Br)
		thetaS := solveTheta(asInv, model.Bs)

		beta := c.safety.ExplorationAlpha * math.Log(float64(in.Step)+1)

		rewardUCB := matVecDot(thetaR, x) + beta*math.Sqrt(math.Max(0, quadFormVec(x, arInv)))
		safetyUCB := matVecDot(thetaS, x) + beta*math.Sqrt(math.Max(0, quadFormVec(x, asInv)))

		if in.CriticalCandidate {
			safetyUCB += criticalPrior(arm)
		}

		stats = append(stats, armStat{arm: arm, rewardUCB: rewardUCB, safetyUCB: safetyUCB, explored: model.N < explorationFloor})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].arm < stats[j].arm })

	var best *armStat
	for i := range stats {
		s := &stats[i]
		if s.safetyUCB > delta {
			continue
		}
		if best == nil || s.rewardUCB > best.rewardUCB {
			best = s
		}
	}

	var decision Decision
	if best == nil {
		worst := stats[0]
		for _, s := range stats[1:] {
			if s.safetyUCB < worst.safetyUCB {
				worst = s
			}
		}
		decision = Decision{
			Arm:             ArmEscalate,
			Reason:          "no arm satisfies the safety constraint",
			RewardUCB:       worst.rewardUCB,
			SafetyUCB:       worst.safetyUCB,
			SafetyThreshold: delta,
			Exploration:     worst.explored,
		}
	} else {
		decision = Decision{
			Arm:             best.arm,
			Reason:          "argmax reward among safety-feasible arms",
			RewardUCB:       best.rewardUCB,
			SafetyUCB:       best.safetyUCB,
			SafetyThreshold: delta,
			Exploration:     best.explored,
		}
	}

	// Hard safety veto: automate is only ever permitted when its own
	// safety_ucb is within the threshold. Escalate is never vetoed.
	if decision.Arm == ArmAutomate && decision.SafetyUCB > delta {
		decision.Arm = ArmEscalate
		decision.Reason = "safety UCB exceeds threshold"
	}

	return decision, nil
}

const explorationFloor = 30

// criticalPrior biases the safety UCB toward escalate when the candidate is
// flagged safety-critical: automate's safety estimate is pushed up (harder
// to pass the veto), escalate is left untouched.
func criticalPrior(arm Arm) float64 {
	if arm == ArmAutomate {
		return 0.01
	}
	return 0
}

func solveTheta(inv *mat.Dense, b *mat.VecDense) *mat.VecDense {
	var theta mat.VecDense
	theta.MulVec(inv, b)
	return &theta
}

// Observation is the feedback used to update a model after a decision has
// been evaluated: reward in [0,1] and whether the outcome was safe (i.e.
// retrospectively did not require escalation).
type Observation struct {
	Context domcontext.Vector
	Reward  float64
	Safe    bool
}

// Update implements the contract's update rule: A += x x^T; b_r += r*x;
// b_s += s*x; n += 1, serialized per stratum to preserve A/b consistency
// under concurrent decisions. The safety indicator s is 1 for an unsafe
// outcome (a safety false negative) and 0 for a safe one, so b_s/safety_ucb
// track the estimated probability of an unsafe outcome, which the veto
// compares against delta, the maximum admissible value.
func (c *Critic) Update(ctx context.Context, arm Arm, stratum core.StratumKey, obs Observation) error {
	lock := c.lockFor(stratum)
	lock.Lock()
	defer lock.Unlock()

	model, err := c.models.GetCriticModel(ctx, arm, stratum, domcontext.Length, c.safety.Lambda)
	if err != nil {
		return err
	}

	x := mat.NewVecDense(domcontext.Length, obs.Context.Slice())

	var outer mat.Dense
	outer.Outer(1, x, x)
	addOuterToSym(model.Ar, &outer)
	addOuterToSym(model.As, &outer)

	r := obs.Reward
	s := 0.0
	if !obs.Safe {
		s = 1.0
	}
	axpyVec(model.Br, r, x)
	axpyVec(model.Bs, s, x)
	model.N++

	return c.models.UpsertCriticModel(ctx, arm, stratum, model)
}

func addOuterToSym(dst *mat.SymDense, outer *mat.Dense) {
	n, _ := outer.Dims()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, dst.At(i, j)+outer.At(i, j))
		}
	}
}

func axpyVec(dst *mat.VecDense, alpha float64, x *mat.VecDense) {
	n := x.Len()
	for i := 0; i < n; i++ {
		dst.SetVec(i, dst.AtVec(i)+alpha*x.AtVec(i))
	}
}
