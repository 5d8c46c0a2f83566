package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	domAssessment "gohypo/domain/assessment"
	"gohypo/domain/core"
	domCritic "gohypo/domain/critic"
	domEvidence "gohypo/domain/evidence"
	gohypolog "gohypo/internal"
	"gohypo/internal/conformal"
	"gohypo/internal/config"
	"gohypo/internal/contextvec"
	"gohypo/internal/critic"
	"gohypo/internal/drift"
	"gohypo/internal/errors"
	"gohypo/internal/fusion"
	"gohypo/internal/learning"
	"gohypo/internal/memory"
	"gohypo/internal/retry"
	"gohypo/internal/scheduler"
	"gohypo/ports"
)

// Orchestrator wires Evidence Fusion, Mondrian Conformal Prediction, the
// Safe-LUCB Critic, and Continuum Memory into the single public assess()
// operation. It owns no I/O itself; every external call goes through a
// narrow port injected at construction.
type Orchestrator struct {
	detector     ports.DetectorPort
	labeler      ports.VisionLabelerPort
	segmentation ports.SegmentationPort
	vlm          ports.VLMAssessorPort
	repo         ports.RepositoryPort
	clock        ports.ClockPort

	fusion      *fusion.Engine
	conformal   *conformal.Predictor
	critic      *critic.Critic
	memoryBank  *memory.Bank
	scheduler   *scheduler.Scheduler
	learning    *learning.Handler

	cfg    *config.Config
	logger *gohypolog.Logger

	detectorSem *semaphore.Weighted
}

// Dependencies collects every port and configured subsystem the
// Orchestrator needs. Assembled once by the container at startup and passed
// down explicitly, rather than reached for via package-level singletons.
type Dependencies struct {
	Detector     ports.DetectorPort
	Labeler      ports.VisionLabelerPort
	Segmentation ports.SegmentationPort
	VLM          ports.VLMAssessorPort
	Repo         ports.RepositoryPort
	Clock        ports.ClockPort

	Fusion     *fusion.Engine
	Conformal  *conformal.Predictor
	Critic     *critic.Critic
	MemoryBank *memory.Bank
	Scheduler  *scheduler.Scheduler
	Learning   *learning.Handler

	Config *config.Config
	Logger *gohypolog.Logger
}

// New builds an Orchestrator from a fully assembled set of dependencies.
func New(d Dependencies) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = gohypolog.DefaultLogger
	}
	clock := d.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Orchestrator{
		detector:     d.Detector,
		labeler:      d.Labeler,
		segmentation: d.Segmentation,
		vlm:          d.VLM,
		repo:         d.Repo,
		clock:        clock,
		fusion:       d.Fusion,
		conformal:    d.Conformal,
		critic:       d.Critic,
		memoryBank:   d.MemoryBank,
		scheduler:    d.Scheduler,
		learning:     d.Learning,
		cfg:          d.Config,
		logger:       logger,
		detectorSem:  semaphore.NewWeighted(4),
	}
}

// Assess implements the public operation: assess(image_refs, context) ->
// ProvisionalAssessment + DecisionRecord, with detector/segmentation I/O
// fanned out concurrently and every other stage synchronous and pure given
// its inputs. A top-level recover guarantees that any unhandled panic
// anywhere in the pipeline translates into a forced escalate plus an alert
// rather than crashing the caller.
func (o *Orchestrator) Assess(ctx context.Context, req AssessRequest) (result AssessResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("panic in pipeline: %v", r)
			o.logger.Error("[Orchestrator] recovered from panic in Assess: %v", r)
			o.alertPipelineError(ctx, req, cause)
			result, err = o.forcedEscalate(req, "error in pipeline", evidenceGather{}, domEvidence.FusionResult{LowEvidence: true})
		}
	}()
	return o.assess(ctx, req)
}

// assess runs the assessment pipeline proper; Assess wraps it with the
// top-level panic recovery.
func (o *Orchestrator) assess(ctx context.Context, req AssessRequest) (AssessResult, error) {
	if err := validateImageRefs(req.ImageRefs); err != nil {
		return AssessResult{}, err
	}

	// Step 2-4: fan out to detectors (and optionally segmentation), build
	// scene-graph or flat features depending on what came back structured.
	gathered := o.gatherEvidence(ctx, req)
	if gathered.Halt {
		return o.forcedEscalate(req, gathered.HaltReason, gathered, domEvidence.FusionResult{LowEvidence: true})
	}

	// Step 5: query memory at all levels, combine by confidence-weighted
	// mean; fall back to a rule-based adjustment when every level is
	// neutral (no recent observations at all).
	agent := req.Agent
	memKey := memoryQueryKey(req)
	adjustment, err := o.queryMemoryAdjustment(ctx, agent, memKey)
	if err != nil {
		o.logger.Warn("[Orchestrator] memory query failed, using rule-based adjustment: %v", err)
		adjustment = ruleBasedAdjustment()
	}

	// Step 6-7: call the VLM assessor with retry-on-rate-limit, validate the
	// payload against the schema, and structure a ProvisionalAssessment.
	vlmResult, err := o.callVLM(ctx, req)
	if err != nil {
		return AssessResult{}, err
	}
	provisional, err := structureAssessment(req, vlmResult, o.clock.Now())
	if err != nil {
		return AssessResult{}, err
	}

	// Step 8: apply memory adjustments to the provisional fields.
	provisional = applyMemoryAdjustment(provisional, adjustment)

	// Step 9: detect drift (when the caller supplied comparison windows)
	// and fuse evidence; prefer high-level fusion when segmentation or VLM
	// signal is present, otherwise fall back to detector-only fusion.
	var driftAdj fusion.WeightAdjustment
	if req.Drift != nil {
		driftResult := drift.Detect(*req.Drift)
		if driftResult.HasDrift {
			driftAdj = fusion.WeightAdjustment(driftResult.DeltaW)
			o.logger.Info("[Orchestrator] drift detected: type=%s score=%.3f", driftResult.Type, driftResult.Score)
		}
	}
	fusionResult := o.fuseEvidence(gathered, provisional, vlmResult, driftAdj)
	provisional.Evidence = fusionResult

	stratumInputs := conformal.StratumInputs{
		PropertyType: req.PropertyType,
		AgeBin:       req.AgeBin,
		Region:       req.Region,
		DamageType:   provisional.DamageType,
	}
	conformalResult := o.conformal.Predict(ctx, fusionResult.Mean, fusionResult.Variance, stratumInputs, provisional.DamageType)

	// Step 9 (cont.): OOD score, detector disagreement, image-quality
	// scalars feed the context vector below.
	oodScore := outOfDistributionScore(fusionResult, gathered)
	disagreement := detectorDisagreement(fusionResult)

	// Step 10: assemble the 12-D context vector and resolve safety delta.
	features := contextvec.Features{
		FusionConfidence:     fusionResult.Mean,
		FusionVariance:       fusionResult.Variance,
		PredictionSetSize:    len(conformalResult.PredictionSet),
		SafetyCriticalCand:   provisional.HasCriticalHazard,
		LightingQuality:      req.LightingQuality,
		ImageClarity:         req.ImageClarity,
		PropertyAgeYears:     req.PropertyAgeYears,
		NumDamageSites:       gathered.NumDamageSites,
		DetectorDisagreement: disagreement,
		OODScore:             oodScore,
		Region:               req.Region,
	}
	vec := contextvec.Construct(features)
	valid, normalized := contextvec.Validate(vec)
	if !valid {
		return AssessResult{}, errors.InputInvalid("context vector contains non-finite entries")
	}
	vec = normalized

	step := o.memoryBank.Step()

	// Step 11: invoke the critic.
	selectArmIn := critic.SelectArmInputs{
		Context:           vec,
		PropertyClass:     req.PropertyClass,
		PropertyType:      req.PropertyType,
		AgeBin:            req.AgeBin,
		Region:            req.Region,
		Stratum:           conformalResult.Stratum,
		CriticalCandidate: provisional.HasCriticalHazard,
		Step:              step,
	}
	decision, err := o.critic.SelectArm(ctx, selectArmIn)
	if err != nil {
		o.logger.Error("[Orchestrator] critic select_arm failed: %v", err)
		decision = domCritic.Decision{
			Arm:             domCritic.ArmEscalate,
			Reason:          "error in pipeline",
			SafetyThreshold: o.cfg.Safety.DeltaFor(req.PropertyClass),
		}
		o.alertPipelineError(ctx, req, err)
	}

	// Step 12: shadow mode forces escalate but still records the would-be
	// decision.
	shadow := o.cfg.Flags.ShadowMode
	actualArm := decision.Arm
	if shadow {
		actualArm = domCritic.ArmEscalate
	}

	record := domCritic.NewRecordFromDecision(
		core.NewDecisionID(),
		provisional.ID,
		decision,
		shadow,
		conformalResult.Stratum,
		conformalResult,
		fusionResult,
		vec,
		core.Now(),
	)

	if err := o.repo.AppendDecision(ctx, record); err != nil {
		o.logger.Warn("[Orchestrator] append_decision failed: %v", errors.StoreUnavailable("append_decision", err))
	}

	// Run the explicit memory-consolidation tick after every assessment, per
	// the no-hidden-background-goroutine scheduler design.
	tick := o.scheduler.Tick(ctx, agent)
	if len(tick.FailedLevels) > 0 {
		o.logger.Warn("[Orchestrator] %d memory level(s) failed to update on step %d", len(tick.FailedLevels), tick.Step)
	}

	finalDecision := domCritic.Decision{
		Arm:             actualArm,
		Reason:          decision.Reason,
		RewardUCB:       decision.RewardUCB,
		SafetyUCB:       decision.SafetyUCB,
		SafetyThreshold: decision.SafetyThreshold,
		Exploration:     decision.Exploration,
	}

	return AssessResult{
		Assessment:     provisional,
		Decision:       finalDecision,
		DecisionRecord: record,
	}, nil
}

// forcedEscalate builds a terminal escalate result without consulting the
// critic. It serves the zero-detector, fallback-not-permitted boundary case,
// where the pipeline halts before ever calling the VLM, and Assess's panic
// recovery ("error in pipeline"). The decision is escalate by construction.
func (o *Orchestrator) forcedEscalate(req AssessRequest, reason string, gathered evidenceGather, fr domEvidence.FusionResult) (AssessResult, error) {
	now := o.clock.Now()
	provisional := domAssessment.ProvisionalAssessment{
		ID:         core.NewAssessmentID(),
		PropertyID: req.PropertyID,
		DamageType: req.DamageTypeHint,
		Severity:   domAssessment.SeverityMidway,
		Urgency:    domAssessment.UrgencyUrgent,
		Evidence:   fr,
		CreatedAt:  core.NewTimestamp(now),
	}
	decision := domCritic.Decision{
		Arm:             domCritic.ArmEscalate,
		Reason:          reason,
		SafetyThreshold: o.cfg.Safety.DeltaFor(req.PropertyClass),
	}
	record := domCritic.Record{
		ID:             core.NewDecisionID(),
		AssessmentID:   provisional.ID,
		Decision:       decision.Arm,
		Reason:         decision.Reason,
		SafetyThreshold: decision.SafetyThreshold,
		Stratum:        core.Global,
		PredictionSet:  nil,
		FusionMean:     fr.Mean,
		FusionVariance: fr.Variance,
		CreatedAt:      core.NewTimestamp(now),
	}
	if err := o.repo.AppendDecision(context.Background(), record); err != nil {
		o.logger.Warn("[Orchestrator] append_decision failed for forced escalate: %v", err)
	}
	return AssessResult{Assessment: provisional, Decision: decision, DecisionRecord: record}, nil
}

// alertPipelineError persists an alert for an unhandled pipeline failure,
// called both from the critic's error path and from Assess's top-level
// panic recovery.
func (o *Orchestrator) alertPipelineError(ctx context.Context, req AssessRequest, cause error) {
	alert := ports.Alert{
		ID:       core.NewID(),
		Severity: "error",
		Reason:   "error in pipeline",
		Context: map[string]string{
			"property_id": req.PropertyID.String(),
			"cause":       cause.Error(),
		},
		CreatedAt: core.Now(),
	}
	if err := o.repo.AppendAlert(ctx, alert); err != nil {
		o.logger.Error("[Orchestrator] failed to append alert after pipeline error: %v", err)
	}
}

// validateImageRefs rejects empty or malformed image references fail-fast,
// as InputInvalid (surfaced, never recovered locally).
func validateImageRefs(refs []string) error {
	if len(refs) == 0 {
		return errors.InputInvalid("image_refs must not be empty")
	}
	for _, r := range refs {
		u, err := url.Parse(strings.TrimSpace(r))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.InputInvalid("invalid image reference: " + r)
		}
	}
	return nil
}

// memoryQueryKey derives a four-value associative-memory key from context
// already available before the VLM call: property attributes plus
// image-quality scalars. It is not checked against the key width the MLP
// levels were built with.
func memoryQueryKey(req AssessRequest) []float64 {
	return []float64{
		req.PropertyAgeYears / 100.0,
		req.LightingQuality,
		req.ImageClarity,
		core.RegionHash01(req.Region),
	}
}

func (o *Orchestrator) queryMemoryAdjustment(ctx context.Context, agent memory.AgentID, key []float64) (memoryAdjustment, error) {
	result, err := o.memoryBank.Query(ctx, agent, key, nil)
	if err != nil {
		return memoryAdjustment{}, err
	}
	return adjustmentFromMemory(result), nil
}

// callVLM invokes the vision-language damage assessor under the configured
// timeout and rate-limit backoff policy.
func (o *Orchestrator) callVLM(ctx context.Context, req AssessRequest) (ports.VLMAssessment, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Vision.Timeout)
	defer cancel()

	backoffCfg := retry.Config{
		MaxAttempts:     o.cfg.Vision.MaxRetries,
		InitialInterval: o.cfg.Vision.BackoffBase,
		MaxInterval:     o.cfg.Vision.BackoffMax,
		Multiplier:      2.0,
	}

	result, err := retry.Do(callCtx, backoffCfg, o.logger, "vlm_assessor", func(c context.Context) (ports.VLMAssessment, error) {
		out, err := o.vlm.AssessWithVLM(c, req.ImageRefs, req.SystemPrompt, req.UserPrompt)
		if err != nil {
			return ports.VLMAssessment{}, retry.Retryable(err)
		}
		return out, nil
	})
	if err != nil {
		return ports.VLMAssessment{}, errors.Wrap(err, "vlm assessor call failed")
	}
	if err := validateVLMSchema(result); err != nil {
		return ports.VLMAssessment{}, err
	}
	return result, nil
}

// validateVLMSchema implements the "validate against the schema; on
// validation failure, raise" requirement: a missing damage type or an
// out-of-range confidence is InputInvalid, surfaced to the caller.
func validateVLMSchema(v ports.VLMAssessment) error {
	if strings.TrimSpace(v.DamageType) == "" {
		return errors.InputInvalid("vlm assessment missing damageType")
	}
	if v.Confidence < 0 || v.Confidence > 100 {
		return errors.InputInvalid("vlm assessment confidence out of range")
	}
	switch domAssessment.Severity(v.Severity) {
	case domAssessment.SeverityEarly, domAssessment.SeverityMidway, domAssessment.SeverityFull:
	default:
		return errors.InputInvalid("vlm assessment has unrecognized severity")
	}
	return nil
}

// structureAssessment builds a ProvisionalAssessment from the validated VLM
// payload.
func structureAssessment(req AssessRequest, v ports.VLMAssessment, now time.Time) (domAssessment.ProvisionalAssessment, error) {
	items := make([]domAssessment.DetectedItem, len(v.DetectedItems))
	for i, name := range v.DetectedItems {
		items[i] = domAssessment.DetectedItem{Name: name, Confidence: v.Confidence / 100.0}
	}

	urgency := domAssessment.Urgency(v.Urgency)
	switch urgency {
	case domAssessment.UrgencyImmediate, domAssessment.UrgencyUrgent, domAssessment.UrgencySoon,
		domAssessment.UrgencyPlanned, domAssessment.UrgencyMonitor:
	default:
		urgency = domAssessment.UrgencyPlanned
	}

	return domAssessment.ProvisionalAssessment{
		ID:                core.NewAssessmentID(),
		PropertyID:        req.PropertyID,
		DamageType:        v.DamageType,
		Severity:          domAssessment.Severity(v.Severity),
		Confidence:        domAssessment.ClampConfidence(v.Confidence),
		Urgency:           urgency,
		HasCriticalHazard: len(v.SafetyHazards) > 0,
		DetectedItems:     items,
		CreatedAt:         core.NewTimestamp(now),
	}, nil
}

// fuseEvidence prefers high-level fusion (segmentation/VLM/scene-graph) when
// it is available: that result supersedes detector-only fusion. Otherwise
// it falls back to detector-only fusion.
func (o *Orchestrator) fuseEvidence(gathered evidenceGather, provisional domAssessment.ProvisionalAssessment, vlm ports.VLMAssessment, driftAdj fusion.WeightAdjustment) domEvidence.FusionResult {
	if gathered.Structured {
		segConfidence := 0.0
		segCount := 0
		for _, r := range gathered.Records {
			if r.Source == domEvidence.SourceSegmentation {
				segConfidence = r.Confidence
				segCount++
			}
		}
		if segCount > 0 {
			return o.fusion.FuseHighLevel(fusion.HighLevelInputs{
				SegmentationConfidence: segConfidence,
				VLMConfidence:          vlm.Confidence / 100.0,
				SceneGraphScalar:       gathered.SceneGraphScalar,
			})
		}
	}
	return o.fusion.Fuse(gathered.Records, provisional.Confidence/100.0, driftAdj)
}

// outOfDistributionScore is a simple OOD proxy: 1.0 when the gathered
// evidence is low, otherwise twice the fused variance, capped at 1. The
// fused mean does not enter the score.
func outOfDistributionScore(fr domEvidence.FusionResult, gathered evidenceGather) float64 {
	if gathered.LowEvidence {
		return 1.0
	}
	score := fr.Variance * 2
	if score > 1 {
		score = 1
	}
	return score
}

func detectorDisagreement(fr domEvidence.FusionResult) float64 {
	d := fr.Breakdown.Disagreement
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}
