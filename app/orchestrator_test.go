package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	domconformal "gohypo/domain/conformal"
	"gohypo/domain/core"
	domcritic "gohypo/domain/critic"
	domMemory "gohypo/domain/memory"
	domvalidation "gohypo/domain/validation"
	"gohypo/internal/adaptive"
	"gohypo/internal/conformal"
	"gohypo/internal/config"
	"gohypo/internal/critic"
	"gohypo/internal/fusion"
	"gohypo/internal/learning"
	"gohypo/internal/memory"
	"gohypo/internal/scheduler"
	"gohypo/ports"
)

// fakeRepo implements ports.RepositoryPort entirely in memory, satisfying
// every narrow store interface the subsystems need from a single value.
type fakeRepo struct {
	decisions []domcritic.Record
	alerts    []ports.Alert
	models    map[string]*domcritic.Model
	levels    map[string]*domMemory.Level
	hv        domvalidation.HistoricalValidation
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{models: map[string]*domcritic.Model{}, levels: map[string]*domMemory.Level{}}
}

func (f *fakeRepo) GetCalibration(ctx context.Context, stratum core.StratumKey, limit int) ([]domconformal.CalibrationPoint, error) {
	return nil, nil
}

func (f *fakeRepo) AppendCalibration(ctx context.Context, stratum core.StratumKey, point domconformal.CalibrationPoint) error {
	return nil
}

func (f *fakeRepo) GetHistoricalValidation(ctx context.Context, propertyType, ageBin, region string, since time.Time) (domvalidation.HistoricalValidation, error) {
	return f.hv, nil
}

func (f *fakeRepo) GetCriticModel(ctx context.Context, arm domcritic.Arm, stratum core.StratumKey, dim int, lambda float64) (*domcritic.Model, error) {
	key := string(arm) + "|" + string(stratum)
	if m, ok := f.models[key]; ok {
		return m, nil
	}
	m := domcritic.NewModel(dim, lambda)
	f.models[key] = m
	return m, nil
}

func (f *fakeRepo) UpsertCriticModel(ctx context.Context, arm domcritic.Arm, stratum core.StratumKey, model *domcritic.Model) error {
	f.models[string(arm)+"|"+string(stratum)] = model
	return nil
}

func (f *fakeRepo) GetMemoryLevel(ctx context.Context, agent core.AgentID, level int) (*domMemory.Level, error) {
	return f.levels[fmt.Sprintf("%s|%d", agent.String(), level)], nil
}

func (f *fakeRepo) UpsertMemoryLevel(ctx context.Context, agent core.AgentID, level *domMemory.Level) error {
	f.levels[fmt.Sprintf("%s|%d", agent.String(), level.Level)] = level
	return nil
}

func (f *fakeRepo) AppendDecision(ctx context.Context, record domcritic.Record) error {
	f.decisions = append(f.decisions, record)
	return nil
}

func (f *fakeRepo) AppendAlert(ctx context.Context, alert ports.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

var _ ports.RepositoryPort = (*fakeRepo)(nil)

type fakeDetector struct{}

func (fakeDetector) DetectObjects(ctx context.Context, imageURLs []string) ([]ports.ObjectDetection, error) {
	return []ports.ObjectDetection{{ClassName: "roof_damage", Confidence: 80, BBox: ports.BoundingBox{X: 0, Y: 0, W: 1, H: 1}}}, nil
}

type fakeVLM struct {
	assessment ports.VLMAssessment
	err        error
	panicMsg   string
}

func (f fakeVLM) AssessWithVLM(ctx context.Context, images []string, systemPrompt, userPrompt string) (ports.VLMAssessment, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.assessment, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Detector: config.DetectorConfig{
			Timeout:            5 * time.Second,
			DefaultWeights:     []float64{0.5, 0.3, 0.2},
			CorrelationOffDiag: []float64{0.1, 0.1, 0.1},
			EpistemicConstant:  0.01,
		},
		Vision: config.VisionConfig{
			Timeout:     5 * time.Second,
			MaxRetries:  1,
			BackoffBase: time.Millisecond,
			BackoffMax:  time.Millisecond,
		},
		Safety: config.SafetyConfig{
			DeltaDefault:      1e-3,
			DeltaConstruction: 5e-4,
			DeltaRail:         1e-4,
			Lambda:            1.0,
			ExplorationAlpha:  1.0,
		},
		Conformal: config.ConformalConfig{
			TargetCoverage:          0.9,
			MinStratumN:             50,
			SSBCThresholdN:          100,
			RecencyWindow:           5000,
			DefaultImportanceWeight: 1.0,
		},
		SeedSafe: config.SeedSafeConfig{MinN: 1000, MaxWilsonUpper: 0.005, Confidence: 0.95},
		Memory: config.MemoryConfig{
			Levels:         2,
			ChunkMin:       4,
			ChunkMax:       64,
			AdaptationRate: 0.1,
			SlidingWindow:  50,
		},
		Flags: config.FeatureFlags{},
	}
}

func newTestOrchestrator(repo *fakeRepo, cfg *config.Config, vlm ports.VLMAssessorPort) *Orchestrator {
	titans := memory.NewTitans(false, 12)
	bank := memory.New(repo, cfg.Memory, titans)
	return New(Dependencies{
		Detector: fakeDetector{},
		VLM:      vlm,
		Repo:     repo,

		Fusion:     fusion.New(cfg.Detector),
		Conformal:  conformal.New(repo, cfg.Conformal, nil),
		Critic:     critic.New(repo, repo, cfg.Safety, cfg.SeedSafe),
		MemoryBank: bank,
		Scheduler:  scheduler.New(bank, cfg.Memory.Levels, nil),
		Learning:   learning.New(bank, adaptive.New(cfg.Memory), cfg.Memory.Levels),

		Config: cfg,
	})
}

func validRequest() AssessRequest {
	return AssessRequest{
		ImageRefs:        []string{"https://images.example.com/1.jpg"},
		Agent:            memory.AgentID("agent-1"),
		PropertyID:       core.PropertyID("property-1"),
		PropertyType:     "residential",
		PropertyClass:    "residential",
		AgeBin:           "20_50",
		Region:           "coastal",
		PropertyAgeYears: 30,
		LightingQuality:  0.8,
		ImageClarity:     0.9,
		DamageTypeHint:   "water_damage",
		SystemPrompt:     "assess damage",
		UserPrompt:       "describe the damage in these images",
	}
}

func TestAssessRejectsEmptyImageRefs(t *testing.T) {
	o := newTestOrchestrator(newFakeRepo(), testConfig(), fakeVLM{})
	req := validRequest()
	req.ImageRefs = nil

	_, err := o.Assess(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error for empty image refs")
	}
}

func TestAssessForcedEscalatesWithNoDetectorAndNoFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Flags.GPTOnlyFallback = false
	repo := newFakeRepo()
	titans := memory.NewTitans(false, 12)
	bank := memory.New(repo, cfg.Memory, titans)
	o := New(Dependencies{
		Repo:       repo,
		VLM:        fakeVLM{},
		Fusion:     fusion.New(cfg.Detector),
		Conformal:  conformal.New(repo, cfg.Conformal, nil),
		Critic:     critic.New(repo, repo, cfg.Safety, cfg.SeedSafe),
		MemoryBank: bank,
		Scheduler:  scheduler.New(bank, cfg.Memory.Levels, nil),
		Learning:   learning.New(bank, adaptive.New(cfg.Memory), cfg.Memory.Levels),
		Config:     cfg,
	})

	result, err := o.Assess(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision.Arm != domcritic.ArmEscalate {
		t.Fatalf("expected a forced escalate decision, got %s", result.Decision.Arm)
	}
	if len(repo.decisions) != 1 {
		t.Fatalf("expected one appended decision record, got %d", len(repo.decisions))
	}
}

func TestAssessSucceedsEndToEndWithDetectorAndVLM(t *testing.T) {
	repo := newFakeRepo()
	cfg := testConfig()
	vlm := fakeVLM{assessment: ports.VLMAssessment{
		DamageType:    "water_damage",
		Severity:      "midway",
		Confidence:    75,
		Location:      "roof",
		Urgency:       "soon",
		SafetyHazards: nil,
	}}
	o := newTestOrchestrator(repo, cfg, vlm)

	result, err := o.Assess(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Assessment.DamageType != "water_damage" {
		t.Fatalf("expected damage type to flow through, got %q", result.Assessment.DamageType)
	}
	if len(repo.decisions) != 1 {
		t.Fatalf("expected one appended decision record, got %d", len(repo.decisions))
	}
}

func TestAssessRecoversFromPanicAsForcedEscalate(t *testing.T) {
	repo := newFakeRepo()
	cfg := testConfig()
	vlm := fakeVLM{panicMsg: "simulated nil dereference"}
	o := newTestOrchestrator(repo, cfg, vlm)

	result, err := o.Assess(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("a recovered panic must surface as a forced escalate result, not an error: %v", err)
	}
	if result.Decision.Arm != domcritic.ArmEscalate {
		t.Fatalf("expected a forced escalate decision after panic recovery, got %s", result.Decision.Arm)
	}
	if result.Decision.Reason != "error in pipeline" {
		t.Fatalf("expected reason %q, got %q", "error in pipeline", result.Decision.Reason)
	}
	if len(repo.alerts) != 1 {
		t.Fatalf("expected one alert persisted after panic recovery, got %d", len(repo.alerts))
	}
	if len(repo.decisions) != 1 {
		t.Fatalf("expected one appended decision record, got %d", len(repo.decisions))
	}
}

func TestAssessPropagatesInvalidVLMSchema(t *testing.T) {
	repo := newFakeRepo()
	cfg := testConfig()
	vlm := fakeVLM{assessment: ports.VLMAssessment{DamageType: "", Severity: "midway", Confidence: 50}}
	o := newTestOrchestrator(repo, cfg, vlm)

	_, err := o.Assess(context.Background(), validRequest())
	if err == nil {
		t.Fatal("expected an error for a VLM assessment missing damageType")
	}
}
