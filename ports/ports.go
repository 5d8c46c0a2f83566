// Package ports declares the narrow external-state interfaces the core
// decision engine depends on: detector services, the VLM assessor, the
// repository, and the clock. Adapters live under adapters/.
package ports

import (
	"context"
	"time"

	"gohypo/domain/conformal"
	"gohypo/domain/core"
	"gohypo/domain/critic"
	"gohypo/domain/memory"
	"gohypo/domain/validation"
)

// BoundingBox is a detector-reported bounding box, pixel or normalized.
type BoundingBox struct {
	X, Y, W, H float64
}

// ObjectDetection is one entry returned by the primary object detector.
type ObjectDetection struct {
	ClassName  string
	Confidence float64 // 0-100
	BBox       BoundingBox
}

// DetectorPort wraps the primary object detector service.
type DetectorPort interface {
	DetectObjects(ctx context.Context, imageURLs []string) ([]ObjectDetection, error)
}

// VisionLabel is one label/score pair from the vision labeler.
type VisionLabel struct {
	Description string
	Score       float64
}

// VisionObject is one object/score pair from the vision labeler.
type VisionObject struct {
	Name  string
	Score float64
}

// VisionAnalysis is the structured output of the vision labeler.
type VisionAnalysis struct {
	Labels           []VisionLabel
	Objects          []VisionObject
	DetectedFeatures []string
	PropertyType     string
	Condition        string
	Complexity       string
	Confidence       float64 // 0-100
}

// VisionLabelerPort wraps the secondary vision labeling service.
type VisionLabelerPort interface {
	AnalyzeVision(ctx context.Context, imageURLs []string) (VisionAnalysis, error)
}

// SegmentationMask is one damage-type's segmentation output.
type SegmentationMask struct {
	Masks       []string // opaque mask references/encodings
	Boxes       []BoundingBox
	Scores      []float64
	NumInstances int
}

// SegmentationPort wraps the optional damage segmentation service.
type SegmentationPort interface {
	SegmentDamage(ctx context.Context, imageURL string, damageTypes []string) (map[string]SegmentationMask, error)
}

// VLMAssessment is the validated AI Assessment Schema payload.
type VLMAssessment struct {
	DamageType           string
	Severity             string
	Confidence           float64
	Location             string
	Description          string
	DetectedItems        []string
	SafetyHazards        []string
	ComplianceIssues     []string
	RiskFactors          []string
	Urgency              string
	HomeownerExplanation string
	ContractorAdvice     string
}

// VLMAssessorPort wraps the vision-language damage assessor.
type VLMAssessorPort interface {
	AssessWithVLM(ctx context.Context, images []string, systemPrompt, userPrompt string) (VLMAssessment, error)
}

// RepositoryPort is the narrow persistence contract the core depends on.
type RepositoryPort interface {
	GetCalibration(ctx context.Context, stratum core.StratumKey, limit int) ([]conformal.CalibrationPoint, error)
	AppendCalibration(ctx context.Context, stratum core.StratumKey, point conformal.CalibrationPoint) error

	GetHistoricalValidation(ctx context.Context, propertyType, ageBin, region string, since time.Time) (validation.HistoricalValidation, error)

	GetCriticModel(ctx context.Context, arm critic.Arm, stratum core.StratumKey, dim int, lambda float64) (*critic.Model, error)
	UpsertCriticModel(ctx context.Context, arm critic.Arm, stratum core.StratumKey, model *critic.Model) error

	GetMemoryLevel(ctx context.Context, agent core.AgentID, level int) (*memory.Level, error)
	UpsertMemoryLevel(ctx context.Context, agent core.AgentID, level *memory.Level) error

	AppendDecision(ctx context.Context, record critic.Record) error
	AppendAlert(ctx context.Context, alert Alert) error
}

// Alert is an operational signal raised on pipeline failure.
type Alert struct {
	ID        core.ID
	Severity  string
	Reason    string
	Context   map[string]string
	CreatedAt core.Timestamp
}

// ClockPort abstracts wall-clock time so tests can control it.
type ClockPort interface {
	Now() time.Time
}

// SystemClock is the production ClockPort backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
