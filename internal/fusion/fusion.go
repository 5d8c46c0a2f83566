// Package fusion combines heterogeneous detector outputs into a single
// calibrated (mean, variance) estimate, and folds in high-level evidence
// (segmentation aggregate, VLM confidence, scene-graph scalar) when available.
package fusion

import (
	"math"

	"gohypo/domain/evidence"
	"gohypo/internal/config"
)

// Default detector ordering for the canonical three-detector setup. Missing
// sources are imputed from the remaining ones; imputation is a documented
// simulation, flagged in ReasonNotes rather than silently applied.
var defaultSources = []evidence.SourceName{
	evidence.SourcePrimaryObjectDetector,
	evidence.SourceSecondaryMasker,
	evidence.SourceSegmentation,
}

// Engine fuses detector evidence into a FusionResult using fixed source
// weights and a correlation matrix, both adjustable by the drift monitor.
type Engine struct {
	cfg config.DetectorConfig
}

// New builds a fusion Engine from detector configuration.
func New(cfg config.DetectorConfig) *Engine {
	return &Engine{cfg: cfg}
}

// WeightAdjustment is an additive correction to detector weights produced by
// the drift monitor, applied before fusion runs.
type WeightAdjustment map[evidence.SourceName]float64

// Fuse implements the detector-fusion contract: fuse(evidence_list,
// provisional_confidence, drift_adjustment?) -> FusionResult.
func (e *Engine) Fuse(records []evidence.Record, provisionalConfidence float64, adj WeightAdjustment) evidence.FusionResult {
	if len(records) == 0 {
		return evidence.FusionResult{
			Mean:        provisionalConfidence,
			Variance:    e.cfg.EpistemicConstant + e.lowEvidencePenalty(),
			LowEvidence: true,
			ReasonNotes: []string{"no detector evidence present; falling back to provisional confidence"},
		}
	}

	sources, weights := e.resolveWeights(adj)
	confidences, notes := e.collate(records, sources)

	mean := 0.0
	for i, w := range weights {
		mean += w * confidences[i]
	}

	mbar := 0.0
	for _, p := range confidences {
		mbar += p
	}
	mbar /= float64(len(confidences))
	disagreement := 0.0
	for _, p := range confidences {
		d := p - mbar
		disagreement += d * d
	}
	disagreement /= float64(len(confidences))

	corr := e.correlationMatrix(len(sources))
	correlationTerm := quadForm(weights, corr)

	variance := e.cfg.EpistemicConstant + disagreement + correlationTerm

	detectorWeights := make(map[evidence.SourceName]float64, len(sources))
	for i, s := range sources {
		detectorWeights[s] = weights[i]
	}

	return evidence.FusionResult{
		Mean:     clamp01(mean),
		Variance: math.Max(0, variance),
		Breakdown: evidence.SourceBreakdown{
			Epistemic:       e.cfg.EpistemicConstant,
			Disagreement:    disagreement,
			CorrelationTerm: correlationTerm,
		},
		DetectorWeights: detectorWeights,
		ReasonNotes:     notes,
	}
}

// HighLevelInputs holds the three high-level evidence signals: a
// segmentation-confidence aggregate, a VLM confidence, and a
// scene-graph feature scalar.
type HighLevelInputs struct {
	SegmentationConfidence float64
	VLMConfidence          float64
	SceneGraphScalar       float64
}

// FuseHighLevel combines the three high-level signals via a softmax-
// normalized weighting, producing the same (mean, variance) schema as
// detector-only fusion. When present, this result supersedes it.
func (e *Engine) FuseHighLevel(in HighLevelInputs) evidence.FusionResult {
	logits := []float64{in.SegmentationConfidence, in.VLMConfidence, in.SceneGraphScalar}
	weights := softmax(logits)

	values := []float64{clamp01(in.SegmentationConfidence), clamp01(in.VLMConfidence), clamp01(in.SceneGraphScalar)}
	mean := 0.0
	for i, w := range weights {
		mean += w * values[i]
	}

	mbar := mean
	disagreement := 0.0
	for _, v := range values {
		d := v - mbar
		disagreement += d * d
	}
	disagreement /= float64(len(values))

	corr := e.correlationMatrix(len(weights))
	correlationTerm := quadForm(weights, corr)

	return evidence.FusionResult{
		Mean:     clamp01(mean),
		Variance: math.Max(0, e.cfg.EpistemicConstant+disagreement+correlationTerm),
		Breakdown: evidence.SourceBreakdown{
			Epistemic:       e.cfg.EpistemicConstant,
			Disagreement:    disagreement,
			CorrelationTerm: correlationTerm,
		},
		DetectorWeights: map[evidence.SourceName]float64{
			evidence.SourceSegmentation: weights[0],
			evidence.SourceVLMAssessor:  weights[1],
		},
	}
}

func (e *Engine) lowEvidencePenalty() float64 {
	return 0.15
}

// resolveWeights returns the active source list and normalized weights,
// applying any drift adjustment and renormalizing to sum 1.
func (e *Engine) resolveWeights(adj WeightAdjustment) ([]evidence.SourceName, []float64) {
	sources := defaultSources
	base := e.cfg.DefaultWeights
	if len(base) != len(sources) {
		base = []float64{0.35, 0.50, 0.15}
	}

	weights := make([]float64, len(sources))
	copy(weights, base)
	if adj != nil {
		for i, s := range sources {
			weights[i] += adj[s]
		}
	}

	sum := 0.0
	for i := range weights {
		if weights[i] < 0 {
			weights[i] = 0
		}
		if weights[i] > 1 {
			weights[i] = 1
		}
		sum += weights[i]
	}
	if sum == 0 {
		sum = 1
	}
	for i := range weights {
		weights[i] /= sum
	}
	return sources, weights
}

// collate maps the available evidence records onto the fixed source
// ordering, imputing missing sources from the mean of the ones present and
// recording the imputation in reason notes.
func (e *Engine) collate(records []evidence.Record, sources []evidence.SourceName) ([]float64, []string) {
	bySource := make(map[evidence.SourceName]evidence.Record, len(records))
	for _, r := range records {
		bySource[r.Source] = r
	}

	present := make([]float64, 0, len(sources))
	for _, s := range sources {
		if r, ok := bySource[s]; ok {
			present = append(present, r.Confidence)
		}
	}
	fallback := 0.5
	if len(present) > 0 {
		sum := 0.0
		for _, v := range present {
			sum += v
		}
		fallback = sum / float64(len(present))
	}

	confidences := make([]float64, len(sources))
	var notes []string
	for i, s := range sources {
		if r, ok := bySource[s]; ok {
			confidences[i] = clamp01(r.Confidence)
		} else {
			confidences[i] = fallback
			notes = append(notes, "imputed missing source "+string(s)+" from available-detector mean")
		}
	}
	return confidences, notes
}

// correlationMatrix builds a symmetric matrix with unit diagonal and the
// configured empirical off-diagonal correlations, broadcasting the
// configured values across all off-diagonal cells when the matrix is larger
// than the canonical three-source case.
func (e *Engine) correlationMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	offDiag := e.cfg.CorrelationOffDiag
	idx := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := 0.3
			if len(offDiag) > 0 {
				v = offDiag[idx%len(offDiag)]
			}
			m[i][j] = v
			m[j][i] = v
			idx++
		}
	}
	return m
}

func quadForm(w []float64, sigma [][]float64) float64 {
	n := len(w)
	total := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			total += w[i] * sigma[i][j] * w[j]
		}
	}
	return total
}

func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	exps := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		exps[i] = math.Exp(v - max)
		sum += exps[i]
	}
	if sum == 0 {
		sum = 1
	}
	for i := range exps {
		exps[i] /= sum
	}
	return exps
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
