package conformal

import (
	"context"
	"sort"

	domconformal "gohypo/domain/conformal"
	"gohypo/domain/core"
	gohypolog "gohypo/internal"
	"gohypo/internal/config"
	"gohypo/internal/errors"
)

// CalibrationStore is the narrow read dependency this package needs from the
// repository, kept separate from ports.RepositoryPort so unit tests can
// supply a minimal fake.
type CalibrationStore interface {
	GetCalibration(ctx context.Context, stratum core.StratumKey, limit int) ([]domconformal.CalibrationPoint, error)
}

// Predictor runs Mondrian Conformal Prediction against a calibration store.
type Predictor struct {
	store  CalibrationStore
	cfg    config.ConformalConfig
	logger *gohypolog.Logger
}

// New builds a Predictor.
func New(store CalibrationStore, cfg config.ConformalConfig, logger *gohypolog.Logger) *Predictor {
	if logger == nil {
		logger = gohypolog.DefaultLogger
	}
	return &Predictor{store: store, cfg: cfg, logger: logger}
}

// StratumInputs names the hierarchical leaf key's components.
type StratumInputs struct {
	PropertyType string
	AgeBin       string
	Region       string
	DamageType   string
}

// leafKey builds the pt_ageBin_region_dmg key.
func leafKey(in StratumInputs) core.StratumKey {
	return core.StratumKey(in.PropertyType + "_" + in.AgeBin + "_" + in.Region + "_" + in.DamageType)
}

// backoffChain returns the ordered stratum keys to try, in the documented
// back-off order: drop damage -> drop region -> drop ageBin -> drop pt ->
// "global". The chain always terminates at global within 5 steps.
func backoffChain(in StratumInputs) []core.StratumKey {
	return []core.StratumKey{
		leafKey(in),
		core.StratumKey(in.PropertyType + "_" + in.AgeBin + "_" + in.Region),
		core.StratumKey(in.PropertyType + "_" + in.AgeBin),
		core.StratumKey(in.PropertyType),
		core.Global,
	}
}

// Predict implements the contract predict(mu, sigma2, ctx) -> ConformalResult.
func (p *Predictor) Predict(ctx context.Context, mu, sigma2 float64, in StratumInputs, provisionalClass string) domconformal.Result {
	chain := backoffChain(in)

	stratum := core.Global
	var points []domconformal.CalibrationPoint

	for _, key := range chain {
		pts, err := p.store.GetCalibration(ctx, key, p.cfg.RecencyWindow)
		if err != nil {
			p.logger.Warn("calibration store unavailable during stratum resolution: %v", errors.StoreUnavailable("get_calibration", err))
			return conservativeFallback(domconformal.ClassCatalogue)
		}
		if len(pts) >= p.cfg.MinStratumN || key == core.Global {
			stratum = key
			points = pts
			break
		}
	}

	alpha := 1 - p.cfg.TargetCoverage
	alphaPrime := SmallSampleAlpha(alpha, len(points), p.cfg.SSBCThresholdN)

	quantile := weightedQuantile(points, alphaPrime, p.cfg.DefaultImportanceWeight)

	predictionSet := buildPredictionSet(mu, quantile, provisionalClass)

	return domconformal.Result{
		Stratum:       stratum,
		Quantile:      quantile,
		PredictionSet: predictionSet,
		AlphaPrime:    alphaPrime,
		NCalibration:  len(points),
	}
}

// conservativeFallback implements the calibration-store failure semantics:
// stratum="global", quantile=1.0, prediction_set = full class catalogue.
func conservativeFallback(catalogue []string) domconformal.Result {
	set := make([]string, len(catalogue))
	copy(set, catalogue)
	return domconformal.Result{
		Stratum:       core.Global,
		Quantile:      1.0,
		PredictionSet: set,
		AlphaPrime:    1.0,
		NCalibration:  0,
	}
}

// weightedQuantile computes the importance-weighted (1-alphaPrime) quantile
// of nonconformity scores s_i = 1 - p_true,i, by sorting (s_i, w_i) ascending
// and taking the first s where cumulative weight crosses the target mass.
// An empty calibration set returns the maximally conservative quantile 1.0.
func weightedQuantile(points []domconformal.CalibrationPoint, alphaPrime, defaultWeight float64) float64 {
	if len(points) == 0 {
		return 1.0
	}

	type scored struct {
		s float64
		w float64
	}
	scores := make([]scored, len(points))
	totalWeight := 0.0
	for i, pt := range points {
		w := pt.ImportanceWeight
		if w <= 0 {
			w = defaultWeight
		}
		scores[i] = scored{s: 1 - pt.TrueProbability, w: w}
		totalWeight += w
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].s < scores[j].s })

	target := (1 - alphaPrime) * totalWeight
	cum := 0.0
	for _, sc := range scores {
		cum += sc.w
		if cum >= target {
			return sc.s
		}
	}
	return scores[len(scores)-1].s
}

// buildPredictionSet starts from the fixed class catalogue and includes any
// class whose nonconformity score (1-mu, the documented simplification
// using the fused confidence as a stand-in for a per-class score) is at most
// the quantile. If the resulting set is empty, the provisional damage class
// is inserted as a safety fallback.
func buildPredictionSet(mu, quantile float64, provisionalClass string) []string {
	score := 1 - mu
	var set []string
	for _, c := range domconformal.ClassCatalogue {
		if score <= quantile {
			set = append(set, c)
		}
	}
	if len(set) == 0 {
		if provisionalClass == "" {
			provisionalClass = domconformal.ClassCatalogue[0]
		}
		set = append(set, provisionalClass)
	}
	return set
}
