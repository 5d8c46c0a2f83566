package conformal

import (
	"context"
	"testing"

	domconformal "gohypo/domain/conformal"
	"gohypo/domain/core"
	"gohypo/internal/config"
)

type fakeStore struct {
	byStratum map[core.StratumKey][]domconformal.CalibrationPoint
	err       error
}

func (f *fakeStore) GetCalibration(ctx context.Context, stratum core.StratumKey, limit int) ([]domconformal.CalibrationPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byStratum[stratum], nil
}

func testConfig() config.ConformalConfig {
	return config.ConformalConfig{
		TargetCoverage:          0.90,
		MinStratumN:             50,
		SSBCThresholdN:          100,
		RecencyWindow:           5000,
		DefaultImportanceWeight: 1.0,
	}
}

func calPoints(n int, trueProb float64) []domconformal.CalibrationPoint {
	pts := make([]domconformal.CalibrationPoint, n)
	for i := range pts {
		pts[i] = domconformal.CalibrationPoint{TrueClass: "water_damage", TrueProbability: trueProb, ImportanceWeight: 1.0}
	}
	return pts
}

func TestPredictHighCalibrationNoSSBC(t *testing.T) {
	store := &fakeStore{byStratum: map[core.StratumKey][]domconformal.CalibrationPoint{
		"residential_50-100_uk_water_damage": calPoints(500, 0.9),
	}}
	p := New(store, testConfig(), nil)

	result := p.Predict(context.Background(), 0.881, 0.02, StratumInputs{
		PropertyType: "residential", AgeBin: "50-100", Region: "uk", DamageType: "water_damage",
	}, "water_damage")

	if result.NCalibration != 500 {
		t.Errorf("expected n_calibration 500, got %d", result.NCalibration)
	}
	if want := 1 - testConfig().TargetCoverage; result.AlphaPrime != want {
		t.Errorf("expected alpha' == alpha == 0.10 with n_cal>=100, got %f", result.AlphaPrime)
	}
	if len(result.PredictionSet) == 0 {
		t.Error("prediction set must be non-empty with n_cal >= 50")
	}
}

func TestPredictBackoffToGlobal(t *testing.T) {
	store := &fakeStore{byStratum: map[core.StratumKey][]domconformal.CalibrationPoint{
		core.Global: calPoints(40, 0.6),
	}}
	p := New(store, testConfig(), nil)

	result := p.Predict(context.Background(), 0.5, 0.1, StratumInputs{
		PropertyType: "residential", AgeBin: "50-100", Region: "uk", DamageType: "water_damage",
	}, "water_damage")

	if result.Stratum != core.Global {
		t.Errorf("expected backoff to global stratum, got %s", result.Stratum)
	}
	if result.AlphaPrime >= 0.10 {
		t.Errorf("SSBC must strictly tighten alpha' below alpha for n_cal<100, got %f", result.AlphaPrime)
	}
}

func TestPredictStoreFailureIsConservative(t *testing.T) {
	store := &fakeStore{err: context.DeadlineExceeded}
	p := New(store, testConfig(), nil)

	result := p.Predict(context.Background(), 0.5, 0.1, StratumInputs{PropertyType: "residential"}, "water_damage")

	if result.Stratum != core.Global {
		t.Error("store failure must fall back to the global stratum")
	}
	if result.Quantile != 1.0 {
		t.Errorf("store failure must use quantile 1.0, got %f", result.Quantile)
	}
	if len(result.PredictionSet) != len(domconformal.ClassCatalogue) {
		t.Error("store failure must return the full class catalogue")
	}
}

func TestSmallSampleAlphaIsStrictlyMoreConservativeBelowThreshold(t *testing.T) {
	alpha := 0.10
	below := SmallSampleAlpha(alpha, 40, 100)
	if below >= alpha {
		t.Errorf("SSBC must strictly tighten alpha for n_cal<100: got %f, want < %f", below, alpha)
	}

	atOrAbove := SmallSampleAlpha(alpha, 100, 100)
	if atOrAbove != alpha {
		t.Errorf("no correction expected at n_cal>=threshold, got %f", atOrAbove)
	}
}

func TestBetaInvGeneralAgreesWithClosedFormWhenBIsOne(t *testing.T) {
	got := BetaInvGeneral(0.9, 41, 1)
	want := BetaInvClosedForm(0.9, 41)
	if diff := got - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("general solver should match closed form when b=1: got %f, want %f", got, want)
	}
}
