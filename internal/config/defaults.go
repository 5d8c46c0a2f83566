package config

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// seedDefaults holds the fitted detector-fusion defaults (base weights and
// empirical pairwise correlations) that ship with the repository. Operators
// override them per-environment with DETECTOR_WEIGHTS/DETECTOR_CORRELATION;
// these are the fallback when those are unset.
type seedDefaults struct {
	Detector struct {
		Weights     []float64 `yaml:"weights"`
		Correlation []float64 `yaml:"correlation"`
	} `yaml:"detector"`
}

func loadSeedDefaults() seedDefaults {
	var d seedDefaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		return seedDefaults{}
	}
	return d
}
