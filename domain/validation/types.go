// Package validation holds the historical-validation counters the Safe-LUCB
// critic's seed-safe gate consults, and the Wilson-bound helper used to
// evaluate it.
package validation

import "math"

// HistoricalValidation is the per (property_type, age_bin, region) tally of
// observed outcomes used to decide whether a stratum is seed-safe.
type HistoricalValidation struct {
	PropertyType string
	AgeBin       string
	Region       string
	N            int
	SFNCount     int // observed safety-false-negative count
}

// SFNRate is the observed safety-false-negative rate, 0 when N is 0.
func (h HistoricalValidation) SFNRate() float64 {
	if h.N == 0 {
		return 0
	}
	return float64(h.SFNCount) / float64(h.N)
}

// WilsonUpperBound computes the upper bound of the two-sided Wilson score
// interval for a binomial proportion, at the given confidence level (e.g.
// 0.95). n=0 returns 1.0, the most conservative possible bound.
func WilsonUpperBound(successes, n int, confidence float64) float64 {
	if n == 0 {
		return 1.0
	}
	p := float64(successes) / float64(n)
	z := zScore(confidence)
	nf := float64(n)
	denom := 1 + z*z/nf
	center := p + z*z/(2*nf)
	margin := z * math.Sqrt(p*(1-p)/nf+z*z/(4*nf*nf))
	return (center + margin) / denom
}

// zScore returns the two-sided standard normal critical value for the given
// confidence level. Only a small fixed set of confidence levels is needed by
// this system, so a lookup suffices; any other level falls back to the 95%
// value.
func zScore(confidence float64) float64 {
	switch {
	case math.Abs(confidence-0.95) < 1e-9:
		return 1.959963984540054
	case math.Abs(confidence-0.99) < 1e-9:
		return 2.5758293035489004
	case math.Abs(confidence-0.90) < 1e-9:
		return 1.6448536269514722
	default:
		// Acklam-free approximation is unnecessary for this closed set of
		// confidence levels; fall back to the 95% value rather than invert
		// the normal CDF for an input that should never occur.
		return 1.959963984540054
	}
}

// SeedSafe reports whether a historical-validation stratum satisfies the
// seed-safe-set gate: n >= minN, zero observed SFNs, and the Wilson upper
// bound at the given confidence at or below maxRate.
func (h HistoricalValidation) SeedSafe(minN int, maxRate, confidence float64) bool {
	if h.N < minN {
		return false
	}
	if h.SFNCount != 0 {
		return false
	}
	return WilsonUpperBound(h.SFNCount, h.N, confidence) <= maxRate
}
