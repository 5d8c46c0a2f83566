// Package conformal implements Mondrian Conformal Prediction: hierarchical
// stratified prediction sets with the Small-Sample Beta Correction (SSBC)
// and importance-weighted quantiles.
package conformal

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// newtonMaxIterations and newtonTolerance bound BetaInvGeneral's
// Newton-Raphson loop.
const newtonMaxIterations = 50
const newtonTolerance = 1e-6

// SmallSampleAlpha computes the SSBC-corrected alpha' for a calibration set
// of size nCal at target miscoverage alpha. Below the threshold n, the
// correction uses the closed form for the inverse CDF of Beta(n+1, 1):
// alpha' = 1 - (1-alpha)^(1/(n+1)), which is strictly smaller than alpha for
// any finite nCal, making the downstream quantile more conservative. At or
// above the threshold, no correction is applied.
func SmallSampleAlpha(alpha float64, nCal, thresholdN int) float64 {
	if nCal >= thresholdN {
		return alpha
	}
	a := float64(nCal + 1)
	return 1 - math.Pow(1-alpha, 1/a)
}

// BetaInvClosedForm is the closed-form inverse CDF of Beta(a, 1) at
// probability p: p^(1/a). Exposed separately from SmallSampleAlpha so tests
// can cross-check it against the general Newton-Raphson solver and against
// gonum's own distuv.Beta.Quantile.
func BetaInvClosedForm(p, a float64) float64 {
	return math.Pow(p, 1/a)
}

// BetaInvGeneral inverts the regularized incomplete beta function for
// general (a, b) via Newton-Raphson on the CDF, seeded from the distribution
// mean. When b == 1 it returns the closed-form solution directly. It exists
// for strata whose calibration distribution is not the degenerate Beta(a,1)
// case this system otherwise always produces; convergence is bounded to
// newtonMaxIterations steps at tolerance newtonTolerance.
func BetaInvGeneral(p, a, b float64) float64 {
	if b == 1 {
		return BetaInvClosedForm(p, a)
	}

	dist := distuv.Beta{Alpha: a, Beta: b}
	x := a / (a + b) // mean, used as the Newton seed
	if x <= 0 {
		x = 1e-6
	}
	if x >= 1 {
		x = 1 - 1e-6
	}

	for i := 0; i < newtonMaxIterations; i++ {
		cdf := dist.CDF(x)
		pdf := dist.Prob(x)
		if pdf == 0 {
			break
		}
		step := (cdf - p) / pdf
		next := x - step
		if next <= 0 {
			next = x / 2
		}
		if next >= 1 {
			next = (x + 1) / 2
		}
		if math.Abs(next-x) < newtonTolerance {
			return next
		}
		x = next
	}
	return x
}
