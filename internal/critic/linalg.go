package critic

import (
	"gonum.org/v1/gonum/mat"

	"gohypo/internal/errors"
)

const (
	jitterInitial = 1e-8
	jitterMaxTries = 6
)

// safeInverse inverts a symmetric matrix via Cholesky, adding geometrically
// increasing ridge jitter to the diagonal when the matrix is not positive
// definite. Returns errors.CriticNumerical if jitter cannot recover PD-ness
// within jitterMaxTries attempts.
func safeInverse(a *mat.SymDense) (*mat.Dense, error) {
	n := a.SymmetricDim()
	jitter := 0.0

	for attempt := 0; attempt <= jitterMaxTries; attempt++ {
		candidate := mat.NewSymDense(n, nil)
		candidate.CopySym(a)
		if jitter > 0 {
			for i := 0; i < n; i++ {
				candidate.SetSym(i, i, candidate.At(i, i)+jitter)
			}
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(candidate); ok {
			var inv mat.Dense
			if err := chol.InverseTo(&inv); err == nil {
				return &inv, nil
			}
		}

		if jitter == 0 {
			jitter = jitterInitial
		} else {
			jitter *= 10
		}
	}

	return nil, errors.CriticNumerical("matrix remained non-positive-definite after jitter regularization")
}

// quadFormVec computes x^T M x for a vector x and matrix M.
func quadFormVec(x *mat.VecDense, m *mat.Dense) float64 {
	var tmp mat.VecDense
	tmp.MulVec(m, x)
	return mat.Dot(x, &tmp)
}

// matVecDot computes theta^T x for vectors theta and x.
func matVecDot(theta, x *mat.VecDense) float64 {
	return mat.Dot(theta, x)
}
