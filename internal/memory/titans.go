package memory

import "sync"

// Titans is the optional self-modifying projection layer applied to keys
// and values before memory access. Activation is gated by a flag; when
// disabled, Project is the identity and OnSurprise is a no-op.
type Titans struct {
	enabled bool
	dim     int

	mu         sync.Mutex
	wk, wv     [][]float64
	surpriseEMA float64
	gain       float64
}

// NewTitans builds a Titans layer. When enabled is false, every method is a
// no-op/identity regardless of dim.
func NewTitans(enabled bool, dim int) *Titans {
	t := &Titans{enabled: enabled, dim: dim, gain: 1.0}
	if enabled {
		t.wk = identity(dim)
		t.wv = identity(dim)
	}
	return t
}

func identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

// Project applies the current key/value projections. A nil Titans (e.g. in
// call sites that haven't wired one) behaves as disabled.
func (t *Titans) Project(key, value []float64) (projectedKey, projectedValue []float64) {
	if t == nil || !t.enabled {
		return key, value
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return applyMatrix(t.wk, key), applyMatrix(t.wv, value)
}

// OnSurprise adjusts the projections in response to a prediction-error
// ("surprise") signal: a rolling EMA tracks baseline surprise, and
// projections are scaled toward the identity when surprise is low and away
// from it when surprise spikes, within a bounded gain.
func (t *Titans) OnSurprise(surprise float64) {
	if t == nil || !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	const emaAlpha = 0.1
	t.surpriseEMA = (1-emaAlpha)*t.surpriseEMA + emaAlpha*surprise

	if t.surpriseEMA > 0 {
		t.gain = clampGain(1 + 0.05*(surprise-t.surpriseEMA))
		scaleToward(t.wk, t.gain)
		scaleToward(t.wv, t.gain)
	}
}

func clampGain(g float64) float64 {
	if g < 0.5 {
		return 0.5
	}
	if g > 1.5 {
		return 1.5
	}
	return g
}

// scaleToward nudges a near-identity matrix's off-diagonal mass by gain,
// leaving the diagonal anchored near 1 so repeated small adjustments cannot
// runaway to a degenerate projection.
func scaleToward(m [][]float64, gain float64) {
	for i := range m {
		for j := range m[i] {
			if i == j {
				continue
			}
			m[i][j] *= gain
		}
	}
}

func applyMatrix(m [][]float64, v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(m))
	for i := range m {
		sum := 0.0
		for j, x := range v {
			if j < len(m[i]) {
				sum += m[i][j] * x
			}
		}
		out[i] = sum
	}
	return out
}
