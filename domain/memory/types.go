// Package memory holds the continuum memory's per-level MLP parameters and
// the context-flow records that accumulate between updates.
package memory

import "gohypo/domain/core"

// MLPParams is a small feed-forward network's weights, biases, and layer
// shapes, stored as plain slices so a level's parameters marshal directly to
// JSONB without a custom codec.
type MLPParams struct {
	LayerShapes []int         // e.g. [d_k, hidden, d_v]
	Weights     [][][]float64 // per layer: [out][in]
	Biases      [][]float64   // per layer: [out]
}

// NewMLPParams builds zero-initialized (small-random in practice, via the
// caller) parameters for the given layer shapes.
func NewMLPParams(shapes []int) MLPParams {
	weights := make([][][]float64, len(shapes)-1)
	biases := make([][]float64, len(shapes)-1)
	for l := 0; l < len(shapes)-1; l++ {
		in, out := shapes[l], shapes[l+1]
		w := make([][]float64, out)
		for o := range w {
			w[o] = make([]float64, in)
		}
		weights[l] = w
		biases[l] = make([]float64, out)
	}
	return MLPParams{LayerShapes: append([]int(nil), shapes...), Weights: weights, Biases: biases}
}

// Level is one of the L geometrically-spaced memory tiers.
type Level struct {
	Level        int
	Frequency    int // f^(l), in global steps
	ChunkSize    int // C^(l)
	LearningRate float64
	Params       MLPParams
	LastUpdate   int // global step at which this level last updated
	Buffer       []ContextFlow
}

// ContextFlow is one (K, V) pair awaiting consumption by a level update.
type ContextFlow struct {
	Key       []float64
	Value     []float64
	Timestamp core.Timestamp
}

// TitansProjections are the optional self-modifying projections applied to
// keys/values/queries before memory access. When disabled, the
// internal/memory Titans layer (NewTitans(false, dim) or a nil *Titans)
// projects as the identity.
type TitansProjections struct {
	Wk [][]float64
	Wv [][]float64
	Wq [][]float64
	Wo [][]float64
}

// SelfModificationEvent records one Adaptive Update Engine decision to
// lengthen or shorten a level's chunk size.
type SelfModificationEvent struct {
	Agent       core.AgentID
	Level       int
	OldChunk    int
	NewChunk    int
	Trend       string // "improving", "degrading", "stable"
	OccurredAt  core.Timestamp
}
