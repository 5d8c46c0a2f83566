package memory

import (
	"context"
	"math"
	"strconv"
	"sync"

	"gohypo/domain/core"
	domMemory "gohypo/domain/memory"
	"gohypo/internal/config"
	"gohypo/internal/errors"
)

// baseLearningRate is the level-0 learning rate; deeper (lower-frequency)
// levels learn at a geometrically decayed fraction of it.
const baseLearningRate = 0.01

// LevelStore is the narrow read/write dependency this package needs from the
// repository.
type LevelStore interface {
	GetMemoryLevel(ctx context.Context, agent AgentID, level int) (*domMemory.Level, error)
	UpsertMemoryLevel(ctx context.Context, agent AgentID, level *domMemory.Level) error
}

// AgentID aliases the domain/core agent identifier so this package's public
// API type-checks directly against ports.RepositoryPort.
type AgentID = core.AgentID

// Bank is the continuum memory: a set of geometrically-spaced MLP levels
// per agent, with a global step counter and per-(agent,level) update
// serialization.
type Bank struct {
	store LevelStore
	cfg   config.MemoryConfig

	mu    sync.Mutex
	step  int
	locks map[string]*sync.Mutex

	titans *Titans
}

// New builds a continuum memory Bank.
func New(store LevelStore, cfg config.MemoryConfig, titans *Titans) *Bank {
	return &Bank{store: store, cfg: cfg, locks: make(map[string]*sync.Mutex), titans: titans}
}

func (b *Bank) lockFor(agent AgentID, level int) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := string(agent) + ":" + strconv.Itoa(level)
	l, ok := b.locks[k]
	if !ok {
		l = &sync.Mutex{}
		b.locks[k] = l
	}
	return l
}

// Step advances the global step counter, called once per orchestrator
// invocation, and returns the new step value.
func (b *Bank) Step() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.step++
	return b.step
}

// CurrentStep returns the global step counter without advancing it.
func (b *Bank) CurrentStep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.step
}

// QueryResult is the output of one associative recall.
type QueryResult struct {
	Value      []float64
	Confidence float64
}

// Query implements query(agent, keys, level?) -> (values, confidence). A nil
// level queries every level and combines by confidence-weighted mean; a
// non-nil level queries only that level.
func (b *Bank) Query(ctx context.Context, agent AgentID, key []float64, level *int) (QueryResult, error) {
	levels := []int{}
	if level != nil {
		levels = append(levels, *level)
	} else {
		for l := 0; l < b.cfg.Levels; l++ {
			levels = append(levels, l)
		}
	}

	var weightedSum []float64
	totalConfidence := 0.0

	for _, l := range levels {
		lvl, err := b.store.GetMemoryLevel(ctx, agent, l)
		if err != nil {
			return QueryResult{}, err
		}
		if lvl == nil || len(lvl.Params.Weights) == 0 {
			continue
		}

		tk, _ := b.titans.Project(key, nil)
		out, _ := forward(lvl.Params, tk)
		confidence := confidenceFromObservations(lvl.Buffer)

		if weightedSum == nil {
			weightedSum = make([]float64, len(out))
		}
		for i, v := range out {
			weightedSum[i] += confidence * v
		}
		totalConfidence += confidence
	}

	if totalConfidence == 0 || weightedSum == nil {
		return QueryResult{Value: make([]float64, 0), Confidence: 0}, nil
	}
	for i := range weightedSum {
		weightedSum[i] /= totalConfidence
	}
	avgConfidence := totalConfidence / float64(len(levels))
	return QueryResult{Value: weightedSum, Confidence: avgConfidence}, nil
}

// newLevel builds the zero-initialized level a cold-started agent starts
// from: frequency and chunk size are geometrically spaced across
// [ChunkMin, ChunkMax] by level index, so f^(0) <= f^(1) <= ... <= f^(L-1)
// and every level's chunk size stays within bounds from the first step.
func (b *Bank) newLevel(level, keyDim, valueDim int) *domMemory.Level {
	frac := 0.0
	if b.cfg.Levels > 1 {
		frac = float64(level) / float64(b.cfg.Levels-1)
	}
	chunkSize := int(math.Round(float64(b.cfg.ChunkMin) * math.Pow(float64(b.cfg.ChunkMax)/float64(b.cfg.ChunkMin), frac)))
	if chunkSize < b.cfg.ChunkMin {
		chunkSize = b.cfg.ChunkMin
	}
	if chunkSize > b.cfg.ChunkMax {
		chunkSize = b.cfg.ChunkMax
	}

	hidden := keyDim
	if hidden < 1 {
		hidden = 1
	}
	return &domMemory.Level{
		Level:        level,
		Frequency:    chunkSize,
		ChunkSize:    chunkSize,
		LearningRate: baseLearningRate / math.Pow(2, float64(level)),
		Params:       domMemory.NewMLPParams([]int{keyDim, hidden, valueDim}),
		LastUpdate:   b.CurrentStep(),
		Buffer:       nil,
	}
}

func confidenceFromObservations(buffer []domMemory.ContextFlow) float64 {
	n := float64(len(buffer))
	if n == 0 {
		return 0.3 // a level with no recent observations is still usable, just low-confidence
	}
	c := n / (n + 10)
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// AddContextFlow implements add_context_flow(agent, K, V, level): append to
// the level's buffer.
func (b *Bank) AddContextFlow(ctx context.Context, agent AgentID, level int, k, v []float64) error {
	lock := b.lockFor(agent, level)
	lock.Lock()
	defer lock.Unlock()

	lvl, err := b.store.GetMemoryLevel(ctx, agent, level)
	if err != nil {
		return err
	}
	if lvl == nil {
		lvl = b.newLevel(level, len(k), len(v))
	}
	lvl.Buffer = append(lvl.Buffer, domMemory.ContextFlow{Key: k, Value: v})
	return b.store.UpsertMemoryLevel(ctx, agent, lvl)
}

// UpdateResult reports whether a level update ran and the surprise signal it
// produced, for the adaptive engine to consume.
type UpdateResult struct {
	Updated  bool
	Surprise float64
}

// UpdateLevel implements update_level(agent, level): consumes the
// accumulated buffer if due, per the rule level l updates when
// (t - last_update) >= chunk_size. A failure at one level must never block
// updates at another, so errors here are returned to the caller (the
// orchestrator's learning handler) to isolate per level rather than
// propagated through a shared transaction.
func (b *Bank) UpdateLevel(ctx context.Context, agent AgentID, level int) (UpdateResult, error) {
	lock := b.lockFor(agent, level)
	lock.Lock()
	defer lock.Unlock()

	lvl, err := b.store.GetMemoryLevel(ctx, agent, level)
	if err != nil {
		return UpdateResult{}, errors.MemoryUpdateFailure(level, err)
	}
	if lvl == nil {
		// A level with no row yet has never received a context flow, so
		// there is nothing buffered to consolidate.
		return UpdateResult{Updated: false}, nil
	}

	t := b.CurrentStep()
	if t-lvl.LastUpdate < lvl.ChunkSize || len(lvl.Buffer) == 0 {
		return UpdateResult{Updated: false}, nil
	}

	sumW, sumB := zeroGradient(lvl.Params)
	surprise := 0.0
	for _, flow := range lvl.Buffer {
		tk, _ := b.titans.Project(flow.Key, nil)
		_, activations := forward(lvl.Params, tk)
		wGrad, bGrad := gradients(lvl.Params, activations, flow.Value)
		accumulateGradient(sumW, sumB, wGrad, bGrad)
		surprise += predictionError(lvl.Params, tk, flow.Value)
	}
	surprise /= float64(len(lvl.Buffer))

	applyUpdate(&lvl.Params, lvl.LearningRate, sumW, sumB)
	lvl.Buffer = nil
	lvl.LastUpdate = t

	if err := b.store.UpsertMemoryLevel(ctx, agent, lvl); err != nil {
		return UpdateResult{}, errors.MemoryUpdateFailure(level, err)
	}

	b.titans.OnSurprise(surprise)

	return UpdateResult{Updated: true, Surprise: surprise}, nil
}
