// Package adaptive implements the Adaptive Update Engine: a sliding window
// of accuracy observations drives trend-based chunk-size adaptation for the
// continuum memory's levels.
package adaptive

import (
	"github.com/montanaflynn/stats"

	domMemory "gohypo/domain/memory"
	"gohypo/internal/config"
)

const (
	minObservationsForTrend = 10
	trendSampleSize         = 10
	improvingThreshold      = 0.05
	degradingThreshold      = -0.05
)

// Trend is the sliding-window accuracy comparison outcome.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendStable    Trend = "stable"
)

// Engine keeps a bounded sliding window of accuracy observations and
// recommends chunk-size adjustments from the trend between the last 10
// observations and the 10 before them.
type Engine struct {
	cfg    config.MemoryConfig
	window []float64
}

// New builds an Engine with an empty observation window.
func New(cfg config.MemoryConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Observe appends an accuracy observation (0..1), trimming the window to the
// configured sliding-window size.
func (e *Engine) Observe(accuracy float64) {
	e.window = append(e.window, accuracy)
	if len(e.window) > e.cfg.SlidingWindow {
		e.window = e.window[len(e.window)-e.cfg.SlidingWindow:]
	}
}

// Trend compares the mean of the last 10 observations against the prior 10,
// per the engine's trend contract. Fewer than minObservationsForTrend
// observations yields TrendStable (no signal yet).
func (e *Engine) Trend() (Trend, float64, error) {
	n := len(e.window)
	if n < minObservationsForTrend {
		return TrendStable, 0, nil
	}

	recentStart := n - trendSampleSize
	recent := e.window[recentStart:]

	priorEnd := recentStart
	priorStart := priorEnd - trendSampleSize
	if priorStart < 0 {
		priorStart = 0
	}
	prior := e.window[priorStart:priorEnd]
	if len(prior) == 0 {
		return TrendStable, 0, nil
	}

	recentMean, err := stats.Mean(stats.Float64Data(recent))
	if err != nil {
		return TrendStable, 0, err
	}
	priorMean, err := stats.Mean(stats.Float64Data(prior))
	if err != nil {
		return TrendStable, 0, err
	}

	delta := recentMean - priorMean
	switch {
	case delta >= improvingThreshold:
		return TrendImproving, delta, nil
	case delta <= degradingThreshold:
		return TrendDegrading, delta, nil
	default:
		return TrendStable, delta, nil
	}
}

// Describe returns descriptive statistics (mean, variance, median and 95th
// percentile) over the observation history.
func Describe(history []float64) (mean, variance, p50, p95 float64, err error) {
	data := stats.Float64Data(history)
	mean, err = stats.Mean(data)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	variance, err = stats.Variance(data)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	p50, err = stats.Percentile(data, 50)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	p95, err = stats.Percentile(data, 95)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return mean, variance, p50, p95, nil
}

// AdjustChunkSize applies the trend-based adaptation rule to a single
// level's chunk size: lengthen (update less often) when improving, shorten
// when degrading, clamped to [chunk_min, chunk_max]. Returns the new chunk
// size and whether a change occurred.
func (e *Engine) AdjustChunkSize(current int, trend Trend) (int, bool) {
	if trend == TrendStable {
		return current, false
	}

	delta := float64(current) * e.cfg.AdaptationRate
	next := current
	switch trend {
	case TrendImproving:
		next = current + int(delta)
	case TrendDegrading:
		next = current - int(delta)
	}
	if next < e.cfg.ChunkMin {
		next = e.cfg.ChunkMin
	}
	if next > e.cfg.ChunkMax {
		next = e.cfg.ChunkMax
	}
	return next, next != current
}

// ApplyToLevel mutates a memory level's chunk size in place per the current
// trend, returning the SelfModificationEvent to persist (with OccurredAt
// left for the caller to stamp), or nil when no change was made.
func (e *Engine) ApplyToLevel(lvl *domMemory.Level, trend Trend) *domMemory.SelfModificationEvent {
	next, changed := e.AdjustChunkSize(lvl.ChunkSize, trend)
	if !changed {
		return nil
	}
	old := lvl.ChunkSize
	lvl.ChunkSize = next
	return &domMemory.SelfModificationEvent{
		Level:    lvl.Level,
		OldChunk: old,
		NewChunk: next,
		Trend:    string(trend),
	}
}
