// Package scheduler replaces timer/interval-driven memory consolidation
// with an explicit component the orchestrator calls after every assessment:
// it advances the memory bank's global step counter and triggers
// update_level on whichever levels have crossed their chunk-size threshold.
// There is no background goroutine and no hidden state.
package scheduler

import (
	"context"

	gohypolog "gohypo/internal"
	"gohypo/internal/memory"
)

// Scheduler drives the continuum memory's consolidation step explicitly.
type Scheduler struct {
	bank   *memory.Bank
	levels int
	logger *gohypolog.Logger
}

// New builds a Scheduler over a given memory Bank, covering the configured
// number of levels.
func New(bank *memory.Bank, levels int, logger *gohypolog.Logger) *Scheduler {
	if logger == nil {
		logger = gohypolog.DefaultLogger
	}
	return &Scheduler{bank: bank, levels: levels, logger: logger}
}

// TickResult reports which levels updated on this tick and the step they
// advanced to.
type TickResult struct {
	Step            int
	UpdatedLevels   []int
	SkippedLevels   []int
	FailedLevels    map[int]error
}

// Tick advances the global step counter once and attempts update_level for
// every configured level; a failure at one level is recorded but never
// blocks the rest, matching the continuum memory's isolation contract.
func (s *Scheduler) Tick(ctx context.Context, agent memory.AgentID) TickResult {
	step := s.bank.Step()
	result := TickResult{Step: step, FailedLevels: map[int]error{}}

	for level := 0; level < s.levels; level++ {
		upd, err := s.bank.UpdateLevel(ctx, agent, level)
		if err != nil {
			s.logger.Warn("scheduler: memory level %d update failed for agent %s: %v", level, agent, err)
			result.FailedLevels[level] = err
			continue
		}
		if upd.Updated {
			result.UpdatedLevels = append(result.UpdatedLevels, level)
		} else {
			result.SkippedLevels = append(result.SkippedLevels, level)
		}
	}
	return result
}
