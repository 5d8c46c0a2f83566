package scheduler

import (
	"context"
	"errors"
	"testing"

	domMemory "gohypo/domain/memory"
	"gohypo/internal/config"
	"gohypo/internal/memory"
)

// fakeLevelStore mirrors the real postgres adapter: a level with no row yet
// returns (nil, nil), relying on the Bank to construct it lazily.
type fakeLevelStore struct {
	levels map[int]*domMemory.Level
}

func newFakeStore() *fakeLevelStore { return &fakeLevelStore{levels: map[int]*domMemory.Level{}} }

func (f *fakeLevelStore) GetMemoryLevel(ctx context.Context, agent memory.AgentID, level int) (*domMemory.Level, error) {
	return f.levels[level], nil
}

func (f *fakeLevelStore) UpsertMemoryLevel(ctx context.Context, agent memory.AgentID, level *domMemory.Level) error {
	f.levels[level.Level] = level
	return nil
}

func memCfg() config.MemoryConfig {
	return config.MemoryConfig{Levels: 2, ChunkMin: 2, ChunkMax: 512, AdaptationRate: 0.1, SlidingWindow: 50}
}

func TestTickAdvancesStepAndSkipsLevelsBeforeChunkSize(t *testing.T) {
	store := newFakeStore()
	bank := memory.New(store, memCfg(), memory.NewTitans(false, 2))
	sched := New(bank, 2, nil)

	result := sched.Tick(context.Background(), "agent-1")
	if result.Step != 1 {
		t.Errorf("expected step 1, got %d", result.Step)
	}
	if len(result.UpdatedLevels) != 0 {
		t.Errorf("no level should update with an empty buffer, got %v", result.UpdatedLevels)
	}
}

func TestTickUpdatesLevelOnceChunkSizeAndBufferAreReady(t *testing.T) {
	store := newFakeStore()
	bank := memory.New(store, memCfg(), memory.NewTitans(false, 2))
	ctx := context.Background()

	bank.AddContextFlow(ctx, "agent-1", 0, []float64{0.1, 0.2}, []float64{0.3, 0.4})
	sched := New(bank, 2, nil)

	sched.Tick(ctx, "agent-1") // step 1, chunk size 2, not yet due
	result := sched.Tick(ctx, "agent-1") // step 2, now due

	found := false
	for _, l := range result.UpdatedLevels {
		if l == 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected level 0 to update by step 2, got updated=%v skipped=%v", result.UpdatedLevels, result.SkippedLevels)
	}
}

// failingLevelStore fails every read of one level and serves the others
// from the wrapped fake store.
type failingLevelStore struct {
	*fakeLevelStore
	failLevel int
}

func (f *failingLevelStore) GetMemoryLevel(ctx context.Context, agent memory.AgentID, level int) (*domMemory.Level, error) {
	if level == f.failLevel {
		return nil, errors.New("level unavailable")
	}
	return f.fakeLevelStore.GetMemoryLevel(ctx, agent, level)
}

func TestTickIsolatesFailuresPerLevel(t *testing.T) {
	store := &failingLevelStore{fakeLevelStore: newFakeStore(), failLevel: 0}
	bank := memory.New(store, memCfg(), memory.NewTitans(false, 2))
	sched := New(bank, 2, nil)

	result := sched.Tick(context.Background(), "agent-1")
	if result.FailedLevels == nil {
		t.Error("FailedLevels map must always be initialized, even when empty")
	}
	if _, ok := result.FailedLevels[0]; !ok {
		t.Errorf("expected level 0 to be recorded as failed, got %v", result.FailedLevels)
	}
	if len(result.SkippedLevels) != 1 || result.SkippedLevels[0] != 1 {
		t.Errorf("a failure at level 0 must not block level 1, got skipped=%v", result.SkippedLevels)
	}
}
