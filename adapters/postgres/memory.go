package postgres

import (
	"context"
	"encoding/json"

	"gohypo/domain/core"
	domMemory "gohypo/domain/memory"
	"gohypo/internal/errors"
)

// memoryLevelRow mirrors the memory_levels table; params and buffer are
// stored as JSONB since both are plain nested slice/struct data.
type memoryLevelRow struct {
	Agent        string `db:"agent"`
	Level        int    `db:"level"`
	Frequency    int    `db:"frequency"`
	ChunkSize    int    `db:"chunk_size"`
	LearningRate float64 `db:"learning_rate"`
	Params       []byte `db:"params"`
	LastUpdate   int    `db:"last_update"`
	Buffer       []byte `db:"buffer"`
}

// GetMemoryLevel implements get_memory_level(agent, level) -> state or new.
// A missing row is not an error: the continuum memory bank starts every
// level from zero-initialized parameters at frequency/chunk defaults the
// caller supplies via newLevel, so this adapter only needs to signal
// "absent" back to the bank rather than synthesize defaults itself.
func (r *Repository) GetMemoryLevel(ctx context.Context, agent core.AgentID, level int) (*domMemory.Level, error) {
	var row memoryLevelRow
	err := r.db.GetContext(ctx, &row, `
		SELECT agent, level, frequency, chunk_size, learning_rate, params, last_update, buffer
		FROM memory_levels
		WHERE agent = $1 AND level = $2`,
		agent.String(), level)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errors.StoreUnavailable("get_memory_level", err)
	}

	var params domMemory.MLPParams
	if err := json.Unmarshal(row.Params, &params); err != nil {
		return nil, errors.StoreUnavailable("get_memory_level", err)
	}
	var buffer []domMemory.ContextFlow
	if err := json.Unmarshal(row.Buffer, &buffer); err != nil {
		return nil, errors.StoreUnavailable("get_memory_level", err)
	}

	return &domMemory.Level{
		Level:        row.Level,
		Frequency:    row.Frequency,
		ChunkSize:    row.ChunkSize,
		LearningRate: row.LearningRate,
		Params:       params,
		LastUpdate:   row.LastUpdate,
		Buffer:       buffer,
	}, nil
}

// UpsertMemoryLevel implements upsert_memory_level(agent, level, state),
// keyed on (agent, level).
func (r *Repository) UpsertMemoryLevel(ctx context.Context, agent core.AgentID, level *domMemory.Level) error {
	paramsJSON, err := json.Marshal(level.Params)
	if err != nil {
		return errors.StoreUnavailable("upsert_memory_level", err)
	}
	bufferJSON, err := json.Marshal(level.Buffer)
	if err != nil {
		return errors.StoreUnavailable("upsert_memory_level", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO memory_levels (agent, level, frequency, chunk_size, learning_rate, params, last_update, buffer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent, level) DO UPDATE SET
			frequency = EXCLUDED.frequency, chunk_size = EXCLUDED.chunk_size,
			learning_rate = EXCLUDED.learning_rate, params = EXCLUDED.params,
			last_update = EXCLUDED.last_update, buffer = EXCLUDED.buffer`,
		agent.String(), level.Level, level.Frequency, level.ChunkSize, level.LearningRate,
		paramsJSON, level.LastUpdate, bufferJSON)
	if err != nil {
		return errors.StoreUnavailable("upsert_memory_level", err)
	}
	return nil
}
