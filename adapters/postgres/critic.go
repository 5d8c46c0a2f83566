package postgres

import (
	"context"
	"encoding/json"

	"gonum.org/v1/gonum/mat"

	"gohypo/domain/core"
	domcritic "gohypo/domain/critic"
	"gohypo/internal/errors"
)

// criticModelRow mirrors the critic_models table; the four matrices/vectors
// are stored as JSONB via json.Marshal, the same way other nested numeric
// state is persisted in this repository.
type criticModelRow struct {
	Arm     string `db:"arm"`
	Stratum string `db:"stratum"`
	Dim     int    `db:"dim"`
	Ar      []byte `db:"ar"`
	Br      []byte `db:"br"`
	As      []byte `db:"as_"`
	Bs      []byte `db:"bs"`
	N       int    `db:"n"`
}

// GetCriticModel implements get_critic_model(stratum) -> state or new: a
// missing row returns a fresh ridge-initialized model rather than an error,
// per the contract's "state or new".
func (r *Repository) GetCriticModel(ctx context.Context, arm domcritic.Arm, stratum core.StratumKey, dim int, lambda float64) (*domcritic.Model, error) {
	var row criticModelRow
	err := r.db.GetContext(ctx, &row, `
		SELECT arm, stratum, dim, ar, br, as_ AS as_, bs, n
		FROM critic_models
		WHERE arm = $1 AND stratum = $2`,
		string(arm), string(stratum))
	if err != nil {
		if isNoRows(err) {
			return domcritic.NewModel(dim, lambda), nil
		}
		return nil, errors.StoreUnavailable("get_critic_model", err)
	}

	ar, err := symFromJSON(row.Ar, row.Dim)
	if err != nil {
		return nil, errors.StoreUnavailable("get_critic_model", err)
	}
	as, err := symFromJSON(row.As, row.Dim)
	if err != nil {
		return nil, errors.StoreUnavailable("get_critic_model", err)
	}
	br, err := vecFromJSON(row.Br)
	if err != nil {
		return nil, errors.StoreUnavailable("get_critic_model", err)
	}
	bs, err := vecFromJSON(row.Bs)
	if err != nil {
		return nil, errors.StoreUnavailable("get_critic_model", err)
	}

	return &domcritic.Model{Dim: row.Dim, Ar: ar, Br: br, As: as, Bs: bs, N: row.N}, nil
}

// UpsertCriticModel implements upsert_critic_model(stratum, state), keyed
// on (arm, stratum), idempotent by primary key per the concurrency model.
func (r *Repository) UpsertCriticModel(ctx context.Context, arm domcritic.Arm, stratum core.StratumKey, model *domcritic.Model) error {
	arJSON, err := symToJSON(model.Ar)
	if err != nil {
		return errors.StoreUnavailable("upsert_critic_model", err)
	}
	asJSON, err := symToJSON(model.As)
	if err != nil {
		return errors.StoreUnavailable("upsert_critic_model", err)
	}
	brJSON, err := vecToJSON(model.Br)
	if err != nil {
		return errors.StoreUnavailable("upsert_critic_model", err)
	}
	bsJSON, err := vecToJSON(model.Bs)
	if err != nil {
		return errors.StoreUnavailable("upsert_critic_model", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO critic_models (arm, stratum, dim, ar, br, as_, bs, n)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (arm, stratum) DO UPDATE SET
			dim = EXCLUDED.dim, ar = EXCLUDED.ar, br = EXCLUDED.br,
			as_ = EXCLUDED.as_, bs = EXCLUDED.bs, n = EXCLUDED.n`,
		string(arm), string(stratum), model.Dim, arJSON, brJSON, asJSON, bsJSON, model.N)
	if err != nil {
		return errors.StoreUnavailable("upsert_critic_model", err)
	}
	return nil
}

func symToJSON(m *mat.SymDense) ([]byte, error) {
	n := m.SymmetricDim()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = m.At(i, j)
		}
	}
	return json.Marshal(rows)
}

func symFromJSON(data []byte, dim int) (*mat.SymDense, error) {
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	out := mat.NewSymDense(dim, nil)
	for i := 0; i < dim && i < len(rows); i++ {
		for j := i; j < dim && j < len(rows[i]); j++ {
			out.SetSym(i, j, rows[i][j])
		}
	}
	return out, nil
}

func vecToJSON(v *mat.VecDense) ([]byte, error) {
	n := v.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = v.AtVec(i)
	}
	return json.Marshal(out)
}

func vecFromJSON(data []byte) (*mat.VecDense, error) {
	var out []float64
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return mat.NewVecDense(len(out), out), nil
}
