package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"gohypo/domain/core"
	domcritic "gohypo/domain/critic"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return New(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestGetCriticModelReturnsFreshModelWhenMissing(t *testing.T) {
	repo, mock := newMockRepository(t)

	// sqlx.GetContext surfaces sql.ErrNoRows when the query matches zero
	// rows; returning an empty row set from sqlmock reproduces that path.
	mock.ExpectQuery("SELECT arm, stratum, dim, ar, br, as_ AS as_, bs, n FROM critic_models").
		WithArgs("automate", "default").
		WillReturnRows(sqlmock.NewRows([]string{"arm", "stratum", "dim", "ar", "br", "as_", "bs", "n"}))

	model, err := repo.GetCriticModel(context.Background(), domcritic.ArmAutomate, core.StratumKey("default"), 3, 1.0)
	require.NoError(t, err)
	require.Equal(t, 3, model.Dim)
	require.Equal(t, 0, model.N)
	require.Equal(t, 1.0, model.Ar.At(0, 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCriticModelDecodesExistingRow(t *testing.T) {
	repo, mock := newMockRepository(t)

	ar, _ := json.Marshal([][]float64{{1, 0}, {0, 1}})
	br, _ := json.Marshal([]float64{0.1, 0.2})
	as, _ := json.Marshal([][]float64{{1, 0}, {0, 1}})
	bs, _ := json.Marshal([]float64{0.3, 0.4})

	mock.ExpectQuery("SELECT arm, stratum, dim, ar, br, as_ AS as_, bs, n FROM critic_models").
		WithArgs("escalate", "region:coastal").
		WillReturnRows(sqlmock.NewRows([]string{"arm", "stratum", "dim", "ar", "br", "as_", "bs", "n"}).
			AddRow("escalate", "region:coastal", 2, ar, br, as, bs, 7))

	model, err := repo.GetCriticModel(context.Background(), domcritic.ArmEscalate, core.StratumKey("region:coastal"), 2, 1.0)
	require.NoError(t, err)
	require.Equal(t, 7, model.N)
	require.Equal(t, 2, model.Dim)
	require.Equal(t, 0.2, model.Br.AtVec(1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCriticModelExecutesUpsert(t *testing.T) {
	repo, mock := newMockRepository(t)

	model := domcritic.NewModel(2, 1.0)
	model.N = 3

	mock.ExpectExec("INSERT INTO critic_models").
		WithArgs("automate", "default", 2, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpsertCriticModel(context.Background(), domcritic.ArmAutomate, core.StratumKey("default"), model)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSymVecJSONRoundTrip(t *testing.T) {
	m := domcritic.NewModel(3, 2.5).Ar
	raw, err := symToJSON(m)
	require.NoError(t, err)
	back, err := symFromJSON(raw, 3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			require.Equal(t, m.At(i, j), back.At(i, j))
		}
	}

	v := domcritic.NewModel(3, 2.5).Br
	v.SetVec(1, 0.5)
	rawVec, err := vecToJSON(v)
	require.NoError(t, err)
	backVec, err := vecFromJSON(rawVec)
	require.NoError(t, err)
	require.Equal(t, v.Len(), backVec.Len())
	for i := 0; i < 3; i++ {
		require.Equal(t, v.AtVec(i), backVec.AtVec(i))
	}
}
