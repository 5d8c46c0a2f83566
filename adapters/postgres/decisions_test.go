package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	domcontext "gohypo/domain/context"
	"gohypo/domain/core"
	domcritic "gohypo/domain/critic"
	"gohypo/ports"
)

func TestAppendDecisionExecutesInsert(t *testing.T) {
	repo, mock := newMockRepository(t)

	record := domcritic.Record{
		ID:              core.NewDecisionID(),
		AssessmentID:    core.NewAssessmentID(),
		Decision:        domcritic.ArmAutomate,
		Reason:          "seed_safe_and_rewardUCB>=safetyUCB",
		SafetyUCB:       0.01,
		RewardUCB:       0.8,
		SafetyThreshold: 0.005,
		Exploration:     false,
		Shadow:          false,
		Stratum:         core.StratumKey("default"),
		PredictionSet:   []string{"minor", "moderate"},
		FusionMean:      0.7,
		FusionVariance:  0.02,
		Context:         domcontext.Vector{},
		CreatedAt:       core.Now(),
	}

	mock.ExpectExec("INSERT INTO decisions").
		WithArgs(
			record.ID.String(), record.AssessmentID.String(), string(record.Decision), record.Reason,
			record.SafetyUCB, record.RewardUCB, record.SafetyThreshold, record.Exploration,
			record.Shadow, string(record.Stratum), sqlmock.AnyArg(),
			record.FusionMean, record.FusionVariance, sqlmock.AnyArg(), record.CreatedAt.Time(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AppendDecision(context.Background(), record)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAlertExecutesInsert(t *testing.T) {
	repo, mock := newMockRepository(t)

	alert := ports.Alert{
		ID:        core.NewID(),
		Severity:  "critical",
		Reason:    "safety_veto",
		Context:   map[string]string{"assessment_id": "abc"},
		CreatedAt: core.Now(),
	}

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(alert.ID.String(), alert.Severity, alert.Reason, sqlmock.AnyArg(), alert.CreatedAt.Time()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AppendAlert(context.Background(), alert)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
