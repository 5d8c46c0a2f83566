package postgres

import (
	"context"
	"encoding/json"

	domcritic "gohypo/domain/critic"
	"gohypo/internal/errors"
	"gohypo/ports"
)

// AppendDecision implements append_decision(record): an append-only write
// of the critic's decision, the evidence summary, and the context vector
// that produced it.
func (r *Repository) AppendDecision(ctx context.Context, record domcritic.Record) error {
	predictionSet, err := json.Marshal(record.PredictionSet)
	if err != nil {
		return errors.StoreUnavailable("append_decision", err)
	}
	contextVec, err := json.Marshal(record.Context)
	if err != nil {
		return errors.StoreUnavailable("append_decision", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO decisions (
			id, assessment_id, decision, reason, safety_ucb, reward_ucb,
			safety_threshold, exploration, shadow, stratum, prediction_set,
			fusion_mean, fusion_variance, context, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		record.ID.String(), record.AssessmentID.String(), string(record.Decision), record.Reason,
		record.SafetyUCB, record.RewardUCB, record.SafetyThreshold, record.Exploration,
		record.Shadow, string(record.Stratum), predictionSet,
		record.FusionMean, record.FusionVariance, contextVec, record.CreatedAt.Time())
	if err != nil {
		return errors.StoreUnavailable("append_decision", err)
	}
	return nil
}

// AppendAlert implements append_alert(alert): an append-only write of an
// operational signal; the orchestrator raises one on a pipeline failure.
func (r *Repository) AppendAlert(ctx context.Context, alert ports.Alert) error {
	contextJSON, err := json.Marshal(alert.Context)
	if err != nil {
		return errors.StoreUnavailable("append_alert", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, severity, reason, context, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		alert.ID.String(), alert.Severity, alert.Reason, contextJSON, alert.CreatedAt.Time())
	if err != nil {
		return errors.StoreUnavailable("append_alert", err)
	}
	return nil
}
