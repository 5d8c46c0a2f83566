package postgres

import (
	"context"
	"time"

	domconformal "gohypo/domain/conformal"
	"gohypo/domain/core"
	"gohypo/internal/errors"
)

// calibrationRow mirrors the calibration_points table; sqlx scans directly
// into it via `db` struct tags.
type calibrationRow struct {
	Stratum            string    `db:"stratum"`
	TrueClass          string    `db:"true_class"`
	TrueProbability    float64   `db:"true_probability"`
	NonconformityScore float64   `db:"nonconformity_score"`
	ImportanceWeight   float64   `db:"importance_weight"`
	CreatedAt          time.Time `db:"created_at"`
}

// GetCalibration implements get_calibration(stratum, limit) ->
// [CalibrationPoint], most recent first, bounded by the recency window.
func (r *Repository) GetCalibration(ctx context.Context, stratum core.StratumKey, limit int) ([]domconformal.CalibrationPoint, error) {
	var rows []calibrationRow
	query := `
		SELECT stratum, true_class, true_probability, nonconformity_score,
		       importance_weight, created_at
		FROM calibration_points
		WHERE stratum = $1
		ORDER BY created_at DESC
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, string(stratum), limit); err != nil {
		return nil, errors.StoreUnavailable("get_calibration", err)
	}

	points := make([]domconformal.CalibrationPoint, len(rows))
	for i, row := range rows {
		points[i] = domconformal.CalibrationPoint{
			TrueClass:          row.TrueClass,
			TrueProbability:    row.TrueProbability,
			NonconformityScore: row.NonconformityScore,
			ImportanceWeight:   row.ImportanceWeight,
			StratumKey:         core.StratumKey(row.Stratum),
			CreatedAt:          core.NewTimestamp(row.CreatedAt),
		}
	}
	return points, nil
}

// AppendCalibration implements append_calibration(stratum, point): an
// append-only insert, never an update.
func (r *Repository) AppendCalibration(ctx context.Context, stratum core.StratumKey, point domconformal.CalibrationPoint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calibration_points (
			stratum, true_class, true_probability, nonconformity_score,
			importance_weight, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(stratum), point.TrueClass, point.TrueProbability, point.NonconformityScore,
		point.ImportanceWeight, point.CreatedAt.Time())
	if err != nil {
		return errors.StoreUnavailable("append_calibration", err)
	}
	return nil
}
