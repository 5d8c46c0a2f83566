package postgres

import (
	"context"
	"time"

	domvalidation "gohypo/domain/validation"
	"gohypo/internal/errors"
)

// GetHistoricalValidation implements get_historical_validation(pt, ageBin,
// region, since) -> HistoricalValidation, aggregating the append-only
// historical_validations table into the (n, SFN count) tally the seed-safe
// gate consumes.
func (r *Repository) GetHistoricalValidation(ctx context.Context, propertyType, ageBin, region string, since time.Time) (domvalidation.HistoricalValidation, error) {
	var agg struct {
		N        int `db:"n"`
		SFNCount int `db:"sfn_count"`
	}
	err := r.db.GetContext(ctx, &agg, `
		SELECT COUNT(*) AS n, COALESCE(SUM(CASE WHEN sfn THEN 1 ELSE 0 END), 0) AS sfn_count
		FROM historical_validations
		WHERE property_type = $1 AND age_bin = $2 AND region = $3 AND created_at >= $4`,
		propertyType, ageBin, region, since)
	if err != nil {
		return domvalidation.HistoricalValidation{}, errors.StoreUnavailable("get_historical_validation", err)
	}

	return domvalidation.HistoricalValidation{
		PropertyType: propertyType,
		AgeBin:       ageBin,
		Region:       region,
		N:            agg.N,
		SFNCount:     agg.SFNCount,
	}, nil
}

// AppendHistoricalValidation records one human-review outcome for the
// seed-safe-set gate; not part of ports.RepositoryPort (the core only ever
// reads this table), but exposed for the ingestion path that records human
// review outcomes after the fact.
func (r *Repository) AppendHistoricalValidation(ctx context.Context, propertyType, ageBin, region string, sfn bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO historical_validations (property_type, age_bin, region, sfn, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		propertyType, ageBin, region, sfn, at)
	if err != nil {
		return errors.StoreUnavailable("append_historical_validation", err)
	}
	return nil
}
