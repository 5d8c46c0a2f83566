// Package migration creates and evolves the relational schema the postgres
// adapter reads and writes, using an idempotent CREATE-TABLE-IF-NOT-EXISTS
// runner rather than a versioned migration chain.
package migration

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gohypo/internal/errors"
)

// Migrator defines the interface for database migration operations.
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations for the assessment
// pipeline's persisted state: calibration history, historical validation
// outcomes, critic models, memory levels, decisions, and alerts.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner.
func NewRunner() *MigrationRunner {
	return &MigrationRunner{version: "1.0.0"}
}

// Version returns the migration version.
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createCalibrationPointsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create calibration_points table")
	}
	if err := r.createHistoricalValidationsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create historical_validations table")
	}
	if err := r.createCriticModelsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create critic_models table")
	}
	if err := r.createMemoryLevelsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create memory_levels table")
	}
	if err := r.createDecisionsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create decisions table")
	}
	if err := r.createAlertsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create alerts table")
	}
	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}
	return nil
}

func (r *MigrationRunner) createCalibrationPointsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS calibration_points (
			id BIGSERIAL PRIMARY KEY,
			stratum VARCHAR(255) NOT NULL,
			true_class VARCHAR(100) NOT NULL,
			true_probability DOUBLE PRECISION NOT NULL,
			nonconformity_score DOUBLE PRECISION NOT NULL,
			importance_weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createHistoricalValidationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS historical_validations (
			id BIGSERIAL PRIMARY KEY,
			property_type VARCHAR(100) NOT NULL,
			age_bin VARCHAR(50) NOT NULL,
			region VARCHAR(100) NOT NULL,
			sfn BOOLEAN NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createCriticModelsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS critic_models (
			arm VARCHAR(20) NOT NULL,
			stratum VARCHAR(255) NOT NULL,
			dim INTEGER NOT NULL,
			ar JSONB NOT NULL,
			br JSONB NOT NULL,
			as_ JSONB NOT NULL,
			bs JSONB NOT NULL,
			n INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (arm, stratum)
		)
	`)
	return err
}

func (r *MigrationRunner) createMemoryLevelsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memory_levels (
			agent VARCHAR(255) NOT NULL,
			level INTEGER NOT NULL,
			frequency INTEGER NOT NULL,
			chunk_size INTEGER NOT NULL,
			learning_rate DOUBLE PRECISION NOT NULL,
			params JSONB NOT NULL,
			last_update INTEGER NOT NULL DEFAULT 0,
			buffer JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (agent, level)
		)
	`)
	return err
}

func (r *MigrationRunner) createDecisionsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS decisions (
			id VARCHAR(64) PRIMARY KEY,
			assessment_id VARCHAR(64) NOT NULL,
			decision VARCHAR(20) NOT NULL,
			reason TEXT,
			safety_ucb DOUBLE PRECISION NOT NULL,
			reward_ucb DOUBLE PRECISION NOT NULL,
			safety_threshold DOUBLE PRECISION NOT NULL,
			exploration BOOLEAN NOT NULL DEFAULT false,
			shadow BOOLEAN NOT NULL DEFAULT false,
			stratum VARCHAR(255) NOT NULL,
			prediction_set JSONB,
			fusion_mean DOUBLE PRECISION,
			fusion_variance DOUBLE PRECISION,
			context JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createAlertsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS alerts (
			id VARCHAR(64) PRIMARY KEY,
			severity VARCHAR(20) NOT NULL,
			reason TEXT NOT NULL,
			context JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_calibration_stratum_created ON calibration_points(stratum, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_validations_lookup ON historical_validations(property_type, age_bin, region, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_decisions_assessment ON decisions(assessment_id)",
		"CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at DESC)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			fmt.Printf("Warning: failed to create index: %v\n", err)
		}
	}

	return nil
}
