// Package postgres adapts the core's narrow ports.RepositoryPort contract
// onto a relational store, keeping one file per persisted concern but
// collapsed into a single Repository type since the core exposes one
// repository interface rather than several.
package postgres

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"gohypo/ports"
)

// Repository implements ports.RepositoryPort against PostgreSQL.
type Repository struct {
	db *sqlx.DB
}

// New builds a Repository over an already-connected sqlx handle.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

var _ ports.RepositoryPort = (*Repository)(nil)

// isNoRows reports whether err is the sentinel sqlx/database-sql returns for
// a query that matched zero rows, distinguishing "not found" (caller falls
// back to a default) from a genuine store failure.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
