// Package store adapts a tenant Postgres connection to the pipeline's
// StoreHandle contract (spec §4.5, §6). It never resolves tenant names
// or provisions databases — it is handed an already-opened *sqlx.DB for
// one tenant by the caller that owns tenant routing.
package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ianzepp/monk-api/internal/observer"
	apperrors "github.com/ianzepp/monk-api/pkg/errors"
)

// sqlxHandle is the subset of *sqlx.DB / *sqlx.Tx the adapter needs.
type sqlxHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

// TenantStore implements observer.StoreHandle over a tenant's *sqlx.DB.
// Begin returns a new TenantStore wrapping a *sqlx.Tx; Commit/Rollback
// are only meaningful on a transaction-backed instance.
type TenantStore struct {
	db     *sqlx.DB
	handle sqlxHandle
	tx     *sqlx.Tx
}

// New wraps an already-opened tenant connection.
func New(db *sqlx.DB) *TenantStore {
	return &TenantStore{db: db, handle: db}
}

// Execute runs a non-SELECT statement and reports rows affected.
func (s *TenantStore) Execute(ctx context.Context, query string, params []any) (int64, error) {
	result, err := s.handle.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, translateErr(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, translateErr(err)
	}
	return n, nil
}

// Query runs a SELECT and returns each row as a field→value mapping.
func (s *TenantStore) Query(ctx context.Context, query string, params []any) ([]map[string]any, error) {
	rows, err := s.handle.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

// Begin opens a transaction-scoped TenantStore. Ring 0's preload and
// ring 5's writes must share this handle for read-snapshot consistency
// (spec §5).
func (s *TenantStore) Begin(ctx context.Context) (observer.StoreHandle, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, translateErr(err)
	}
	return &TenantStore{db: s.db, handle: tx, tx: tx}, nil
}

// Commit commits the underlying transaction.
func (s *TenantStore) Commit(ctx context.Context) error {
	if s.tx == nil {
		return apperrors.New(apperrors.KindSystem, "NOT_A_TRANSACTION", "Commit called on a non-transactional store handle")
	}
	if err := s.tx.Commit(); err != nil {
		return translateErr(err)
	}
	return nil
}

// Rollback rolls back the underlying transaction.
func (s *TenantStore) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return apperrors.New(apperrors.KindSystem, "NOT_A_TRANSACTION", "Rollback called on a non-transactional store handle")
	}
	if err := s.tx.Rollback(); err != nil {
		return translateErr(err)
	}
	return nil
}

// translateErr converts a driver-level error into a StoreError, never
// leaking internal SQL or a driver stack trace to the caller (spec §7).
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return apperrors.Wrap(err, apperrors.KindNotFound, "NOT_FOUND", "no matching row")
	}
	return apperrors.Wrap(err, apperrors.KindStore, "STORE_ERROR", "store operation failed")
}
