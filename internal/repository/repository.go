// Package repository holds the PostgreSQL implementations of the stores. Every
// query goes through database/sql backed by the pgx driver.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/codegate/internal/apperr"
)

// ErrDuplicateCode is returned by ArtifactRepository.Insert when the code is
// already taken. Callers draw a new code and retry.
var ErrDuplicateCode = errors.New("artifact code already exists")

const uniqueViolation = "23505"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFoundOr maps sql.ErrNoRows to apperr.ErrNotFound and anything else to a
// storage failure.
func notFoundOr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return apperr.Storage(op, err)
}

func count(ctx context.Context, db DBTX, op, query string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, apperr.Storage(op, err)
	}
	return n, nil
}
