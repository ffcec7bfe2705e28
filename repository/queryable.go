package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Queryable is satisfied by *pgxpool.Pool and pgx.Tx so repositories run
// inside or outside a transaction
type Queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUUID reports whether id can be stored in a UUID column. Lookups by any
// other value can never match a row.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
