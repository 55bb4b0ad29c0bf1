// Package store is the projection's storage layer: a hand-written,
// sqlc-shaped Queries type over Postgres, one file per entity, with
// arbitrary-precision numeric columns for every payment/randomness field.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting every Queries
// method run unmodified whether or not it is inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Open connects a pgxpool to databaseURL.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %s", err)
	}
	return pool, nil
}

// Queries is a DBTX-scoped handle to every statement in this package. The
// zero-dependency constructor lets the same type serve reads against the
// pool and writes against a transaction.
type Queries struct {
	db DBTX
}

// New returns Queries bound to db, which may be a *pgxpool.Pool or a pgx.Tx.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx, mirroring the sqlc-generated
// WithTx method used throughout the teacher's storage layer.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
