package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/detailcrm/libs/db"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicateProviderEvent = errors.New("duplicate provider event")
)

// Querier is satisfied by both the pool and an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in a transaction that commits when fn returns nil.
func (r *Repository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return r.pool.WithTx(ctx, fn)
}

// Reader is used for reads outside a transaction.
func (r *Repository) Reader() Querier {
	return r.pool
}

// AccountKey identifies one customer account within a tenant.
type AccountKey struct {
	BusinessID string
	CustomerID string
}

func notFound(err error) error {
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}
