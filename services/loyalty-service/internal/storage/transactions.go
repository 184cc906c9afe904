package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/libs/db"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

const txColumns = `id, seq, business_id, customer_id, type, amount, balance_after, source, source_id, description, actor, expires_at, created_at`

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.Seq, &t.BusinessID, &t.CustomerID, &t.Type, &t.Amount, &t.BalanceAfter,
		&t.Source, &t.SourceID, &t.Description, &t.Actor, &t.ExpiresAt, &t.CreatedAt)
	return t, err
}

func collectTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertTransaction appends a ledger entry. t.ID must already be set; Seq and CreatedAt are filled in.
func (r *Repository) InsertTransaction(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO points_transactions
			(id, business_id, customer_id, type, amount, balance_after, source, source_id, description, actor, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq, created_at
	`, t.ID, t.BusinessID, t.CustomerID, t.Type, t.Amount, t.BalanceAfter, t.Source, t.SourceID,
		t.Description, t.Actor, t.ExpiresAt).Scan(&t.Seq, &t.CreatedAt)
}

// FindTransactionBySource looks up the keyed entry guarded by the source unique index.
func (r *Repository) FindTransactionBySource(ctx context.Context, q Querier, businessID, customerID string, typ model.TxType, source, sourceID string) (model.Transaction, bool, error) {
	t, err := scanTransaction(q.QueryRow(ctx, `
		SELECT `+txColumns+`
		FROM points_transactions
		WHERE business_id = $1 AND customer_id = $2 AND type = $3 AND source = $4 AND source_id = $5
		ORDER BY seq
		LIMIT 1
	`, businessID, customerID, typ, source, sourceID))
	if err != nil {
		if db.IsNotFound(err) {
			return model.Transaction{}, false, nil
		}
		return model.Transaction{}, false, err
	}
	return t, true, nil
}

// ListTransactions returns newest first. beforeSeq, when positive, pages past
// that entry; entries of one database transaction share created_at, so seq is
// the only stable cursor.
func (r *Repository) ListTransactions(ctx context.Context, businessID, customerID string, limit int, beforeSeq int64) ([]model.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+txColumns+`
		FROM points_transactions
		WHERE business_id = $1 AND customer_id = $2
			AND ($3::bigint <= 0 OR seq < $3)
		ORDER BY seq DESC
		LIMIT $4
	`, businessID, customerID, beforeSeq, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// LedgerTransactions returns the whole ledger of an account, oldest first.
func (r *Repository) LedgerTransactions(ctx context.Context, q Querier, businessID, customerID string) ([]model.Transaction, error) {
	rows, err := q.Query(ctx, `
		SELECT `+txColumns+`
		FROM points_transactions
		WHERE business_id = $1 AND customer_id = $2
		ORDER BY seq
	`, businessID, customerID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}
