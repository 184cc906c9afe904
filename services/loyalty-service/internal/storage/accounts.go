package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

const accountColumns = `business_id, customer_id, balance, lifetime_earned, lifetime_redeemed, lifetime_expired, tier, created_at, updated_at`

func scanAccount(row pgx.Row) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.BusinessID, &a.CustomerID, &a.Balance, &a.LifetimeEarned, &a.LifetimeRedeemed,
		&a.LifetimeExpired, &a.Tier, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// LockAccount returns the account row locked for update, creating it first if needed.
// Every ledger mutation goes through this lock.
func (r *Repository) LockAccount(ctx context.Context, tx pgx.Tx, businessID, customerID string) (model.Account, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO loyalty_accounts (business_id, customer_id)
		VALUES ($1, $2)
		ON CONFLICT (business_id, customer_id) DO NOTHING
	`, businessID, customerID); err != nil {
		return model.Account{}, err
	}
	return scanAccount(tx.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM loyalty_accounts
		WHERE business_id = $1 AND customer_id = $2
		FOR UPDATE
	`, businessID, customerID))
}

func (r *Repository) GetAccount(ctx context.Context, q Querier, businessID, customerID string) (model.Account, error) {
	a, err := scanAccount(q.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM loyalty_accounts
		WHERE business_id = $1 AND customer_id = $2
	`, businessID, customerID))
	if err != nil {
		return model.Account{}, notFound(err)
	}
	return a, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, tx pgx.Tx, a model.Account) error {
	_, err := tx.Exec(ctx, `
		UPDATE loyalty_accounts
		SET balance = $3,
			lifetime_earned = $4,
			lifetime_redeemed = $5,
			lifetime_expired = $6,
			tier = $7,
			updated_at = now()
		WHERE business_id = $1 AND customer_id = $2
	`, a.BusinessID, a.CustomerID, a.Balance, a.LifetimeEarned, a.LifetimeRedeemed, a.LifetimeExpired, a.Tier)
	return err
}

// ListAccountCustomers pages through a tenant's account holders by customer id.
func (r *Repository) ListAccountCustomers(ctx context.Context, businessID, after string, limit int) ([]string, error) {
	return r.listIDs(ctx, `
		SELECT customer_id
		FROM loyalty_accounts
		WHERE business_id = $1 AND customer_id > $2
		ORDER BY customer_id
		LIMIT $3
	`, businessID, after, limit)
}

// ListCustomers pages through everyone known to the tenant: account holders
// and customers with booking history.
func (r *Repository) ListCustomers(ctx context.Context, businessID, after string, limit int) ([]string, error) {
	return r.listIDs(ctx, `
		SELECT customer_id FROM (
			SELECT customer_id FROM loyalty_accounts WHERE business_id = $1
			UNION
			SELECT customer_id FROM appointments WHERE business_id = $1
		) c
		WHERE customer_id > $2
		ORDER BY customer_id
		LIMIT $3
	`, businessID, after, limit)
}

// ListExpiryCandidates pages through accounts that hold a positive balance and
// at least one credit whose expiry has passed. An empty businessID scans every tenant.
func (r *Repository) ListExpiryCandidates(ctx context.Context, businessID string, after AccountKey, limit int) ([]AccountKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.business_id, a.customer_id
		FROM loyalty_accounts a
		WHERE ($1 = '' OR a.business_id = $1)
			AND a.balance > 0
			AND (a.business_id, a.customer_id) > ($2, $3)
			AND EXISTS (
				SELECT 1 FROM points_transactions t
				WHERE t.business_id = a.business_id
					AND t.customer_id = a.customer_id
					AND t.amount > 0
					AND t.expires_at <= now()
			)
		ORDER BY a.business_id, a.customer_id
		LIMIT $4
	`, businessID, after.BusinessID, after.CustomerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []AccountKey
	for rows.Next() {
		var k AccountKey
		if err := rows.Scan(&k.BusinessID, &k.CustomerID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *Repository) listIDs(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
