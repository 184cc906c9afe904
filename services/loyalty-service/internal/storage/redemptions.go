package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

const redemptionColumns = `id, business_id, customer_id, reward_id, code, point_cost, cart_total_cents, discount_cents,
	status, invoice_id, cancel_reason, expires_at, applied_at, cancelled_at, created_at`

func scanRedemption(row pgx.Row) (model.Redemption, error) {
	var rd model.Redemption
	err := row.Scan(&rd.ID, &rd.BusinessID, &rd.CustomerID, &rd.RewardID, &rd.Code, &rd.PointCost,
		&rd.CartTotalCents, &rd.DiscountCents, &rd.Status, &rd.InvoiceID, &rd.CancelReason,
		&rd.ExpiresAt, &rd.AppliedAt, &rd.CancelledAt, &rd.CreatedAt)
	return rd, err
}

func (r *Repository) InsertRedemption(ctx context.Context, tx pgx.Tx, rd *model.Redemption) error {
	return tx.QueryRow(ctx, `
		INSERT INTO redemptions
			(id, business_id, customer_id, reward_id, code, point_cost, cart_total_cents, discount_cents, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, rd.ID, rd.BusinessID, rd.CustomerID, rd.RewardID, rd.Code, rd.PointCost, rd.CartTotalCents,
		rd.DiscountCents, rd.Status, rd.ExpiresAt).Scan(&rd.CreatedAt)
}

func (r *Repository) GetRedemptionForUpdate(ctx context.Context, tx pgx.Tx, businessID, redemptionID string) (model.Redemption, error) {
	rd, err := scanRedemption(tx.QueryRow(ctx, `
		SELECT `+redemptionColumns+`
		FROM redemptions
		WHERE business_id = $1 AND id = $2
		FOR UPDATE
	`, businessID, redemptionID))
	if err != nil {
		return model.Redemption{}, notFound(err)
	}
	return rd, nil
}

func (r *Repository) GetRedemptionByCodeForUpdate(ctx context.Context, tx pgx.Tx, businessID, code string) (model.Redemption, error) {
	rd, err := scanRedemption(tx.QueryRow(ctx, `
		SELECT `+redemptionColumns+`
		FROM redemptions
		WHERE business_id = $1 AND code = $2
		FOR UPDATE
	`, businessID, code))
	if err != nil {
		return model.Redemption{}, notFound(err)
	}
	return rd, nil
}

func (r *Repository) UpdateRedemptionStatus(ctx context.Context, tx pgx.Tx, rd model.Redemption) error {
	_, err := tx.Exec(ctx, `
		UPDATE redemptions
		SET status = $3,
			invoice_id = $4,
			cancel_reason = $5,
			applied_at = $6,
			cancelled_at = $7
		WHERE business_id = $1 AND id = $2
	`, rd.BusinessID, rd.ID, rd.Status, rd.InvoiceID, rd.CancelReason, rd.AppliedAt, rd.CancelledAt)
	return err
}

// CountRedemptions counts a customer's redemptions of a reward, ignoring cancelled ones.
func (r *Repository) CountRedemptions(ctx context.Context, q Querier, businessID, customerID, rewardID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT count(*)
		FROM redemptions
		WHERE business_id = $1 AND customer_id = $2 AND reward_id = $3 AND status <> 'cancelled'
	`, businessID, customerID, rewardID).Scan(&n)
	return n, err
}
