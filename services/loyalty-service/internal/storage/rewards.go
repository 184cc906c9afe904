package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

const rewardColumns = `id, business_id, name, point_cost, discount_type, discount_value, min_cart_total_cents,
	tier_required, per_customer_limit, active, starts_at, ends_at, created_at`

func scanReward(row pgx.Row) (model.Reward, error) {
	var rw model.Reward
	err := row.Scan(&rw.ID, &rw.BusinessID, &rw.Name, &rw.PointCost, &rw.DiscountType, &rw.DiscountValue,
		&rw.MinCartTotalCents, &rw.TierRequired, &rw.PerCustomerLimit, &rw.Active, &rw.StartsAt, &rw.EndsAt, &rw.CreatedAt)
	return rw, err
}

func (r *Repository) CreateReward(ctx context.Context, rw model.Reward) (model.Reward, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO rewards
			(id, business_id, name, point_cost, discount_type, discount_value, min_cart_total_cents,
			 tier_required, per_customer_limit, active, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, rw.ID, rw.BusinessID, rw.Name, rw.PointCost, rw.DiscountType, rw.DiscountValue, rw.MinCartTotalCents,
		rw.TierRequired, rw.PerCustomerLimit, rw.Active, rw.StartsAt, rw.EndsAt).Scan(&rw.CreatedAt)
	return rw, err
}

func (r *Repository) GetReward(ctx context.Context, q Querier, businessID, rewardID string) (model.Reward, error) {
	rw, err := scanReward(q.QueryRow(ctx, `
		SELECT `+rewardColumns+`
		FROM rewards
		WHERE business_id = $1 AND id = $2
	`, businessID, rewardID))
	if err != nil {
		return model.Reward{}, notFound(err)
	}
	return rw, nil
}

func (r *Repository) ListRewards(ctx context.Context, businessID string, activeOnly bool) ([]model.Reward, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+rewardColumns+`
		FROM rewards
		WHERE business_id = $1 AND (NOT $2 OR active)
		ORDER BY point_cost, name
	`, businessID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reward
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rw)
	}
	return out, rows.Err()
}

func (r *Repository) DeactivateReward(ctx context.Context, businessID, rewardID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE rewards SET active = false, updated_at = now()
		WHERE business_id = $1 AND id = $2
	`, businessID, rewardID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
