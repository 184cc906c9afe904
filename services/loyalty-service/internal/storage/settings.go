package storage

import (
	"context"

	"github.com/md-rashed-zaman/detailcrm/libs/db"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

// GetSettings returns the tenant's settings, or the defaults when none are stored.
func (r *Repository) GetSettings(ctx context.Context, q Querier, businessID string) (model.Settings, error) {
	s := model.Settings{BusinessID: businessID}
	err := q.QueryRow(ctx, `
		SELECT points_per_dollar, expiry_days, max_discount_percent, redemption_code_ttl_days, enabled, updated_at
		FROM loyalty_settings
		WHERE business_id = $1
	`, businessID).Scan(&s.PointsPerDollar, &s.ExpiryDays, &s.MaxDiscountPercent, &s.RedemptionCodeTTLDays, &s.Enabled, &s.UpdatedAt)
	if db.IsNotFound(err) {
		return model.DefaultSettings(businessID), nil
	}
	return s, err
}

func (r *Repository) UpsertSettings(ctx context.Context, q Querier, s model.Settings) (model.Settings, error) {
	err := q.QueryRow(ctx, `
		INSERT INTO loyalty_settings
			(business_id, points_per_dollar, expiry_days, max_discount_percent, redemption_code_ttl_days, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id) DO UPDATE
		SET points_per_dollar = EXCLUDED.points_per_dollar,
			expiry_days = EXCLUDED.expiry_days,
			max_discount_percent = EXCLUDED.max_discount_percent,
			redemption_code_ttl_days = EXCLUDED.redemption_code_ttl_days,
			enabled = EXCLUDED.enabled,
			updated_at = now()
		RETURNING updated_at
	`, s.BusinessID, s.PointsPerDollar, s.ExpiryDays, s.MaxDiscountPercent, s.RedemptionCodeTTLDays, s.Enabled).Scan(&s.UpdatedAt)
	return s, err
}
