package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

const campaignColumns = `id, business_id, key, name, points, starts_at, ends_at, min_completed_visits,
	min_lifetime_value_cents, lapsed_days, tiers, active, created_at`

func scanCampaign(row pgx.Row) (model.Campaign, error) {
	var c model.Campaign
	var tiers []string
	err := row.Scan(&c.ID, &c.BusinessID, &c.Key, &c.Name, &c.Points, &c.StartsAt, &c.EndsAt,
		&c.Criteria.MinCompletedVisits, &c.Criteria.MinLifetimeValueCents, &c.Criteria.LapsedDays,
		&tiers, &c.Active, &c.CreatedAt)
	for _, t := range tiers {
		c.Criteria.Tiers = append(c.Criteria.Tiers, model.Tier(t))
	}
	return c, err
}

// UpsertCampaign creates or updates a campaign by (business, key); the id of an existing row is kept.
func (r *Repository) UpsertCampaign(ctx context.Context, c model.Campaign) (model.Campaign, error) {
	tiers := make([]string, 0, len(c.Criteria.Tiers))
	for _, t := range c.Criteria.Tiers {
		tiers = append(tiers, string(t))
	}
	return scanCampaign(r.pool.QueryRow(ctx, `
		INSERT INTO campaigns
			(id, business_id, key, name, points, starts_at, ends_at, min_completed_visits,
			 min_lifetime_value_cents, lapsed_days, tiers, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (business_id, key) DO UPDATE
		SET name = EXCLUDED.name,
			points = EXCLUDED.points,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			min_completed_visits = EXCLUDED.min_completed_visits,
			min_lifetime_value_cents = EXCLUDED.min_lifetime_value_cents,
			lapsed_days = EXCLUDED.lapsed_days,
			tiers = EXCLUDED.tiers,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING `+campaignColumns+`
	`, c.ID, c.BusinessID, c.Key, c.Name, c.Points, c.StartsAt, c.EndsAt, c.Criteria.MinCompletedVisits,
		c.Criteria.MinLifetimeValueCents, c.Criteria.LapsedDays, tiers, c.Active))
}

func (r *Repository) GetCampaignByKey(ctx context.Context, businessID, key string) (model.Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE business_id = $1 AND key = $2
	`, businessID, key))
	if err != nil {
		return model.Campaign{}, notFound(err)
	}
	return c, nil
}

func (r *Repository) ListCampaigns(ctx context.Context, businessID string) ([]model.Campaign, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE business_id = $1
		ORDER BY starts_at DESC, key
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClaimCampaignAward records the award row. It returns false when the customer
// already received the campaign, which makes awarding exactly-once.
func (r *Repository) ClaimCampaignAward(ctx context.Context, tx pgx.Tx, campaignID, businessID, customerID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO campaign_awards (campaign_id, business_id, customer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (campaign_id, customer_id) DO NOTHING
	`, campaignID, businessID, customerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) SetCampaignAwardTransaction(ctx context.Context, tx pgx.Tx, campaignID, customerID, transactionID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE campaign_awards SET transaction_id = $3
		WHERE campaign_id = $1 AND customer_id = $2
	`, campaignID, customerID, transactionID)
	return err
}
