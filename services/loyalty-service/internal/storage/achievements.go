package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func (r *Repository) UnlockedAchievements(ctx context.Context, q Querier, businessID, customerID string) (map[string]bool, error) {
	rows, err := q.Query(ctx, `
		SELECT achievement
		FROM customer_achievements
		WHERE business_id = $1 AND customer_id = $2
	`, businessID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out[key] = true
	}
	return out, rows.Err()
}

// UnlockAchievement returns false when the achievement was already unlocked.
func (r *Repository) UnlockAchievement(ctx context.Context, tx pgx.Tx, businessID, customerID, key string, points int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO customer_achievements (business_id, customer_id, achievement, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id, customer_id, achievement) DO NOTHING
	`, businessID, customerID, key, points)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
