package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/campaigns"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/outbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
)

const customerPageSize = 200

func (s *Service) UpsertCampaign(ctx context.Context, c model.Campaign) (model.Campaign, error) {
	if c.BusinessID == "" {
		return model.Campaign{}, fmt.Errorf("%w: business_id is required", ErrInvalidArgument)
	}
	if err := campaigns.Validate(c); err != nil {
		return model.Campaign{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	c.ID = uuid.NewString()
	return s.repo.UpsertCampaign(ctx, c)
}

func (s *Service) ListCampaigns(ctx context.Context, businessID string) ([]model.Campaign, error) {
	return s.repo.ListCampaigns(ctx, businessID)
}

// runningCampaign loads a campaign that can award now. A disabled program
// fails here, before any customer is evaluated.
func (s *Service) runningCampaign(ctx context.Context, businessID, key string) (model.Campaign, error) {
	settings, err := s.repo.GetSettings(ctx, s.repo.Reader(), businessID)
	if err != nil {
		return model.Campaign{}, err
	}
	if !settings.Enabled {
		return model.Campaign{}, ErrProgramDisabled
	}
	c, err := s.repo.GetCampaignByKey(ctx, businessID, key)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Campaign{}, ErrCampaignNotFound
	}
	if err != nil {
		return model.Campaign{}, err
	}
	if !c.Running(s.now()) {
		return model.Campaign{}, ErrCampaignInactive
	}
	return c, nil
}

// AwardCampaign evaluates every known customer of the tenant and credits the
// eligible ones. Each customer is handled in its own transaction and the
// campaign_awards row makes the credit exactly-once, so reruns only award
// customers who became eligible since.
func (s *Service) AwardCampaign(ctx context.Context, businessID, key string) (model.AwardSummary, error) {
	c, err := s.runningCampaign(ctx, businessID, key)
	if err != nil {
		return model.AwardSummary{}, err
	}
	sum := model.AwardSummary{CampaignKey: c.Key}
	after := ""
	for {
		ids, err := s.repo.ListCustomers(ctx, businessID, after, customerPageSize)
		if err != nil {
			return sum, err
		}
		for _, id := range ids {
			if err := s.awardOne(ctx, c, id, &sum); err != nil {
				return sum, fmt.Errorf("award %s to %s: %w", c.Key, id, err)
			}
		}
		if len(ids) < customerPageSize {
			break
		}
		after = ids[len(ids)-1]
	}
	s.logger.Info("campaign awarded",
		"business_id", businessID,
		"campaign", c.Key,
		"evaluated", sum.Evaluated,
		"awarded", sum.Awarded,
		"already_awarded", sum.AlreadyAwarded,
	)
	return sum, nil
}

// AwardCampaignToCustomer applies the same exactly-once rule to one customer.
func (s *Service) AwardCampaignToCustomer(ctx context.Context, businessID, key, customerID string) (model.AwardSummary, error) {
	if err := validCustomer(businessID, customerID); err != nil {
		return model.AwardSummary{}, err
	}
	c, err := s.runningCampaign(ctx, businessID, key)
	if err != nil {
		return model.AwardSummary{}, err
	}
	sum := model.AwardSummary{CampaignKey: c.Key}
	err = s.awardOne(ctx, c, customerID, &sum)
	return sum, err
}

func (s *Service) awardOne(ctx context.Context, c model.Campaign, customerID string, sum *model.AwardSummary) error {
	var eligible, awarded, already bool
	var points int64
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		settings, err := s.repo.GetSettings(ctx, tx, c.BusinessID)
		if err != nil {
			return err
		}
		if !settings.Enabled {
			return ErrProgramDisabled
		}
		st, _, err := s.repo.GetStats(ctx, tx, c.BusinessID, customerID)
		if err != nil {
			return err
		}
		acc, err := s.repo.GetAccount(ctx, tx, c.BusinessID, customerID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if !campaigns.Eligible(c, st, acc, s.now()) {
			return nil
		}
		eligible = true

		claimed, err := s.repo.ClaimCampaignAward(ctx, tx, c.ID, c.BusinessID, customerID)
		if err != nil {
			return err
		}
		if !claimed {
			already = true
			return nil
		}
		acc, err = s.repo.LockAccount(ctx, tx, c.BusinessID, customerID)
		if err != nil {
			return err
		}
		t, err := s.post(ctx, tx, settings, &acc, entry{
			Type:        model.TxCampaign,
			Amount:      c.Points,
			Source:      model.SourceCampaign,
			SourceID:    c.ID,
			Description: c.Name,
		})
		if err != nil {
			return err
		}
		if err := s.repo.SetCampaignAwardTransaction(ctx, tx, c.ID, customerID, t.ID); err != nil {
			return err
		}
		awarded, points = true, c.Points
		return s.emit(ctx, tx, c.BusinessID, accountAggregate(c.BusinessID, customerID), outbox.TypeCampaignAwarded, map[string]any{
			"customer_id":    customerID,
			"campaign_id":    c.ID,
			"campaign_key":   c.Key,
			"points":         c.Points,
			"transaction_id": t.ID,
			"balance":        acc.Balance,
		})
	})
	if err != nil {
		return err
	}
	sum.Evaluated++
	if eligible {
		sum.Eligible++
	}
	if awarded {
		sum.Awarded++
		sum.PointsAwarded += points
	}
	if already {
		sum.AlreadyAwarded++
	}
	return nil
}
