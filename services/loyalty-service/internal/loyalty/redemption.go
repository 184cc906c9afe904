package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/outbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/rules"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
)

func (s *Service) CreateReward(ctx context.Context, rw model.Reward) (model.Reward, error) {
	if strings.TrimSpace(rw.BusinessID) == "" {
		return model.Reward{}, fmt.Errorf("%w: business_id is required", ErrInvalidArgument)
	}
	if err := rules.ValidateReward(rw); err != nil {
		return model.Reward{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	rw.ID = uuid.NewString()
	return s.repo.CreateReward(ctx, rw)
}

func (s *Service) ListRewards(ctx context.Context, businessID string, activeOnly bool) ([]model.Reward, error) {
	return s.repo.ListRewards(ctx, businessID, activeOnly)
}

func (s *Service) DeactivateReward(ctx context.Context, businessID, rewardID string) error {
	if _, err := uuid.Parse(rewardID); err != nil {
		return ErrRewardNotFound
	}
	err := s.repo.DeactivateReward(ctx, businessID, rewardID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrRewardNotFound
	}
	return err
}

type RedeemRequest struct {
	BusinessID     string
	CustomerID     string
	RewardID       string
	CartTotalCents int64
	Actor          string
}

type RedeemResult struct {
	Redemption model.Redemption `json:"redemption"`
	Account    model.Account    `json:"account"`
}

// Redeem checks every guardrail, debits the reward cost and issues a
// redemption code. Guardrail failures return a *rules.GuardrailError.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (RedeemResult, error) {
	if err := validCustomer(req.BusinessID, req.CustomerID); err != nil {
		return RedeemResult{}, err
	}
	if _, err := uuid.Parse(req.RewardID); err != nil {
		return RedeemResult{}, ErrRewardNotFound
	}
	var res RedeemResult
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		settings, err := s.repo.GetSettings(ctx, tx, req.BusinessID)
		if err != nil {
			return err
		}
		reward, err := s.repo.GetReward(ctx, tx, req.BusinessID, req.RewardID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRewardNotFound
		}
		if err != nil {
			return err
		}
		acc, err := s.repo.LockAccount(ctx, tx, req.BusinessID, req.CustomerID)
		if err != nil {
			return err
		}
		prior, err := s.repo.CountRedemptions(ctx, tx, req.BusinessID, req.CustomerID, reward.ID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := rules.CheckRedemption(rules.RedemptionRequest{
			Settings:         settings,
			Reward:           reward,
			Account:          acc,
			CartTotalCents:   req.CartTotalCents,
			PriorRedemptions: prior,
			Now:              now,
		}); err != nil {
			return err
		}

		rd := model.Redemption{
			ID:             uuid.NewString(),
			BusinessID:     req.BusinessID,
			CustomerID:     req.CustomerID,
			RewardID:       reward.ID,
			Code:           newRedemptionCode(),
			PointCost:      reward.PointCost,
			CartTotalCents: req.CartTotalCents,
			DiscountCents:  rules.ComputeDiscount(reward, req.CartTotalCents, settings.MaxDiscountPercent),
			Status:         model.RedemptionIssued,
			ExpiresAt:      now.AddDate(0, 0, settings.RedemptionCodeTTLDays),
		}
		if err := s.repo.InsertRedemption(ctx, tx, &rd); err != nil {
			return err
		}
		if _, err := s.post(ctx, tx, settings, &acc, entry{
			Type:        model.TxRedeem,
			Amount:      -reward.PointCost,
			Source:      model.SourceRedemption,
			SourceID:    rd.ID,
			Description: "redeemed " + reward.Name,
			Actor:       req.Actor,
		}); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, req.BusinessID, accountAggregate(req.BusinessID, req.CustomerID), outbox.TypePointsRedeemed, map[string]any{
			"customer_id":    req.CustomerID,
			"redemption_id":  rd.ID,
			"reward_id":      reward.ID,
			"points":         reward.PointCost,
			"discount_cents": rd.DiscountCents,
			"balance":        acc.Balance,
		}); err != nil {
			return err
		}
		res = RedeemResult{Redemption: rd, Account: acc}
		return nil
	})
	return res, err
}

// ApplyRedemption marks an issued code as used on an invoice. Applying the same
// code to the same invoice again returns the applied redemption unchanged.
func (s *Service) ApplyRedemption(ctx context.Context, businessID, code, invoiceID string) (model.Redemption, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if businessID == "" || code == "" {
		return model.Redemption{}, fmt.Errorf("%w: code is required", ErrInvalidArgument)
	}
	var rd model.Redemption
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		rd, err = s.repo.GetRedemptionByCodeForUpdate(ctx, tx, businessID, code)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRedemptionNotFound
		}
		if err != nil {
			return err
		}
		switch rd.Status {
		case model.RedemptionApplied:
			if rd.InvoiceID == invoiceID {
				return nil
			}
			return ErrRedemptionState
		case model.RedemptionCancelled:
			return ErrRedemptionState
		}
		now := s.now()
		if !now.Before(rd.ExpiresAt) {
			return ErrRedemptionExpired
		}
		rd.Status = model.RedemptionApplied
		rd.InvoiceID = invoiceID
		rd.AppliedAt = &now
		return s.repo.UpdateRedemptionStatus(ctx, tx, rd)
	})
	return rd, err
}

// CancelRedemption voids an issued redemption and refunds its points. Repeating
// the cancel is a no-op; applied redemptions cannot be cancelled.
func (s *Service) CancelRedemption(ctx context.Context, businessID, redemptionID, reason, actor string) (RedeemResult, error) {
	if _, err := uuid.Parse(redemptionID); err != nil {
		return RedeemResult{}, ErrRedemptionNotFound
	}
	var res RedeemResult
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rd, err := s.repo.GetRedemptionForUpdate(ctx, tx, businessID, redemptionID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRedemptionNotFound
		}
		if err != nil {
			return err
		}
		acc, err := s.repo.LockAccount(ctx, tx, businessID, rd.CustomerID)
		if err != nil {
			return err
		}
		res = RedeemResult{Redemption: rd, Account: acc}
		switch rd.Status {
		case model.RedemptionCancelled:
			return nil
		case model.RedemptionApplied:
			return ErrRedemptionState
		}

		settings, err := s.repo.GetSettings(ctx, tx, businessID)
		if err != nil {
			return err
		}
		if _, err := s.post(ctx, tx, settings, &acc, entry{
			Type:        model.TxRefund,
			Amount:      rd.PointCost,
			Source:      model.SourceRedemption,
			SourceID:    rd.ID,
			Description: "redemption cancelled",
			Actor:       actor,
		}); err != nil {
			return err
		}
		now := s.now()
		rd.Status = model.RedemptionCancelled
		rd.CancelReason = reason
		rd.CancelledAt = &now
		if err := s.repo.UpdateRedemptionStatus(ctx, tx, rd); err != nil {
			return err
		}
		res = RedeemResult{Redemption: rd, Account: acc}
		return nil
	})
	return res, err
}

func newRedemptionCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "RW-" + raw[:10]
}
