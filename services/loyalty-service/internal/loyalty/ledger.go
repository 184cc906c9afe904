package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/libs/db"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/outbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/rules"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
)

type entry struct {
	Type        model.TxType
	Amount      int64
	Source      string
	SourceID    string
	Description string
	Actor       string
}

// post appends one entry to a locked account, then updates the running
// balance, the lifetime counters and the tier.
func (s *Service) post(ctx context.Context, tx pgx.Tx, settings model.Settings, acc *model.Account, e entry) (model.Transaction, error) {
	if e.Amount == 0 {
		return model.Transaction{}, ErrInvalidAmount
	}
	balance := acc.Balance + e.Amount
	if balance < 0 {
		return model.Transaction{}, ErrInsufficientPoints
	}

	now := s.now()
	t := model.Transaction{
		ID:           uuid.NewString(),
		BusinessID:   acc.BusinessID,
		CustomerID:   acc.CustomerID,
		Type:         e.Type,
		Amount:       e.Amount,
		BalanceAfter: balance,
		Source:       e.Source,
		SourceID:     e.SourceID,
		Description:  e.Description,
		Actor:        e.Actor,
	}
	if e.Amount > 0 && e.Type.Expiring() {
		t.ExpiresAt = settings.ExpiryFor(now)
	}
	if err := s.repo.InsertTransaction(ctx, tx, &t); err != nil {
		if db.IsUniqueViolation(err) {
			return model.Transaction{}, ErrDuplicate
		}
		return model.Transaction{}, err
	}

	oldTier := acc.Tier
	counters := rules.CountersOf(*acc)
	counters.Accumulate(e.Type, e.Amount)
	acc.Balance = balance
	counters.Apply(acc)
	if err := s.repo.UpdateAccount(ctx, tx, *acc); err != nil {
		if db.IsCheckViolation(err) {
			return model.Transaction{}, ErrInsufficientPoints
		}
		return model.Transaction{}, err
	}

	s.logger.Info("ledger entry posted",
		"business_id", acc.BusinessID,
		"customer_id", acc.CustomerID,
		"type", e.Type,
		"amount", e.Amount,
		"balance", balance,
	)

	if oldTier != acc.Tier {
		if err := s.emit(ctx, tx, acc.BusinessID, accountAggregate(acc.BusinessID, acc.CustomerID), outbox.TypeTierChanged, map[string]any{
			"customer_id":     acc.CustomerID,
			"previous_tier":   oldTier,
			"tier":            acc.Tier,
			"lifetime_earned": acc.LifetimeEarned,
		}); err != nil {
			return model.Transaction{}, err
		}
	}
	return t, nil
}

type EarnRequest struct {
	BusinessID  string
	CustomerID  string
	Points      int64
	Source      string
	SourceID    string
	Description string
	Actor       string
}

type SpendRequest struct {
	BusinessID  string
	CustomerID  string
	AmountCents int64
	Source      string
	SourceID    string
	Description string
}

type EarnResult struct {
	Points      int64              `json:"points"`
	Duplicate   bool               `json:"duplicate"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
	Account     model.Account      `json:"account"`
}

func validCustomer(businessID, customerID string) error {
	if strings.TrimSpace(businessID) == "" || strings.TrimSpace(customerID) == "" {
		return fmt.Errorf("%w: business_id and customer_id are required", ErrInvalidArgument)
	}
	return nil
}

func clientSource(source string) error {
	if model.ReservedSource(source) {
		return fmt.Errorf("%w: source %q is reserved", ErrInvalidArgument, source)
	}
	return nil
}

// Earn credits points. A credit with a source id is applied once; repeating
// it returns the original transaction with Duplicate set.
func (s *Service) Earn(ctx context.Context, req EarnRequest) (EarnResult, error) {
	if err := validCustomer(req.BusinessID, req.CustomerID); err != nil {
		return EarnResult{}, err
	}
	if req.Points <= 0 {
		return EarnResult{}, ErrInvalidAmount
	}
	if req.Source == "" {
		req.Source = model.SourceManual
	}
	if err := clientSource(req.Source); err != nil {
		return EarnResult{}, err
	}
	var res EarnResult
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		settings, err := s.repo.GetSettings(ctx, tx, req.BusinessID)
		if err != nil {
			return err
		}
		acc, err := s.repo.LockAccount(ctx, tx, req.BusinessID, req.CustomerID)
		if err != nil {
			return err
		}
		res, err = s.earnLocked(ctx, tx, settings, &acc, model.TxEarn, func(model.Account) int64 { return req.Points }, req.Source, req.SourceID, req.Description, req.Actor)
		return err
	})
	return res, err
}

// EarnForSpend converts a spend into points at the customer's tier rate and credits them.
func (s *Service) EarnForSpend(ctx context.Context, req SpendRequest) (EarnResult, error) {
	if err := validCustomer(req.BusinessID, req.CustomerID); err != nil {
		return EarnResult{}, err
	}
	if req.AmountCents < 0 {
		return EarnResult{}, ErrInvalidAmount
	}
	if err := clientSource(req.Source); err != nil {
		return EarnResult{}, err
	}
	var res EarnResult
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		settings, err := s.repo.GetSettings(ctx, tx, req.BusinessID)
		if err != nil {
			return err
		}
		acc, err := s.repo.LockAccount(ctx, tx, req.BusinessID, req.CustomerID)
		if err != nil {
			return err
		}
		res, err = s.earnForSpendLocked(ctx, tx, settings, &acc, req)
		return err
	})
	return res, err
}

func (s *Service) earnForSpendLocked(ctx context.Context, tx pgx.Tx, settings model.Settings, acc *model.Account, req SpendRequest) (EarnResult, error) {
	desc := req.Description
	if desc == "" {
		desc = fmt.Sprintf("spend of %d cents", req.AmountCents)
	}
	return s.earnLocked(ctx, tx, settings, acc, model.TxEarn, func(a model.Account) int64 {
		return rules.PointsForSpend(req.AmountCents, settings.PointsPerDollar, a.Tier)
	}, req.Source, req.SourceID, desc, "")
}

// earnLocked credits points computed from the locked account. It is a no-op
// when the program is disabled or the computed amount is zero.
func (s *Service) earnLocked(ctx context.Context, tx pgx.Tx, settings model.Settings, acc *model.Account, typ model.TxType, points func(model.Account) int64, source, sourceID, desc, actor string) (EarnResult, error) {
	if !settings.Enabled {
		return EarnResult{Account: *acc}, nil
	}
	if sourceID != "" {
		existing, found, err := s.repo.FindTransactionBySource(ctx, tx, acc.BusinessID, acc.CustomerID, typ, source, sourceID)
		if err != nil {
			return EarnResult{}, err
		}
		if found {
			return EarnResult{Points: 0, Duplicate: true, Transaction: &existing, Account: *acc}, nil
		}
	}
	n := points(*acc)
	if n <= 0 {
		return EarnResult{Account: *acc}, nil
	}
	t, err := s.post(ctx, tx, settings, acc, entry{Type: typ, Amount: n, Source: source, SourceID: sourceID, Description: desc, Actor: actor})
	if err != nil {
		return EarnResult{}, err
	}
	if err := s.emit(ctx, tx, acc.BusinessID, accountAggregate(acc.BusinessID, acc.CustomerID), outbox.TypePointsEarned, map[string]any{
		"customer_id":    acc.CustomerID,
		"transaction_id": t.ID,
		"type":           t.Type,
		"points":         n,
		"source":         source,
		"source_id":      sourceID,
		"balance":        acc.Balance,
	}); err != nil {
		return EarnResult{}, err
	}
	return EarnResult{Points: n, Transaction: &t, Account: *acc}, nil
}

type AdjustRequest struct {
	BusinessID string
	CustomerID string
	Delta      int64
	Reason     string
	Actor      string
}

// Adjust applies a manual correction. A debit larger than the balance fails
// with ErrInsufficientPoints.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (model.Transaction, model.Account, error) {
	if err := validCustomer(req.BusinessID, req.CustomerID); err != nil {
		return model.Transaction{}, model.Account{}, err
	}
	if req.Delta == 0 {
		return model.Transaction{}, model.Account{}, ErrInvalidAmount
	}
	if strings.TrimSpace(req.Reason) == "" {
		return model.Transaction{}, model.Account{}, fmt.Errorf("%w: reason is required", ErrInvalidArgument)
	}
	var t model.Transaction
	var acc model.Account
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		settings, err := s.repo.GetSettings(ctx, tx, req.BusinessID)
		if err != nil {
			return err
		}
		acc, err = s.repo.LockAccount(ctx, tx, req.BusinessID, req.CustomerID)
		if err != nil {
			return err
		}
		t, err = s.post(ctx, tx, settings, &acc, entry{
			Type:        model.TxAdjust,
			Amount:      req.Delta,
			Source:      model.SourceManual,
			Description: req.Reason,
			Actor:       req.Actor,
		})
		return err
	})
	return t, acc, err
}

// GetAccount returns a zero bronze account for customers with no ledger yet.
func (s *Service) GetAccount(ctx context.Context, businessID, customerID string) (model.Account, error) {
	if err := validCustomer(businessID, customerID); err != nil {
		return model.Account{}, err
	}
	acc, err := s.repo.GetAccount(ctx, s.repo.Reader(), businessID, customerID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Account{BusinessID: businessID, CustomerID: customerID, Tier: model.TierBronze}, nil
	}
	return acc, err
}

// ListTransactions pages newest first; pass the last Seq seen as beforeSeq.
func (s *Service) ListTransactions(ctx context.Context, businessID, customerID string, limit int, beforeSeq int64) ([]model.Transaction, error) {
	if err := validCustomer(businessID, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, businessID, customerID, limit, beforeSeq)
}
