package loyalty

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/outbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/rules"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
)

// ExpireAccount writes a single expire debit for whatever is due now and
// returns the number of points expired.
func (s *Service) ExpireAccount(ctx context.Context, businessID, customerID string) (int64, error) {
	if err := validCustomer(businessID, customerID); err != nil {
		return 0, err
	}
	var expired int64
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		acc, err := s.repo.LockAccount(ctx, tx, businessID, customerID)
		if err != nil {
			return err
		}
		txs, err := s.repo.LedgerTransactions(ctx, tx, businessID, customerID)
		if err != nil {
			return err
		}
		due := rules.ExpirableFromLedger(txs, acc.Balance, s.now())
		if due == 0 {
			return nil
		}
		settings, err := s.repo.GetSettings(ctx, tx, businessID)
		if err != nil {
			return err
		}
		t, err := s.post(ctx, tx, settings, &acc, entry{
			Type:        model.TxExpire,
			Amount:      -due,
			Source:      model.SourceExpiry,
			Description: "points expired",
		})
		if err != nil {
			return err
		}
		expired = due
		return s.emit(ctx, tx, businessID, accountAggregate(businessID, customerID), outbox.TypePointsExpired, map[string]any{
			"customer_id":    customerID,
			"points":         due,
			"transaction_id": t.ID,
			"balance":        acc.Balance,
		})
	})
	return expired, err
}

type SweepSummary struct {
	Accounts      int   `json:"accounts"`
	Expired       int   `json:"expired_accounts"`
	PointsExpired int64 `json:"points_expired"`
	Failed        int   `json:"failed"`
}

// SweepExpired expires due points for every candidate account. An empty
// businessID sweeps all tenants. A failing account is logged and skipped.
func (s *Service) SweepExpired(ctx context.Context, businessID string) (SweepSummary, error) {
	const page = 500
	var sum SweepSummary
	var after storage.AccountKey
	for {
		keys, err := s.repo.ListExpiryCandidates(ctx, businessID, after, page)
		if err != nil {
			return sum, fmt.Errorf("list expiry candidates: %w", err)
		}
		for _, k := range keys {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Accounts++
			n, err := s.ExpireAccount(ctx, k.BusinessID, k.CustomerID)
			if err != nil {
				sum.Failed++
				s.logger.Error("expire account failed", "err", err, "business_id", k.BusinessID, "customer_id", k.CustomerID)
				continue
			}
			if n > 0 {
				sum.Expired++
				sum.PointsExpired += n
			}
		}
		if len(keys) < page {
			break
		}
		after = keys[len(keys)-1]
	}
	return sum, nil
}
