package rules

import (
	"time"

	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

// ExpirableAmount returns how many points should expire now.
//
// expiredCredits is the sum of credits whose expiry has passed and debits the
// absolute sum of every debit so far, expire debits included. Debits are
// assumed to consume expiring credits first, so only the part of the expired
// credits not already spent is due.
func ExpirableAmount(expiredCredits, debits, balance int64) int64 {
	due := expiredCredits - debits
	if due <= 0 || balance <= 0 {
		return 0
	}
	if due > balance {
		return balance
	}
	return due
}

// ExpirableFromLedger computes ExpirableAmount from raw transactions. A
// redemption that was cancelled and refunded is left out entirely, so the
// points it spent keep their original expiry instead of coming back as a
// credit that never expires.
func ExpirableFromLedger(txs []model.Transaction, balance int64, now time.Time) int64 {
	refunded := make(map[string]bool)
	for _, t := range txs {
		if t.Type == model.TxRefund && t.Source == model.SourceRedemption && t.SourceID != "" {
			refunded[t.SourceID] = true
		}
	}
	var expired, debits int64
	for _, t := range txs {
		if t.Amount < 0 {
			if t.Type == model.TxRedeem && refunded[t.SourceID] {
				continue
			}
			debits += -t.Amount
			continue
		}
		if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
			expired += t.Amount
		}
	}
	return ExpirableAmount(expired, debits, balance)
}
