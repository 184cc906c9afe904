package rules

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestExpirableAmount(t *testing.T) {
	assert.Equal(t, int64(0), ExpirableAmount(0, 0, 100))
	assert.Equal(t, int64(100), ExpirableAmount(100, 0, 300))
	assert.Equal(t, int64(40), ExpirableAmount(100, 60, 300), "debits consume expiring credits first")
	assert.Equal(t, int64(0), ExpirableAmount(100, 150, 300))
	assert.Equal(t, int64(20), ExpirableAmount(100, 0, 20), "never more than the balance")
	assert.Equal(t, int64(0), ExpirableAmount(100, 0, 0))
}

func TestExpirableFromLedgerIsStableAfterExpiry(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	txs := []model.Transaction{
		{Type: model.TxEarn, Amount: 100, ExpiresAt: &past},
		{Type: model.TxEarn, Amount: 50, ExpiresAt: &future},
		{Type: model.TxRedeem, Amount: -30},
		{Type: model.TxAdjust, Amount: 20},
	}
	balance := int64(140)

	due := ExpirableFromLedger(txs, balance, now)
	assert.Equal(t, int64(70), due)

	// Once the expire debit is written nothing further is due.
	txs = append(txs, model.Transaction{Type: model.TxExpire, Amount: -due})
	assert.Equal(t, int64(0), ExpirableFromLedger(txs, balance-due, now))
}

func TestExpirableFromLedgerIgnoresRefundedRedemption(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	txs := []model.Transaction{
		{Type: model.TxEarn, Amount: 100, ExpiresAt: &past},
		{Type: model.TxRedeem, Amount: -100, Source: model.SourceRedemption, SourceID: "rd-1"},
		{Type: model.TxRefund, Amount: 100, Source: model.SourceRedemption, SourceID: "rd-1"},
	}
	assert.Equal(t, int64(100), ExpirableFromLedger(txs, 100, now), "refunded points keep their expiry")

	kept := []model.Transaction{
		{Type: model.TxEarn, Amount: 100, ExpiresAt: &past},
		{Type: model.TxRedeem, Amount: -100, Source: model.SourceRedemption, SourceID: "rd-2"},
	}
	assert.Equal(t, int64(0), ExpirableFromLedger(kept, 0, now))
}
