package rules

import (
	"testing"

	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanNormalizationCleanAccount(t *testing.T) {
	acc := model.Account{CustomerID: "c1", Balance: 80, LifetimeEarned: 100, LifetimeRedeemed: 20, Tier: model.TierBronze}
	txs := []model.Transaction{
		{ID: "t1", Type: model.TxEarn, Amount: 100, Source: model.SourceAppointment, SourceID: "a1"},
		{ID: "t2", Type: model.TxRedeem, Amount: -20, Source: model.SourceRedemption, SourceID: "r1"},
	}
	plan := PlanNormalization(acc, txs)
	assert.False(t, plan.Report.Changed())
	assert.Empty(t, plan.Corrections)
	assert.Equal(t, int64(80), plan.Account.Balance)
}

func TestPlanNormalizationReversesDuplicateImports(t *testing.T) {
	acc := model.Account{BusinessID: "b", CustomerID: "c1", Balance: 1000, LifetimeEarned: 1000, Tier: model.TierSilver}
	txs := []model.Transaction{
		{ID: "t1", Type: model.TxImport, Amount: 500, Source: model.SourceImport, SourceID: "legacy-1"},
		{ID: "t2", Type: model.TxImport, Amount: 500, Source: model.SourceImport, SourceID: "legacy-1"},
	}
	plan := PlanNormalization(acc, txs)

	require.Len(t, plan.Corrections, 1)
	c := plan.Corrections[0]
	assert.Equal(t, model.TxCorrection, c.Type)
	assert.Equal(t, int64(-500), c.Amount)
	assert.Equal(t, "t2", c.SourceID)
	assert.Equal(t, int64(500), plan.Account.Balance)
	assert.Equal(t, int64(500), plan.Account.LifetimeEarned)
	assert.Equal(t, model.TierSilver, plan.Account.Tier)
	assert.Equal(t, 1, plan.Report.DuplicateCredits)
	assert.False(t, plan.Report.BalanceDrift)
	assert.True(t, plan.Report.Changed())

	// Rerunning on the corrected ledger is a no-op.
	corrected := append(txs, c)
	again := PlanNormalization(plan.Account, corrected)
	assert.Empty(t, again.Corrections)
	assert.False(t, again.Report.Changed())
}

func TestPlanNormalizationDuplicateReversalCappedAtBalance(t *testing.T) {
	acc := model.Account{CustomerID: "c1", Balance: 150}
	txs := []model.Transaction{
		{ID: "t1", Type: model.TxImport, Amount: 100, Source: model.SourceImport, SourceID: "L"},
		{ID: "t2", Type: model.TxImport, Amount: 100, Source: model.SourceImport, SourceID: "L"},
		{ID: "t3", Type: model.TxRedeem, Amount: -150, Source: model.SourceRedemption, SourceID: "r"},
	}
	plan := PlanNormalization(acc, txs)
	require.Len(t, plan.Corrections, 1)
	assert.Equal(t, int64(-50), plan.Corrections[0].Amount)
	assert.Equal(t, int64(0), plan.Account.Balance)
	assert.Equal(t, int64(50), plan.Report.ReversedPoints)
}

func TestPlanNormalizationFloorsNegativeLedger(t *testing.T) {
	acc := model.Account{CustomerID: "c1", Balance: 0}
	txs := []model.Transaction{
		{ID: "t1", Type: model.TxImport, Amount: 100, Source: model.SourceImport},
		{ID: "t2", Type: model.TxAdjust, Amount: -130},
	}
	plan := PlanNormalization(acc, txs)
	require.Len(t, plan.Corrections, 1)
	assert.Equal(t, int64(30), plan.Corrections[0].Amount)
	assert.Equal(t, int64(30), plan.Report.NegativeFloored)
	assert.Equal(t, int64(0), plan.Account.Balance)
	assert.True(t, plan.Report.BalanceDrift)
}

func TestPlanNormalizationFixesDriftAndTier(t *testing.T) {
	acc := model.Account{CustomerID: "c1", Balance: 9999, LifetimeEarned: 0, Tier: model.TierBronze}
	txs := []model.Transaction{
		{ID: "t1", Type: model.TxEarn, Amount: 1600, Source: model.SourcePayment, SourceID: "pi_1"},
	}
	plan := PlanNormalization(acc, txs)
	assert.Empty(t, plan.Corrections)
	assert.True(t, plan.Report.BalanceDrift)
	assert.True(t, plan.Report.CountersChanged)
	assert.Equal(t, int64(1600), plan.Account.Balance)
	assert.Equal(t, model.TierGold, plan.Account.Tier)
	assert.Equal(t, model.TierGold, plan.Report.Tier)
}
