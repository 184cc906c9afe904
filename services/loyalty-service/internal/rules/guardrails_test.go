package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseRequest() RedemptionRequest {
	return RedemptionRequest{
		Settings: model.DefaultSettings("biz-1"),
		Reward: model.Reward{
			Name:              "Free wash",
			PointCost:         100,
			DiscountType:      model.DiscountFixed,
			DiscountValue:     2_000,
			MinCartTotalCents: 5_000,
			Active:            true,
		},
		Account:        model.Account{Balance: 150, Tier: model.TierBronze},
		CartTotalCents: 8_000,
		Now:            time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCheckRedemptionAllowed(t *testing.T) {
	require.NoError(t, CheckRedemption(baseRequest()))
}

func TestCheckRedemptionCartBelowMinimum(t *testing.T) {
	req := baseRequest()
	req.CartTotalCents = 4_999

	err := CheckRedemption(req)
	var ge *GuardrailError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, []string{ViolationCartBelowMinimum}, codes(ge))
}

func TestCheckRedemptionCollectsAllViolations(t *testing.T) {
	req := baseRequest()
	req.Settings.Enabled = false
	req.Reward.Active = false
	req.Reward.TierRequired = model.TierGold
	req.Reward.PerCustomerLimit = 1
	req.PriorRedemptions = 1
	req.Account.Balance = 10
	end := req.Now.Add(-time.Hour)
	req.Reward.EndsAt = &end

	err := CheckRedemption(req)
	var ge *GuardrailError
	require.True(t, errors.As(err, &ge))
	assert.ElementsMatch(t, []string{
		ViolationProgramDisabled,
		ViolationRewardInactive,
		ViolationRewardEnded,
		ViolationTierTooLow,
		ViolationLimitReached,
		ViolationInsufficientPoint,
	}, codes(ge))
	assert.True(t, ge.Has(ViolationInsufficientPoint))
	assert.Len(t, ge.Messages(), 6)
	assert.Contains(t, ge.Error(), "insufficient_points")
}

func TestCheckRedemptionWindow(t *testing.T) {
	req := baseRequest()
	start := req.Now.Add(time.Hour)
	req.Reward.StartsAt = &start

	var ge *GuardrailError
	require.ErrorAs(t, CheckRedemption(req), &ge)
	assert.True(t, ge.Has(ViolationRewardNotStarted))

	req.Now = start
	assert.NoError(t, CheckRedemption(req))
}

func TestCheckRedemptionExactBalanceAllowed(t *testing.T) {
	req := baseRequest()
	req.Account.Balance = req.Reward.PointCost
	assert.NoError(t, CheckRedemption(req))
}

func TestComputeDiscount(t *testing.T) {
	fixed := model.Reward{DiscountType: model.DiscountFixed, DiscountValue: 3_000}
	pct := model.Reward{DiscountType: model.DiscountPercent, DiscountValue: 20}
	full := model.Reward{DiscountType: model.DiscountPercent, DiscountValue: 100}

	assert.Equal(t, int64(3_000), ComputeDiscount(fixed, 10_000, 50))
	assert.Equal(t, int64(2_500), ComputeDiscount(fixed, 5_000, 50), "capped at max percent")
	assert.Equal(t, int64(2_000), ComputeDiscount(fixed, 2_000, 100), "capped at cart total")
	assert.Equal(t, int64(2_000), ComputeDiscount(pct, 10_000, 50))
	assert.Equal(t, int64(5_000), ComputeDiscount(full, 10_000, 50))
	assert.Equal(t, int64(0), ComputeDiscount(fixed, 0, 50))
}

func TestValidateReward(t *testing.T) {
	ok := model.Reward{Name: "x", PointCost: 10, DiscountType: model.DiscountPercent, DiscountValue: 10}
	require.NoError(t, ValidateReward(ok))

	bad := ok
	bad.DiscountValue = 150
	assert.Error(t, ValidateReward(bad))

	bad = ok
	bad.TierRequired = "diamond"
	assert.Error(t, ValidateReward(bad))

	bad = ok
	bad.PointCost = 0
	assert.Error(t, ValidateReward(bad))
}

func TestValidateSettings(t *testing.T) {
	s := model.DefaultSettings("b")
	require.NoError(t, ValidateSettings(s))

	s.MaxDiscountPercent = 0
	assert.Error(t, ValidateSettings(s))

	s = model.DefaultSettings("b")
	s.ExpiryDays = 0
	assert.NoError(t, ValidateSettings(s))
	s.PointsPerDollar = 101
	assert.Error(t, ValidateSettings(s))
}

func codes(ge *GuardrailError) []string {
	var out []string
	for _, v := range ge.Violations {
		out = append(out, v.Code)
	}
	return out
}
