package rules

import (
	"testing"

	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		earned int64
		want   model.Tier
	}{
		{0, model.TierBronze},
		{499, model.TierBronze},
		{500, model.TierSilver},
		{1499, model.TierSilver},
		{1500, model.TierGold},
		{2999, model.TierGold},
		{3000, model.TierPlatinum},
		{1_000_000, model.TierPlatinum},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierFor(tc.earned), "earned=%d", tc.earned)
	}
}

func TestPointsForSpend(t *testing.T) {
	cases := []struct {
		name   string
		cents  int64
		ppd    int
		tier   model.Tier
		points int64
	}{
		{"zero spend", 0, 1, model.TierBronze, 0},
		{"negative spend", -500, 1, model.TierBronze, 0},
		{"partial dollar ignored", 99, 1, model.TierBronze, 0},
		{"bronze", 12_345, 1, model.TierBronze, 123},
		{"silver floors", 1_000, 1, model.TierSilver, 11},
		{"gold", 10_000, 2, model.TierGold, 250},
		{"platinum", 10_099, 1, model.TierPlatinum, 150},
		{"earning disabled by rate", 10_000, 0, model.TierGold, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.points, PointsForSpend(tc.cents, tc.ppd, tc.tier))
		})
	}
}

func TestMeetsTier(t *testing.T) {
	assert.True(t, MeetsTier(model.TierBronze, ""))
	assert.True(t, MeetsTier(model.TierGold, model.TierSilver))
	assert.True(t, MeetsTier(model.TierGold, model.TierGold))
	assert.False(t, MeetsTier(model.TierSilver, model.TierPlatinum))
	assert.False(t, MeetsTier("", model.TierBronze))
}

func TestCountersAccumulate(t *testing.T) {
	var c Counters
	c.Accumulate(model.TxEarn, 600)
	c.Accumulate(model.TxCampaign, 100)
	c.Accumulate(model.TxRedeem, -200)
	c.Accumulate(model.TxRefund, 200)
	c.Accumulate(model.TxExpire, -50)
	c.Accumulate(model.TxAdjust, -10)
	c.Accumulate(model.TxReversal, -100)

	assert.Equal(t, Counters{Earned: 600, Redeemed: 0, Expired: 50}, c)

	var a model.Account
	c.Apply(&a)
	assert.Equal(t, model.TierSilver, a.Tier)
	assert.Equal(t, int64(600), a.LifetimeEarned)
}
