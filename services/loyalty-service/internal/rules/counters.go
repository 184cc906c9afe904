package rules

import "github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"

// Counters are the lifetime totals kept on an account.
type Counters struct {
	Earned   int64
	Redeemed int64
	Expired  int64
}

// Accumulate folds one ledger entry into the lifetime counters. The ledger
// service and the normalization planner both use it so that stored counters
// can always be rebuilt from transactions.
func (c *Counters) Accumulate(t model.TxType, amount int64) {
	switch t {
	case model.TxEarn, model.TxCampaign, model.TxAchievement, model.TxImport:
		c.Earned += amount
	case model.TxAdjust:
		if amount > 0 {
			c.Earned += amount
		}
	case model.TxReversal, model.TxCorrection:
		if amount < 0 {
			c.Earned += amount
		}
	case model.TxRedeem:
		c.Redeemed -= amount
	case model.TxRefund:
		c.Redeemed -= amount
	case model.TxExpire:
		c.Expired -= amount
	}
	if c.Earned < 0 {
		c.Earned = 0
	}
	if c.Redeemed < 0 {
		c.Redeemed = 0
	}
}

// Apply copies the counters and the derived tier onto an account.
func (c Counters) Apply(a *model.Account) {
	a.LifetimeEarned = c.Earned
	a.LifetimeRedeemed = c.Redeemed
	a.LifetimeExpired = c.Expired
	a.Tier = TierFor(c.Earned)
}

func CountersOf(a model.Account) Counters {
	return Counters{Earned: a.LifetimeEarned, Redeemed: a.LifetimeRedeemed, Expired: a.LifetimeExpired}
}
