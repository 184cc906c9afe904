package rules

import "github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"

// Thresholds on lifetime earned points.
const (
	SilverThreshold   int64 = 500
	GoldThreshold     int64 = 1500
	PlatinumThreshold int64 = 3000
)

func TierFor(lifetimeEarned int64) model.Tier {
	switch {
	case lifetimeEarned >= PlatinumThreshold:
		return model.TierPlatinum
	case lifetimeEarned >= GoldThreshold:
		return model.TierGold
	case lifetimeEarned >= SilverThreshold:
		return model.TierSilver
	default:
		return model.TierBronze
	}
}

// Multiplier returns the earning multiplier for a tier as a percentage.
func Multiplier(t model.Tier) int64 {
	switch t {
	case model.TierSilver:
		return 110
	case model.TierGold:
		return 125
	case model.TierPlatinum:
		return 150
	default:
		return 100
	}
}

// MeetsTier reports whether have satisfies a requirement. An empty requirement always passes.
func MeetsTier(have, required model.Tier) bool {
	if required == "" {
		return true
	}
	return have.Rank() >= required.Rank()
}

// PointsForSpend converts a spend in cents into points. Only whole dollars earn.
func PointsForSpend(amountCents int64, pointsPerDollar int, tier model.Tier) int64 {
	if amountCents <= 0 || pointsPerDollar <= 0 {
		return 0
	}
	dollars := amountCents / 100
	return dollars * int64(pointsPerDollar) * Multiplier(tier) / 100
}
