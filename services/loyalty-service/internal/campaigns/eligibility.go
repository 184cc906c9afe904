package campaigns

import (
	"slices"
	"time"

	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

// Eligible reports whether a customer satisfies every criterion the campaign sets.
// Unset criteria (zero values, empty tier list) are ignored.
func Eligible(c model.Campaign, s model.CustomerStats, acc model.Account, now time.Time) bool {
	cr := c.Criteria
	if cr.MinCompletedVisits > 0 && s.CompletedAppointments < cr.MinCompletedVisits {
		return false
	}
	if cr.MinLifetimeValueCents > 0 && s.LifetimeValueCents < cr.MinLifetimeValueCents {
		return false
	}
	if cr.LapsedDays > 0 {
		if s.LastVisitAt == nil {
			return false
		}
		if now.Sub(*s.LastVisitAt) < time.Duration(cr.LapsedDays)*24*time.Hour {
			return false
		}
	}
	if len(cr.Tiers) > 0 {
		tier := acc.Tier
		if tier == "" {
			tier = model.TierBronze
		}
		if !slices.Contains(cr.Tiers, tier) {
			return false
		}
	}
	return true
}
