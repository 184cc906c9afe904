package model

import "time"

type CampaignCriteria struct {
	MinCompletedVisits    int   `json:"min_completed_visits,omitempty"`
	MinLifetimeValueCents int64 `json:"min_lifetime_value_cents,omitempty"`
	// LapsedDays > 0 selects customers whose last completed visit is at least that old.
	LapsedDays int    `json:"lapsed_days,omitempty"`
	Tiers      []Tier `json:"tiers,omitempty"`
}

type Campaign struct {
	ID         string           `json:"id"`
	BusinessID string           `json:"business_id"`
	Key        string           `json:"key"`
	Name       string           `json:"name"`
	Points     int64            `json:"points"`
	StartsAt   time.Time        `json:"starts_at"`
	EndsAt     *time.Time       `json:"ends_at,omitempty"`
	Criteria   CampaignCriteria `json:"criteria"`
	Active     bool             `json:"active"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Running reports whether the campaign can award at t.
func (c Campaign) Running(t time.Time) bool {
	if !c.Active || t.Before(c.StartsAt) {
		return false
	}
	return c.EndsAt == nil || t.Before(*c.EndsAt)
}

type AwardSummary struct {
	CampaignKey    string `json:"campaign_key"`
	Evaluated      int    `json:"evaluated"`
	Eligible       int    `json:"eligible"`
	Awarded        int    `json:"awarded"`
	AlreadyAwarded int    `json:"already_awarded"`
	PointsAwarded  int64  `json:"points_awarded"`
}
