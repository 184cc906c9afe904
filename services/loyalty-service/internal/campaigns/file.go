package campaigns

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"gopkg.in/yaml.v3"
)

// File is the YAML document accepted by loyaltyctl campaign apply:
//
//	campaigns:
//	  - key: spring-lapsed
//	    name: We miss you
//	    points: 150
//	    starts_at: 2026-03-01T00:00:00Z
//	    criteria:
//	      lapsed_days: 90
//	      tiers: [bronze, silver]
type File struct {
	Campaigns []Definition `yaml:"campaigns"`
}

type Definition struct {
	Key      string     `yaml:"key"`
	Name     string     `yaml:"name"`
	Points   int64      `yaml:"points"`
	StartsAt time.Time  `yaml:"starts_at"`
	EndsAt   *time.Time `yaml:"ends_at"`
	Active   *bool      `yaml:"active"`
	Criteria struct {
		MinCompletedVisits    int      `yaml:"min_completed_visits"`
		MinLifetimeValueCents int64    `yaml:"min_lifetime_value_cents"`
		LapsedDays            int      `yaml:"lapsed_days"`
		Tiers                 []string `yaml:"tiers"`
	} `yaml:"criteria"`
}

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Parse decodes and validates a campaign file. Campaigns without an explicit
// start begin at now.
func Parse(r io.Reader, businessID string, now time.Time) ([]model.Campaign, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode campaign file: %w", err)
	}

	seen := make(map[string]bool, len(f.Campaigns))
	out := make([]model.Campaign, 0, len(f.Campaigns))
	for i, d := range f.Campaigns {
		c, err := d.toModel(businessID, now)
		if err != nil {
			return nil, fmt.Errorf("campaign %d (%s): %w", i, d.Key, err)
		}
		if seen[c.Key] {
			return nil, fmt.Errorf("campaign %d: duplicate key %q", i, c.Key)
		}
		seen[c.Key] = true
		out = append(out, c)
	}
	return out, nil
}

func (d Definition) toModel(businessID string, now time.Time) (model.Campaign, error) {
	c := model.Campaign{
		BusinessID: businessID,
		Key:        strings.TrimSpace(d.Key),
		Name:       strings.TrimSpace(d.Name),
		Points:     d.Points,
		StartsAt:   d.StartsAt,
		EndsAt:     d.EndsAt,
		Active:     d.Active == nil || *d.Active,
		Criteria: model.CampaignCriteria{
			MinCompletedVisits:    d.Criteria.MinCompletedVisits,
			MinLifetimeValueCents: d.Criteria.MinLifetimeValueCents,
			LapsedDays:            d.Criteria.LapsedDays,
		},
	}
	if c.StartsAt.IsZero() {
		c.StartsAt = now.UTC()
	}
	for _, t := range d.Criteria.Tiers {
		c.Criteria.Tiers = append(c.Criteria.Tiers, model.Tier(strings.ToLower(strings.TrimSpace(t))))
	}
	return c, Validate(c)
}

// Validate checks a campaign definition before it is stored.
func Validate(c model.Campaign) error {
	switch {
	case !keyPattern.MatchString(c.Key):
		return fmt.Errorf("key must match %s", keyPattern)
	case c.Name == "":
		return errors.New("name is required")
	case c.Points <= 0:
		return errors.New("points must be positive")
	case c.StartsAt.IsZero():
		return errors.New("starts_at is required")
	case c.EndsAt != nil && !c.EndsAt.After(c.StartsAt):
		return errors.New("ends_at must be after starts_at")
	case c.Criteria.MinCompletedVisits < 0 || c.Criteria.MinLifetimeValueCents < 0 || c.Criteria.LapsedDays < 0:
		return errors.New("criteria must not be negative")
	}
	for _, t := range c.Criteria.Tiers {
		if !t.Valid() {
			return fmt.Errorf("unknown tier %q", t)
		}
	}
	return nil
}
