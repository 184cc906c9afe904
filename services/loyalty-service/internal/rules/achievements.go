package rules

import "github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"

type Achievement struct {
	Key    string
	Name   string
	Points int64
	met    func(model.CustomerStats) bool
}

// Achievements is the built-in catalogue, in unlock order.
var Achievements = []Achievement{
	{Key: "first_visit", Name: "First visit", Points: 50, met: func(s model.CustomerStats) bool { return s.CompletedAppointments >= 1 }},
	{Key: "regular", Name: "Regular", Points: 100, met: func(s model.CustomerStats) bool { return s.CompletedAppointments >= 5 }},
	{Key: "loyal", Name: "Loyal customer", Points: 250, met: func(s model.CustomerStats) bool { return s.CompletedAppointments >= 10 }},
	{Key: "big_spender", Name: "Big spender", Points: 200, met: func(s model.CustomerStats) bool { return s.LifetimeValueCents >= 100_000 }},
}

// EvaluateAchievements returns achievements the stats qualify for that are not yet unlocked.
func EvaluateAchievements(s model.CustomerStats, unlocked map[string]bool) []Achievement {
	var out []Achievement
	for _, a := range Achievements {
		if unlocked[a.Key] {
			continue
		}
		if a.met(s) {
			out = append(out, a)
		}
	}
	return out
}
