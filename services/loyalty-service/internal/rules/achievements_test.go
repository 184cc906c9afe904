package rules

import (
	"testing"

	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/stretchr/testify/assert"
)

func keys(as []Achievement) []string {
	var out []string
	for _, a := range as {
		out = append(out, a.Key)
	}
	return out
}

func TestEvaluateAchievements(t *testing.T) {
	assert.Empty(t, EvaluateAchievements(model.CustomerStats{}, nil))

	s := model.CustomerStats{CompletedAppointments: 5, LifetimeValueCents: 120_000}
	assert.Equal(t, []string{"first_visit", "regular", "big_spender"}, keys(EvaluateAchievements(s, nil)))

	unlocked := map[string]bool{"first_visit": true, "big_spender": true}
	assert.Equal(t, []string{"regular"}, keys(EvaluateAchievements(s, unlocked)))

	s.CompletedAppointments = 10
	unlocked["regular"] = true
	got := EvaluateAchievements(s, unlocked)
	assert.Equal(t, []string{"loyal"}, keys(got))
	assert.Equal(t, int64(250), got[0].Points)
}
