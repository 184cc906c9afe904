// Package stats derives customer booking statistics from appointment history.
package stats

import (
	"time"

	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

// Recalculate builds stats for one customer from the full appointment history.
// The result depends only on history and now, so recalculating is idempotent.
func Recalculate(businessID, customerID string, history []model.Appointment, now time.Time) model.CustomerStats {
	s := model.CustomerStats{
		BusinessID:     businessID,
		CustomerID:     customerID,
		RecalculatedAt: now.UTC(),
	}
	for _, a := range history {
		s.TotalAppointments++
		switch a.Status {
		case model.AppointmentCompleted:
			s.CompletedAppointments++
			s.LifetimeValueCents += a.AmountCents
			visit := visitTime(a)
			if s.FirstVisitAt == nil || visit.Before(*s.FirstVisitAt) {
				s.FirstVisitAt = &visit
			}
			if s.LastVisitAt == nil || visit.After(*s.LastVisitAt) {
				s.LastVisitAt = &visit
			}
		case model.AppointmentCancelled:
			s.CancelledAppointments++
		case model.AppointmentNoShow:
			s.NoShowAppointments++
		case model.AppointmentScheduled, model.AppointmentConfirmed:
			if a.ScheduledAt.After(now) {
				s.UpcomingAppointments++
				next := a.ScheduledAt.UTC()
				if s.NextAppointmentAt == nil || next.Before(*s.NextAppointmentAt) {
					s.NextAppointmentAt = &next
				}
			}
		}
	}
	if s.CompletedAppointments > 0 {
		s.AverageTicketCents = s.LifetimeValueCents / int64(s.CompletedAppointments)
	}
	return s
}

func visitTime(a model.Appointment) time.Time {
	if a.CompletedAt != nil {
		return a.CompletedAt.UTC()
	}
	return a.ScheduledAt.UTC()
}

// Equal compares two stat snapshots ignoring RecalculatedAt.
func Equal(a, b model.CustomerStats) bool {
	a.RecalculatedAt, b.RecalculatedAt = time.Time{}, time.Time{}
	return timeEq(a.FirstVisitAt, b.FirstVisitAt) &&
		timeEq(a.LastVisitAt, b.LastVisitAt) &&
		timeEq(a.NextAppointmentAt, b.NextAppointmentAt) &&
		stripTimes(a) == stripTimes(b)
}

type counts struct {
	total, completed, cancelled, noShow, upcoming int
	ltv, avg                                      int64
	business, customer                            string
}

func stripTimes(s model.CustomerStats) counts {
	return counts{
		total: s.TotalAppointments, completed: s.CompletedAppointments,
		cancelled: s.CancelledAppointments, noShow: s.NoShowAppointments,
		upcoming: s.UpcomingAppointments, ltv: s.LifetimeValueCents, avg: s.AverageTicketCents,
		business: s.BusinessID, customer: s.CustomerID,
	}
}

func timeEq(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
