package storage

import (
	"context"

	"github.com/md-rashed-zaman/detailcrm/libs/db"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

func (r *Repository) UpsertStats(ctx context.Context, q Querier, s model.CustomerStats) error {
	_, err := q.Exec(ctx, `
		INSERT INTO customer_stats
			(business_id, customer_id, total_appointments, completed_appointments, cancelled_appointments,
			 no_show_appointments, upcoming_appointments, lifetime_value_cents, average_ticket_cents,
			 first_visit_at, last_visit_at, next_appointment_at, recalculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (business_id, customer_id) DO UPDATE
		SET total_appointments = EXCLUDED.total_appointments,
			completed_appointments = EXCLUDED.completed_appointments,
			cancelled_appointments = EXCLUDED.cancelled_appointments,
			no_show_appointments = EXCLUDED.no_show_appointments,
			upcoming_appointments = EXCLUDED.upcoming_appointments,
			lifetime_value_cents = EXCLUDED.lifetime_value_cents,
			average_ticket_cents = EXCLUDED.average_ticket_cents,
			first_visit_at = EXCLUDED.first_visit_at,
			last_visit_at = EXCLUDED.last_visit_at,
			next_appointment_at = EXCLUDED.next_appointment_at,
			recalculated_at = EXCLUDED.recalculated_at
	`, s.BusinessID, s.CustomerID, s.TotalAppointments, s.CompletedAppointments, s.CancelledAppointments,
		s.NoShowAppointments, s.UpcomingAppointments, s.LifetimeValueCents, s.AverageTicketCents,
		s.FirstVisitAt, s.LastVisitAt, s.NextAppointmentAt, s.RecalculatedAt)
	return err
}

// GetStats returns zero stats (found=false) for a customer never recalculated.
func (r *Repository) GetStats(ctx context.Context, q Querier, businessID, customerID string) (model.CustomerStats, bool, error) {
	s := model.CustomerStats{BusinessID: businessID, CustomerID: customerID}
	err := q.QueryRow(ctx, `
		SELECT total_appointments, completed_appointments, cancelled_appointments, no_show_appointments,
			upcoming_appointments, lifetime_value_cents, average_ticket_cents,
			first_visit_at, last_visit_at, next_appointment_at, recalculated_at
		FROM customer_stats
		WHERE business_id = $1 AND customer_id = $2
	`, businessID, customerID).Scan(&s.TotalAppointments, &s.CompletedAppointments, &s.CancelledAppointments,
		&s.NoShowAppointments, &s.UpcomingAppointments, &s.LifetimeValueCents, &s.AverageTicketCents,
		&s.FirstVisitAt, &s.LastVisitAt, &s.NextAppointmentAt, &s.RecalculatedAt)
	if db.IsNotFound(err) {
		return s, false, nil
	}
	if err != nil {
		return model.CustomerStats{}, false, err
	}
	return s, true, nil
}
