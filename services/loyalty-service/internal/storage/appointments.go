package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/libs/db"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

const appointmentColumns = `business_id, appointment_id, customer_id, status, scheduled_at, completed_at, amount_cents, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.BusinessID, &a.AppointmentID, &a.CustomerID, &a.Status, &a.ScheduledAt,
		&a.CompletedAt, &a.AmountCents, &a.UpdatedAt)
	return a, err
}

// GetAppointmentForUpdate returns the stored projection, if any, locked for update.
func (r *Repository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) (model.Appointment, bool, error) {
	a, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND appointment_id = $2
		FOR UPDATE
	`, businessID, appointmentID))
	if db.IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

func (r *Repository) UpsertAppointment(ctx context.Context, tx pgx.Tx, a model.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(business_id, appointment_id, customer_id, status, scheduled_at, completed_at, amount_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id, appointment_id) DO UPDATE
		SET customer_id = EXCLUDED.customer_id,
			status = EXCLUDED.status,
			scheduled_at = EXCLUDED.scheduled_at,
			completed_at = EXCLUDED.completed_at,
			amount_cents = EXCLUDED.amount_cents,
			updated_at = now()
	`, a.BusinessID, a.AppointmentID, a.CustomerID, a.Status, a.ScheduledAt, a.CompletedAt, a.AmountCents)
	return err
}

func (r *Repository) CustomerAppointments(ctx context.Context, q Querier, businessID, customerID string) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND customer_id = $2
		ORDER BY scheduled_at, appointment_id
	`, businessID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
