package model

import "time"

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentScheduled, AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	}
	return false
}

// Settled reports whether the appointment reached an outcome. A settled
// appointment is never moved back to scheduled or confirmed.
func (s AppointmentStatus) Settled() bool {
	switch s {
	case AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	}
	return false
}

// Appointment is the local projection of a booking used for stats and earning.
type Appointment struct {
	BusinessID    string
	AppointmentID string
	CustomerID    string
	Status        AppointmentStatus
	ScheduledAt   time.Time
	CompletedAt   *time.Time
	AmountCents   int64
	UpdatedAt     time.Time
}

// CustomerStats is derived entirely from a customer's appointment history.
type CustomerStats struct {
	BusinessID            string     `json:"business_id"`
	CustomerID            string     `json:"customer_id"`
	TotalAppointments     int        `json:"total_appointments"`
	CompletedAppointments int        `json:"completed_appointments"`
	CancelledAppointments int        `json:"cancelled_appointments"`
	NoShowAppointments    int        `json:"no_show_appointments"`
	UpcomingAppointments  int        `json:"upcoming_appointments"`
	LifetimeValueCents    int64      `json:"lifetime_value_cents"`
	AverageTicketCents    int64      `json:"average_ticket_cents"`
	FirstVisitAt          *time.Time `json:"first_visit_at,omitempty"`
	LastVisitAt           *time.Time `json:"last_visit_at,omitempty"`
	NextAppointmentAt     *time.Time `json:"next_appointment_at,omitempty"`
	RecalculatedAt        time.Time  `json:"recalculated_at"`
}
