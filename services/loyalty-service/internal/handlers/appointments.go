package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/detailcrm/libs/auth"
	"github.com/md-rashed-zaman/detailcrm/libs/httpx"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/loyalty"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

type appointmentRequest struct {
	AppointmentID string     `json:"appointment_id"`
	CustomerID    string     `json:"customer_id"`
	Status        string     `json:"status"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	AmountCents   int64      `json:"amount_cents"`
}

// AppointmentEvent applies an appointment status change pushed over HTTP.
// It shares the code path with the Kafka consumer.
func (h *Handler) AppointmentEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req appointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	status := model.AppointmentStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !status.Valid() {
		badRequest(w, "invalid status")
		return
	}
	businessID := auth.BusinessID(r.Context())
	h.respond(w, r, businessID, func(ctx context.Context) (int, any, error) {
		res, err := h.svc.RecordAppointment(ctx, loyalty.AppointmentEvent{
			BusinessID:    businessID,
			AppointmentID: strings.TrimSpace(req.AppointmentID),
			CustomerID:    strings.TrimSpace(req.CustomerID),
			Status:        status,
			ScheduledAt:   req.ScheduledAt,
			CompletedAt:   req.CompletedAt,
			AmountCents:   req.AmountCents,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, res, nil
	})
}

func (h *Handler) CustomerStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	customerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))
	if customerID == "" {
		badRequest(w, "missing customer_id")
		return
	}
	st, err := h.svc.GetStats(r.Context(), auth.BusinessID(r.Context()), customerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}
