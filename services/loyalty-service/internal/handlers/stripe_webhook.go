package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/detailcrm/libs/httpx"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/loyalty"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeWebhook credits points for settled payments. No JWT: the signature is the auth.
// Payments carry business_id and customer_id in their metadata.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		badRequest(w, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		badRequest(w, "failed to read request body")
		return
	}
	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		badRequest(w, "invalid signature")
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	pe := loyalty.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}
	switch evtType {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			h.logger.Error("stripe: invalid payment intent payload", "err", err)
			break
		}
		pe.Spend = spendFromMetadata(pi.Metadata, pi.ID, pi.AmountReceived)
	case "invoice.paid":
		var inv stripe.Invoice
		if err := json.Unmarshal(evt.Data.Raw, &inv); err != nil {
			h.logger.Error("stripe: invalid invoice payload", "err", err)
			break
		}
		pe.Spend = spendFromMetadata(inv.Metadata, inv.ID, inv.AmountPaid)
	}
	if pe.Spend == nil && (evtType == "payment_intent.succeeded" || evtType == "invoice.paid") {
		h.logger.Warn("stripe: payment without loyalty metadata (business_id/customer_id)", "provider_event_id", evt.ID)
	}

	res, err := h.svc.HandlePaymentEvent(r.Context(), pe)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if res.Duplicate {
		h.logger.Info("payment provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "points": res.Earned.Points})
}

func spendFromMetadata(md map[string]string, objectID string, amountCents int64) *loyalty.SpendRequest {
	businessID := strings.TrimSpace(md["business_id"])
	customerID := strings.TrimSpace(md["customer_id"])
	if businessID == "" || customerID == "" || amountCents <= 0 {
		return nil
	}
	return &loyalty.SpendRequest{
		BusinessID:  businessID,
		CustomerID:  customerID,
		AmountCents: amountCents,
		Source:      model.SourcePayment,
		SourceID:    objectID,
		Description: "stripe payment",
	}
}
