package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/detailcrm/libs/auth"
	"github.com/md-rashed-zaman/detailcrm/libs/httpx"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

type campaignRequest struct {
	Key      string                 `json:"key"`
	Name     string                 `json:"name"`
	Points   int64                  `json:"points"`
	StartsAt *time.Time             `json:"starts_at"`
	EndsAt   *time.Time             `json:"ends_at"`
	Criteria model.CampaignCriteria `json:"criteria"`
	Active   *bool                  `json:"active"`
}

// Campaigns lists campaigns on GET and upserts one by key on POST (owner/admin).
func (h *Handler) Campaigns(w http.ResponseWriter, r *http.Request) {
	businessID := auth.BusinessID(r.Context())
	switch r.Method {
	case http.MethodGet:
		items, err := h.svc.ListCampaigns(r.Context(), businessID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if items == nil {
			items = []model.Campaign{}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		if !isAdmin(r) {
			httpx.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}
		var req campaignRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		c := model.Campaign{
			BusinessID: businessID,
			Key:        strings.TrimSpace(req.Key),
			Name:       strings.TrimSpace(req.Name),
			Points:     req.Points,
			StartsAt:   time.Now().UTC(),
			EndsAt:     req.EndsAt,
			Criteria:   req.Criteria,
			Active:     true,
		}
		if req.StartsAt != nil {
			c.StartsAt = req.StartsAt.UTC()
		}
		if req.Active != nil {
			c.Active = *req.Active
		}
		out, err := h.svc.UpsertCampaign(r.Context(), c)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	default:
		methodNotAllowed(w)
	}
}

type awardRequest struct {
	Key        string `json:"key"`
	CustomerID string `json:"customer_id"`
}

// AwardCampaign awards a running campaign to every eligible customer, or to one
// customer when customer_id is given. Re-running never awards twice.
func (h *Handler) AwardCampaign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req awardRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		badRequest(w, "missing key")
		return
	}
	businessID := auth.BusinessID(r.Context())
	var (
		sum model.AwardSummary
		err error
	)
	if customerID := strings.TrimSpace(req.CustomerID); customerID != "" {
		sum, err = h.svc.AwardCampaignToCustomer(r.Context(), businessID, key, customerID)
	} else {
		sum, err = h.svc.AwardCampaign(r.Context(), businessID, key)
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}
