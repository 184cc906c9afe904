package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/detailcrm/libs/auth"
	"github.com/md-rashed-zaman/detailcrm/libs/httpx"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

type rewardRequest struct {
	Name              string     `json:"name"`
	PointCost         int64      `json:"point_cost"`
	DiscountType      string     `json:"discount_type"`
	DiscountValue     int64      `json:"discount_value"`
	MinCartTotalCents int64      `json:"min_cart_total_cents"`
	TierRequired      string     `json:"tier_required"`
	PerCustomerLimit  int        `json:"per_customer_limit"`
	StartsAt          *time.Time `json:"starts_at"`
	EndsAt            *time.Time `json:"ends_at"`
}

// Rewards lists the catalogue on GET and creates a reward on POST (owner/admin).
func (h *Handler) Rewards(w http.ResponseWriter, r *http.Request) {
	businessID := auth.BusinessID(r.Context())
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active") == "true"
		items, err := h.svc.ListRewards(r.Context(), businessID, activeOnly)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if items == nil {
			items = []model.Reward{}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		if !isAdmin(r) {
			httpx.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}
		var req rewardRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		rw, err := h.svc.CreateReward(r.Context(), model.Reward{
			BusinessID:        businessID,
			Name:              strings.TrimSpace(req.Name),
			PointCost:         req.PointCost,
			DiscountType:      model.DiscountType(strings.ToLower(strings.TrimSpace(req.DiscountType))),
			DiscountValue:     req.DiscountValue,
			MinCartTotalCents: req.MinCartTotalCents,
			TierRequired:      model.Tier(strings.ToLower(strings.TrimSpace(req.TierRequired))),
			PerCustomerLimit:  req.PerCustomerLimit,
			Active:            true,
			StartsAt:          req.StartsAt,
			EndsAt:            req.EndsAt,
		})
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, rw)
	default:
		methodNotAllowed(w)
	}
}

type idRequest struct {
	ID string `json:"id"`
}

func (h *Handler) DeactivateReward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req idRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		badRequest(w, "missing id")
		return
	}
	if err := h.svc.DeactivateReward(r.Context(), auth.BusinessID(r.Context()), strings.TrimSpace(req.ID)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

func isAdmin(r *http.Request) bool {
	c, ok := auth.ClaimsFromContext(r.Context())
	return ok && (c.Role == auth.RoleOwner || c.Role == auth.RoleAdmin)
}
