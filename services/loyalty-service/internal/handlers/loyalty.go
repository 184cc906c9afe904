package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/detailcrm/libs/auth"
	"github.com/md-rashed-zaman/detailcrm/libs/httpx"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/loyalty"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req tokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if strings.TrimSpace(req.ClientID) == "" || req.ClientSecret == "" {
		badRequest(w, "client_id and client_secret are required")
		return
	}
	tok, err := h.svc.IssueToken(r.Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tok)
}

type settingsRequest struct {
	PointsPerDollar       *int  `json:"points_per_dollar"`
	ExpiryDays            *int  `json:"expiry_days"`
	MaxDiscountPercent    *int  `json:"max_discount_percent"`
	RedemptionCodeTTLDays *int  `json:"redemption_code_ttl_days"`
	Enabled               *bool `json:"enabled"`
}

// Settings serves GET and PUT. PUT only changes the fields present in the body.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	businessID := auth.BusinessID(r.Context())
	switch r.Method {
	case http.MethodGet:
		s, err := h.svc.GetSettings(r.Context(), businessID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, s)
	case http.MethodPut:
		if !isAdmin(r) {
			httpx.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}
		var req settingsRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		s, err := h.svc.GetSettings(r.Context(), businessID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if req.PointsPerDollar != nil {
			s.PointsPerDollar = *req.PointsPerDollar
		}
		if req.ExpiryDays != nil {
			s.ExpiryDays = *req.ExpiryDays
		}
		if req.MaxDiscountPercent != nil {
			s.MaxDiscountPercent = *req.MaxDiscountPercent
		}
		if req.RedemptionCodeTTLDays != nil {
			s.RedemptionCodeTTLDays = *req.RedemptionCodeTTLDays
		}
		if req.Enabled != nil {
			s.Enabled = *req.Enabled
		}
		out, err := h.svc.UpdateSettings(r.Context(), s)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	customerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))
	if customerID == "" {
		badRequest(w, "missing customer_id")
		return
	}
	acc, err := h.svc.GetAccount(r.Context(), auth.BusinessID(r.Context()), customerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, acc)
}

type transactionsResponse struct {
	Items         []model.Transaction `json:"items"`
	NextBeforeSeq int64               `json:"next_before_seq,omitempty"`
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	customerID := strings.TrimSpace(q.Get("customer_id"))
	if customerID == "" {
		badRequest(w, "missing customer_id")
		return
	}
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			badRequest(w, "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	var beforeSeq int64
	if raw := q.Get("before_seq"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			badRequest(w, "invalid before_seq")
			return
		}
		beforeSeq = n
	}
	items, err := h.svc.ListTransactions(r.Context(), auth.BusinessID(r.Context()), customerID, limit, beforeSeq)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := transactionsResponse{Items: items}
	if resp.Items == nil {
		resp.Items = []model.Transaction{}
	}
	if len(items) == limit {
		resp.NextBeforeSeq = items[len(items)-1].Seq
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type earnRequest struct {
	CustomerID  string `json:"customer_id"`
	Points      int64  `json:"points"`
	AmountCents int64  `json:"amount_cents"`
	Source      string `json:"source"`
	SourceID    string `json:"source_id"`
	Description string `json:"description"`
}

// Earn credits either explicit points or a spend converted at the tier rate.
func (h *Handler) Earn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req earnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if (req.Points > 0) == (req.AmountCents > 0) {
		badRequest(w, "exactly one of points or amount_cents must be positive")
		return
	}
	req.Source = strings.TrimSpace(req.Source)
	if model.ReservedSource(req.Source) {
		badRequest(w, "source "+req.Source+" is reserved")
		return
	}
	businessID := auth.BusinessID(r.Context())
	h.respond(w, r, businessID, func(ctx context.Context) (int, any, error) {
		var res loyalty.EarnResult
		var err error
		if req.AmountCents > 0 {
			res, err = h.svc.EarnForSpend(ctx, loyalty.SpendRequest{
				BusinessID:  businessID,
				CustomerID:  strings.TrimSpace(req.CustomerID),
				AmountCents: req.AmountCents,
				Source:      defaultString(req.Source, model.SourcePayment),
				SourceID:    strings.TrimSpace(req.SourceID),
				Description: req.Description,
			})
		} else {
			res, err = h.svc.Earn(ctx, loyalty.EarnRequest{
				BusinessID:  businessID,
				CustomerID:  strings.TrimSpace(req.CustomerID),
				Points:      req.Points,
				Source:      defaultString(req.Source, model.SourceManual),
				SourceID:    strings.TrimSpace(req.SourceID),
				Description: req.Description,
				Actor:       actor(r),
			})
		}
		if err != nil {
			return 0, nil, err
		}
		status := http.StatusCreated
		if res.Duplicate || res.Points == 0 {
			status = http.StatusOK
		}
		return status, res, nil
	})
}

type adjustRequest struct {
	CustomerID string `json:"customer_id"`
	Delta      int64  `json:"delta"`
	Reason     string `json:"reason"`
}

type adjustResponse struct {
	Transaction model.Transaction `json:"transaction"`
	Account     model.Account     `json:"account"`
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	businessID := auth.BusinessID(r.Context())
	h.respond(w, r, businessID, func(ctx context.Context) (int, any, error) {
		t, acc, err := h.svc.Adjust(ctx, loyalty.AdjustRequest{
			BusinessID: businessID,
			CustomerID: strings.TrimSpace(req.CustomerID),
			Delta:      req.Delta,
			Reason:     strings.TrimSpace(req.Reason),
			Actor:      actor(r),
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, adjustResponse{Transaction: t, Account: acc}, nil
	})
}

type redeemRequest struct {
	CustomerID     string `json:"customer_id"`
	RewardID       string `json:"reward_id"`
	CartTotalCents int64  `json:"cart_total_cents"`
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req redeemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if strings.TrimSpace(req.RewardID) == "" {
		badRequest(w, "missing reward_id")
		return
	}
	businessID := auth.BusinessID(r.Context())
	h.respond(w, r, businessID, func(ctx context.Context) (int, any, error) {
		res, err := h.svc.Redeem(ctx, loyalty.RedeemRequest{
			BusinessID:     businessID,
			CustomerID:     strings.TrimSpace(req.CustomerID),
			RewardID:       strings.TrimSpace(req.RewardID),
			CartTotalCents: req.CartTotalCents,
			Actor:          actor(r),
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, res, nil
	})
}

type applyRedemptionRequest struct {
	Code      string `json:"code"`
	InvoiceID string `json:"invoice_id"`
}

func (h *Handler) ApplyRedemption(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req applyRedemptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	rd, err := h.svc.ApplyRedemption(r.Context(), auth.BusinessID(r.Context()), req.Code, strings.TrimSpace(req.InvoiceID))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rd)
}

type cancelRedemptionRequest struct {
	RedemptionID string `json:"redemption_id"`
	Reason       string `json:"reason"`
}

func (h *Handler) CancelRedemption(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req cancelRedemptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if strings.TrimSpace(req.RedemptionID) == "" {
		badRequest(w, "missing redemption_id")
		return
	}
	res, err := h.svc.CancelRedemption(r.Context(), auth.BusinessID(r.Context()), strings.TrimSpace(req.RedemptionID), strings.TrimSpace(req.Reason), actor(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func defaultString(s, fallback string) string {
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}
