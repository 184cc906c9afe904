package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/detailcrm/libs/auth"
	"github.com/md-rashed-zaman/detailcrm/libs/httpx"
)

type customerScope struct {
	CustomerID string `json:"customer_id"`
	DryRun     bool   `json:"dry_run"`
}

// decodeScope accepts an empty body, which means every customer of the business.
func decodeScope(r *http.Request) (customerScope, error) {
	var req customerScope
	if r.ContentLength == 0 {
		return req, nil
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return req, err
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	return req, nil
}

func (h *Handler) RecalculateStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	req, err := decodeScope(r)
	if err != nil {
		badRequest(w, "invalid json body")
		return
	}
	businessID := auth.BusinessID(r.Context())
	if req.CustomerID != "" {
		st, err := h.svc.RecalculateStats(r.Context(), businessID, req.CustomerID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, st)
		return
	}
	sum, err := h.svc.RecalculateAll(r.Context(), businessID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}

// NormalizeLedger repairs ledgers damaged by the legacy import. dry_run reports
// the corrections without writing them.
func (h *Handler) NormalizeLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	req, err := decodeScope(r)
	if err != nil {
		badRequest(w, "invalid json body")
		return
	}
	businessID := auth.BusinessID(r.Context())
	if req.CustomerID != "" {
		rep, err := h.svc.NormalizeAccount(r.Context(), businessID, req.CustomerID, req.DryRun)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, rep)
		return
	}
	sum, err := h.svc.NormalizeAll(r.Context(), businessID, req.DryRun)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}

func (h *Handler) ExpirePoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	req, err := decodeScope(r)
	if err != nil {
		badRequest(w, "invalid json body")
		return
	}
	businessID := auth.BusinessID(r.Context())
	if req.CustomerID != "" {
		n, err := h.svc.ExpireAccount(r.Context(), businessID, req.CustomerID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"customer_id": req.CustomerID, "points_expired": n})
		return
	}
	sum, err := h.svc.SweepExpired(r.Context(), businessID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}
