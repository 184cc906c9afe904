package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/detailcrm/libs/auth"
	"github.com/md-rashed-zaman/detailcrm/libs/httpx"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/loyalty"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/rules"
)

// Service is the loyalty API the handlers need; *loyalty.Service implements it.
type Service interface {
	IssueToken(ctx context.Context, clientID, clientSecret string) (loyalty.Token, error)
	GetSettings(ctx context.Context, businessID string) (model.Settings, error)
	UpdateSettings(ctx context.Context, s model.Settings) (model.Settings, error)

	GetAccount(ctx context.Context, businessID, customerID string) (model.Account, error)
	ListTransactions(ctx context.Context, businessID, customerID string, limit int, beforeSeq int64) ([]model.Transaction, error)
	Earn(ctx context.Context, req loyalty.EarnRequest) (loyalty.EarnResult, error)
	EarnForSpend(ctx context.Context, req loyalty.SpendRequest) (loyalty.EarnResult, error)
	Adjust(ctx context.Context, req loyalty.AdjustRequest) (model.Transaction, model.Account, error)
	Redeem(ctx context.Context, req loyalty.RedeemRequest) (loyalty.RedeemResult, error)
	ApplyRedemption(ctx context.Context, businessID, code, invoiceID string) (model.Redemption, error)
	CancelRedemption(ctx context.Context, businessID, redemptionID, reason, actor string) (loyalty.RedeemResult, error)
	Idempotent(ctx context.Context, businessID, key, scope string, fn func(ctx context.Context) (int, any, error)) (loyalty.Response, error)

	CreateReward(ctx context.Context, rw model.Reward) (model.Reward, error)
	ListRewards(ctx context.Context, businessID string, activeOnly bool) ([]model.Reward, error)
	DeactivateReward(ctx context.Context, businessID, rewardID string) error

	UpsertCampaign(ctx context.Context, c model.Campaign) (model.Campaign, error)
	ListCampaigns(ctx context.Context, businessID string) ([]model.Campaign, error)
	AwardCampaign(ctx context.Context, businessID, key string) (model.AwardSummary, error)
	AwardCampaignToCustomer(ctx context.Context, businessID, key, customerID string) (model.AwardSummary, error)

	RecordAppointment(ctx context.Context, evt loyalty.AppointmentEvent) (loyalty.AppointmentResult, error)
	GetStats(ctx context.Context, businessID, customerID string) (model.CustomerStats, error)
	RecalculateStats(ctx context.Context, businessID, customerID string) (model.CustomerStats, error)
	RecalculateAll(ctx context.Context, businessID string) (loyalty.RecalcSummary, error)

	NormalizeAccount(ctx context.Context, businessID, customerID string, dryRun bool) (rules.NormalizationReport, error)
	NormalizeAll(ctx context.Context, businessID string, dryRun bool) (loyalty.NormalizeSummary, error)
	ExpireAccount(ctx context.Context, businessID, customerID string) (int64, error)
	SweepExpired(ctx context.Context, businessID string) (loyalty.SweepSummary, error)

	HandlePaymentEvent(ctx context.Context, evt loyalty.PaymentEvent) (loyalty.PaymentResult, error)
}

type Handler struct {
	svc                    Service
	logger                 *slog.Logger
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

type Config struct {
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
}

func New(svc Service, logger *slog.Logger, cfg Config) *Handler {
	if cfg.StripeWebhookTolerance <= 0 {
		cfg.StripeWebhookTolerance = 5 * time.Minute
	}
	return &Handler{
		svc:                    svc,
		logger:                 logger,
		stripeWebhookSecret:    cfg.StripeWebhookSecret,
		stripeWebhookTolerance: cfg.StripeWebhookTolerance,
	}
}

// Routes registers every endpoint on mux. Public routes are mounted as is;
// the rest go through authn and, for admin routes, the role gate.
func (h *Handler) Routes(mux *http.ServeMux, authn httpx.Middleware) {
	admin := auth.RequireRole(auth.RoleOwner, auth.RoleAdmin)
	protected := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, authn)
	}
	adminOnly := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, authn, admin)
	}

	mux.HandleFunc("/api/v1/auth/token", h.Token)
	mux.HandleFunc("/api/v1/webhooks/stripe", h.StripeWebhook)

	mux.Handle("/api/v1/loyalty/settings", protected(h.Settings))
	mux.Handle("/api/v1/loyalty/account", protected(h.Account))
	mux.Handle("/api/v1/loyalty/transactions", protected(h.Transactions))
	mux.Handle("/api/v1/loyalty/earn", protected(h.Earn))
	mux.Handle("/api/v1/loyalty/adjust", adminOnly(h.Adjust))
	mux.Handle("/api/v1/loyalty/redeem", protected(h.Redeem))
	mux.Handle("/api/v1/loyalty/redemptions/apply", protected(h.ApplyRedemption))
	mux.Handle("/api/v1/loyalty/redemptions/cancel", protected(h.CancelRedemption))

	mux.Handle("/api/v1/rewards", protected(h.Rewards))
	mux.Handle("/api/v1/rewards/deactivate", adminOnly(h.DeactivateReward))
	mux.Handle("/api/v1/campaigns", protected(h.Campaigns))
	mux.Handle("/api/v1/campaigns/award", adminOnly(h.AwardCampaign))

	mux.Handle("/api/v1/appointments/events", protected(h.AppointmentEvent))
	mux.Handle("/api/v1/customers/stats", protected(h.CustomerStats))

	mux.Handle("/api/v1/admin/stats/recalculate", adminOnly(h.RecalculateStats))
	mux.Handle("/api/v1/admin/ledger/normalize", adminOnly(h.NormalizeLedger))
	mux.Handle("/api/v1/admin/points/expire", adminOnly(h.ExpirePoints))
}

func methodNotAllowed(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func badRequest(w http.ResponseWriter, msg string) {
	httpx.WriteError(w, http.StatusBadRequest, msg)
}

// writeServiceError maps service errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ge *rules.GuardrailError
	switch {
	case errors.As(err, &ge):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "redemption blocked by guardrails", ge.Messages()...)
	case errors.Is(err, loyalty.ErrInvalidArgument), errors.Is(err, loyalty.ErrInvalidAmount):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid client credentials")
	case errors.Is(err, loyalty.ErrRewardNotFound),
		errors.Is(err, loyalty.ErrRedemptionNotFound),
		errors.Is(err, loyalty.ErrCampaignNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, loyalty.ErrDuplicate),
		errors.Is(err, loyalty.ErrRedemptionState),
		errors.Is(err, loyalty.ErrRedemptionExpired):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, loyalty.ErrInsufficientPoints),
		errors.Is(err, loyalty.ErrProgramDisabled),
		errors.Is(err, loyalty.ErrIdempotencyScope),
		errors.Is(err, loyalty.ErrCampaignInactive):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		h.logger.Error("request failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// respond runs fn, honouring an Idempotency-Key header when present. A key is
// bound to the method and path it was first used with.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, businessID string, fn func(ctx context.Context) (int, any, error)) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		status, body, err := fn(r.Context())
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		httpx.WriteJSON(w, status, body)
		return
	}
	if len(key) > 128 {
		badRequest(w, "Idempotency-Key must be at most 128 characters")
		return
	}
	resp, err := h.svc.Idempotent(r.Context(), businessID, key, r.Method+" "+r.URL.Path, fn)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if resp.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func actor(r *http.Request) string {
	if c, ok := auth.ClaimsFromContext(r.Context()); ok {
		return c.Sub
	}
	return ""
}
