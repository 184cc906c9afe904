package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/detailcrm/libs/auth"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/loyalty"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// fakeService embeds the interface so tests only implement what they call.
type fakeService struct {
	Service

	earnReq     *loyalty.EarnRequest
	spendReq    *loyalty.SpendRequest
	redeemErr   error
	payments    []loyalty.PaymentEvent
	seenPayment map[string]bool
	idemKeys    []string
	idemScopes  map[string]string
	awardCalls  []string
	beforeSeq   int64
}

func (f *fakeService) GetAccount(_ context.Context, businessID, customerID string) (model.Account, error) {
	return model.Account{BusinessID: businessID, CustomerID: customerID, Balance: 120, Tier: model.TierBronze}, nil
}

func (f *fakeService) Earn(_ context.Context, req loyalty.EarnRequest) (loyalty.EarnResult, error) {
	f.earnReq = &req
	return loyalty.EarnResult{Points: req.Points}, nil
}

func (f *fakeService) EarnForSpend(_ context.Context, req loyalty.SpendRequest) (loyalty.EarnResult, error) {
	f.spendReq = &req
	return loyalty.EarnResult{Points: req.AmountCents / 100}, nil
}

func (f *fakeService) Redeem(_ context.Context, req loyalty.RedeemRequest) (loyalty.RedeemResult, error) {
	if f.redeemErr != nil {
		return loyalty.RedeemResult{}, f.redeemErr
	}
	return loyalty.RedeemResult{Redemption: model.Redemption{RewardID: req.RewardID, Code: "RW-0123456789"}}, nil
}

func (f *fakeService) Idempotent(ctx context.Context, _ string, key, scope string, fn func(ctx context.Context) (int, any, error)) (loyalty.Response, error) {
	if f.idemScopes == nil {
		f.idemScopes = map[string]string{}
	}
	if prev, ok := f.idemScopes[key]; ok && prev != scope {
		return loyalty.Response{}, loyalty.ErrIdempotencyScope
	}
	f.idemScopes[key] = scope
	f.idemKeys = append(f.idemKeys, key)
	status, body, err := fn(ctx)
	if err != nil {
		return loyalty.Response{}, err
	}
	raw, _ := json.Marshal(body)
	return loyalty.Response{Status: status, Body: raw, Replayed: len(f.idemKeys) > 1}, nil
}

func (f *fakeService) ListTransactions(_ context.Context, businessID, customerID string, limit int, beforeSeq int64) ([]model.Transaction, error) {
	f.beforeSeq = beforeSeq
	var out []model.Transaction
	for seq := int64(10); seq > 0 && len(out) < limit; seq-- {
		if beforeSeq > 0 && seq >= beforeSeq {
			continue
		}
		out = append(out, model.Transaction{Seq: seq, BusinessID: businessID, CustomerID: customerID, Type: model.TxEarn, Amount: 1})
	}
	return out, nil
}

func (f *fakeService) AwardCampaign(_ context.Context, _ string, key string) (model.AwardSummary, error) {
	f.awardCalls = append(f.awardCalls, key)
	return model.AwardSummary{CampaignKey: key, Evaluated: 3, Eligible: 2, Awarded: 2, PointsAwarded: 200}, nil
}

func (f *fakeService) HandlePaymentEvent(_ context.Context, evt loyalty.PaymentEvent) (loyalty.PaymentResult, error) {
	if f.seenPayment == nil {
		f.seenPayment = map[string]bool{}
	}
	if f.seenPayment[evt.ProviderEventID] {
		return loyalty.PaymentResult{Duplicate: true}, nil
	}
	f.seenPayment[evt.ProviderEventID] = true
	f.payments = append(f.payments, evt)
	return loyalty.PaymentResult{}, nil
}

const (
	testSecret        = "test-signing-secret"
	testWebhookSecret = "whsec_test"
)

func newTestServer(t *testing.T, svc Service) (*httptest.Server, *auth.Signer) {
	t.Helper()
	signer := auth.NewSigner(testSecret, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(svc, logger, Config{StripeWebhookSecret: testWebhookSecret})
	mux := http.NewServeMux()
	h.Routes(mux, auth.RequireAuth(signer))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, signer
}

func bearer(t *testing.T, signer *auth.Signer, role string) string {
	t.Helper()
	tok, _, err := signer.Issue("client-1", "biz-1", role)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(t *testing.T, method, url, authz string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAccountRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, &fakeService{})
	resp := do(t, http.MethodGet, srv.URL+"/api/v1/loyalty/account?customer_id=c1", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAccountScopedToTokenBusiness(t *testing.T) {
	srv, signer := newTestServer(t, &fakeService{})
	resp := do(t, http.MethodGet, srv.URL+"/api/v1/loyalty/account?customer_id=c1", bearer(t, signer, auth.RoleStaff), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var acc model.Account
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&acc))
	assert.Equal(t, "biz-1", acc.BusinessID)
	assert.Equal(t, "c1", acc.CustomerID)
	assert.EqualValues(t, 120, acc.Balance)
}

func TestEarnRoutesPointsAndSpend(t *testing.T) {
	svc := &fakeService{}
	srv, signer := newTestServer(t, svc)
	authz := bearer(t, signer, auth.RoleStaff)

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/loyalty/earn", authz, map[string]any{"customer_id": "c1", "points": 40}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, svc.earnReq)
	assert.Equal(t, model.SourceManual, svc.earnReq.Source)
	assert.Equal(t, "client-1", svc.earnReq.Actor)

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/loyalty/earn", authz, map[string]any{"customer_id": "c1", "amount_cents": 2599, "source_id": "inv-9"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, svc.spendReq)
	assert.Equal(t, model.SourcePayment, svc.spendReq.Source)
	assert.Equal(t, "inv-9", svc.spendReq.SourceID)

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/loyalty/earn", authz, map[string]any{"customer_id": "c1", "points": 5, "amount_cents": 100}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRedeemIdempotencyReplay(t *testing.T) {
	svc := &fakeService{}
	srv, signer := newTestServer(t, svc)
	authz := bearer(t, signer, auth.RoleStaff)
	body := map[string]any{"customer_id": "c1", "reward_id": "r1", "cart_total_cents": 5000}
	hdr := map[string]string{"Idempotency-Key": "redeem-1"}

	first := do(t, http.MethodPost, srv.URL+"/api/v1/loyalty/redeem", authz, body, hdr)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	assert.Empty(t, first.Header.Get("Idempotent-Replayed"))

	second := do(t, http.MethodPost, srv.URL+"/api/v1/loyalty/redeem", authz, body, hdr)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, []string{"redeem-1", "redeem-1"}, svc.idemKeys)
}

func TestRedeemGuardrailViolations(t *testing.T) {
	svc := &fakeService{redeemErr: &rules.GuardrailError{Violations: []rules.Violation{
		{Code: rules.ViolationInsufficientPoint, Message: "not enough points"},
		{Code: rules.ViolationCartBelowMinimum, Message: "cart below minimum"},
	}}}
	srv, signer := newTestServer(t, svc)
	resp := do(t, http.MethodPost, srv.URL+"/api/v1/loyalty/redeem", bearer(t, signer, auth.RoleStaff),
		map[string]any{"customer_id": "c1", "reward_id": "r1", "cart_total_cents": 100}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out["details"], 2)
}

func TestAdminRoutesRejectStaff(t *testing.T) {
	svc := &fakeService{}
	srv, signer := newTestServer(t, svc)

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/campaigns/award", bearer(t, signer, auth.RoleStaff), map[string]any{"key": "spring"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, svc.awardCalls)

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/campaigns/award", bearer(t, signer, auth.RoleOwner), map[string]any{"key": "spring"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum model.AwardSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	assert.Equal(t, 2, sum.Awarded)
	assert.Equal(t, []string{"spring"}, svc.awardCalls)
}

func signedStripeEvent(t *testing.T, eventID string, amount int64, metadata map[string]string) ([]byte, string) {
	t.Helper()
	now := time.Now().UTC()
	payload, err := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     now.Unix(),
		"type":        "payment_intent.succeeded",
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":              "pi_" + eventID,
				"object":          "payment_intent",
				"amount_received": amount,
				"metadata":        metadata,
			},
		},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: now,
		Scheme:    "v1",
	})
	return payload, signed.Header
}

func postWebhook(t *testing.T, url string, payload []byte, sig string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Stripe-Signature", sig)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestStripeWebhookCreditsSpendOnce(t *testing.T) {
	svc := &fakeService{}
	srv, _ := newTestServer(t, svc)
	url := srv.URL + "/api/v1/webhooks/stripe"

	payload, sig := signedStripeEvent(t, "evt_1", 4200, map[string]string{"business_id": "biz-1", "customer_id": "c7"})
	resp := postWebhook(t, url, payload, sig)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, svc.payments, 1)
	spend := svc.payments[0].Spend
	require.NotNil(t, spend)
	assert.Equal(t, "biz-1", spend.BusinessID)
	assert.Equal(t, "c7", spend.CustomerID)
	assert.EqualValues(t, 4200, spend.AmountCents)
	assert.Equal(t, "pi_evt_1", spend.SourceID)

	resp = postWebhook(t, url, payload, sig)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "duplicate", out["status"])
	assert.Len(t, svc.payments, 1)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeService{}
	srv, _ := newTestServer(t, svc)
	payload, _ := signedStripeEvent(t, "evt_2", 100, nil)
	resp := postWebhook(t, srv.URL+"/api/v1/webhooks/stripe", payload, fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix()))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, svc.payments)
}

func TestStripeWebhookWithoutMetadataRecordsOnly(t *testing.T) {
	svc := &fakeService{}
	srv, _ := newTestServer(t, svc)
	payload, sig := signedStripeEvent(t, "evt_3", 100, map[string]string{"business_id": "biz-1"})
	resp := postWebhook(t, srv.URL+"/api/v1/webhooks/stripe", payload, sig)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, svc.payments, 1)
	assert.Nil(t, svc.payments[0].Spend)
}

func TestEarnRejectsReservedSources(t *testing.T) {
	svc := &fakeService{}
	srv, signer := newTestServer(t, svc)
	authz := bearer(t, signer, auth.RoleStaff)

	for _, source := range []string{model.SourceAppointment, model.SourceRedemption, model.SourceCampaign, model.SourceAchievement, model.SourceImport} {
		resp := do(t, http.MethodPost, srv.URL+"/api/v1/loyalty/earn", authz,
			map[string]any{"customer_id": "c1", "points": 10, "source": source, "source_id": "appt-1"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, source)
	}
	resp := do(t, http.MethodPost, srv.URL+"/api/v1/loyalty/earn", authz,
		map[string]any{"customer_id": "c1", "amount_cents": 1000, "source": model.SourceAppointment, "source_id": "appt-1"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Nil(t, svc.earnReq)
	assert.Nil(t, svc.spendReq)
}

func TestIdempotencyKeyBoundToEndpoint(t *testing.T) {
	svc := &fakeService{}
	srv, signer := newTestServer(t, svc)
	authz := bearer(t, signer, auth.RoleStaff)
	hdr := map[string]string{"Idempotency-Key": "shared-1"}

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/loyalty/earn", authz, map[string]any{"customer_id": "c1", "points": 40}, hdr)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/loyalty/redeem", authz,
		map[string]any{"customer_id": "c1", "reward_id": "r1", "cart_total_cents": 5000}, hdr)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "POST /api/v1/loyalty/earn", svc.idemScopes["shared-1"])
}

func TestTransactionsPageBySeq(t *testing.T) {
	svc := &fakeService{}
	srv, signer := newTestServer(t, svc)
	authz := bearer(t, signer, auth.RoleStaff)

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/loyalty/transactions?customer_id=c1&limit=4", authz, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page transactionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Items, 4)
	assert.EqualValues(t, 7, page.NextBeforeSeq)

	resp = do(t, http.MethodGet, fmt.Sprintf("%s/api/v1/loyalty/transactions?customer_id=c1&limit=4&before_seq=%d", srv.URL, page.NextBeforeSeq), authz, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.EqualValues(t, 7, svc.beforeSeq)
	require.Len(t, page.Items, 4)
	assert.EqualValues(t, 6, page.Items[0].Seq)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/loyalty/transactions?customer_id=c1&before_seq=abc", authz, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
