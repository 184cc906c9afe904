// Package loyalty orchestrates ledger operations. Every mutation runs in one
// database transaction with the customer's account row locked, so balances are
// serialized per customer and never drop below zero.
package loyalty

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/libs/auth"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/outbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
)

var (
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrProgramDisabled    = errors.New("loyalty program disabled")
	ErrRewardNotFound     = errors.New("reward not found")
	ErrRedemptionNotFound = errors.New("redemption not found")
	ErrRedemptionState    = errors.New("redemption cannot change from its current status")
	ErrRedemptionExpired  = errors.New("redemption code expired")
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrCampaignInactive   = errors.New("campaign is not running")
	ErrDuplicate          = errors.New("duplicate")
	ErrIdempotencyScope   = storage.ErrIdempotencyScope
)

type Service struct {
	repo   Store
	outbox EventWriter
	inbox  Inbox
	signer *auth.Signer
	logger *slog.Logger
	now    func() time.Time
}

func New(repo Store, outboxRepo EventWriter, inboxRepo Inbox, signer *auth.Signer, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		outbox: outboxRepo,
		inbox:  inboxRepo,
		signer: signer,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type txKey struct{}

// inTx runs fn in the transaction already carried by ctx, or in a new one.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx, tx)
	}
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx), tx)
	})
}

// Response is a stored or freshly produced idempotent response.
type Response struct {
	Status   int
	Body     []byte
	Replayed bool
}

// Idempotent runs fn at most once per (business, key). fn runs inside the
// transaction that holds the key, so any service call it makes commits
// together with the stored response. Failed calls store nothing. scope names
// the request (method and path); reusing a key for another scope fails with
// ErrIdempotencyScope.
func (s *Service) Idempotent(ctx context.Context, businessID, key, scope string, fn func(ctx context.Context) (int, any, error)) (Response, error) {
	var resp Response
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rec, err := s.repo.LockIdempotencyKey(ctx, tx, businessID, key, scope)
		if err != nil {
			return err
		}
		if rec.Completed() {
			resp = Response{Status: rec.StatusCode, Body: rec.ResponsePayload, Replayed: true}
			return nil
		}
		status, body, err := fn(ctx)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		if err := s.repo.FinalizeIdempotency(ctx, tx, businessID, key, status, payload); err != nil {
			return err
		}
		resp = Response{Status: status, Body: payload}
		return nil
	})
	return resp, err
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, businessID, aggregateID, eventType string, payload map[string]any) error {
	payload["business_id"] = businessID
	payload["occurred_at"] = s.now().Format(time.RFC3339)
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, outbox.Event{
		BusinessID:    businessID,
		AggregateType: "loyalty_account",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	})
}

func accountAggregate(businessID, customerID string) string {
	return businessID + ":" + customerID
}
