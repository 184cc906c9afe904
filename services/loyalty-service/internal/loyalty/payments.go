package loyalty

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
)

type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
	// Spend is nil for events that are recorded but earn nothing.
	Spend *SpendRequest
}

type PaymentResult struct {
	Duplicate bool       `json:"duplicate"`
	Earned    EarnResult `json:"earned"`
}

// HandlePaymentEvent records a provider event once and credits the spend it
// carries. The provider event row and the credit commit together.
func (s *Service) HandlePaymentEvent(ctx context.Context, evt PaymentEvent) (PaymentResult, error) {
	var res PaymentResult
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		err := s.repo.InsertProviderEvent(ctx, tx, storage.ProviderEvent{
			Provider:        evt.Provider,
			ProviderEventID: evt.ProviderEventID,
			EventType:       evt.EventType,
			Payload:         evt.Payload,
		})
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			res.Duplicate = true
			return nil
		}
		if err != nil {
			return err
		}
		if evt.Spend == nil {
			return nil
		}
		res.Earned, err = s.EarnForSpend(ctx, *evt.Spend)
		return err
	})
	return res, err
}
