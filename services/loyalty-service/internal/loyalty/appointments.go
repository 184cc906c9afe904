package loyalty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/libs/kafkax"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/outbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/rules"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/stats"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type AppointmentEvent struct {
	BusinessID    string                  `json:"business_id"`
	AppointmentID string                  `json:"appointment_id"`
	CustomerID    string                  `json:"customer_id"`
	Status        model.AppointmentStatus `json:"status"`
	ScheduledAt   time.Time               `json:"scheduled_at"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
	AmountCents   int64                   `json:"amount_cents"`
}

type AppointmentResult struct {
	Stats          model.CustomerStats `json:"stats"`
	PointsEarned   int64               `json:"points_earned"`
	PointsReversed int64               `json:"points_reversed"`
	Achievements   []string            `json:"achievements,omitempty"`
	Account        model.Account       `json:"account"`
	// Stale is set when the event was older than the stored outcome and ignored.
	Stale bool `json:"stale,omitempty"`
}

// RecordAppointment updates the appointment projection and everything derived
// from it: customer stats, spend points on completion (reversed if the
// appointment later leaves completed) and achievements.
func (s *Service) RecordAppointment(ctx context.Context, evt AppointmentEvent) (AppointmentResult, error) {
	evt.BusinessID = strings.TrimSpace(evt.BusinessID)
	evt.AppointmentID = strings.TrimSpace(evt.AppointmentID)
	evt.CustomerID = strings.TrimSpace(evt.CustomerID)
	if evt.BusinessID == "" || evt.AppointmentID == "" {
		return AppointmentResult{}, fmt.Errorf("%w: business_id and appointment_id are required", ErrInvalidArgument)
	}
	if !evt.Status.Valid() {
		return AppointmentResult{}, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, evt.Status)
	}
	if evt.AmountCents < 0 {
		return AppointmentResult{}, ErrInvalidAmount
	}

	var res AppointmentResult
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		prev, found, err := s.repo.GetAppointmentForUpdate(ctx, tx, evt.BusinessID, evt.AppointmentID)
		if err != nil {
			return err
		}
		// Booking topics are not ordered against each other, so a booked or
		// confirmed event can arrive after the outcome.
		if found && prev.Status.Settled() && !evt.Status.Settled() {
			s.logger.Info("stale appointment event ignored",
				"business_id", prev.BusinessID,
				"appointment_id", prev.AppointmentID,
				"stored_status", prev.Status,
				"event_status", evt.Status,
			)
			res, err = s.currentAppointmentResult(ctx, tx, prev.BusinessID, prev.CustomerID)
			res.Stale = true
			return err
		}
		appt := model.Appointment{
			BusinessID:    evt.BusinessID,
			AppointmentID: evt.AppointmentID,
			CustomerID:    evt.CustomerID,
			Status:        evt.Status,
			ScheduledAt:   evt.ScheduledAt.UTC(),
			CompletedAt:   evt.CompletedAt,
			AmountCents:   evt.AmountCents,
		}
		// Partial updates, e.g. a cancellation event, keep the known fields.
		if found {
			if appt.CustomerID == "" {
				appt.CustomerID = prev.CustomerID
			}
			if appt.ScheduledAt.IsZero() {
				appt.ScheduledAt = prev.ScheduledAt
			}
			if appt.AmountCents == 0 {
				appt.AmountCents = prev.AmountCents
			}
			if appt.CompletedAt == nil && appt.Status == model.AppointmentCompleted {
				appt.CompletedAt = prev.CompletedAt
			}
		}
		if appt.CustomerID == "" {
			return fmt.Errorf("%w: customer_id is required", ErrInvalidArgument)
		}
		if appt.ScheduledAt.IsZero() {
			return fmt.Errorf("%w: scheduled_at is required", ErrInvalidArgument)
		}
		if appt.Status == model.AppointmentCompleted && appt.CompletedAt == nil {
			now := s.now()
			appt.CompletedAt = &now
		}
		if appt.Status != model.AppointmentCompleted {
			appt.CompletedAt = nil
		}
		if err := s.repo.UpsertAppointment(ctx, tx, appt); err != nil {
			return err
		}

		if found && prev.CustomerID != appt.CustomerID {
			if _, err := s.recalculate(ctx, tx, appt.BusinessID, prev.CustomerID); err != nil {
				return err
			}
		}
		st, err := s.recalculate(ctx, tx, appt.BusinessID, appt.CustomerID)
		if err != nil {
			return err
		}
		res.Stats = st

		settings, err := s.repo.GetSettings(ctx, tx, appt.BusinessID)
		if err != nil {
			return err
		}
		acc, err := s.repo.LockAccount(ctx, tx, appt.BusinessID, appt.CustomerID)
		if err != nil {
			return err
		}

		wasCompleted := found && prev.Status == model.AppointmentCompleted
		isCompleted := appt.Status == model.AppointmentCompleted
		if isCompleted != wasCompleted {
			cycle, err := s.completionCycle(ctx, tx, acc, appt.AppointmentID)
			if err != nil {
				return err
			}
			if isCompleted {
				earned, err := s.earnForSpendLocked(ctx, tx, settings, &acc, SpendRequest{
					BusinessID:  appt.BusinessID,
					CustomerID:  appt.CustomerID,
					AmountCents: appt.AmountCents,
					Source:      model.SourceAppointment,
					SourceID:    completionKey(appt.AppointmentID, cycle),
					Description: "completed appointment " + appt.AppointmentID,
				})
				if err != nil {
					return err
				}
				res.PointsEarned = earned.Points
			} else {
				reversed, err := s.reverseAppointment(ctx, tx, settings, &acc, appt, cycle)
				if err != nil {
					return err
				}
				res.PointsReversed = reversed
			}
		}

		if settings.Enabled {
			unlocked, err := s.unlockAchievements(ctx, tx, settings, &acc, st)
			if err != nil {
				return err
			}
			res.Achievements = unlocked
		}
		res.Account = acc
		return nil
	})
	return res, err
}

// completionKey is the source id of the earn and reversal for the n-th
// completion of an appointment. The first completion uses the bare id.
func completionKey(appointmentID string, n int) string {
	if n == 0 {
		return appointmentID
	}
	return fmt.Sprintf("%s#%d", appointmentID, n+1)
}

// completionCycle counts the reversals already posted for an appointment,
// which is the index of its current completion.
func (s *Service) completionCycle(ctx context.Context, tx pgx.Tx, acc model.Account, appointmentID string) (int, error) {
	for n := 0; ; n++ {
		_, found, err := s.repo.FindTransactionBySource(ctx, tx, acc.BusinessID, acc.CustomerID, model.TxReversal, model.SourceAppointmentReversal, completionKey(appointmentID, n))
		if err != nil {
			return 0, err
		}
		if !found {
			return n, nil
		}
	}
}

// reverseAppointment takes back the points the current completion earned,
// capped at the balance. When nothing can be taken back no reversal is
// written and a later completion earns nothing new.
func (s *Service) reverseAppointment(ctx context.Context, tx pgx.Tx, settings model.Settings, acc *model.Account, appt model.Appointment, cycle int) (int64, error) {
	key := completionKey(appt.AppointmentID, cycle)
	earned, found, err := s.repo.FindTransactionBySource(ctx, tx, acc.BusinessID, acc.CustomerID, model.TxEarn, model.SourceAppointment, key)
	if err != nil || !found {
		return 0, err
	}
	amt := min(earned.Amount, acc.Balance)
	if amt <= 0 {
		return 0, nil
	}
	if _, err := s.post(ctx, tx, settings, acc, entry{
		Type:        model.TxReversal,
		Amount:      -amt,
		Source:      model.SourceAppointmentReversal,
		SourceID:    key,
		Description: fmt.Sprintf("appointment %s is now %s", appt.AppointmentID, appt.Status),
	}); err != nil {
		return 0, err
	}
	return amt, nil
}

// currentAppointmentResult reports stored stats and balance without changing them.
func (s *Service) currentAppointmentResult(ctx context.Context, tx pgx.Tx, businessID, customerID string) (AppointmentResult, error) {
	st, _, err := s.repo.GetStats(ctx, tx, businessID, customerID)
	if err != nil {
		return AppointmentResult{}, err
	}
	acc, err := s.repo.GetAccount(ctx, tx, businessID, customerID)
	if errors.Is(err, storage.ErrNotFound) {
		acc, err = model.Account{BusinessID: businessID, CustomerID: customerID, Tier: model.TierBronze}, nil
	}
	if err != nil {
		return AppointmentResult{}, err
	}
	return AppointmentResult{Stats: st, Account: acc}, nil
}

func (s *Service) unlockAchievements(ctx context.Context, tx pgx.Tx, settings model.Settings, acc *model.Account, st model.CustomerStats) ([]string, error) {
	unlocked, err := s.repo.UnlockedAchievements(ctx, tx, acc.BusinessID, acc.CustomerID)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, a := range rules.EvaluateAchievements(st, unlocked) {
		ok, err := s.repo.UnlockAchievement(ctx, tx, acc.BusinessID, acc.CustomerID, a.Key, a.Points)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		t, err := s.post(ctx, tx, settings, acc, entry{
			Type:        model.TxAchievement,
			Amount:      a.Points,
			Source:      model.SourceAchievement,
			SourceID:    a.Key,
			Description: a.Name,
		})
		if err != nil {
			return nil, err
		}
		if err := s.emit(ctx, tx, acc.BusinessID, accountAggregate(acc.BusinessID, acc.CustomerID), outbox.TypeAchievementUnlocked, map[string]any{
			"customer_id":    acc.CustomerID,
			"achievement":    a.Key,
			"points":         a.Points,
			"transaction_id": t.ID,
		}); err != nil {
			return nil, err
		}
		keys = append(keys, a.Key)
	}
	return keys, nil
}

// recalculate rebuilds one customer's stats from the stored history.
func (s *Service) recalculate(ctx context.Context, tx pgx.Tx, businessID, customerID string) (model.CustomerStats, error) {
	history, err := s.repo.CustomerAppointments(ctx, tx, businessID, customerID)
	if err != nil {
		return model.CustomerStats{}, err
	}
	st := stats.Recalculate(businessID, customerID, history, s.now())
	if err := s.repo.UpsertStats(ctx, tx, st); err != nil {
		return model.CustomerStats{}, err
	}
	return st, nil
}

// RecalculateStats rebuilds one customer's stats.
func (s *Service) RecalculateStats(ctx context.Context, businessID, customerID string) (model.CustomerStats, error) {
	if err := validCustomer(businessID, customerID); err != nil {
		return model.CustomerStats{}, err
	}
	var st model.CustomerStats
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		st, err = s.recalculate(ctx, tx, businessID, customerID)
		return err
	})
	return st, err
}

type RecalcSummary struct {
	Customers int `json:"customers"`
	Changed   int `json:"changed"`
}

// RecalculateAll rebuilds stats for every customer with history. Running it
// twice in a row reports no changes the second time.
func (s *Service) RecalculateAll(ctx context.Context, businessID string) (RecalcSummary, error) {
	if businessID == "" {
		return RecalcSummary{}, fmt.Errorf("%w: business_id is required", ErrInvalidArgument)
	}
	var sum RecalcSummary
	after := ""
	for {
		ids, err := s.repo.ListCustomers(ctx, businessID, after, customerPageSize)
		if err != nil {
			return sum, err
		}
		for _, id := range ids {
			changed := false
			err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
				before, found, err := s.repo.GetStats(ctx, tx, businessID, id)
				if err != nil {
					return err
				}
				st, err := s.recalculate(ctx, tx, businessID, id)
				if err != nil {
					return err
				}
				changed = !found || !stats.Equal(before, st)
				return nil
			})
			if err != nil {
				return sum, fmt.Errorf("recalculate %s: %w", id, err)
			}
			sum.Customers++
			if changed {
				sum.Changed++
			}
		}
		if len(ids) < customerPageSize {
			break
		}
		after = ids[len(ids)-1]
	}
	s.logger.Info("customer stats recalculated", "business_id", businessID, "customers", sum.Customers, "changed", sum.Changed)
	return sum, nil
}

func (s *Service) GetStats(ctx context.Context, businessID, customerID string) (model.CustomerStats, error) {
	if err := validCustomer(businessID, customerID); err != nil {
		return model.CustomerStats{}, err
	}
	st, _, err := s.repo.GetStats(ctx, s.repo.Reader(), businessID, customerID)
	return st, err
}

// bookingPayload is the appointment event published by the booking service.
type bookingPayload struct {
	AppointmentID string     `json:"appointment_id"`
	BusinessID    string     `json:"business_id"`
	CustomerID    string     `json:"customer_id"`
	CustomerEmail string     `json:"customer_email"`
	CustomerPhone string     `json:"customer_phone"`
	Status        string     `json:"status"`
	StartTime     time.Time  `json:"start_time"`
	CompletedAt   *time.Time `json:"completed_at"`
	AmountCents   int64      `json:"amount_cents"`
	PriceCents    int64      `json:"price_cents"`
}

// AppointmentEventFromMessage maps a booking topic message onto an AppointmentEvent.
// The customer falls back to the normalized email or phone when the producer
// carries no customer id.
func AppointmentEventFromMessage(topic string, value []byte) (AppointmentEvent, error) {
	var p bookingPayload
	if err := json.Unmarshal(value, &p); err != nil {
		return AppointmentEvent{}, fmt.Errorf("%w: decode %s: %v", ErrInvalidArgument, topic, err)
	}
	evt := AppointmentEvent{
		BusinessID:    p.BusinessID,
		AppointmentID: p.AppointmentID,
		CustomerID:    p.CustomerID,
		ScheduledAt:   p.StartTime,
		CompletedAt:   p.CompletedAt,
		AmountCents:   p.AmountCents,
	}
	if evt.AmountCents == 0 {
		evt.AmountCents = p.PriceCents
	}
	if evt.CustomerID == "" {
		switch {
		case strings.TrimSpace(p.CustomerEmail) != "":
			evt.CustomerID = strings.ToLower(strings.TrimSpace(p.CustomerEmail))
		case strings.TrimSpace(p.CustomerPhone) != "":
			evt.CustomerID = strings.TrimSpace(p.CustomerPhone)
		}
	}

	switch {
	case strings.Contains(topic, ".booked."):
		evt.Status = model.AppointmentScheduled
	case strings.Contains(topic, ".cancelled."):
		evt.Status = model.AppointmentCancelled
	case strings.Contains(topic, ".completed."):
		evt.Status = model.AppointmentCompleted
	default:
		evt.Status = model.AppointmentStatus(p.Status)
	}
	if evt.Status == "booked" {
		evt.Status = model.AppointmentScheduled
	}
	return evt, nil
}

// HandleAppointmentMessage is the kafka consumer handler. The inbox row and
// the appointment update commit in the same transaction.
func (s *Service) HandleAppointmentMessage(ctx context.Context, meta kafkax.EventMeta, msg kafka.Message) error {
	evt, err := AppointmentEventFromMessage(msg.Topic, msg.Value)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		fresh, err := s.inbox.Record(ctx, tx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !fresh {
			s.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
		_, err = s.RecordAppointment(ctx, evt)
		return err
	})
}
