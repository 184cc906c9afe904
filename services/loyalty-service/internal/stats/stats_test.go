package stats

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestRecalculate(t *testing.T) {
	now := ts("2026-05-01T12:00:00Z")
	history := []model.Appointment{
		{AppointmentID: "a1", Status: model.AppointmentCompleted, ScheduledAt: ts("2026-01-10T09:00:00Z"), CompletedAt: ptr(ts("2026-01-10T11:00:00Z")), AmountCents: 15_000},
		{AppointmentID: "a2", Status: model.AppointmentCompleted, ScheduledAt: ts("2026-03-02T09:00:00Z"), AmountCents: 25_000},
		{AppointmentID: "a3", Status: model.AppointmentCancelled, ScheduledAt: ts("2026-04-01T09:00:00Z"), AmountCents: 9_000},
		{AppointmentID: "a4", Status: model.AppointmentNoShow, ScheduledAt: ts("2026-04-15T09:00:00Z")},
		{AppointmentID: "a5", Status: model.AppointmentConfirmed, ScheduledAt: ts("2026-06-01T09:00:00Z"), AmountCents: 12_000},
		{AppointmentID: "a6", Status: model.AppointmentScheduled, ScheduledAt: ts("2026-05-20T09:00:00Z")},
		{AppointmentID: "a7", Status: model.AppointmentScheduled, ScheduledAt: ts("2026-04-20T09:00:00Z")},
	}

	got := Recalculate("biz", "cust", history, now)
	want := model.CustomerStats{
		BusinessID:            "biz",
		CustomerID:            "cust",
		TotalAppointments:     7,
		CompletedAppointments: 2,
		CancelledAppointments: 1,
		NoShowAppointments:    1,
		UpcomingAppointments:  2,
		LifetimeValueCents:    40_000,
		AverageTicketCents:    20_000,
		FirstVisitAt:          ptr(ts("2026-01-10T11:00:00Z")),
		LastVisitAt:           ptr(ts("2026-03-02T09:00:00Z")),
		NextAppointmentAt:     ptr(ts("2026-05-20T09:00:00Z")),
		RecalculatedAt:        now,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestRecalculateIsIdempotentAndOrderIndependent(t *testing.T) {
	now := ts("2026-05-01T12:00:00Z")
	history := []model.Appointment{
		{Status: model.AppointmentCompleted, ScheduledAt: ts("2026-02-01T09:00:00Z"), AmountCents: 1_000},
		{Status: model.AppointmentCompleted, ScheduledAt: ts("2026-01-01T09:00:00Z"), AmountCents: 2_001},
		{Status: model.AppointmentScheduled, ScheduledAt: ts("2026-07-01T09:00:00Z")},
	}
	reversed := []model.Appointment{history[2], history[1], history[0]}

	first := Recalculate("b", "c", history, now)
	second := Recalculate("b", "c", reversed, now.Add(time.Hour))

	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(model.CustomerStats{}, "RecalculatedAt")); diff != "" {
		t.Fatalf("recalculation not stable (-first +second):\n%s", diff)
	}
	if !Equal(first, second) {
		t.Fatal("Equal should ignore RecalculatedAt")
	}
	if first.AverageTicketCents != 1_500 {
		t.Fatalf("average ticket = %d, want 1500", first.AverageTicketCents)
	}
}

func TestRecalculateEmptyHistory(t *testing.T) {
	got := Recalculate("b", "c", nil, ts("2026-05-01T12:00:00Z"))
	if got.TotalAppointments != 0 || got.FirstVisitAt != nil || got.AverageTicketCents != 0 {
		t.Fatalf("unexpected stats for empty history: %+v", got)
	}
}

func TestEqualDetectsChange(t *testing.T) {
	now := ts("2026-05-01T12:00:00Z")
	a := Recalculate("b", "c", []model.Appointment{{Status: model.AppointmentCompleted, ScheduledAt: now.Add(-time.Hour), AmountCents: 100}}, now)
	b := a
	b.LifetimeValueCents++
	if Equal(a, b) {
		t.Fatal("expected stats to differ")
	}
}
