package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

func appt(date, clock, stylist, customer string) domain.Appointment {
	return domain.Appointment{
		Date:        date,
		Time:        clock,
		StylistID:   stylist,
		CustomerID:  customer,
		ServiceRefs: []string{"cut", "colour"},
		Status:      domain.StatusConfirmed,
	}
}

func TestUpsertAppointment_ConflictOnActiveKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.UpsertAppointment(ctx, appt("2025-10-07", "09:00 am", "stylist-1", "a"))
	if err != nil {
		t.Fatalf("UpsertAppointment error: %v", err)
	}
	if first.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	if first.CreatedAt.IsZero() || first.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps, got created=%v updated=%v", first.CreatedAt, first.UpdatedAt)
	}

	_, err = s.UpsertAppointment(ctx, appt("2025-10-07", "09:00 am", "stylist-1", "b"))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want %v", err, store.ErrConflict)
	}

	// Same record may be written again under its own key.
	first.Notes = "fringe only"
	if _, err := s.UpsertAppointment(ctx, first); err != nil {
		t.Fatalf("re-upsert error: %v", err)
	}
}

func TestInsertAppointment_NeverReplaces(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.InsertAppointment(ctx, appt("2025-10-07", "09:00 am", "stylist-1", "a"))
	if err != nil {
		t.Fatalf("InsertAppointment error: %v", err)
	}

	again := appt("2025-10-07", "10:30 am", "stylist-1", "a")
	again.ID = first.ID
	if _, err := s.InsertAppointment(ctx, again); !errors.Is(err, store.ErrExists) {
		t.Fatalf("err = %v, want %v", err, store.ErrExists)
	}

	got, err := s.FindAppointments(ctx, store.AppointmentFilter{})
	if err != nil {
		t.Fatalf("FindAppointments error: %v", err)
	}
	if len(got) != 1 || got[0].Time != "09:00 am" {
		t.Fatalf("stored = %+v, want the first record only", got)
	}

	if _, err := s.InsertAppointment(ctx, appt("2025-10-07", "09:00 am", "stylist-1", "b")); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want %v", err, store.ErrConflict)
	}
}

func TestUpsertAppointment_CancelledDoesNotHoldKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, err := s.UpsertAppointment(ctx, appt("2025-10-07", "09:00 am", "stylist-1", "a"))
	if err != nil {
		t.Fatalf("UpsertAppointment error: %v", err)
	}
	created := a.CreatedAt
	a.Status = domain.StatusCancelled
	if _, err := s.UpsertAppointment(ctx, a); err != nil {
		t.Fatalf("cancel upsert error: %v", err)
	}

	if _, err := s.UpsertAppointment(ctx, appt("2025-10-07", "09:00 am", "stylist-1", "b")); err != nil {
		t.Fatalf("rebook after cancel error: %v", err)
	}

	got, err := s.FindAppointments(ctx, store.AppointmentFilter{ID: a.ID})
	if err != nil {
		t.Fatalf("FindAppointments error: %v", err)
	}
	if len(got) != 1 || got[0].Status != domain.StatusCancelled {
		t.Fatalf("got %+v, want one cancelled appointment", got)
	}
	if !got[0].CreatedAt.Equal(created) {
		t.Fatalf("created_at = %v, want %v", got[0].CreatedAt, created)
	}

	active, err := s.FindAppointments(ctx, store.AppointmentFilter{Date: "2025-10-07", ActiveOnly: true})
	if err != nil {
		t.Fatalf("FindAppointments error: %v", err)
	}
	if len(active) != 1 || active[0].CustomerID != "b" {
		t.Fatalf("active = %+v, want customer b only", active)
	}
}

func TestFindAppointments_OrderedBySlotAndCloned(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, clock := range []string{"04:30 pm", "09:00 am", "12:00 pm"} {
		if _, err := s.UpsertAppointment(ctx, appt("2025-10-07", clock, "stylist-1", "c")); err != nil {
			t.Fatalf("UpsertAppointment error: %v", err)
		}
	}

	got, err := s.FindAppointments(ctx, store.AppointmentFilter{CustomerID: "c"})
	if err != nil {
		t.Fatalf("FindAppointments error: %v", err)
	}
	want := []string{"09:00 am", "12:00 pm", "04:30 pm"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Time != want[i] {
			t.Fatalf("got[%d].Time = %q, want %q", i, got[i].Time, want[i])
		}
	}

	got[0].ServiceRefs[0] = "mutated"
	again, _ := s.FindAppointments(ctx, store.AppointmentFilter{ID: got[0].ID})
	if again[0].ServiceRefs[0] != "cut" {
		t.Fatalf("stored service refs changed through returned copy")
	}
}

func TestBlackouts_FilterAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	all, err := s.UpsertBlackout(ctx, domain.BlackoutWindow{Date: "2025-10-07", StylistID: domain.StylistAll, Kind: domain.BlackoutUnavailable})
	if err != nil {
		t.Fatalf("UpsertBlackout error: %v", err)
	}
	one, err := s.UpsertBlackout(ctx, domain.BlackoutWindow{Date: "2025-10-07", Time: "09:00 am", StylistID: "stylist-1", Kind: domain.BlackoutBooked})
	if err != nil {
		t.Fatalf("UpsertBlackout error: %v", err)
	}
	other, err := s.UpsertBlackout(ctx, domain.BlackoutWindow{Date: "2025-10-08", StylistID: "stylist-2", Kind: domain.BlackoutUnavailable})
	if err != nil {
		t.Fatalf("UpsertBlackout error: %v", err)
	}

	got, err := s.FindBlackouts(ctx, store.BlackoutFilter{StylistID: "stylist-1"})
	if err != nil {
		t.Fatalf("FindBlackouts error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("stylist-1 windows = %d, want 2", len(got))
	}

	n, err := s.DeleteBlackouts(ctx, []uuid.UUID{all.ID, one.ID, uuid.New()})
	if err != nil {
		t.Fatalf("DeleteBlackouts error: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}
	if err := s.DeleteBlackout(ctx, all.ID); err != nil {
		t.Fatalf("second DeleteBlackout error: %v", err)
	}

	left, _ := s.FindBlackouts(ctx, store.BlackoutFilter{})
	if len(left) != 1 || left[0].ID != other.ID {
		t.Fatalf("left = %+v, want only %s", left, other.ID)
	}
}

func TestReadersKeepTheirSnapshot(t *testing.T) {
	s := New()
	ctx := context.Background()
	w, err := s.UpsertBlackout(ctx, domain.BlackoutWindow{Date: "2025-10-07", StylistID: domain.StylistAll, Kind: domain.BlackoutUnavailable})
	if err != nil {
		t.Fatalf("UpsertBlackout error: %v", err)
	}

	before := s.snap.Load()
	if _, err := s.DeleteBlackouts(ctx, []uuid.UUID{w.ID}); err != nil {
		t.Fatalf("DeleteBlackouts error: %v", err)
	}
	if _, ok := before.blackouts[w.ID]; !ok {
		t.Fatalf("earlier snapshot was mutated in place")
	}
	if _, ok := s.snap.Load().blackouts[w.ID]; ok {
		t.Fatalf("current snapshot still has deleted window")
	}
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.FindAppointments(ctx, store.AppointmentFilter{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want %v", err, context.Canceled)
	}
	if _, err := s.UpsertAppointment(ctx, appt("2025-10-07", "09:00 am", "s", "c")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want %v", err, context.Canceled)
	}
}

func TestUpsertAppointment_UsesClock(t *testing.T) {
	s := New()
	fixed := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	a, err := s.UpsertAppointment(context.Background(), appt("2025-10-07", "09:00 am", "s", "c"))
	if err != nil {
		t.Fatalf("UpsertAppointment error: %v", err)
	}
	if !a.CreatedAt.Equal(fixed) || !a.UpdatedAt.Equal(fixed) {
		t.Fatalf("timestamps = %v/%v, want %v", a.CreatedAt, a.UpdatedAt, fixed)
	}
}
