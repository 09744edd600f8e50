package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
)

func testAppointment() domain.Appointment {
	return domain.Appointment{
		ID:         uuid.MustParse("00000000-0000-0000-0000-000000000a01"),
		Date:       "2025-10-07",
		Time:       "09:00 am",
		StylistID:  "stylist-1",
		CustomerID: "cust-1",
		Status:     domain.StatusConfirmed,
	}
}

func TestDispatcher_DetachesFromCallerCancellation(t *testing.T) {
	got := make(chan Event, 1)
	d := NewDispatcher(NotifierFunc(func(ctx context.Context, ev Event) error {
		if err := ctx.Err(); err != nil {
			t.Errorf("notifier ctx err = %v, want nil", err)
		}
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("notifier ctx has no deadline")
		}
		got <- ev
		return nil
	}), time.Second, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.ReservationConfirmed(ctx, testAppointment())
	d.Wait()

	ev := <-got
	if ev.Type != EventReservationConfirmed {
		t.Fatalf("type = %q, want %q", ev.Type, EventReservationConfirmed)
	}
	if ev.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
}

func TestDispatcher_RescheduleCarriesPreviousKey(t *testing.T) {
	got := make(chan Event, 1)
	d := NewDispatcher(NotifierFunc(func(_ context.Context, ev Event) error {
		got <- ev
		return nil
	}), 0, nil)

	prev := domain.SlotKey{Date: "2025-10-06", Time: "03:00 pm", StylistID: "stylist-1"}
	d.AppointmentRescheduled(context.Background(), testAppointment(), prev)
	d.Wait()

	ev := <-got
	if ev.Type != EventAppointmentRescheduled {
		t.Fatalf("type = %q, want %q", ev.Type, EventAppointmentRescheduled)
	}
	if ev.Previous == nil || *ev.Previous != prev {
		t.Fatalf("previous = %v, want %v", ev.Previous, prev)
	}
}

func TestDispatcher_FailuresAreLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	d := NewDispatcher(NotifierFunc(func(context.Context, Event) error {
		return errors.New("smtp down")
	}), time.Second, log)
	d.AppointmentCancelled(context.Background(), testAppointment())
	d.Wait()

	out := buf.String()
	if !strings.Contains(out, "notification failed") || !strings.Contains(out, "smtp down") {
		t.Fatalf("log = %q, want failure entry", out)
	}
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher(NotifierFunc(func(context.Context, Event) error {
		panic("bad template")
	}), time.Second, slog.New(slog.NewTextHandler(&buf, nil)))

	d.ReservationConfirmed(context.Background(), testAppointment())
	d.Wait()

	if !strings.Contains(buf.String(), "notifier panicked") {
		t.Fatalf("log = %q, want panic entry", buf.String())
	}
}

func TestDispatcher_NilIsNoop(t *testing.T) {
	var d *Dispatcher
	d.ReservationConfirmed(context.Background(), testAppointment())
	d.Wait()

	empty := NewDispatcher(nil, 0, nil)
	empty.AppointmentCancelled(context.Background(), testAppointment())
	empty.Wait()
}

func TestLog_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))

	prev := domain.SlotKey{Date: "2025-10-06", Time: "03:00 pm", StylistID: "stylist-1"}
	if err := l.Notify(context.Background(), Event{Type: EventAppointmentRescheduled, Appointment: testAppointment(), Previous: &prev}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"appointment.rescheduled", "00000000-0000-0000-0000-000000000a01", "previous_key=", "component=notify.log"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log = %q, missing %q", out, want)
		}
	}
}
