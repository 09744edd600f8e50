// Package notify delivers appointment lifecycle events to dependents. Delivery
// is fire-and-forget: a failed notification is logged and never undoes the
// change that caused it.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"salonbook/backend/internal/domain"
)

type EventType string

const (
	EventReservationConfirmed   EventType = "appointment.confirmed"
	EventAppointmentCancelled   EventType = "appointment.cancelled"
	EventAppointmentRescheduled EventType = "appointment.rescheduled"
)

type Event struct {
	Type        EventType
	Appointment domain.Appointment
	// Previous is the key the appointment held before a reschedule.
	Previous   *domain.SlotKey
	OccurredAt time.Time
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Dispatcher runs each notification on its own goroutine, detached from the
// caller's cancellation and bounded by timeout. A nil *Dispatcher drops
// everything.
type Dispatcher struct {
	n       Notifier
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewDispatcher(n Notifier, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		n:       n,
		timeout: timeout,
		log:     log.With(slog.String("component", "notify")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) ReservationConfirmed(ctx context.Context, appt domain.Appointment) {
	d.dispatch(ctx, Event{Type: EventReservationConfirmed, Appointment: appt})
}

func (d *Dispatcher) AppointmentCancelled(ctx context.Context, appt domain.Appointment) {
	d.dispatch(ctx, Event{Type: EventAppointmentCancelled, Appointment: appt})
}

func (d *Dispatcher) AppointmentRescheduled(ctx context.Context, appt domain.Appointment, previous domain.SlotKey) {
	d.dispatch(ctx, Event{Type: EventAppointmentRescheduled, Appointment: appt, Previous: &previous})
}

// Wait blocks until in-flight notifications finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event) {
	if d == nil || d.n == nil {
		return
	}
	ev.OccurredAt = d.now()
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("notifier panicked", slog.String("event", string(ev.Type)), slog.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		if err := d.n.Notify(ctx, ev); err != nil {
			d.log.Warn(
				"notification failed",
				slog.String("event", string(ev.Type)),
				slog.String("appointment_id", ev.Appointment.ID.String()),
				slog.Any("err", err),
			)
		}
	}()
}

// Log writes events to a logger. It is the sink used when no broker is
// configured.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{log: log.With(slog.String("component", "notify.log"))}
}

func (l *Log) Notify(ctx context.Context, ev Event) error {
	args := []any{
		slog.String("event", string(ev.Type)),
		slog.String("appointment_id", ev.Appointment.ID.String()),
		slog.String("date", ev.Appointment.Date),
		slog.String("time", ev.Appointment.Time),
		slog.String("stylist_id", ev.Appointment.StylistID),
		slog.String("customer_id", ev.Appointment.CustomerID),
	}
	if ev.Previous != nil {
		args = append(args, slog.String("previous_key", ev.Previous.String()))
	}
	l.log.InfoContext(ctx, "appointment event", args...)
	return nil
}
