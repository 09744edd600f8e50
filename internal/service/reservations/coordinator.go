// Package reservations serializes every write that claims a slot key. Two
// callers with the same key are ordered by who acquires the key first;
// callers with different keys never wait on each other.
package reservations

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/lock"
	"salonbook/backend/internal/store"
)

var tracer = otel.Tracer("salonbook/backend/internal/service/reservations")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Checker is the authoritative availability test run inside the critical
// section.
type Checker interface {
	KeyFree(ctx context.Context, key domain.SlotKey, asOf time.Time) (bool, error)
}

type Events interface {
	ReservationConfirmed(ctx context.Context, appt domain.Appointment)
}

type Coordinator struct {
	repo    store.AppointmentRepository
	checker Checker
	locker  lock.Locker
	cal     domain.Calendar
	now     func() time.Time
	status  domain.AppointmentStatus
	events  Events
	log     *slog.Logger
}

type Option func(*Coordinator)

func WithCalendar(cal domain.Calendar) Option {
	return func(c *Coordinator) { c.cal = cal }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithInitialStatus sets the status new reservations are stored with:
// confirmed, or pending when payment is captured later.
func WithInitialStatus(s domain.AppointmentStatus) Option {
	return func(c *Coordinator) {
		if s == domain.StatusConfirmed || s == domain.StatusPending {
			c.status = s
		}
	}
}

func WithEvents(e Events) Option {
	return func(c *Coordinator) { c.events = e }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

func NewCoordinator(repo store.AppointmentRepository, checker Checker, locker lock.Locker, opts ...Option) *Coordinator {
	c := &Coordinator{
		repo:    repo,
		checker: checker,
		locker:  locker,
		cal:     domain.NewCalendar(time.UTC),
		now:     time.Now,
		status:  domain.StatusConfirmed,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(slog.String("component", "reservations"))
	return c
}

func (c *Coordinator) Calendar() domain.Calendar {
	return c.cal
}

type ReserveInput struct {
	Date          string
	Time          string
	StylistID     string
	CustomerID    string
	CustomerName  string
	ContactNumber string
	// ServiceRefs keeps selection order.
	ServiceRefs          []string
	TotalPrice           int64
	TotalDurationMinutes int
	Notes                string
	IdempotencyKey       string
}

// LockKey is the lock name guarding key.
func LockKey(key domain.SlotKey) string {
	return "slot:" + key.String()
}

// AppointmentLockKey is the lock name guarding one appointment record. It is
// always taken before any slot lock.
func AppointmentLockKey(id uuid.UUID) string {
	return "appointment:" + id.String()
}

// replay answers a repeated idempotency key. Only a request identical to the
// one that created prior gets prior back.
func (c *Coordinator) replay(span trace.Span, prior, draft domain.Appointment) (domain.Appointment, error) {
	if !sameDraft(prior, draft) {
		span.SetAttributes(attribute.Bool("reservation.idempotency_conflict", true))
		c.log.Info("idempotency key reused with a different request", slog.String("appointment_id", prior.ID.String()))
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	span.SetAttributes(attribute.Bool("reservation.replayed", true))
	return prior, nil
}

func sameDraft(prior, draft domain.Appointment) bool {
	return prior.Key() == draft.Key() &&
		prior.CustomerID == draft.CustomerID &&
		prior.CustomerName == draft.CustomerName &&
		prior.ContactNumber == draft.ContactNumber &&
		slices.Equal(prior.ServiceRefs, draft.ServiceRefs) &&
		prior.TotalPrice == draft.TotalPrice &&
		prior.TotalDuration == draft.TotalDuration &&
		prior.Notes == draft.Notes
}

// Reserve claims the key named by in for a new appointment. It returns
// store.ErrConflict when the key is already held, by an appointment or by a
// live blackout window.
func (c *Coordinator) Reserve(ctx context.Context, in ReserveInput) (domain.Appointment, error) {
	key, err := c.cal.NormalizeKey(in.Date, in.Time, in.StylistID)
	if err != nil {
		return domain.Appointment{}, err
	}
	customer := strings.TrimSpace(in.CustomerID)
	if customer == "" {
		return domain.Appointment{}, validationError("customer_id is required")
	}
	if in.TotalPrice < 0 {
		return domain.Appointment{}, validationError("total_price cannot be negative")
	}
	if in.TotalDurationMinutes < 0 {
		return domain.Appointment{}, validationError("total_duration_minutes cannot be negative")
	}
	if err := c.rejectPast(key); err != nil {
		return domain.Appointment{}, err
	}

	appt := domain.Appointment{
		Date:          key.Date,
		Time:          key.Time,
		StylistID:     key.StylistID,
		CustomerID:    customer,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		ContactNumber: strings.TrimSpace(in.ContactNumber),
		ServiceRefs:   slices.Clone(in.ServiceRefs),
		TotalPrice:    in.TotalPrice,
		TotalDuration: in.TotalDurationMinutes,
		Notes:         in.Notes,
		Status:        c.status,
	}

	idemKey := strings.TrimSpace(in.IdempotencyKey)
	if idemKey != "" {
		if len(idemKey) > 256 {
			return domain.Appointment{}, validationError("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("salon:reserve:"+customer+":"+idemKey))
	}

	ctx, span := tracer.Start(ctx, "reservations.Reserve", trace.WithAttributes(
		attribute.String("slot.date", key.Date),
		attribute.String("slot.time", key.Time),
		attribute.String("slot.stylist_id", key.StylistID),
	))
	defer span.End()

	// Replays of one idempotency key may name different slots, so they are
	// serialized on the appointment id before any slot lock is taken.
	if appt.ID != uuid.Nil {
		releaseID, err := c.locker.Acquire(ctx, AppointmentLockKey(appt.ID))
		if err != nil {
			span.SetStatus(codes.Error, "acquire")
			return domain.Appointment{}, err
		}
		defer releaseID()
	}

	release, err := c.locker.Acquire(ctx, LockKey(key))
	if err != nil {
		span.SetStatus(codes.Error, "acquire")
		return domain.Appointment{}, err
	}
	defer release()

	if appt.ID != uuid.Nil {
		prior, found, err := c.find(ctx, appt.ID)
		if err != nil {
			span.SetStatus(codes.Error, "find")
			return domain.Appointment{}, err
		}
		if found {
			return c.replay(span, prior, appt)
		}
	}

	saved, err := c.commit(ctx, key, appt, c.repo.InsertAppointment)
	if errors.Is(err, store.ErrExists) {
		// Another process stored this id between find and insert.
		prior, found, ferr := c.find(ctx, appt.ID)
		if ferr != nil {
			return domain.Appointment{}, ferr
		}
		if !found {
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		return c.replay(span, prior, appt)
	}
	if err != nil {
		c.fail(span, "reserve", key, err)
		return domain.Appointment{}, err
	}

	span.SetAttributes(attribute.String("appointment.id", saved.ID.String()))
	c.log.Info(
		"reservation committed",
		slog.String("appointment_id", saved.ID.String()),
		slog.String("slot", key.String()),
		slog.String("customer_id", saved.CustomerID),
	)
	if c.events != nil {
		c.events.ReservationConfirmed(ctx, saved)
	}
	return saved, nil
}

// Relocate moves appt onto key in one write. The caller must own appt
// against concurrent modification; Relocate only guards the target key.
func (c *Coordinator) Relocate(ctx context.Context, appt domain.Appointment, key domain.SlotKey) (domain.Appointment, error) {
	if err := c.rejectPast(key); err != nil {
		return domain.Appointment{}, err
	}

	ctx, span := tracer.Start(ctx, "reservations.Relocate", trace.WithAttributes(
		attribute.String("appointment.id", appt.ID.String()),
		attribute.String("slot.from", appt.Key().String()),
		attribute.String("slot.to", key.String()),
	))
	defer span.End()

	release, err := c.locker.Acquire(ctx, LockKey(key))
	if err != nil {
		span.SetStatus(codes.Error, "acquire")
		return domain.Appointment{}, err
	}
	defer release()

	moved := appt
	moved.Date = key.Date
	moved.Time = key.Time
	moved.StylistID = key.StylistID

	saved, err := c.commit(ctx, key, moved, c.repo.UpsertAppointment)
	if err != nil {
		c.fail(span, "relocate", key, err)
		return domain.Appointment{}, err
	}
	return saved, nil
}

type writeFunc func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

// commit runs the authoritative check and then write. The caller holds the
// lock for key.
func (c *Coordinator) commit(ctx context.Context, key domain.SlotKey, appt domain.Appointment, write writeFunc) (domain.Appointment, error) {
	free, err := c.checker.KeyFree(ctx, key, c.now())
	if err != nil {
		return domain.Appointment{}, store.Failure("check availability", err)
	}
	if !free {
		return domain.Appointment{}, store.ErrConflict
	}

	// Once started the write runs to completion even if the caller goes away.
	saved, err := write(context.WithoutCancel(ctx), appt)
	if err != nil {
		return domain.Appointment{}, store.Failure("write appointment", err)
	}
	return saved, nil
}

func (c *Coordinator) find(ctx context.Context, id uuid.UUID) (domain.Appointment, bool, error) {
	got, err := c.repo.FindAppointments(ctx, store.AppointmentFilter{ID: id})
	if err != nil {
		return domain.Appointment{}, false, store.Failure("find appointments", err)
	}
	if len(got) == 0 {
		return domain.Appointment{}, false, nil
	}
	return got[0], true, nil
}

func (c *Coordinator) rejectPast(key domain.SlotKey) error {
	start, err := c.cal.At(key.Date, key.Time)
	if err != nil {
		return err
	}
	if start.Before(c.now()) {
		return validationError("slot is in the past")
	}
	return nil
}

func (c *Coordinator) fail(span trace.Span, op string, key domain.SlotKey, err error) {
	switch {
	case errors.Is(err, store.ErrConflict):
		span.SetAttributes(attribute.Bool("reservation.conflict", true))
		c.log.Info(op+" conflict", slog.String("slot", key.String()))
	case errors.Is(err, store.ErrStorage):
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage")
		c.log.Error(op+" failed", slog.String("slot", key.String()), slog.Any("err", err))
	default:
		span.SetStatus(codes.Error, op)
	}
}
