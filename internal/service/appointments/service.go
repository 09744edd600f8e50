package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/lock"
	"salonbook/backend/internal/service/reservations"
	"salonbook/backend/internal/store"
)

var tracer = otel.Tracer("salonbook/backend/internal/service/appointments")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Relocator claims a new key for an existing appointment.
type Relocator interface {
	Relocate(ctx context.Context, appt domain.Appointment, key domain.SlotKey) (domain.Appointment, error)
}

type Events interface {
	AppointmentCancelled(ctx context.Context, appt domain.Appointment)
	AppointmentRescheduled(ctx context.Context, appt domain.Appointment, previous domain.SlotKey)
}

// Service moves and cancels existing appointments. Every mutation of one
// appointment holds that appointment's lock; a reschedule then takes the
// target slot's lock inside it, never the reverse.
type Service struct {
	repo      store.AppointmentRepository
	relocator Relocator
	locker    lock.Locker
	cal       domain.Calendar
	now       func() time.Time
	events    Events
	log       *slog.Logger
}

func NewService(repo store.AppointmentRepository, relocator Relocator, locker lock.Locker, cal domain.Calendar, events Events, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:      repo,
		relocator: relocator,
		locker:    locker,
		cal:       cal,
		now:       time.Now,
		events:    events,
		log:       log.With(slog.String("component", "appointments")),
	}
}

// WithClock replaces the service's notion of now.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func lockKey(id uuid.UUID) string {
	return reservations.AppointmentLockKey(id)
}

type RescheduleInput struct {
	ID   uuid.UUID
	Date string
	Time string
	// StylistID keeps the current stylist when empty.
	StylistID string
}

// Reschedule moves an appointment to a new key. When the new key is taken it
// returns store.ErrConflict and the appointment is left as it was.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (domain.Appointment, error) {
	if in.ID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}

	ctx, span := tracer.Start(ctx, "appointments.Reschedule", trace.WithAttributes(
		attribute.String("appointment.id", in.ID.String()),
	))
	defer span.End()

	release, err := s.locker.Acquire(ctx, lockKey(in.ID))
	if err != nil {
		span.SetStatus(codes.Error, "acquire")
		return domain.Appointment{}, err
	}
	defer release()

	cur, err := s.get(ctx, in.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !cur.Active() {
		return domain.Appointment{}, validationError("appointment is cancelled")
	}

	stylist := strings.TrimSpace(in.StylistID)
	if stylist == "" {
		stylist = cur.StylistID
	}
	key, err := s.cal.NormalizeKey(in.Date, in.Time, stylist)
	if err != nil {
		return domain.Appointment{}, err
	}
	if key == cur.Key() {
		return cur, nil
	}

	moved, err := s.relocator.Relocate(ctx, cur, key)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			span.SetAttributes(attribute.Bool("reservation.conflict", true))
			s.log.Info("reschedule conflict", slog.String("appointment_id", cur.ID.String()), slog.String("slot", key.String()))
		} else {
			span.SetStatus(codes.Error, "relocate")
		}
		return domain.Appointment{}, err
	}

	s.log.Info(
		"appointment rescheduled",
		slog.String("appointment_id", moved.ID.String()),
		slog.String("from", cur.Key().String()),
		slog.String("to", moved.Key().String()),
	)
	if s.events != nil {
		s.events.AppointmentRescheduled(ctx, moved, cur.Key())
	}
	return moved, nil
}

// Cancel frees the appointment's key. Cancelling a cancelled appointment
// returns it unchanged.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}

	ctx, span := tracer.Start(ctx, "appointments.Cancel", trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
	))
	defer span.End()

	release, err := s.locker.Acquire(ctx, lockKey(id))
	if err != nil {
		span.SetStatus(codes.Error, "acquire")
		return domain.Appointment{}, err
	}
	defer release()

	cur, err := s.get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !cur.Active() {
		return cur, nil
	}

	at := s.now().UTC()
	cur.Status = domain.StatusCancelled
	cur.CancelReason = strings.TrimSpace(reason)
	cur.CancelledAt = &at

	saved, err := s.repo.UpsertAppointment(context.WithoutCancel(ctx), cur)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert")
		s.log.Error("cancel failed", slog.String("appointment_id", id.String()), slog.Any("err", err))
		return domain.Appointment{}, store.Failure("upsert appointment", err)
	}

	s.log.Info("appointment cancelled", slog.String("appointment_id", id.String()), slog.String("slot", saved.Key().String()))
	if s.events != nil {
		s.events.AppointmentCancelled(ctx, saved)
	}
	return saved, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.get(ctx, id)
}

type ListInput struct {
	CustomerID       string
	Date             string
	StylistID        string
	IncludeCancelled bool
}

func (s *Service) List(ctx context.Context, in ListInput) ([]domain.Appointment, error) {
	filter := store.AppointmentFilter{
		CustomerID: strings.TrimSpace(in.CustomerID),
		StylistID:  strings.TrimSpace(in.StylistID),
		ActiveOnly: !in.IncludeCancelled,
	}
	if strings.TrimSpace(in.Date) != "" {
		date, err := s.cal.NormalizeDate(in.Date)
		if err != nil {
			return nil, err
		}
		filter.Date = date
	}
	if filter.CustomerID == "" && filter.Date == "" && filter.StylistID == "" {
		return nil, validationError("customer_id, date or stylist_id is required")
	}

	out, err := s.repo.FindAppointments(ctx, filter)
	if err != nil {
		return nil, store.Failure("find appointments", err)
	}
	return out, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	got, err := s.repo.FindAppointments(ctx, store.AppointmentFilter{ID: id})
	if err != nil {
		return domain.Appointment{}, store.Failure("find appointments", err)
	}
	if len(got) == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return got[0], nil
}
