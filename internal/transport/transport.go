// Package transport holds what the gRPC and HTTP surfaces share: the
// service contracts they call, request payloads and their validation,
// response views, and the mapping from service errors to client outcomes.
package transport

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/service/appointments"
	"salonbook/backend/internal/service/availability"
	"salonbook/backend/internal/service/blackouts"
	"salonbook/backend/internal/service/reservations"
	"salonbook/backend/internal/store"
)

type AvailabilityService interface {
	IsAvailable(ctx context.Context, date, clock, stylistID string) (bool, error)
	Availability(ctx context.Context, date, stylistID string) (availability.Day, error)
	DescribeSlot(ctx context.Context, date, clock string) ([]availability.Descriptor, error)
}

type ReservationService interface {
	Reserve(ctx context.Context, in reservations.ReserveInput) (domain.Appointment, error)
}

type AppointmentService interface {
	Reschedule(ctx context.Context, in appointments.RescheduleInput) (domain.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, in appointments.ListInput) ([]domain.Appointment, error)
}

type BlackoutService interface {
	Create(ctx context.Context, in blackouts.CreateInput) (domain.BlackoutWindow, error)
	ListActive(ctx context.Context, asOf time.Time, filter store.BlackoutFilter) (iter.Seq[domain.BlackoutWindow], error)
	Delete(ctx context.Context, id uuid.UUID) error
	Prune(ctx context.Context, asOf time.Time) (int, error)
}

// Services is everything a transport serves. Now stamps blackout reads and
// prunes; nil means time.Now.
type Services struct {
	Availability AvailabilityService
	Reservations ReservationService
	Appointments AppointmentService
	Blackouts    BlackoutService
	Now          func() time.Time
}

func (s Services) AsOf() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
