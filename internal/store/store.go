package store

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
)

type AppointmentFilter struct {
	ID         uuid.UUID
	Date       string
	Time       string
	StylistID  string
	CustomerID string
	// ActiveOnly drops cancelled appointments.
	ActiveOnly bool
}

func (f AppointmentFilter) Match(a domain.Appointment) bool {
	if f.ID != uuid.Nil && a.ID != f.ID {
		return false
	}
	if f.Date != "" && a.Date != f.Date {
		return false
	}
	if f.Time != "" && a.Time != f.Time {
		return false
	}
	if f.StylistID != "" && a.StylistID != f.StylistID {
		return false
	}
	if f.CustomerID != "" && a.CustomerID != f.CustomerID {
		return false
	}
	if f.ActiveOnly && !a.Active() {
		return false
	}
	return true
}

type BlackoutFilter struct {
	ID   uuid.UUID
	Date string
	// StylistID keeps windows scoped to this stylist or to everyone.
	StylistID string
}

func (f BlackoutFilter) Match(w domain.BlackoutWindow) bool {
	if f.ID != uuid.Nil && w.ID != f.ID {
		return false
	}
	if f.Date != "" && w.Date != f.Date {
		return false
	}
	if f.StylistID != "" && !domain.IsAllStylists(w.StylistID) && w.StylistID != f.StylistID {
		return false
	}
	return true
}

type AppointmentRepository interface {
	FindAppointments(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, error)
	// UpsertAppointment inserts or replaces by ID. It returns ErrConflict when
	// the record is active and another active appointment holds its key.
	UpsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	// InsertAppointment stores appt as a new record and never replaces one.
	// It returns ErrExists when appt.ID is already stored and ErrConflict
	// when another active appointment holds its key.
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}

type BlackoutRepository interface {
	FindBlackouts(ctx context.Context, filter BlackoutFilter) ([]domain.BlackoutWindow, error)
	UpsertBlackout(ctx context.Context, w domain.BlackoutWindow) (domain.BlackoutWindow, error)
	// DeleteBlackout is idempotent.
	DeleteBlackout(ctx context.Context, id uuid.UUID) error
	// DeleteBlackouts removes all ids in one step and reports how many existed.
	DeleteBlackouts(ctx context.Context, ids []uuid.UUID) (int, error)
}

type Repository interface {
	AppointmentRepository
	BlackoutRepository
}

// SortAppointments orders by day, then by position in the slot grid, then by
// creation. Slot labels such as "01:30 pm" do not sort lexically.
func SortAppointments(rows []domain.Appointment) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		if oi, oj := slotMinute(rows[i].Time), slotMinute(rows[j].Time); oi != oj {
			return oi < oj
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
}

func slotMinute(label string) int {
	slot, err := domain.LookupSlot(label)
	if err != nil {
		return 24 * 60
	}
	return slot.Hour*60 + slot.Minute
}
