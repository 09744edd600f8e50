// Package availability answers whether a slot can be booked. It reads
// appointments and blackout windows and never writes either.
package availability

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

type Source interface {
	FindAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error)
	FindBlackouts(ctx context.Context, filter store.BlackoutFilter) ([]domain.BlackoutWindow, error)
}

type Resolver struct {
	src Source
	cal domain.Calendar
	now func() time.Time
}

func NewResolver(src Source, cal domain.Calendar) *Resolver {
	return &Resolver{src: src, cal: cal, now: time.Now}
}

// WithClock replaces the resolver's notion of now.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

func (r *Resolver) Calendar() domain.Calendar {
	return r.cal
}

// IsAvailable normalizes the inputs and reports whether the key is free.
func (r *Resolver) IsAvailable(ctx context.Context, date, clock, stylistID string) (bool, error) {
	key, err := r.cal.NormalizeKey(date, clock, stylistID)
	if err != nil {
		return false, err
	}
	return r.KeyFree(ctx, key, r.now())
}

// KeyFree reports whether no active appointment holds key and no window
// unexpired at asOf covers it. key must already be normalized.
func (r *Resolver) KeyFree(ctx context.Context, key domain.SlotKey, asOf time.Time) (bool, error) {
	appts, err := r.src.FindAppointments(ctx, store.AppointmentFilter{
		Date:       key.Date,
		Time:       key.Time,
		StylistID:  key.StylistID,
		ActiveOnly: true,
	})
	if err != nil {
		return false, store.Failure("find appointments", err)
	}
	if len(appts) > 0 {
		return false, nil
	}

	windows, err := r.src.FindBlackouts(ctx, store.BlackoutFilter{Date: key.Date, StylistID: key.StylistID})
	if err != nil {
		return false, store.Failure("find blackouts", err)
	}
	for _, w := range windows {
		if w.Covers(key) && !r.cal.IsExpired(w, asOf) {
			return false, nil
		}
	}
	return true, nil
}

type DescriptorKind string

const (
	DescriptorAppointment DescriptorKind = "appointment"
	DescriptorBlackout    DescriptorKind = "blackout"
)

// Descriptor is one booking or blackout occupying a slot.
type Descriptor struct {
	Kind      DescriptorKind
	ID        uuid.UUID
	StylistID string

	CustomerID   string
	CustomerName string
	ServiceRefs  []string
	Status       domain.AppointmentStatus

	Reason       string
	BlackoutKind domain.BlackoutKind
	WholeDay     bool
}

// DescribeSlot lists active appointments and unexpired blackout windows at
// date and clock across all stylists, appointments first.
func (r *Resolver) DescribeSlot(ctx context.Context, date, clock string) ([]Descriptor, error) {
	slot, err := domain.LookupSlot(clock)
	if err != nil {
		return nil, err
	}
	day, err := r.cal.NormalizeDate(date)
	if err != nil {
		return nil, err
	}

	appts, err := r.src.FindAppointments(ctx, store.AppointmentFilter{Date: day, Time: slot.Label, ActiveOnly: true})
	if err != nil {
		return nil, store.Failure("find appointments", err)
	}
	windows, err := r.src.FindBlackouts(ctx, store.BlackoutFilter{Date: day})
	if err != nil {
		return nil, store.Failure("find blackouts", err)
	}

	now := r.now()
	out := make([]Descriptor, 0, len(appts)+len(windows))
	for _, a := range appts {
		out = append(out, Descriptor{
			Kind:         DescriptorAppointment,
			ID:           a.ID,
			StylistID:    a.StylistID,
			CustomerID:   a.CustomerID,
			CustomerName: a.CustomerName,
			ServiceRefs:  a.ServiceRefs,
			Status:       a.Status,
		})
	}
	for _, w := range windows {
		if !w.CoversSlot(day, slot.Label) || r.cal.IsExpired(w, now) {
			continue
		}
		out = append(out, Descriptor{
			Kind:         DescriptorBlackout,
			ID:           w.ID,
			StylistID:    w.StylistID,
			Reason:       w.Reason,
			BlackoutKind: w.Kind,
			WholeDay:     w.WholeDay(),
		})
	}
	return out, nil
}

type SlotState string

const (
	StateFree    SlotState = "free"
	StateBooked  SlotState = "booked"
	StateBlocked SlotState = "blocked"
	StatePast    SlotState = "past"
)

type SlotStatus struct {
	Slot          domain.TimeSlot
	State         SlotState
	Reason        string
	AppointmentID uuid.UUID
}

type Day struct {
	Date      string
	StylistID string
	Slots     []SlotStatus
}

// Availability reports every catalog slot of date. With a stylist the view is
// that stylist's column; without one a slot counts as booked or blocked if
// any stylist's is.
func (r *Resolver) Availability(ctx context.Context, date, stylistID string) (Day, error) {
	day, err := r.cal.NormalizeDate(date)
	if err != nil {
		return Day{}, err
	}
	stylist := strings.TrimSpace(stylistID)
	if domain.IsAllStylists(stylist) {
		stylist = ""
	}

	appts, err := r.src.FindAppointments(ctx, store.AppointmentFilter{Date: day, StylistID: stylist, ActiveOnly: true})
	if err != nil {
		return Day{}, store.Failure("find appointments", err)
	}
	windows, err := r.src.FindBlackouts(ctx, store.BlackoutFilter{Date: day, StylistID: stylist})
	if err != nil {
		return Day{}, store.Failure("find blackouts", err)
	}

	now := r.now()
	booked := make(map[string]uuid.UUID, len(appts))
	for _, a := range appts {
		if _, ok := booked[a.Time]; !ok {
			booked[a.Time] = a.ID
		}
	}

	slots := domain.ListSlots()
	out := Day{Date: day, StylistID: stylist, Slots: make([]SlotStatus, 0, len(slots))}
	for _, slot := range slots {
		st := SlotStatus{Slot: slot, State: StateFree}
		if id, ok := booked[slot.Label]; ok {
			st.State = StateBooked
			st.AppointmentID = id
		} else if w, ok := r.blocking(windows, day, slot.Label, now); ok {
			st.State = StateBlocked
			st.Reason = w.Reason
		} else if start, err := r.cal.At(day, slot.Label); err == nil && start.Before(now) {
			st.State = StatePast
		}
		out.Slots = append(out.Slots, st)
	}
	return out, nil
}

func (r *Resolver) blocking(windows []domain.BlackoutWindow, day, label string, now time.Time) (domain.BlackoutWindow, bool) {
	for _, w := range windows {
		if w.CoversSlot(day, label) && !r.cal.IsExpired(w, now) {
			return w, true
		}
	}
	return domain.BlackoutWindow{}, false
}
