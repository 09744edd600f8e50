// Package memory is an in-process Repository. Readers load an immutable
// snapshot through an atomic pointer and never block; writers serialize on a
// mutex and publish a new snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

type snapshot struct {
	appointments map[uuid.UUID]domain.Appointment
	blackouts    map[uuid.UUID]domain.BlackoutWindow
}

type Store struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
	now  func() time.Time
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	s := &Store{now: func() time.Time { return time.Now().UTC() }}
	s.snap.Store(&snapshot{
		appointments: map[uuid.UUID]domain.Appointment{},
		blackouts:    map[uuid.UUID]domain.BlackoutWindow{},
	})
	return s
}

func (s *Store) FindAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.snap.Load()
	if filter.ID != uuid.Nil {
		a, ok := snap.appointments[filter.ID]
		if !ok || !filter.Match(a) {
			return nil, nil
		}
		return []domain.Appointment{cloneAppointment(a)}, nil
	}

	out := make([]domain.Appointment, 0)
	for _, a := range snap.appointments {
		if filter.Match(a) {
			out = append(out, cloneAppointment(a))
		}
	}
	store.SortAppointments(out)
	return out, nil
}

func (s *Store) UpsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	return s.writeAppointment(ctx, appt, false)
}

func (s *Store) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	return s.writeAppointment(ctx, appt, true)
}

func (s *Store) writeAppointment(ctx context.Context, appt domain.Appointment, insertOnly bool) (domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	if _, ok := cur.appointments[appt.ID]; ok && insertOnly {
		return domain.Appointment{}, store.ErrExists
	}
	if appt.Active() {
		for id, other := range cur.appointments {
			if id != appt.ID && other.Active() && other.Key() == appt.Key() {
				return domain.Appointment{}, store.ErrConflict
			}
		}
	}

	now := s.now()
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, store.Failure("upsert appointment", err)
		}
		appt.ID = id
	}
	if existing, ok := cur.appointments[appt.ID]; ok {
		appt.CreatedAt = existing.CreatedAt
	} else if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now

	next := &snapshot{
		appointments: make(map[uuid.UUID]domain.Appointment, len(cur.appointments)+1),
		blackouts:    cur.blackouts,
	}
	for id, a := range cur.appointments {
		next.appointments[id] = a
	}
	stored := cloneAppointment(appt)
	next.appointments[appt.ID] = stored
	s.snap.Store(next)

	return cloneAppointment(stored), nil
}

func (s *Store) FindBlackouts(ctx context.Context, filter store.BlackoutFilter) ([]domain.BlackoutWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.snap.Load()
	out := make([]domain.BlackoutWindow, 0)
	for _, w := range snap.blackouts {
		if filter.Match(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpsertBlackout(ctx context.Context, w domain.BlackoutWindow) (domain.BlackoutWindow, error) {
	if err := ctx.Err(); err != nil {
		return domain.BlackoutWindow{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.BlackoutWindow{}, store.Failure("upsert blackout", err)
		}
		w.ID = id
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}

	cur := s.snap.Load()
	next := &snapshot{
		appointments: cur.appointments,
		blackouts:    make(map[uuid.UUID]domain.BlackoutWindow, len(cur.blackouts)+1),
	}
	for id, b := range cur.blackouts {
		next.blackouts[id] = b
	}
	next.blackouts[w.ID] = w
	s.snap.Store(next)
	return w, nil
}

func (s *Store) DeleteBlackout(ctx context.Context, id uuid.UUID) error {
	_, err := s.DeleteBlackouts(ctx, []uuid.UUID{id})
	return err
}

func (s *Store) DeleteBlackouts(ctx context.Context, ids []uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	cur := s.snap.Load()
	next := &snapshot{
		appointments: cur.appointments,
		blackouts:    make(map[uuid.UUID]domain.BlackoutWindow, len(cur.blackouts)),
	}
	removed := 0
	for id, b := range cur.blackouts {
		if _, ok := drop[id]; ok {
			removed++
			continue
		}
		next.blackouts[id] = b
	}
	if removed == 0 {
		return 0, nil
	}
	s.snap.Store(next)
	return removed, nil
}

func cloneAppointment(a domain.Appointment) domain.Appointment {
	if a.ServiceRefs != nil {
		refs := make([]string, len(a.ServiceRefs))
		copy(refs, a.ServiceRefs)
		a.ServiceRefs = refs
	}
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		a.CancelledAt = &t
	}
	return a
}
