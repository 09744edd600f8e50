// Package blackouts owns the lifecycle of admin-declared blackout windows:
// creation, listing of live windows, deletion and pruning of expired ones.
package blackouts

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

var tracer = otel.Tracer("salonbook/backend/internal/service/blackouts")

type Service struct {
	repo store.BlackoutRepository
	cal  domain.Calendar
	now  func() time.Time
	log  *slog.Logger

	pruning atomic.Bool
}

func NewService(repo store.BlackoutRepository, cal domain.Calendar, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo: repo,
		cal:  cal,
		now:  time.Now,
		log:  log.With(slog.String("component", "blackouts")),
	}
}

// WithClock replaces the service's notion of now.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	Date string
	// Time is a slot label; empty blocks the whole day.
	Time      string
	StylistID string
	Reason    string
	Kind      domain.BlackoutKind
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidWindow, msg)
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.BlackoutWindow, error) {
	date, err := s.cal.NormalizeDate(in.Date)
	if err != nil {
		return domain.BlackoutWindow{}, invalid("date cannot be parsed")
	}

	w := domain.BlackoutWindow{
		Date:   date,
		Reason: strings.TrimSpace(in.Reason),
		Kind:   in.Kind,
	}
	if clock := strings.TrimSpace(in.Time); clock != "" {
		slot, err := domain.LookupSlot(clock)
		if err != nil {
			return domain.BlackoutWindow{}, invalid("time is not a catalog slot")
		}
		w.Time = slot.Label
	}
	if w.Kind == "" {
		w.Kind = domain.BlackoutUnavailable
	}
	if !w.Kind.Valid() {
		return domain.BlackoutWindow{}, invalid("unknown kind")
	}

	stylist := strings.TrimSpace(in.StylistID)
	if stylist == "" || domain.IsAllStylists(stylist) {
		stylist = domain.StylistAll
	}
	w.StylistID = stylist

	if s.cal.IsExpired(w, s.now()) {
		return domain.BlackoutWindow{}, invalid("window is already in the past")
	}

	saved, err := s.repo.UpsertBlackout(ctx, w)
	if err != nil {
		s.log.Error("create blackout failed", slog.String("date", w.Date), slog.Any("err", err))
		return domain.BlackoutWindow{}, store.Failure("upsert blackout", err)
	}
	s.log.Info(
		"blackout created",
		slog.String("blackout_id", saved.ID.String()),
		slog.String("date", saved.Date),
		slog.String("time", saved.Time),
		slog.String("stylist_id", saved.StylistID),
	)
	return saved, nil
}

// ListActive yields windows matching filter whose effective end is not
// before asOf. Each call reads a fresh snapshot; the returned sequence can be
// ranged over any number of times.
func (s *Service) ListActive(ctx context.Context, asOf time.Time, filter store.BlackoutFilter) (iter.Seq[domain.BlackoutWindow], error) {
	if filter.Date != "" {
		date, err := s.cal.NormalizeDate(filter.Date)
		if err != nil {
			return nil, err
		}
		filter.Date = date
	}
	windows, err := s.repo.FindBlackouts(ctx, filter)
	if err != nil {
		return nil, store.Failure("find blackouts", err)
	}
	return func(yield func(domain.BlackoutWindow) bool) {
		for _, w := range windows {
			if s.cal.IsExpired(w, asOf) {
				continue
			}
			if !yield(w) {
				return
			}
		}
	}, nil
}

// Delete is idempotent: an unknown id is not an error.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return invalid("id is required")
	}
	if err := s.repo.DeleteBlackout(ctx, id); err != nil {
		return store.Failure("delete blackout", err)
	}
	return nil
}

// Prune removes every window whose effective end is before asOf in a single
// repository call. A call made while another prune is running returns
// (0, nil) without touching the store.
func (s *Service) Prune(ctx context.Context, asOf time.Time) (int, error) {
	if !s.pruning.CompareAndSwap(false, true) {
		s.log.Debug("prune already running; skipped")
		return 0, nil
	}
	defer s.pruning.Store(false)

	ctx, span := tracer.Start(ctx, "blackouts.Prune")
	defer span.End()

	windows, err := s.repo.FindBlackouts(ctx, store.BlackoutFilter{})
	if err != nil {
		span.SetStatus(codes.Error, "find blackouts")
		return 0, store.Failure("find blackouts", err)
	}
	var expired []uuid.UUID
	for _, w := range windows {
		if s.cal.IsExpired(w, asOf) {
			expired = append(expired, w.ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	n, err := s.repo.DeleteBlackouts(ctx, expired)
	if err != nil {
		span.SetStatus(codes.Error, "delete blackouts")
		s.log.Error("prune failed", slog.Int("candidates", len(expired)), slog.Any("err", err))
		return 0, store.Failure("delete blackouts", err)
	}
	span.SetAttributes(attribute.Int("blackouts.pruned", n))
	s.log.Info("pruned expired blackouts", slog.Int("removed", n), slog.Time("as_of", asOf))
	return n, nil
}
