package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

const activeSlotIndex = "appointments_active_slot_uq"

// Repo stores appointments and blackout windows in Postgres. Writes to an
// active appointment take a transaction-scoped advisory lock on the slot key,
// so processes sharing the database serialize on the same key.
type Repo struct {
	db *bun.DB
}

var _ store.Repository = (*Repo)(nil)

func NewRepo(db *bun.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) FindAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().Model(&rows)
	applyAppointmentFilter(q, filter)
	if err := q.Scan(ctx); err != nil {
		return nil, store.Failure("select appointments", err)
	}
	store.SortAppointments(rows)
	return rows, nil
}

func applyAppointmentFilter(q *bun.SelectQuery, f store.AppointmentFilter) {
	if f.ID != uuid.Nil {
		q.Where("id = ?", f.ID)
	}
	if f.Date != "" {
		q.Where(`"date" = ?`, f.Date)
	}
	if f.Time != "" {
		q.Where(`"time" = ?`, f.Time)
	}
	if f.StylistID != "" {
		q.Where("stylist_id = ?", f.StylistID)
	}
	if f.CustomerID != "" {
		q.Where("customer_id = ?", f.CustomerID)
	}
	if f.ActiveOnly {
		q.Where("status <> ?", domain.StatusCancelled)
	}
}

func (r *Repo) UpsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	return r.writeAppointment(ctx, appt, upsertAppointment)
}

// InsertAppointment never replaces a stored row: an existing id yields
// store.ErrExists.
func (r *Repo) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	return r.writeAppointment(ctx, appt, insertAppointment)
}

type writeFunc func(ctx context.Context, tx bun.Tx, appt domain.Appointment) (domain.Appointment, error)

func (r *Repo) writeAppointment(ctx context.Context, appt domain.Appointment, write writeFunc) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if appt.Active() {
			if err := lockSlot(ctx, tx, appt.Key()); err != nil {
				return err
			}
			taken, err := slotTakenByOther(ctx, tx, appt)
			if err != nil {
				return err
			}
			if taken {
				return store.ErrConflict
			}
		}
		saved, err := write(ctx, tx, appt)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if err != nil {
		return domain.Appointment{}, store.Failure("upsert appointment", mapWriteError(err))
	}
	return out, nil
}

func lockSlot(ctx context.Context, tx bun.Tx, key domain.SlotKey) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key.String()).Exec(ctx)
	return err
}

func slotTakenByOther(ctx context.Context, tx bun.Tx, appt domain.Appointment) (bool, error) {
	return tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where(`"date" = ?`, appt.Date).
		Where(`"time" = ?`, appt.Time).
		Where("stylist_id = ?", appt.StylistID).
		Where("status <> ?", domain.StatusCancelled).
		Where("id <> ?", appt.ID).
		Exists(ctx)
}

func upsertAppointment(ctx context.Context, tx bun.Tx, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.UpdatedAt = time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}

	err := tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set(`"date" = EXCLUDED."date"`).
		Set(`"time" = EXCLUDED."time"`).
		Set("stylist_id = EXCLUDED.stylist_id").
		Set("customer_id = EXCLUDED.customer_id").
		Set("customer_name = EXCLUDED.customer_name").
		Set("contact_number = EXCLUDED.contact_number").
		Set("service_refs = EXCLUDED.service_refs").
		Set("total_price = EXCLUDED.total_price").
		Set("total_duration_minutes = EXCLUDED.total_duration_minutes").
		Set("notes = EXCLUDED.notes").
		Set("status = EXCLUDED.status").
		Set("cancel_reason = EXCLUDED.cancel_reason").
		Set("cancelled_at = EXCLUDED.cancelled_at").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	return m, nil
}

func insertAppointment(ctx context.Context, tx bun.Tx, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.UpdatedAt = time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}

	err := tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrExists
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return m, nil
}

// mapWriteError turns the partial unique index violation into ErrConflict.
// It is reached only when a writer bypassed the advisory lock.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeSlotIndex {
		return store.ErrConflict
	}
	return err
}

func (r *Repo) FindBlackouts(ctx context.Context, filter store.BlackoutFilter) ([]domain.BlackoutWindow, error) {
	var rows []domain.BlackoutWindow
	q := r.db.NewSelect().Model(&rows)
	if filter.ID != uuid.Nil {
		q.Where("id = ?", filter.ID)
	}
	if filter.Date != "" {
		q.Where(`"date" = ?`, filter.Date)
	}
	if filter.StylistID != "" {
		q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("stylist_id = ?", filter.StylistID).
				WhereOr("lower(stylist_id) = lower(?)", domain.StylistAll)
		})
	}
	q.OrderExpr(`"date" ASC, created_at ASC`)
	if err := q.Scan(ctx); err != nil {
		return nil, store.Failure("select blackouts", err)
	}
	return rows, nil
}

func (r *Repo) UpsertBlackout(ctx context.Context, w domain.BlackoutWindow) (domain.BlackoutWindow, error) {
	m := w
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set(`"date" = EXCLUDED."date"`).
		Set(`"time" = EXCLUDED."time"`).
		Set("stylist_id = EXCLUDED.stylist_id").
		Set("reason = EXCLUDED.reason").
		Set("kind = EXCLUDED.kind").
		Exec(ctx)
	if err != nil {
		return domain.BlackoutWindow{}, store.Failure("upsert blackout", err)
	}
	return m, nil
}

func (r *Repo) DeleteBlackout(ctx context.Context, id uuid.UUID) error {
	_, err := r.DeleteBlackouts(ctx, []uuid.UUID{id})
	return err
}

func (r *Repo) DeleteBlackouts(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.NewDelete().
		Model((*domain.BlackoutWindow)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, store.Failure("delete blackouts", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.Failure("rows affected", err)
	}
	return int(n), nil
}
