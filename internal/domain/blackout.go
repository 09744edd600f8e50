package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrInvalidWindow = errors.New("invalid blackout window")

type BlackoutKind string

const (
	BlackoutUnavailable BlackoutKind = "unavailable"
	BlackoutBooked      BlackoutKind = "booked"
)

func (k BlackoutKind) Valid() bool {
	return k == BlackoutUnavailable || k == BlackoutBooked
}

// BlackoutWindow blocks one slot, or a whole day when Time is empty, for one
// stylist or for StylistAll.
type BlackoutWindow struct {
	bun.BaseModel `bun:"table:blackout_windows"`

	ID        uuid.UUID    `bun:"id,pk,type:uuid"`
	Date      string       `bun:"date,notnull"`
	Time      string       `bun:"time"`
	StylistID string       `bun:"stylist_id,notnull"`
	Reason    string       `bun:"reason"`
	Kind      BlackoutKind `bun:"kind,notnull"`
	CreatedAt time.Time    `bun:"created_at,notnull"`
}

func (w BlackoutWindow) WholeDay() bool {
	return strings.TrimSpace(w.Time) == ""
}

// Covers reports whether the window blocks key. Matching is on normalized
// labels, never on parsed instants.
func (w BlackoutWindow) Covers(key SlotKey) bool {
	if w.Date != key.Date {
		return false
	}
	if !w.WholeDay() && w.Time != key.Time {
		return false
	}
	return IsAllStylists(w.StylistID) || w.StylistID == key.StylistID
}

// CoversSlot is Covers without a stylist: any scope matches.
func (w BlackoutWindow) CoversSlot(date, clock string) bool {
	if w.Date != date {
		return false
	}
	return w.WholeDay() || w.Time == clock
}

// ParseEffectiveEnd is the instant after which w no longer blocks anything:
// date+time, or 23:59:59 of date for whole-day windows. An unparseable date
// or time yields the Unix epoch so a malformed window never blocks a slot.
func (c Calendar) ParseEffectiveEnd(w BlackoutWindow) time.Time {
	var (
		end time.Time
		err error
	)
	if w.WholeDay() {
		end, err = c.EndOfDay(w.Date)
	} else {
		end, err = c.At(w.Date, w.Time)
	}
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	return end
}

// IsExpired reports whether w's effective end is strictly before asOf.
func (c Calendar) IsExpired(w BlackoutWindow, asOf time.Time) bool {
	return c.ParseEffectiveEnd(w).Before(asOf)
}

func (w *BlackoutWindow) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if w.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		w.ID = id
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	return nil
}
