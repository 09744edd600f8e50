package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID            uuid.UUID         `bun:"id,pk,type:uuid"`
	Date          string            `bun:"date,notnull"`
	Time          string            `bun:"time,notnull"`
	StylistID     string            `bun:"stylist_id,notnull"`
	CustomerID    string            `bun:"customer_id,notnull"`
	CustomerName  string            `bun:"customer_name"`
	ContactNumber string            `bun:"contact_number"`
	ServiceRefs   []string          `bun:"service_refs,array"`
	TotalPrice    int64             `bun:"total_price,notnull"`
	TotalDuration int               `bun:"total_duration_minutes,notnull"`
	Notes         string            `bun:"notes"`
	Status        AppointmentStatus `bun:"status,notnull"`
	CancelReason  string            `bun:"cancel_reason"`
	CancelledAt   *time.Time        `bun:"cancelled_at"`
	CreatedAt     time.Time         `bun:"created_at,notnull"`
	UpdatedAt     time.Time         `bun:"updated_at,notnull"`
}

func (a Appointment) Key() SlotKey {
	return SlotKey{Date: a.Date, Time: a.Time, StylistID: a.StylistID}
}

// Active reports whether the appointment occupies its key.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
