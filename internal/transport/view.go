package transport

import (
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/service/availability"
)

type AppointmentView struct {
	ID                   string     `json:"id"`
	Date                 string     `json:"date"`
	Time                 string     `json:"time"`
	StylistID            string     `json:"stylist_id"`
	CustomerID           string     `json:"customer_id"`
	CustomerName         string     `json:"customer_name,omitempty"`
	ContactNumber        string     `json:"contact_number,omitempty"`
	ServiceRefs          []string   `json:"service_refs"`
	TotalPrice           int64      `json:"total_price"`
	TotalDurationMinutes int        `json:"total_duration_minutes"`
	Notes                string     `json:"notes,omitempty"`
	Status               string     `json:"status"`
	CancelReason         string     `json:"cancel_reason,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func NewAppointmentView(a domain.Appointment) AppointmentView {
	refs := a.ServiceRefs
	if refs == nil {
		refs = []string{}
	}
	return AppointmentView{
		ID:                   a.ID.String(),
		Date:                 a.Date,
		Time:                 a.Time,
		StylistID:            a.StylistID,
		CustomerID:           a.CustomerID,
		CustomerName:         a.CustomerName,
		ContactNumber:        a.ContactNumber,
		ServiceRefs:          refs,
		TotalPrice:           a.TotalPrice,
		TotalDurationMinutes: a.TotalDuration,
		Notes:                a.Notes,
		Status:               string(a.Status),
		CancelReason:         a.CancelReason,
		CancelledAt:          a.CancelledAt,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

func NewAppointmentViews(rows []domain.Appointment) []AppointmentView {
	out := make([]AppointmentView, 0, len(rows))
	for _, a := range rows {
		out = append(out, NewAppointmentView(a))
	}
	return out
}

type SlotView struct {
	Time   string `json:"time"`
	Period string `json:"period"`
}

func NewSlotViews(slots []domain.TimeSlot) []SlotView {
	out := make([]SlotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotView{Time: s.Label, Period: string(s.Period)})
	}
	return out
}

type AvailabilityView struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	StylistID string `json:"stylist_id"`
	Available bool   `json:"available"`
}

type SlotStatusView struct {
	Time          string `json:"time"`
	Period        string `json:"period"`
	State         string `json:"state"`
	Reason        string `json:"reason,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

type DayView struct {
	Date      string           `json:"date"`
	StylistID string           `json:"stylist_id,omitempty"`
	Slots     []SlotStatusView `json:"slots"`
}

func NewDayView(d availability.Day) DayView {
	out := DayView{Date: d.Date, StylistID: d.StylistID, Slots: make([]SlotStatusView, 0, len(d.Slots))}
	for _, s := range d.Slots {
		v := SlotStatusView{
			Time:   s.Slot.Label,
			Period: string(s.Slot.Period),
			State:  string(s.State),
			Reason: s.Reason,
		}
		if s.AppointmentID != uuid.Nil {
			v.AppointmentID = s.AppointmentID.String()
		}
		out.Slots = append(out.Slots, v)
	}
	return out
}

type DescriptorView struct {
	Kind         string   `json:"kind"`
	ID           string   `json:"id"`
	StylistID    string   `json:"stylist_id"`
	CustomerID   string   `json:"customer_id,omitempty"`
	CustomerName string   `json:"customer_name,omitempty"`
	ServiceRefs  []string `json:"service_refs,omitempty"`
	Status       string   `json:"status,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	BlackoutKind string   `json:"blackout_kind,omitempty"`
	WholeDay     bool     `json:"whole_day,omitempty"`
}

func NewDescriptorViews(ds []availability.Descriptor) []DescriptorView {
	out := make([]DescriptorView, 0, len(ds))
	for _, d := range ds {
		out = append(out, DescriptorView{
			Kind:         string(d.Kind),
			ID:           d.ID.String(),
			StylistID:    d.StylistID,
			CustomerID:   d.CustomerID,
			CustomerName: d.CustomerName,
			ServiceRefs:  d.ServiceRefs,
			Status:       string(d.Status),
			Reason:       d.Reason,
			BlackoutKind: string(d.BlackoutKind),
			WholeDay:     d.WholeDay,
		})
	}
	return out
}

type BlackoutView struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Time      string    `json:"time,omitempty"`
	StylistID string    `json:"stylist_id"`
	Reason    string    `json:"reason,omitempty"`
	Kind      string    `json:"kind"`
	WholeDay  bool      `json:"whole_day"`
	CreatedAt time.Time `json:"created_at"`
}

func NewBlackoutView(w domain.BlackoutWindow) BlackoutView {
	return BlackoutView{
		ID:        w.ID.String(),
		Date:      w.Date,
		Time:      w.Time,
		StylistID: w.StylistID,
		Reason:    w.Reason,
		Kind:      string(w.Kind),
		WholeDay:  w.WholeDay(),
		CreatedAt: w.CreatedAt,
	}
}

type PruneView struct {
	Removed int `json:"removed"`
}
