package transport

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/service/appointments"
	"salonbook/backend/internal/service/blackouts"
	"salonbook/backend/internal/service/reservations"
)

type ReserveRequest struct {
	Date                 string   `json:"date" validate:"required"`
	Time                 string   `json:"time" validate:"required"`
	StylistID            string   `json:"stylist_id" validate:"required,max=128"`
	CustomerID           string   `json:"customer_id" validate:"required,max=128"`
	CustomerName         string   `json:"customer_name" validate:"max=200"`
	ContactNumber        string   `json:"contact_number" validate:"max=32"`
	ServiceRefs          []string `json:"service_refs" validate:"max=20,dive,required"`
	TotalPrice           int64    `json:"total_price" validate:"gte=0"`
	TotalDurationMinutes int      `json:"total_duration_minutes" validate:"gte=0,lte=1440"`
	Notes                string   `json:"notes" validate:"max=2000"`
}

func (r ReserveRequest) Input(idempotencyKey string) reservations.ReserveInput {
	return reservations.ReserveInput{
		Date:                 r.Date,
		Time:                 r.Time,
		StylistID:            r.StylistID,
		CustomerID:           r.CustomerID,
		CustomerName:         r.CustomerName,
		ContactNumber:        r.ContactNumber,
		ServiceRefs:          r.ServiceRefs,
		TotalPrice:           r.TotalPrice,
		TotalDurationMinutes: r.TotalDurationMinutes,
		Notes:                r.Notes,
		IdempotencyKey:       idempotencyKey,
	}
}

type RescheduleRequest struct {
	ID   string `json:"id" validate:"required,uuid"`
	Date string `json:"date" validate:"required"`
	Time string `json:"time" validate:"required"`
	// StylistID keeps the current stylist when empty.
	StylistID string `json:"stylist_id" validate:"max=128"`
}

func (r RescheduleRequest) Input() appointments.RescheduleInput {
	return appointments.RescheduleInput{
		ID:        uuid.MustParse(r.ID),
		Date:      r.Date,
		Time:      r.Time,
		StylistID: r.StylistID,
	}
}

type CancelRequest struct {
	ID     string `json:"id" validate:"required,uuid"`
	Reason string `json:"reason" validate:"max=500"`
}

type ListAppointmentsRequest struct {
	CustomerID       string `json:"customer_id" validate:"required_without_all=Date StylistID"`
	Date             string `json:"date"`
	StylistID        string `json:"stylist_id"`
	IncludeCancelled bool   `json:"include_cancelled"`
}

func (r ListAppointmentsRequest) Input() appointments.ListInput {
	return appointments.ListInput{
		CustomerID:       r.CustomerID,
		Date:             r.Date,
		StylistID:        r.StylistID,
		IncludeCancelled: r.IncludeCancelled,
	}
}

type CreateBlackoutRequest struct {
	Date string `json:"date" validate:"required"`
	// Time empty blocks the whole day.
	Time      string `json:"time"`
	StylistID string `json:"stylist_id" validate:"max=128"`
	Reason    string `json:"reason" validate:"max=500"`
	Kind      string `json:"kind" validate:"omitempty,oneof=unavailable booked"`
}

func (r CreateBlackoutRequest) Input() blackouts.CreateInput {
	return blackouts.CreateInput{
		Date:      r.Date,
		Time:      r.Time,
		StylistID: r.StylistID,
		Reason:    r.Reason,
		Kind:      domain.BlackoutKind(r.Kind),
	}
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator checks request payloads. Field names in errors are the JSON
// names clients send.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

func (v *Validator) Struct(req any) error {
	err := v.v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without_all":
		return "is required when no other filter is set"
	case "uuid":
		return "must be a UUID"
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

type SlotQuery struct {
	Date      string `json:"date" validate:"required"`
	Time      string `json:"time" validate:"required"`
	StylistID string `json:"stylist_id" validate:"max=128"`
}

type DayQuery struct {
	Date string `json:"date" validate:"required"`
	// StylistID empty or "All" asks for the salon-wide view.
	StylistID string `json:"stylist_id" validate:"max=128"`
}

type IDRequest struct {
	ID string `json:"id" validate:"required,uuid"`
}

type ListBlackoutsRequest struct {
	Date      string `json:"date"`
	StylistID string `json:"stylist_id" validate:"max=128"`
}
