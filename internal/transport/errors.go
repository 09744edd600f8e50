package transport

import (
	"context"
	"errors"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/service/appointments"
	"salonbook/backend/internal/service/reservations"
	"salonbook/backend/internal/store"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindConflict
	KindIdempotencyConflict
	KindUnavailable
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindIdempotencyConflict:
		return "idempotency_conflict"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Outcome is what a client is told about a failed call.
type Outcome struct {
	Kind    Kind
	Message string
}

const (
	msgConflict    = "That slot is already taken. Pick a different slot."
	msgIdempotency = "This request key was already used for a different appointment. Try again."
	msgNotFound    = "appointment not found"
	msgUnavailable = "Scheduling is temporarily unavailable. Try again."
	msgTimeout     = "Timed out waiting for the slot. Try again."
	msgInternal    = "internal error"
)

// Classify maps a service error onto an Outcome. Only invalid input echoes
// the error text back.
func Classify(err error) Outcome {
	var (
		fieldErrs FieldErrors
		resErr    *reservations.ValidationError
		apptErr   *appointments.ValidationError
	)
	switch {
	case errors.Is(err, store.ErrConflict):
		return Outcome{KindConflict, msgConflict}
	case errors.Is(err, store.ErrIdempotencyConflict):
		return Outcome{KindIdempotencyConflict, msgIdempotency}
	case errors.Is(err, store.ErrNotFound):
		return Outcome{KindNotFound, msgNotFound}
	case errors.As(err, &fieldErrs),
		errors.As(err, &resErr),
		errors.As(err, &apptErr),
		errors.Is(err, domain.ErrInvalidSlot),
		errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidStylist),
		errors.Is(err, domain.ErrInvalidWindow):
		return Outcome{KindInvalid, err.Error()}
	case errors.Is(err, store.ErrStorage):
		return Outcome{KindUnavailable, msgUnavailable}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Outcome{KindTimeout, msgTimeout}
	default:
		return Outcome{KindInternal, msgInternal}
	}
}
