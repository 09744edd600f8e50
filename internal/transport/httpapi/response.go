package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"salonbook/backend/internal/transport"
)

type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details []transport.FieldError `json:"details,omitempty"`
}

type SuccessResponse struct {
	Data any `json:"data"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes the client-facing outcome of err and returns it.
func WriteError(w http.ResponseWriter, err error) (transport.Outcome, error) {
	out := transport.Classify(err)
	resp := ErrorResponse{Error: out.Message, Code: out.Kind.String()}

	var fields transport.FieldErrors
	if errors.As(err, &fields) {
		resp.Error = "request validation failed"
		resp.Details = fields
	}
	return out, WriteJSON(w, StatusCode(out.Kind), resp)
}

func StatusCode(k transport.Kind) int {
	switch k {
	case transport.KindInvalid:
		return http.StatusBadRequest
	case transport.KindNotFound:
		return http.StatusNotFound
	case transport.KindConflict, transport.KindIdempotencyConflict:
		return http.StatusConflict
	case transport.KindUnavailable:
		return http.StatusServiceUnavailable
	case transport.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
