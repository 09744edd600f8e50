// Package httpapi serves the scheduling engine as a JSON API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
	"salonbook/backend/internal/transport"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	maxBodyBytes         = 1 << 20
)

type Handler struct {
	svc      transport.Services
	validate *transport.Validator
	log      *slog.Logger
}

func NewHandler(svc transport.Services, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		svc:      svc,
		validate: transport.NewValidator(),
		log:      log.With(slog.String("component", "http.scheduling")),
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/healthz", h.Health)

	router.GET("/v1/slots", h.ListSlots)
	router.GET("/v1/slots/describe", h.DescribeSlot)
	router.GET("/v1/availability", h.GetAvailability)
	router.GET("/v1/availability/check", h.CheckAvailability)

	router.POST("/v1/appointments", h.Reserve)
	router.GET("/v1/appointments", h.ListAppointments)
	router.GET("/v1/appointments/:id", h.GetAppointment)
	router.POST("/v1/appointments/:id/reschedule", h.Reschedule)
	router.POST("/v1/appointments/:id/cancel", h.Cancel)

	router.POST("/v1/blackouts", h.CreateBlackout)
	router.GET("/v1/blackouts", h.ListBlackouts)
	router.DELETE("/v1/blackouts/:id", h.DeleteBlackout)
	router.POST("/v1/blackouts/prune", h.PruneBlackouts)
}

// Routes returns a router serving every endpoint.
func (h *Handler) Routes() http.Handler {
	router := httprouter.New()
	h.RegisterRoutes(router)
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		h.log.Error("handler panicked", slog.String("path", r.URL.Path), slog.Any("panic", v))
		h.fail(w, r, "request", errors.New("panic"))
	}
	return router
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.ok(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	byPeriod := map[string][]transport.SlotView{}
	for p, slots := range domain.SlotsByPeriod() {
		byPeriod[string(p)] = transport.NewSlotViews(slots)
	}
	h.ok(w, r, http.StatusOK, map[string]any{
		"slots":     transport.NewSlotViews(domain.ListSlots()),
		"by_period": byPeriod,
	})
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	in := transport.SlotQuery{Date: q.Get("date"), Time: q.Get("time"), StylistID: q.Get("stylist_id")}
	if err := h.validate.Struct(in); err != nil {
		h.fail(w, r, "availability check", err)
		return
	}

	ok, err := h.svc.Availability.IsAvailable(r.Context(), in.Date, in.Time, in.StylistID)
	if err != nil {
		h.fail(w, r, "availability check", err)
		return
	}
	h.ok(w, r, http.StatusOK, transport.AvailabilityView{Date: in.Date, Time: in.Time, StylistID: in.StylistID, Available: ok})
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	in := transport.DayQuery{Date: q.Get("date"), StylistID: q.Get("stylist_id")}
	if err := h.validate.Struct(in); err != nil {
		h.fail(w, r, "day availability", err)
		return
	}

	day, err := h.svc.Availability.Availability(r.Context(), in.Date, in.StylistID)
	if err != nil {
		h.fail(w, r, "day availability", err)
		return
	}
	h.ok(w, r, http.StatusOK, transport.NewDayView(day))
}

func (h *Handler) DescribeSlot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	in := transport.SlotQuery{Date: q.Get("date"), Time: q.Get("time")}
	if err := h.validate.Struct(in); err != nil {
		h.fail(w, r, "describe slot", err)
		return
	}

	ds, err := h.svc.Availability.DescribeSlot(r.Context(), in.Date, in.Time)
	if err != nil {
		h.fail(w, r, "describe slot", err)
		return
	}
	h.ok(w, r, http.StatusOK, transport.NewDescriptorViews(ds))
}

func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in transport.ReserveRequest
	if err := h.decode(w, r, &in); err != nil {
		h.fail(w, r, "reserve", err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	appt, err := h.svc.Reservations.Reserve(r.Context(), in.Input(key))
	if err != nil {
		h.fail(w, r, "reserve", err,
			slog.String("date", in.Date),
			slog.String("time", in.Time),
			slog.String("stylist_id", in.StylistID),
		)
		return
	}
	h.ok(w, r, http.StatusCreated, transport.NewAppointmentView(appt))
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := h.pathID(ps)
	if err != nil {
		h.fail(w, r, "get appointment", err)
		return
	}

	appt, err := h.svc.Appointments.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get appointment", err, slog.String("appointment_id", id.String()))
		return
	}
	h.ok(w, r, http.StatusOK, transport.NewAppointmentView(appt))
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	in := transport.ListAppointmentsRequest{
		CustomerID: q.Get("customer_id"),
		Date:       q.Get("date"),
		StylistID:  q.Get("stylist_id"),
	}
	if v := q.Get("include_cancelled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.fail(w, r, "list appointments", transport.FieldErrors{{Field: "include_cancelled", Message: "must be a boolean"}})
			return
		}
		in.IncludeCancelled = b
	}
	if err := h.validate.Struct(in); err != nil {
		h.fail(w, r, "list appointments", err)
		return
	}

	rows, err := h.svc.Appointments.List(r.Context(), in.Input())
	if err != nil {
		h.fail(w, r, "list appointments", err)
		return
	}
	h.ok(w, r, http.StatusOK, transport.NewAppointmentViews(rows))
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var in transport.RescheduleRequest
	if err := h.readJSON(w, r, &in); err != nil {
		h.fail(w, r, "reschedule", err)
		return
	}
	in.ID = ps.ByName("id")
	if err := h.validate.Struct(in); err != nil {
		h.fail(w, r, "reschedule", err)
		return
	}

	appt, err := h.svc.Appointments.Reschedule(r.Context(), in.Input())
	if err != nil {
		h.fail(w, r, "reschedule", err, slog.String("appointment_id", in.ID))
		return
	}
	h.ok(w, r, http.StatusOK, transport.NewAppointmentView(appt))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var in transport.CancelRequest
	if err := h.readJSON(w, r, &in); err != nil {
		h.fail(w, r, "cancel", err)
		return
	}
	in.ID = ps.ByName("id")
	if err := h.validate.Struct(in); err != nil {
		h.fail(w, r, "cancel", err)
		return
	}

	appt, err := h.svc.Appointments.Cancel(r.Context(), uuid.MustParse(in.ID), in.Reason)
	if err != nil {
		h.fail(w, r, "cancel", err, slog.String("appointment_id", in.ID))
		return
	}
	h.ok(w, r, http.StatusOK, transport.NewAppointmentView(appt))
}

func (h *Handler) CreateBlackout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in transport.CreateBlackoutRequest
	if err := h.decode(w, r, &in); err != nil {
		h.fail(w, r, "create blackout", err)
		return
	}

	bw, err := h.svc.Blackouts.Create(r.Context(), in.Input())
	if err != nil {
		h.fail(w, r, "create blackout", err, slog.String("date", in.Date))
		return
	}
	h.ok(w, r, http.StatusCreated, transport.NewBlackoutView(bw))
}

func (h *Handler) ListBlackouts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	in := transport.ListBlackoutsRequest{Date: q.Get("date"), StylistID: q.Get("stylist_id")}
	if err := h.validate.Struct(in); err != nil {
		h.fail(w, r, "list blackouts", err)
		return
	}

	seq, err := h.svc.Blackouts.ListActive(r.Context(), h.svc.AsOf(), store.BlackoutFilter{Date: in.Date, StylistID: in.StylistID})
	if err != nil {
		h.fail(w, r, "list blackouts", err)
		return
	}
	out := []transport.BlackoutView{}
	for bw := range seq {
		out = append(out, transport.NewBlackoutView(bw))
	}
	h.ok(w, r, http.StatusOK, out)
}

func (h *Handler) DeleteBlackout(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := h.pathID(ps)
	if err != nil {
		h.fail(w, r, "delete blackout", err)
		return
	}
	if err := h.svc.Blackouts.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete blackout", err, slog.String("blackout_id", id.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PruneBlackouts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	n, err := h.svc.Blackouts.Prune(r.Context(), h.svc.AsOf())
	if err != nil {
		h.fail(w, r, "prune blackouts", err)
		return
	}
	h.ok(w, r, http.StatusOK, transport.PruneView{Removed: n})
}

func (h *Handler) pathID(ps httprouter.Params) (uuid.UUID, error) {
	in := transport.IDRequest{ID: ps.ByName("id")}
	if err := h.validate.Struct(in); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(in.ID), nil
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := h.readJSON(w, r, dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// readJSON accepts an empty body.
func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return transport.FieldErrors{{Field: "body", Message: "must be a JSON object"}}
	}
	return nil
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, code int, data any) {
	if err := WriteJSON(w, code, SuccessResponse{Data: data}); err != nil {
		h.log.Error("failed to write response", slog.String("path", r.URL.Path), slog.Any("err", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error, attrs ...any) {
	out, writeErr := WriteError(w, err)
	args := append([]any{
		slog.Any("err", err),
		slog.String("outcome", out.Kind.String()),
		slog.String("path", r.URL.Path),
	}, attrs...)

	switch out.Kind {
	case transport.KindConflict, transport.KindIdempotencyConflict, transport.KindNotFound:
		h.log.Info(op+" rejected", args...)
	case transport.KindInvalid:
		h.log.Warn(op+" invalid request", args...)
	case transport.KindTimeout:
		h.log.Warn(op+" timed out", args...)
	default:
		h.log.Error(op+" failed", args...)
	}
	if writeErr != nil {
		h.log.Error("failed to write error response", slog.String("path", r.URL.Path), slog.Any("err", writeErr))
	}
}
