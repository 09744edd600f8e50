package grpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
	"salonbook/backend/internal/transport"
)

type SchedulingServer struct {
	svc      transport.Services
	validate *transport.Validator
	log      *slog.Logger
}

var _ SchedulingServiceServer = (*SchedulingServer)(nil)

func NewSchedulingServer(svc transport.Services, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		svc:      svc,
		validate: transport.NewValidator(),
		log:      log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *SchedulingServer) ListSlots(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	periods := make([]string, 0, 2)
	for _, p := range domain.Periods() {
		periods = append(periods, string(p))
	}
	return encode(struct {
		Slots   []transport.SlotView `json:"slots"`
		Periods []string             `json:"periods"`
	}{transport.NewSlotViews(domain.ListSlots()), periods})
}

func (s *SchedulingServer) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CheckAvailability"))

	var q transport.SlotQuery
	if err := s.decode(req, &q); err != nil {
		return nil, s.fail(log, "availability check", err)
	}
	ok, err := s.svc.Availability.IsAvailable(ctx, q.Date, q.Time, q.StylistID)
	if err != nil {
		return nil, s.fail(log, "availability check", err, slog.String("date", q.Date), slog.String("time", q.Time))
	}
	return encode(transport.AvailabilityView{Date: q.Date, Time: q.Time, StylistID: q.StylistID, Available: ok})
}

func (s *SchedulingServer) GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetAvailability"))

	var q transport.DayQuery
	if err := s.decode(req, &q); err != nil {
		return nil, s.fail(log, "day availability", err)
	}
	day, err := s.svc.Availability.Availability(ctx, q.Date, q.StylistID)
	if err != nil {
		return nil, s.fail(log, "day availability", err, slog.String("date", q.Date))
	}
	return encode(transport.NewDayView(day))
}

func (s *SchedulingServer) DescribeSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DescribeSlot"))

	var q transport.SlotQuery
	if err := s.decode(req, &q); err != nil {
		return nil, s.fail(log, "describe slot", err)
	}
	ds, err := s.svc.Availability.DescribeSlot(ctx, q.Date, q.Time)
	if err != nil {
		return nil, s.fail(log, "describe slot", err, slog.String("date", q.Date), slog.String("time", q.Time))
	}
	return encode(struct {
		Occupants []transport.DescriptorView `json:"occupants"`
	}{transport.NewDescriptorViews(ds)})
}

func (s *SchedulingServer) Reserve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "Reserve"))

	var r transport.ReserveRequest
	if err := s.decode(req, &r); err != nil {
		return nil, s.fail(log, "reserve", err)
	}
	appt, err := s.svc.Reservations.Reserve(ctx, r.Input(idempotencyKey(ctx)))
	if err != nil {
		return nil, s.fail(log, "reserve", err,
			slog.String("date", r.Date),
			slog.String("time", r.Time),
			slog.String("stylist_id", r.StylistID),
			slog.String("customer_id", r.CustomerID),
		)
	}
	return encode(appointmentResponse(appt))
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *SchedulingServer) Reschedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "Reschedule"))

	var r transport.RescheduleRequest
	if err := s.decode(req, &r); err != nil {
		return nil, s.fail(log, "reschedule", err)
	}
	appt, err := s.svc.Appointments.Reschedule(ctx, r.Input())
	if err != nil {
		return nil, s.fail(log, "reschedule", err, slog.String("appointment_id", r.ID))
	}
	return encode(appointmentResponse(appt))
}

func (s *SchedulingServer) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "Cancel"))

	var r transport.CancelRequest
	if err := s.decode(req, &r); err != nil {
		return nil, s.fail(log, "cancel", err)
	}
	appt, err := s.svc.Appointments.Cancel(ctx, uuid.MustParse(r.ID), r.Reason)
	if err != nil {
		return nil, s.fail(log, "cancel", err, slog.String("appointment_id", r.ID))
	}
	return encode(appointmentResponse(appt))
}

func (s *SchedulingServer) GetAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))

	var r transport.IDRequest
	if err := s.decode(req, &r); err != nil {
		return nil, s.fail(log, "get appointment", err)
	}
	appt, err := s.svc.Appointments.Get(ctx, uuid.MustParse(r.ID))
	if err != nil {
		return nil, s.fail(log, "get appointment", err, slog.String("appointment_id", r.ID))
	}
	return encode(appointmentResponse(appt))
}

func (s *SchedulingServer) ListAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))

	var r transport.ListAppointmentsRequest
	if err := s.decode(req, &r); err != nil {
		return nil, s.fail(log, "list appointments", err)
	}
	rows, err := s.svc.Appointments.List(ctx, r.Input())
	if err != nil {
		return nil, s.fail(log, "list appointments", err)
	}

	log.Debug("appointments listed", slog.Int("count", len(rows)))
	return encode(struct {
		Appointments []transport.AppointmentView `json:"appointments"`
	}{transport.NewAppointmentViews(rows)})
}

func (s *SchedulingServer) CreateBlackout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateBlackout"))

	var r transport.CreateBlackoutRequest
	if err := s.decode(req, &r); err != nil {
		return nil, s.fail(log, "create blackout", err)
	}
	w, err := s.svc.Blackouts.Create(ctx, r.Input())
	if err != nil {
		return nil, s.fail(log, "create blackout", err, slog.String("date", r.Date))
	}
	return encode(struct {
		Blackout transport.BlackoutView `json:"blackout"`
	}{transport.NewBlackoutView(w)})
}

func (s *SchedulingServer) ListBlackouts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListBlackouts"))

	var r transport.ListBlackoutsRequest
	if err := s.decode(req, &r); err != nil {
		return nil, s.fail(log, "list blackouts", err)
	}
	seq, err := s.svc.Blackouts.ListActive(ctx, s.svc.AsOf(), store.BlackoutFilter{Date: r.Date, StylistID: r.StylistID})
	if err != nil {
		return nil, s.fail(log, "list blackouts", err)
	}
	out := []transport.BlackoutView{}
	for w := range seq {
		out = append(out, transport.NewBlackoutView(w))
	}
	return encode(struct {
		Blackouts []transport.BlackoutView `json:"blackouts"`
	}{out})
}

func (s *SchedulingServer) DeleteBlackout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DeleteBlackout"))

	var r transport.IDRequest
	if err := s.decode(req, &r); err != nil {
		return nil, s.fail(log, "delete blackout", err)
	}
	if err := s.svc.Blackouts.Delete(ctx, uuid.MustParse(r.ID)); err != nil {
		return nil, s.fail(log, "delete blackout", err, slog.String("blackout_id", r.ID))
	}
	log.Info("blackout deleted", slog.String("blackout_id", r.ID))
	return &structpb.Struct{}, nil
}

func (s *SchedulingServer) PruneBlackouts(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "PruneBlackouts"))

	n, err := s.svc.Blackouts.Prune(ctx, s.svc.AsOf())
	if err != nil {
		return nil, s.fail(log, "prune blackouts", err)
	}
	return encode(transport.PruneView{Removed: n})
}

func appointmentResponse(a domain.Appointment) any {
	return struct {
		Appointment transport.AppointmentView `json:"appointment"`
	}{transport.NewAppointmentView(a)}
}

// decode copies req into dst through its JSON form and validates the result.
func (s *SchedulingServer) decode(req *structpb.Struct, dst any) error {
	if req == nil {
		return transport.FieldErrors{{Field: "request", Message: "is required"}}
	}
	b, err := protojson.Marshal(req)
	if err != nil {
		return transport.FieldErrors{{Field: "request", Message: "is not a valid struct"}}
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return transport.FieldErrors{{Field: "request", Message: "has a field of the wrong type"}}
	}
	return s.validate.Struct(dst)
}

func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// fail logs err at the level its outcome deserves and converts it to a
// status error.
func (s *SchedulingServer) fail(log *slog.Logger, op string, err error, attrs ...any) error {
	out := transport.Classify(err)
	args := append([]any{slog.Any("err", err), slog.String("outcome", out.Kind.String())}, attrs...)

	switch out.Kind {
	case transport.KindConflict, transport.KindIdempotencyConflict, transport.KindNotFound:
		log.Info(op+" rejected", args...)
	case transport.KindInvalid:
		log.Warn(op+" invalid request", args...)
	case transport.KindTimeout:
		log.Warn(op+" timed out", args...)
	default:
		log.Error(op+" failed", args...)
	}
	return status.Error(Code(out.Kind), out.Message)
}

func Code(k transport.Kind) codes.Code {
	switch k {
	case transport.KindInvalid:
		return codes.InvalidArgument
	case transport.KindNotFound:
		return codes.NotFound
	case transport.KindConflict, transport.KindIdempotencyConflict:
		return codes.FailedPrecondition
	case transport.KindUnavailable:
		return codes.Unavailable
	case transport.KindTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}
