package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
	"salonbook/backend/internal/store/memory"
)

type fakeSource struct {
	findAppointmentsFn func(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error)
	findBlackoutsFn    func(ctx context.Context, filter store.BlackoutFilter) ([]domain.BlackoutWindow, error)
}

func (f *fakeSource) FindAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	if f.findAppointmentsFn == nil {
		panic("FindAppointments not configured")
	}
	return f.findAppointmentsFn(ctx, filter)
}

func (f *fakeSource) FindBlackouts(ctx context.Context, filter store.BlackoutFilter) ([]domain.BlackoutWindow, error) {
	if f.findBlackoutsFn == nil {
		panic("FindBlackouts not configured")
	}
	return f.findBlackoutsFn(ctx, filter)
}

var morning = time.Date(2025, 10, 6, 8, 0, 0, 0, time.UTC)

func newResolver(t *testing.T, src Source, now time.Time) *Resolver {
	t.Helper()
	return NewResolver(src, domain.NewCalendar(time.UTC)).WithClock(func() time.Time { return now })
}

func TestIsAvailable_BlackoutForAllBlocksEveryStylist(t *testing.T) {
	mem := memory.New()
	ctx := context.Background()
	if _, err := mem.UpsertBlackout(ctx, domain.BlackoutWindow{
		Date: "2025-10-07", Time: "09:00 am", StylistID: domain.StylistAll, Kind: domain.BlackoutUnavailable,
	}); err != nil {
		t.Fatalf("UpsertBlackout error: %v", err)
	}
	r := newResolver(t, mem, morning)

	for _, stylist := range []string{"stylist-1", "stylist-2", "anyone"} {
		ok, err := r.IsAvailable(ctx, "2025-10-07", "09:00 am", stylist)
		if err != nil {
			t.Fatalf("IsAvailable(%s) error: %v", stylist, err)
		}
		if ok {
			t.Fatalf("IsAvailable(%s) = true, want false", stylist)
		}
	}

	ok, err := r.IsAvailable(ctx, "2025-10-07", "10:30 am", "stylist-1")
	if err != nil {
		t.Fatalf("IsAvailable error: %v", err)
	}
	if !ok {
		t.Fatalf("neighbouring slot should be free")
	}
}

func TestIsAvailable_Matrix(t *testing.T) {
	mem := memory.New()
	ctx := context.Background()
	seed := func(a domain.Appointment) {
		if _, err := mem.UpsertAppointment(ctx, a); err != nil {
			t.Fatalf("seed appointment: %v", err)
		}
	}
	seed(domain.Appointment{Date: "2025-10-07", Time: "09:00 am", StylistID: "stylist-1", CustomerID: "a", Status: domain.StatusConfirmed})
	seed(domain.Appointment{Date: "2025-10-07", Time: "10:30 am", StylistID: "stylist-1", CustomerID: "b", Status: domain.StatusCancelled})
	seed(domain.Appointment{Date: "2025-10-07", Time: "12:00 pm", StylistID: "stylist-1", CustomerID: "c", Status: domain.StatusPending})

	windows := []domain.BlackoutWindow{
		{Date: "2025-10-08", StylistID: "stylist-2", Kind: domain.BlackoutUnavailable},
		{Date: "2025-10-08", Time: "03:00 pm", StylistID: "stylist-1", Kind: domain.BlackoutBooked},
		// Ends 2025-10-05 23:59:59, before the clock.
		{Date: "2025-10-05", StylistID: domain.StylistAll, Kind: domain.BlackoutUnavailable},
	}
	for _, w := range windows {
		if _, err := mem.UpsertBlackout(ctx, w); err != nil {
			t.Fatalf("seed blackout: %v", err)
		}
	}
	r := newResolver(t, mem, morning)

	tests := []struct {
		name    string
		date    string
		clock   string
		stylist string
		want    bool
	}{
		{"confirmed holds key", "2025-10-07", "09:00 am", "stylist-1", false},
		{"other stylist same slot", "2025-10-07", "09:00 am", "stylist-2", true},
		{"cancelled frees key", "2025-10-07", "10:30 am", "stylist-1", true},
		{"pending holds key", "2025-10-07", "12:00 pm", "stylist-1", false},
		{"alternate notation", "October 7, 2025", "9:00 AM", "stylist-1", false},
		{"whole day blackout", "2025-10-08", "04:30 pm", "stylist-2", false},
		{"whole day is per stylist", "2025-10-08", "04:30 pm", "stylist-1", true},
		{"booked kind blocks", "2025-10-08", "03:00 pm", "stylist-1", false},
		{"expired window ignored", "2025-10-05", "09:00 am", "stylist-1", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.IsAvailable(ctx, tc.date, tc.clock, tc.stylist)
			if err != nil {
				t.Fatalf("IsAvailable error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("IsAvailable = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsAvailable_InvalidInput(t *testing.T) {
	r := newResolver(t, &fakeSource{}, morning)
	ctx := context.Background()

	if _, err := r.IsAvailable(ctx, "2025-10-07", "08:15 am", "s"); !errors.Is(err, domain.ErrInvalidSlot) {
		t.Fatalf("err = %v, want %v", err, domain.ErrInvalidSlot)
	}
	if _, err := r.IsAvailable(ctx, "not a date", "09:00 am", "s"); !errors.Is(err, domain.ErrInvalidDate) {
		t.Fatalf("err = %v, want %v", err, domain.ErrInvalidDate)
	}
	if _, err := r.IsAvailable(ctx, "2025-10-07", "09:00 am", "All"); !errors.Is(err, domain.ErrInvalidStylist) {
		t.Fatalf("err = %v, want %v", err, domain.ErrInvalidStylist)
	}
}

func TestIsAvailable_StorageFailure(t *testing.T) {
	boom := errors.New("connection reset")
	r := newResolver(t, &fakeSource{
		findAppointmentsFn: func(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
			return nil, boom
		},
	}, morning)

	_, err := r.IsAvailable(context.Background(), "2025-10-07", "09:00 am", "s")
	if !errors.Is(err, store.ErrStorage) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want storage failure wrapping %v", err, boom)
	}
}

func TestDescribeSlot(t *testing.T) {
	mem := memory.New()
	ctx := context.Background()
	if _, err := mem.UpsertAppointment(ctx, domain.Appointment{
		Date: "2025-10-07", Time: "09:00 am", StylistID: "stylist-1", CustomerID: "a", CustomerName: "Thandi",
		ServiceRefs: []string{"braids"}, Status: domain.StatusConfirmed,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := mem.UpsertBlackout(ctx, domain.BlackoutWindow{
		Date: "2025-10-07", StylistID: "stylist-2", Reason: "training", Kind: domain.BlackoutUnavailable,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := mem.UpsertBlackout(ctx, domain.BlackoutWindow{
		Date: "2025-10-07", Time: "10:30 am", StylistID: domain.StylistAll, Kind: domain.BlackoutUnavailable,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := newResolver(t, mem, morning)

	got, err := r.DescribeSlot(ctx, "Oct 7, 2025", "09:00")
	if err != nil {
		t.Fatalf("DescribeSlot error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("descriptors = %+v, want 2", got)
	}
	if got[0].Kind != DescriptorAppointment || got[0].CustomerName != "Thandi" {
		t.Fatalf("first = %+v, want Thandi's appointment", got[0])
	}
	if got[1].Kind != DescriptorBlackout || got[1].Reason != "training" || !got[1].WholeDay {
		t.Fatalf("second = %+v, want whole-day training window", got[1])
	}
}

func TestAvailability_DayView(t *testing.T) {
	mem := memory.New()
	ctx := context.Background()
	if _, err := mem.UpsertAppointment(ctx, domain.Appointment{
		Date: "2025-10-07", Time: "12:00 pm", StylistID: "stylist-1", CustomerID: "a", Status: domain.StatusConfirmed,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := mem.UpsertBlackout(ctx, domain.BlackoutWindow{
		Date: "2025-10-07", Time: "03:00 pm", StylistID: domain.StylistAll, Reason: "stock take", Kind: domain.BlackoutUnavailable,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// 11:00 on the day: morning slots are past.
	r := newResolver(t, mem, time.Date(2025, 10, 7, 11, 0, 0, 0, time.UTC))

	day, err := r.Availability(ctx, "2025-10-07", "stylist-1")
	if err != nil {
		t.Fatalf("Availability error: %v", err)
	}
	want := map[string]SlotState{
		"09:00 am": StatePast,
		"10:30 am": StatePast,
		"12:00 pm": StateBooked,
		"01:30 pm": StateFree,
		"03:00 pm": StateBlocked,
		"04:30 pm": StateFree,
	}
	if len(day.Slots) != len(want) {
		t.Fatalf("slots = %d, want %d", len(day.Slots), len(want))
	}
	for _, s := range day.Slots {
		if s.State != want[s.Slot.Label] {
			t.Fatalf("%s state = %s, want %s", s.Slot.Label, s.State, want[s.Slot.Label])
		}
		if s.State == StateBlocked && s.Reason != "stock take" {
			t.Fatalf("blocked reason = %q", s.Reason)
		}
	}

	other, err := r.Availability(ctx, "2025-10-07", "stylist-2")
	if err != nil {
		t.Fatalf("Availability error: %v", err)
	}
	for _, s := range other.Slots {
		if s.Slot.Label == "12:00 pm" && s.State != StateFree {
			t.Fatalf("stylist-2 12:00 pm = %s, want free", s.State)
		}
	}
}
