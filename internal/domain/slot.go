package domain

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidSlot = errors.New("invalid slot")

type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
)

// TimeSlot is a fixed start time in the salon's daily grid. Slots are
// referenced everywhere by Label.
type TimeSlot struct {
	Label  string
	Period Period
	Hour   int
	Minute int
}

const slotLabelLayout = "03:04 pm"

var catalog = []TimeSlot{
	{Label: "09:00 am", Period: PeriodMorning, Hour: 9, Minute: 0},
	{Label: "10:30 am", Period: PeriodMorning, Hour: 10, Minute: 30},
	{Label: "12:00 pm", Period: PeriodAfternoon, Hour: 12, Minute: 0},
	{Label: "01:30 pm", Period: PeriodAfternoon, Hour: 13, Minute: 30},
	{Label: "03:00 pm", Period: PeriodAfternoon, Hour: 15, Minute: 0},
	{Label: "04:30 pm", Period: PeriodAfternoon, Hour: 16, Minute: 30},
}

// ListSlots returns the daily grid in start-time order. The returned slice
// is a copy.
func ListSlots() []TimeSlot {
	out := make([]TimeSlot, len(catalog))
	copy(out, catalog)
	return out
}

func Periods() []Period {
	return []Period{PeriodMorning, PeriodAfternoon}
}

// SlotsByPeriod groups the catalog by period, preserving start-time order
// inside each group.
func SlotsByPeriod() map[Period][]TimeSlot {
	out := make(map[Period][]TimeSlot, 2)
	for _, s := range catalog {
		out[s.Period] = append(out[s.Period], s)
	}
	return out
}

// LookupSlot resolves a time string in any accepted notation to its catalog
// entry. Times that parse but are not on the grid are rejected.
func LookupSlot(label string) (TimeSlot, error) {
	canonical, err := NormalizeTimeLabel(label)
	if err != nil {
		return TimeSlot{}, ErrInvalidSlot
	}
	for _, s := range catalog {
		if s.Label == canonical {
			return s, nil
		}
	}
	return TimeSlot{}, ErrInvalidSlot
}

var timeLayouts = []string{
	"03:04 pm",
	"3:04 pm",
	"03:04pm",
	"3:04pm",
	"15:04",
	"15:04:05",
}

// NormalizeTimeLabel parses a clock time written as "9:00 AM", "09:00am" or
// "09:00" and renders it in the canonical "09:00 am" form.
func NormalizeTimeLabel(s string) (string, error) {
	t, err := parseClock(s)
	if err != nil {
		return "", err
	}
	return t.Format(slotLabelLayout), nil
}

func parseClock(s string) (time.Time, error) {
	v := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if v == "" {
		return time.Time{}, errors.New("empty time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized time " + `"` + s + `"`)
}
