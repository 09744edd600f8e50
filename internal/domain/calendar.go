package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidStylist = errors.New("invalid stylist")
)

// DateLayout is the storage form of every calendar day.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"January 2006 2",
	"2 January 2006",
	"Monday, January 2, 2006",
}

// Calendar interprets date and slot labels in the salon's single configured
// time zone.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// ParseDate accepts the date notations used across booking and admin screens
// and returns midnight of that day in the salon zone.
func (c Calendar) ParseDate(s string) (time.Time, error) {
	v := strings.Join(strings.Fields(s), " ")
	if v == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, c.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// NormalizeDate renders any accepted date notation as YYYY-MM-DD.
func (c Calendar) NormalizeDate(s string) (string, error) {
	t, err := c.ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

// At combines a date and a clock label into an instant in the salon zone.
func (c Calendar) At(date, clock string) (time.Time, error) {
	day, err := c.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	t, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, c.Location()), nil
}

// EndOfDay is 23:59:59 of date in the salon zone.
func (c Calendar) EndOfDay(date string) (time.Time, error) {
	day, err := c.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, c.Location()), nil
}

// Today is the salon-local calendar day containing now.
func (c Calendar) Today(now time.Time) string {
	return now.In(c.Location()).Format(DateLayout)
}

// SlotKey identifies a bookable unit. At most one non-cancelled appointment
// may exist per key.
type SlotKey struct {
	Date      string
	Time      string
	StylistID string
}

func (k SlotKey) String() string {
	return k.Date + "|" + k.Time + "|" + k.StylistID
}

// StylistAll scopes a blackout window to every stylist.
const StylistAll = "All"

func IsAllStylists(stylistID string) bool {
	return strings.EqualFold(strings.TrimSpace(stylistID), StylistAll)
}

// NormalizeKey validates and canonicalizes a booking key: the date must parse,
// the time must be a catalog slot, and the stylist must name one person.
func (c Calendar) NormalizeKey(date, clock, stylistID string) (SlotKey, error) {
	slot, err := LookupSlot(clock)
	if err != nil {
		return SlotKey{}, err
	}
	d, err := c.NormalizeDate(date)
	if err != nil {
		return SlotKey{}, err
	}
	stylist := strings.TrimSpace(stylistID)
	if stylist == "" || IsAllStylists(stylist) {
		return SlotKey{}, ErrInvalidStylist
	}
	return SlotKey{Date: d, Time: slot.Label, StylistID: stylist}, nil
}
