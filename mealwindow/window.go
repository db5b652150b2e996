// Package mealwindow maps an instant to the meal being served at a service
// point. It holds no state: windows are configuration passed in by the caller.
package mealwindow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Slot names one service period of the day.
type Slot string

const (
	Breakfast Slot = "breakfast"
	Lunch     Slot = "lunch"
	Dinner    Slot = "dinner"
)

// Valid reports whether s is one of the known slots.
func (s Slot) Valid() bool {
	switch s {
	case Breakfast, Lunch, Dinner:
		return true
	}
	return false
}

// ParseSlot parses a slot name case-insensitively.
func ParseSlot(s string) (Slot, error) {
	slot := Slot(strings.ToLower(strings.TrimSpace(s)))
	if !slot.Valid() {
		return "", fmt.Errorf("mealwindow: unknown slot %q", s)
	}
	return slot, nil
}

// Clock is a wall-clock time of day, in seconds since local midnight.
type Clock int

// At builds a Clock from hours, minutes and seconds.
func At(h, m, s int) Clock { return Clock(h*3600 + m*60 + s) }

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("mealwindow: bad clock %q", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("mealwindow: bad clock %q", s)
		}
		v[i] = n
	}
	if v[0] > 24 || v[1] > 59 || v[2] > 59 || (v[0] == 24 && (v[1] > 0 || v[2] > 0)) {
		return 0, fmt.Errorf("mealwindow: bad clock %q", s)
	}
	return At(v[0], v[1], v[2]), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(c)/3600, int(c)%3600/60, int(c)%60)
}

func clockOf(t time.Time) Clock {
	return At(t.Hour(), t.Minute(), t.Second())
}

// Window is a half-open [Start, End) span of local time for one slot.
// End may be 24:00 to run to midnight.
type Window struct {
	Slot  Slot  `json:"slot" yaml:"slot"`
	Start Clock `json:"start" yaml:"start"`
	End   Clock `json:"end" yaml:"end"`
}

// Contains applies start <= c < end.
func (w Window) Contains(c Clock) bool { return w.Start <= c && c < w.End }

// Schedule is a service point's ordered, non-overlapping windows in its own
// time zone.
type Schedule struct {
	Location *time.Location
	Windows  []Window
}

// DefaultWindows are the hall's stock meal hours.
func DefaultWindows() []Window {
	return []Window{
		{Slot: Breakfast, Start: At(7, 0, 0), End: At(10, 0, 0)},
		{Slot: Lunch, Start: At(12, 0, 0), End: At(15, 0, 0)},
		{Slot: Dinner, Start: At(19, 0, 0), End: At(22, 0, 0)},
	}
}

// NewSchedule validates and orders windows. A nil location means UTC.
func NewSchedule(loc *time.Location, windows []Window) (Schedule, error) {
	if loc == nil {
		loc = time.UTC
	}
	ws := append([]Window(nil), windows...)
	sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })
	seen := make(map[Slot]bool, len(ws))
	for i, w := range ws {
		if !w.Slot.Valid() {
			return Schedule{}, fmt.Errorf("mealwindow: unknown slot %q", w.Slot)
		}
		if seen[w.Slot] {
			return Schedule{}, fmt.Errorf("mealwindow: slot %s defined twice", w.Slot)
		}
		seen[w.Slot] = true
		if w.Start < 0 || w.End > At(24, 0, 0) || w.Start >= w.End {
			return Schedule{}, fmt.Errorf("mealwindow: %s window %s-%s is empty or out of range", w.Slot, w.Start, w.End)
		}
		if i > 0 && ws[i-1].End > w.Start {
			return Schedule{}, fmt.Errorf("mealwindow: %s overlaps %s", ws[i-1].Slot, w.Slot)
		}
	}
	return Schedule{Location: loc, Windows: ws}, nil
}

// LocalDate returns the calendar date of instant at the schedule's location,
// as midnight UTC of that date.
func (s Schedule) LocalDate(instant time.Time) time.Time {
	l := instant.In(s.loc())
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
}

// Resolve returns the window containing instant, if any. ok=false means no
// meal is being served; that is an ordinary outcome, not an error.
func (s Schedule) Resolve(instant time.Time) (Window, bool) {
	c := clockOf(instant.In(s.loc()))
	for _, w := range s.Windows {
		if w.Contains(c) {
			return w, true
		}
	}
	return Window{}, false
}

// Next returns the first window starting after instant's local time of day,
// wrapping to tomorrow's first window. ok=false only for an empty schedule.
func (s Schedule) Next(instant time.Time) (Window, time.Time, bool) {
	if len(s.Windows) == 0 {
		return Window{}, time.Time{}, false
	}
	l := instant.In(s.loc())
	c := clockOf(l)
	midnight := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, s.loc())
	for _, w := range s.Windows {
		if w.Start > c {
			return w, addClock(midnight, w.Start), true
		}
	}
	first := s.Windows[0]
	return first, addClock(midnight.AddDate(0, 0, 1), first.Start), true
}

func addClock(midnight time.Time, c Clock) time.Time {
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), int(c)/3600, int(c)%3600/60, int(c)%60, 0, midnight.Location())
}

func (s Schedule) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}
