package training

import (
	"fmt"
	"sort"
	"time"
)

// Recurrence is a fixed weekly rule: a set of weekdays at one hour of the day.
type Recurrence struct {
	Days []time.Weekday `json:"days"`
	Hour int            `json:"hour"`
}

// NewRecurrence validates and normalises a rule. Days are deduplicated and
// ordered Monday first.
func NewRecurrence(days []time.Weekday, hour int) (Recurrence, error) {
	if hour < 0 || hour > 23 {
		return Recurrence{}, fmt.Errorf("hour %d out of range 0-23", hour)
	}
	if len(days) == 0 {
		return Recurrence{}, fmt.Errorf("at least one weekday is required")
	}
	seen := make(map[time.Weekday]bool, len(days))
	norm := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return Recurrence{}, fmt.Errorf("invalid weekday %d", d)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		norm = append(norm, d)
	}
	sort.Slice(norm, func(i, j int) bool { return mondayFirst(norm[i]) < mondayFirst(norm[j]) })
	return Recurrence{Days: norm, Hour: hour}, nil
}

func mondayFirst(d time.Weekday) int { return (int(d) + 6) % 7 }

func (r Recurrence) Contains(d time.Weekday) bool {
	for _, day := range r.Days {
		if day == d {
			return true
		}
	}
	return false
}

// TimeLabel renders the hour as HH:00.
func (r Recurrence) TimeLabel() string { return HourLabel(r.Hour) }

// NextOnOrAfter returns the first date on or after d whose weekday is in the
// rule. ok is false for a rule without days.
func (r Recurrence) NextOnOrAfter(d Date) (next Date, ok bool) {
	best := -1
	from := int(d.Weekday())
	for _, day := range r.Days {
		delta := (int(day) - from + 7) % 7
		if best < 0 || delta < best {
			best = delta
		}
	}
	if best < 0 {
		return Date{}, false
	}
	return d.AddDays(best), true
}

func HourLabel(hour int) string { return fmt.Sprintf("%02d:00", hour) }

// SlotKey names a (date, hour) slot; it is the collision key for sessions.
func SlotKey(d Date, hour int) string {
	return fmt.Sprintf("%s__%02d", d.String(), hour)
}
