package app

import (
	"attendpro/internal/domain/training"

	"github.com/google/uuid"
)

const (
	// MaxScheduleDays bounds every forward walk over a card's calendar (~10 years).
	MaxScheduleDays = 3660
	// GroupHorizonDays is the rolling window a group schedule covers.
	GroupHorizonDays = 30
	// MaxGroupScheduleSteps bounds the group walk.
	MaxGroupScheduleSteps = 500
)

// ScheduleEngine materialises future sessions from recurrence rules.
type ScheduleEngine struct {
	newID      func() string
	groupSteps int
}

func NewScheduleEngine() *ScheduleEngine {
	return &ScheduleEngine{newID: uuid.NewString, groupSteps: MaxGroupScheduleSteps}
}

// RegenerateCard rebuilds the planned part of card's schedule from start.
// Marked sessions and sessions dated before start are kept untouched.
// Planned sessions on or after start are kept (re-timed and re-priced) up to
// the remaining credit unless forceFuture discards them; the deficit is then
// filled with new planned sessions on free recurrence slots.
func (e *ScheduleEngine) RegenerateCard(card *training.Card, start training.Date, forceFuture bool) {
	var reserved, future []training.Session
	for _, s := range card.Sessions {
		switch {
		case s.Status.Final():
			reserved = append(reserved, s)
		case s.Date.Before(start):
			reserved = append(reserved, s)
		default:
			future = append(future, s)
		}
	}

	occupied := make(map[string]bool, len(reserved)+card.Remaining)
	for _, s := range reserved {
		occupied[s.SlotKey()] = true
	}

	hour := card.Schedule.Hour
	income := card.ActivePackage.CoachIncomePerSession()
	target := card.Remaining
	if target < 0 {
		target = 0
	}

	kept := make([]training.Session, 0, target)
	if !forceFuture {
		training.SortSessions(future)
		for _, s := range future {
			if len(kept) >= target {
				break
			}
			key := training.SlotKey(s.Date, hour)
			if occupied[key] {
				continue
			}
			s.Hour = hour
			s.CoachIncome = income
			occupied[key] = true
			kept = append(kept, s)
		}
	}

	generated := e.fillCard(card.Schedule, start, target-len(kept), income, occupied)

	sessions := make([]training.Session, 0, len(reserved)+len(kept)+len(generated))
	sessions = append(sessions, reserved...)
	sessions = append(sessions, kept...)
	sessions = append(sessions, generated...)
	training.SortSessions(sessions)
	card.Sessions = sessions
}

// fillCard jumps between recurrence days with weekday arithmetic. The walk is
// still bounded by MaxScheduleDays from start, so an empty or saturated rule terminates.
func (e *ScheduleEngine) fillCard(rule training.Recurrence, start training.Date, deficit int, income float64, occupied map[string]bool) []training.Session {
	var out []training.Session
	limit := start.AddDays(MaxScheduleDays)
	cursor := start
	for deficit > 0 {
		next, ok := rule.NextOnOrAfter(cursor)
		if !ok || !next.Before(limit) {
			break
		}
		key := training.SlotKey(next, rule.Hour)
		if !occupied[key] {
			occupied[key] = true
			out = append(out, training.Session{
				ID:          e.newID(),
				Date:        next,
				Hour:        rule.Hour,
				Status:      training.StatusPlanned,
				CoachIncome: income,
			})
			deficit--
		}
		cursor = next.AddDays(1)
	}
	return out
}

// RegenerateGroup keeps past and pre-marked sessions and fills the 30-day
// horizon from start with empty sessions.
func (e *ScheduleEngine) RegenerateGroup(group *training.GroupCard, start training.Date) {
	var preserved []training.GroupSession
	for _, s := range group.Sessions {
		if s.Date.Before(start) || s.Marked() {
			preserved = append(preserved, s)
		}
	}

	occupied := make(map[string]bool, len(preserved))
	for _, s := range preserved {
		occupied[s.SlotKey()] = true
	}

	horizon := start.AddDays(GroupHorizonDays)
	cursor := start
	for steps := 0; steps < e.groupSteps; steps++ {
		next, ok := group.Schedule.NextOnOrAfter(cursor)
		if !ok || next.After(horizon) {
			break
		}
		key := training.SlotKey(next, group.Schedule.Hour)
		if !occupied[key] {
			occupied[key] = true
			preserved = append(preserved, training.GroupSession{
				ID:         e.newID(),
				Date:       next,
				Hour:       group.Schedule.Hour,
				Attendance: map[string]training.Presence{},
			})
		}
		cursor = next.AddDays(1)
	}

	training.SortGroupSessions(preserved)
	group.Sessions = preserved
}

// NextAvailableDate finds the first recurrence day after current that has no
// other session of the card at the card's hour. If none exists within the
// ceiling it falls back to current+1.
func (e *ScheduleEngine) NextAvailableDate(card *training.Card, current training.Date, excludingSessionID string) training.Date {
	taken := make(map[string]bool, len(card.Sessions))
	for _, s := range card.Sessions {
		if s.ID != excludingSessionID {
			taken[s.SlotKey()] = true
		}
	}

	first := current.AddDays(1)
	limit := first.AddDays(MaxScheduleDays)
	cursor := first
	for {
		next, ok := card.Schedule.NextOnOrAfter(cursor)
		if !ok || !next.Before(limit) {
			return first
		}
		if !taken[training.SlotKey(next, card.Schedule.Hour)] {
			return next
		}
		cursor = next.AddDays(1)
	}
}
