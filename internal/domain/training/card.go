package training

import (
	"sort"
	"time"
)

// Status of a personal, split or mini-group session.
type Status string

const (
	StatusPlanned  Status = "planned"
	StatusAttended Status = "attended"
	StatusMissed   Status = "missed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusAttended, StatusMissed:
		return true
	}
	return false
}

// Final reports whether the status consumes a credit.
func (s Status) Final() bool { return s == StatusAttended || s == StatusMissed }

// Session is one scheduled instance of a training card.
type Session struct {
	ID          string  `json:"id"`
	Date        Date    `json:"date"`
	Hour        int     `json:"hour"`
	Status      Status  `json:"status"`
	CoachIncome float64 `json:"coachIncome"`
}

func (s Session) SlotKey() string { return SlotKey(s.Date, s.Hour) }

// Card is a billable training card: personal, split or mini-group.
type Card struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"ownerId"`
	Kind            Kind       `json:"kind"`
	Name            string     `json:"name"`
	Participants    []string   `json:"participants"`
	Schedule        Recurrence `json:"schedule"`
	Total           int        `json:"total"`
	Remaining       int        `json:"remaining"`
	ActivePackage   Package    `json:"activePackage"`
	PackagesHistory []Package  `json:"packagesHistory"`
	Sessions        []Session  `json:"sessions"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func (c *Card) FindSession(id string) *Session {
	for i := range c.Sessions {
		if c.Sessions[i].ID == id {
			return &c.Sessions[i]
		}
	}
	return nil
}

// PlannedCount counts sessions still in the planned state.
func (c *Card) PlannedCount() int {
	n := 0
	for _, s := range c.Sessions {
		if s.Status == StatusPlanned {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.Schedule.Days = append([]time.Weekday(nil), c.Schedule.Days...)
	cp.PackagesHistory = append([]Package(nil), c.PackagesHistory...)
	cp.Sessions = append([]Session(nil), c.Sessions...)
	return &cp
}

// SortSessions orders sessions by (date, hour).
func SortSessions(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if c := sessions[i].Date.Compare(sessions[j].Date); c != 0 {
			return c < 0
		}
		return sessions[i].Hour < sessions[j].Hour
	})
}
