package training

import (
	"sort"
	"time"
)

// Presence is a member's mark on a group session.
type Presence string

const (
	PresencePresent Presence = "present"
	PresenceAbsent  Presence = "absent"
)

func (p Presence) Valid() bool { return p == PresencePresent || p == PresenceAbsent }

type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GroupSession holds marks only for members that have been marked.
type GroupSession struct {
	ID         string              `json:"id"`
	Date       Date                `json:"date"`
	Hour       int                 `json:"hour"`
	Attendance map[string]Presence `json:"attendance"`
}

func (s GroupSession) SlotKey() string { return SlotKey(s.Date, s.Hour) }

func (s GroupSession) Marked() bool { return len(s.Attendance) > 0 }

// GroupCard is a non-billable group with a fixed roster.
type GroupCard struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"ownerId"`
	Name      string         `json:"name"`
	Schedule  Recurrence     `json:"schedule"`
	Members   []Member       `json:"members"`
	Sessions  []GroupSession `json:"sessions"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (g *GroupCard) HasMember(id string) bool {
	for _, m := range g.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (g *GroupCard) FindSession(id string) *GroupSession {
	for i := range g.Sessions {
		if g.Sessions[i].ID == id {
			return &g.Sessions[i]
		}
	}
	return nil
}

func (g *GroupCard) Clone() *GroupCard {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Schedule.Days = append([]time.Weekday(nil), g.Schedule.Days...)
	cp.Members = append([]Member(nil), g.Members...)
	cp.Sessions = make([]GroupSession, len(g.Sessions))
	for i, s := range g.Sessions {
		s.Attendance = cloneAttendance(s.Attendance)
		cp.Sessions[i] = s
	}
	return &cp
}

func cloneAttendance(in map[string]Presence) map[string]Presence {
	out := make(map[string]Presence, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func SortGroupSessions(sessions []GroupSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if c := sessions[i].Date.Compare(sessions[j].Date); c != 0 {
			return c < 0
		}
		return sessions[i].Hour < sessions[j].Hour
	})
}
