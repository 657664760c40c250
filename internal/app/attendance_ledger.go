package app

import (
	"fmt"
	"time"

	"attendpro/internal/domain/training"

	"github.com/sirupsen/logrus"
)

// AttendanceLedger owns session status transitions and the remaining-credit counters.
type AttendanceLedger struct {
	ws     *Workspace
	engine *ScheduleEngine
	loc    *time.Location
	logger *logrus.Entry
}

func NewAttendanceLedger(ws *Workspace, engine *ScheduleEngine, loc *time.Location, logger *logrus.Entry) *AttendanceLedger {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceLedger{ws: ws, engine: engine, loc: loc, logger: logger}
}

func (l *AttendanceLedger) today() training.Date {
	return training.DateOf(l.ws.Clock().Now().In(l.loc))
}

// personalSession resolves a card session and applies the locking gate.
func personalSession(s *State, owner, cardID, sessionID string) (*training.Card, *training.Session, error) {
	card := s.FindCard(owner, cardID)
	if card == nil {
		return nil, nil, notFoundf("card %s", cardID)
	}
	session := card.FindSession(sessionID)
	if session == nil {
		return nil, nil, notFoundf("session %s of card %s", sessionID, cardID)
	}
	if s.IsLocked(owner, session.Date) {
		return nil, nil, fmt.Errorf("%w: %s", ErrLockedPeriod, session.Date.Month())
	}
	return card, session, nil
}

// MarkPersonal moves a planned session to attended or missed and consumes one credit.
func (l *AttendanceLedger) MarkPersonal(owner, cardID, sessionID string, status training.Status) error {
	if !status.Final() {
		return validationf("status %q is not a final status", status)
	}
	today := l.today()
	_, err := l.ws.Mutate(owner, "mark_personal", func(s *State) error {
		card, session, err := personalSession(s, owner, cardID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != training.StatusPlanned {
			return validationf("session %s is already %s", sessionID, session.Status)
		}
		session.Status = status
		card.Remaining = max(0, card.Remaining-1)
		l.engine.RegenerateCard(card, today, false)
		return nil
	})
	if err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{"card_id": cardID, "session_id": sessionID}).Warn("Mark personal session rejected")
		return err
	}
	return nil
}

// ForceSetPersonalStatus sets any status and adjusts credit: -1 entering a
// final status, +1 leaving one, clamped to [0, total].
func (l *AttendanceLedger) ForceSetPersonalStatus(owner, cardID, sessionID string, status training.Status) error {
	if !status.Valid() {
		return validationf("unknown status %q", status)
	}
	today := l.today()
	_, err := l.ws.Mutate(owner, "force_set_personal_status", func(s *State) error {
		card, session, err := personalSession(s, owner, cardID, sessionID)
		if err != nil {
			return err
		}
		wasFinal, willBeFinal := session.Status.Final(), status.Final()
		session.Status = status
		switch {
		case !wasFinal && willBeFinal:
			card.Remaining = max(0, card.Remaining-1)
		case wasFinal && !willBeFinal:
			card.Remaining = min(card.Total, card.Remaining+1)
		}
		l.engine.RegenerateCard(card, today, false)
		return nil
	})
	if err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{"card_id": cardID, "session_id": sessionID}).Warn("Force status change rejected")
	}
	return err
}

// ReschedulePersonal moves a planned session to the card's next free recurrence day.
func (l *AttendanceLedger) ReschedulePersonal(owner, cardID, sessionID string) (training.Date, error) {
	var moved training.Date
	_, err := l.ws.Mutate(owner, "reschedule_personal", func(s *State) error {
		card, session, err := personalSession(s, owner, cardID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != training.StatusPlanned {
			return validationf("only planned sessions can be rescheduled, session %s is %s", sessionID, session.Status)
		}
		moved = l.engine.NextAvailableDate(card, session.Date, session.ID)
		session.Date = moved
		training.SortSessions(card.Sessions)
		return nil
	})
	if err != nil {
		return training.Date{}, err
	}
	l.logger.WithFields(logrus.Fields{"card_id": cardID, "session_id": sessionID, "date": moved.String()}).Info("Session rescheduled")
	return moved, nil
}

// SetGroupAttendance records presence for a roster member. Groups carry no credit.
func (l *AttendanceLedger) SetGroupAttendance(owner, groupID, sessionID, memberID string, presence training.Presence) error {
	if !presence.Valid() {
		return validationf("unknown presence %q", presence)
	}
	_, err := l.ws.Mutate(owner, "set_group_attendance", func(s *State) error {
		group := s.FindGroup(owner, groupID)
		if group == nil {
			return notFoundf("group %s", groupID)
		}
		session := group.FindSession(sessionID)
		if session == nil {
			return notFoundf("session %s of group %s", sessionID, groupID)
		}
		if !group.HasMember(memberID) {
			return notFoundf("member %s of group %s", memberID, groupID)
		}
		if s.IsLocked(owner, session.Date) {
			return fmt.Errorf("%w: %s", ErrLockedPeriod, session.Date.Month())
		}
		if session.Attendance == nil {
			session.Attendance = map[string]training.Presence{}
		}
		session.Attendance[memberID] = presence
		return nil
	})
	return err
}

// IsDateLocked exposes the locking gate to callers outside a mutation.
func (l *AttendanceLedger) IsDateLocked(owner string, d training.Date) bool {
	locked := false
	l.ws.View(func(s *State) { locked = s.IsLocked(owner, d) })
	return locked
}
