package app

import (
	"strings"
	"time"

	"attendpro/internal/domain/account"
	"attendpro/internal/domain/training"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CardInput describes a new billable card.
type CardInput struct {
	Kind         training.Kind
	Participants []string
	Days         []time.Weekday
	Hour         int
	PackageCount int
}

// CardService creates and edits cards and groups and keeps their schedules consistent.
type CardService struct {
	ws     *Workspace
	engine *ScheduleEngine
	loc    *time.Location
	logger *logrus.Entry
}

func NewCardService(ws *Workspace, engine *ScheduleEngine, loc *time.Location, logger *logrus.Entry) *CardService {
	if loc == nil {
		loc = time.Local
	}
	return &CardService{ws: ws, engine: engine, loc: loc, logger: logger}
}

func (c *CardService) today() training.Date {
	return training.DateOf(c.ws.Clock().Now().In(c.loc))
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// CreateCard validates the input, buys the first package and generates the schedule.
func (c *CardService) CreateCard(owner string, in CardInput) (*training.Card, error) {
	if !in.Kind.Valid() {
		return nil, validationf("unknown card kind %q", in.Kind)
	}
	participants := cleanNames(in.Participants)
	lo, hi := in.Kind.ParticipantBounds()
	if len(participants) < lo || len(participants) > hi {
		return nil, validationf("%s card needs %d-%d participants, got %d", in.Kind, lo, hi, len(participants))
	}
	rule, err := training.NewRecurrence(in.Days, in.Hour)
	if err != nil {
		return nil, validationf("%v", err)
	}

	now := c.ws.Clock().Now()
	today := c.today()
	var created *training.Card
	_, err = c.ws.Mutate(owner, "create_card", func(s *State) error {
		settings := s.SettingsOf(owner)
		pkg, err := training.BuildPackage(in.Kind, settings.TrainerCategory, in.PackageCount, len(participants), settings.CoachPercent, now)
		if err != nil {
			return validationf("%v", err)
		}
		card := &training.Card{
			ID:              uuid.NewString(),
			OwnerID:         owner,
			Kind:            in.Kind,
			Name:            strings.Join(participants, " / "),
			Participants:    participants,
			Schedule:        rule,
			Total:           pkg.Count,
			Remaining:       pkg.Count,
			ActivePackage:   pkg,
			PackagesHistory: []training.Package{pkg},
			Sessions:        []training.Session{},
			CreatedAt:       now,
		}
		c.engine.RegenerateCard(card, today, true)
		s.Cards = append(s.Cards, card)
		created = card.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{"card_id": created.ID, "kind": created.Kind, "sessions": len(created.Sessions)}).Info("Card created")
	return created, nil
}

// PurchasePackage appends a new active package and resets the credit counters.
func (c *CardService) PurchasePackage(owner, cardID string, count int) error {
	now := c.ws.Clock().Now()
	today := c.today()
	_, err := c.ws.Mutate(owner, "purchase_package", func(s *State) error {
		card := s.FindCard(owner, cardID)
		if card == nil {
			return notFoundf("card %s", cardID)
		}
		settings := s.SettingsOf(owner)
		pkg, err := training.BuildPackage(card.Kind, settings.TrainerCategory, count, len(card.Participants), settings.CoachPercent, now)
		if err != nil {
			return validationf("%v", err)
		}
		card.ActivePackage = pkg
		card.Total = pkg.Count
		card.Remaining = pkg.Count
		card.PackagesHistory = append(card.PackagesHistory, pkg)
		c.engine.RegenerateCard(card, today, true)
		return nil
	})
	return err
}

// UpdateCardSchedule replaces the recurrence rule and regenerates all future planned sessions.
func (c *CardService) UpdateCardSchedule(owner, cardID string, days []time.Weekday, hour int) error {
	rule, err := training.NewRecurrence(days, hour)
	if err != nil {
		return validationf("%v", err)
	}
	today := c.today()
	_, err = c.ws.Mutate(owner, "update_card_schedule", func(s *State) error {
		card := s.FindCard(owner, cardID)
		if card == nil {
			return notFoundf("card %s", cardID)
		}
		card.Schedule = rule
		c.engine.RegenerateCard(card, today, true)
		return nil
	})
	return err
}

func (c *CardService) DeleteCard(owner, cardID string) error {
	_, err := c.ws.Mutate(owner, "delete_card", func(s *State) error {
		for i, card := range s.Cards {
			if card.OwnerID == owner && card.ID == cardID {
				s.Cards = append(s.Cards[:i], s.Cards[i+1:]...)
				return nil
			}
		}
		return notFoundf("card %s", cardID)
	})
	return err
}

// CreateGroup builds a group with a named roster and its first 30 days of sessions.
func (c *CardService) CreateGroup(owner, name string, days []time.Weekday, hour int, members []string) (*training.GroupCard, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("group name is required")
	}
	names := cleanNames(members)
	if len(names) == 0 {
		return nil, validationf("group needs at least one member")
	}
	rule, err := training.NewRecurrence(days, hour)
	if err != nil {
		return nil, validationf("%v", err)
	}

	now := c.ws.Clock().Now()
	today := c.today()
	var created *training.GroupCard
	_, err = c.ws.Mutate(owner, "create_group", func(s *State) error {
		group := &training.GroupCard{
			ID:        uuid.NewString(),
			OwnerID:   owner,
			Name:      name,
			Schedule:  rule,
			Members:   make([]training.Member, 0, len(names)),
			Sessions:  []training.GroupSession{},
			CreatedAt: now,
		}
		for _, n := range names {
			group.Members = append(group.Members, training.Member{ID: uuid.NewString(), Name: n})
		}
		c.engine.RegenerateGroup(group, today)
		s.Groups = append(s.Groups, group)
		created = group.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{"group_id": created.ID, "members": len(created.Members)}).Info("Group created")
	return created, nil
}

func (c *CardService) UpdateGroupSchedule(owner, groupID string, days []time.Weekday, hour int) error {
	rule, err := training.NewRecurrence(days, hour)
	if err != nil {
		return validationf("%v", err)
	}
	today := c.today()
	_, err = c.ws.Mutate(owner, "update_group_schedule", func(s *State) error {
		group := s.FindGroup(owner, groupID)
		if group == nil {
			return notFoundf("group %s", groupID)
		}
		group.Schedule = rule
		c.engine.RegenerateGroup(group, today)
		return nil
	})
	return err
}

func (c *CardService) DeleteGroup(owner, groupID string) error {
	_, err := c.ws.Mutate(owner, "delete_group", func(s *State) error {
		for i, g := range s.Groups {
			if g.OwnerID == owner && g.ID == groupID {
				s.Groups = append(s.Groups[:i], s.Groups[i+1:]...)
				return nil
			}
		}
		return notFoundf("group %s", groupID)
	})
	return err
}

// UpdateSettings stores the owner's settings. Category and percent apply to packages bought afterwards.
func (c *CardService) UpdateSettings(owner string, settings account.Settings) error {
	if !settings.TrainerCategory.Valid() {
		return validationf("unknown trainer category %q", settings.TrainerCategory)
	}
	if settings.CoachPercent < 1 || settings.CoachPercent > 100 {
		return validationf("coach percent %v out of range 1-100", settings.CoachPercent)
	}
	if ar := settings.AutoReport; ar.Enabled {
		if _, err := training.NewRecurrence(ar.Days, ar.Hour); err != nil {
			return validationf("auto report: %v", err)
		}
	}
	_, err := c.ws.Mutate(owner, "update_settings", func(s *State) error {
		s.Settings[owner] = settings.Clone()
		return nil
	})
	return err
}

// RefreshSchedules regenerates every card and group of owner from today without
// forcing. It restores invariants after state was loaded or merged.
func (c *CardService) RefreshSchedules(owner string) error {
	_, err := c.ws.Reconcile(owner, "refresh_schedules", func(s *State) error {
		regenerateOwner(c.engine, s, owner, c.today())
		return nil
	})
	return err
}

func regenerateOwner(engine *ScheduleEngine, s *State, owner string, today training.Date) {
	for _, card := range s.CardsOf(owner) {
		engine.RegenerateCard(card, today, false)
	}
	for _, g := range s.GroupsOf(owner) {
		engine.RegenerateGroup(g, today)
	}
}
