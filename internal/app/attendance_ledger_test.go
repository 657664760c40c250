package app

import (
	"encoding/json"
	"testing"
	"time"

	"attendpro/internal/domain/training"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerFixture struct {
	ws       *Workspace
	clock    *fakeClock
	cards    *CardService
	ledger   *AttendanceLedger
	closures *SalaryClosureStore
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	ws, clock := newTestWorkspace(t, monday)
	engine := NewScheduleEngine()
	return &ledgerFixture{
		ws:       ws,
		clock:    clock,
		cards:    NewCardService(ws, engine, time.UTC, testLogger()),
		ledger:   NewAttendanceLedger(ws, engine, time.UTC, testLogger()),
		closures: NewSalaryClosureStore(ws, testLogger()),
	}
}

func (f *ledgerFixture) card(t *testing.T, id string) *training.Card {
	t.Helper()
	var card *training.Card
	f.ws.View(func(s *State) { card = s.FindCard(testOwner, id).Clone() })
	require.NotNil(t, card)
	return card
}

func (f *ledgerFixture) stateJSON(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(f.ws.Snapshot())
	require.NoError(t, err)
	return data
}

func TestCreateCard_GeneratesPackageSchedule(t *testing.T) {
	f := newLedgerFixture(t)
	id := mustCreateCard(t, f.cards, testOwner, time.Monday, time.Wednesday, time.Friday)

	card := f.card(t, id)
	assert.Equal(t, 5, card.Total)
	assert.Equal(t, 5, card.Remaining)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-05", "2024-01-08", "2024-01-10"}, sessionDates(card.Sessions))
	assert.Equal(t, 675.0, card.Sessions[0].CoachIncome)
	assert.True(t, f.ws.SyncState(testOwner).PendingDataSync)
}

func TestCreateCard_Validation(t *testing.T) {
	f := newLedgerFixture(t)

	tests := []struct {
		name string
		in   CardInput
	}{
		{"unknown kind", CardInput{Kind: "yoga", Participants: []string{"A"}, Days: []time.Weekday{time.Monday}, Hour: 9, PackageCount: 5}},
		{"split needs two", CardInput{Kind: training.KindSplit, Participants: []string{"A"}, Days: []time.Weekday{time.Monday}, Hour: 9, PackageCount: 5}},
		{"no days", CardInput{Kind: training.KindPersonal, Participants: []string{"A"}, Hour: 9, PackageCount: 5}},
		{"bad hour", CardInput{Kind: training.KindPersonal, Participants: []string{"A"}, Days: []time.Weekday{time.Monday}, Hour: 24, PackageCount: 5}},
		{"not in price list", CardInput{Kind: training.KindPersonal, Participants: []string{"A"}, Days: []time.Weekday{time.Monday}, Hour: 9, PackageCount: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cards.CreateCard(testOwner, tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Zero(t, f.ws.SyncState(testOwner).Revision)
}

func TestMarkPersonal_ConsumesCredit(t *testing.T) {
	f := newLedgerFixture(t)
	id := mustCreateCard(t, f.cards, testOwner, time.Monday, time.Wednesday, time.Friday)
	first := f.card(t, id).Sessions[0].ID

	require.NoError(t, f.ledger.MarkPersonal(testOwner, id, first, training.StatusAttended))
	card := f.card(t, id)
	assert.Equal(t, 4, card.Remaining)
	assert.Equal(t, 4, card.PlannedCount())
	assert.Equal(t, training.StatusAttended, card.FindSession(first).Status)

	err := f.ledger.MarkPersonal(testOwner, id, first, training.StatusMissed)
	assert.ErrorIs(t, err, ErrValidation)

	err = f.ledger.MarkPersonal(testOwner, id, first, training.StatusPlanned)
	assert.ErrorIs(t, err, ErrValidation)

	err = f.ledger.MarkPersonal(testOwner, id, "missing", training.StatusAttended)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForceSetPersonalStatus_RestoresCredit(t *testing.T) {
	f := newLedgerFixture(t)
	id := mustCreateCard(t, f.cards, testOwner, time.Monday, time.Wednesday, time.Friday)
	first := f.card(t, id).Sessions[0].ID

	require.NoError(t, f.ledger.MarkPersonal(testOwner, id, first, training.StatusMissed))
	require.NoError(t, f.ledger.ForceSetPersonalStatus(testOwner, id, first, training.StatusAttended))
	assert.Equal(t, 4, f.card(t, id).Remaining)

	require.NoError(t, f.ledger.ForceSetPersonalStatus(testOwner, id, first, training.StatusPlanned))
	card := f.card(t, id)
	assert.Equal(t, 5, card.Remaining)
	assert.Equal(t, 5, card.PlannedCount())

	// leaving a final status never lifts remaining above total
	require.NoError(t, f.ledger.ForceSetPersonalStatus(testOwner, id, first, training.StatusPlanned))
	assert.Equal(t, 5, f.card(t, id).Remaining)
}

func TestReschedulePersonal_MovesToNextFreeDay(t *testing.T) {
	f := newLedgerFixture(t)
	id := mustCreateCard(t, f.cards, testOwner, time.Monday, time.Wednesday, time.Friday)
	first := f.card(t, id).Sessions[0].ID

	moved, err := f.ledger.ReschedulePersonal(testOwner, id, first)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-12", moved.String())

	card := f.card(t, id)
	assert.Equal(t, first, card.Sessions[len(card.Sessions)-1].ID)
	assert.Equal(t, 5, card.PlannedCount())
}

func TestLockedMonth_RejectsAtomically(t *testing.T) {
	f := newLedgerFixture(t)
	id := mustCreateCard(t, f.cards, testOwner, time.Monday, time.Wednesday, time.Friday)
	first := f.card(t, id).Sessions[0].ID

	_, err := f.closures.CloseMonth(testOwner, training.MustParseMonth("2024-01"))
	require.NoError(t, err)
	assert.True(t, f.ledger.IsDateLocked(testOwner, training.MustParseDate("2024-01-31")))
	assert.False(t, f.ledger.IsDateLocked(testOwner, training.MustParseDate("2024-02-01")))

	before := f.stateJSON(t)
	revision := f.ws.SyncState(testOwner).Revision

	err = f.ledger.MarkPersonal(testOwner, id, first, training.StatusAttended)
	assert.ErrorIs(t, err, ErrLockedPeriod)
	_, err = f.ledger.ReschedulePersonal(testOwner, id, first)
	assert.ErrorIs(t, err, ErrLockedPeriod)
	err = f.ledger.ForceSetPersonalStatus(testOwner, id, first, training.StatusMissed)
	assert.ErrorIs(t, err, ErrLockedPeriod)

	assert.JSONEq(t, string(before), string(f.stateJSON(t)))
	assert.Equal(t, revision, f.ws.SyncState(testOwner).Revision)
}

func TestSetGroupAttendance(t *testing.T) {
	f := newLedgerFixture(t)
	group, err := f.cards.CreateGroup(testOwner, "Утренняя группа", []time.Weekday{time.Tuesday}, 9, []string{"Анна", " ", "Борис"})
	require.NoError(t, err)
	require.Len(t, group.Members, 2)
	session := group.Sessions[0]
	member := group.Members[0].ID

	require.NoError(t, f.ledger.SetGroupAttendance(testOwner, group.ID, session.ID, member, training.PresencePresent))
	require.NoError(t, f.ledger.SetGroupAttendance(testOwner, group.ID, session.ID, member, training.PresenceAbsent))

	var marked training.GroupSession
	f.ws.View(func(s *State) { marked = *s.FindGroup(testOwner, group.ID).FindSession(session.ID) })
	assert.Equal(t, training.PresenceAbsent, marked.Attendance[member])
	assert.Len(t, marked.Attendance, 1)

	assert.ErrorIs(t, f.ledger.SetGroupAttendance(testOwner, group.ID, session.ID, "stranger", training.PresencePresent), ErrNotFound)
	assert.ErrorIs(t, f.ledger.SetGroupAttendance(testOwner, group.ID, session.ID, member, "late"), ErrValidation)
}

func TestPurchasePackage_ResetsCredit(t *testing.T) {
	f := newLedgerFixture(t)
	id := mustCreateCard(t, f.cards, testOwner, time.Monday)
	first := f.card(t, id).Sessions[0].ID
	require.NoError(t, f.ledger.MarkPersonal(testOwner, id, first, training.StatusAttended))

	require.NoError(t, f.cards.PurchasePackage(testOwner, id, 10))
	card := f.card(t, id)
	assert.Equal(t, 10, card.Total)
	assert.Equal(t, 10, card.Remaining)
	assert.Equal(t, 10, card.PlannedCount())
	assert.Len(t, card.PackagesHistory, 2)
	assert.Equal(t, training.StatusAttended, card.FindSession(first).Status)

	assert.ErrorIs(t, f.cards.PurchasePackage(testOwner, id, 3), ErrValidation)
}

func TestUpdateSettings_Validation(t *testing.T) {
	f := newLedgerFixture(t)
	settings := f.ws.Snapshot().SettingsOf(testOwner)

	bad := settings
	bad.CoachPercent = 0
	assert.ErrorIs(t, f.cards.UpdateSettings(testOwner, bad), ErrValidation)

	bad = settings
	bad.AutoReport.Enabled = true
	assert.ErrorIs(t, f.cards.UpdateSettings(testOwner, bad), ErrValidation)

	good := settings
	good.TrainerCategory = training.CategoryIII
	good.AutoReport.Enabled = true
	good.AutoReport.Days = []time.Weekday{time.Monday}
	require.NoError(t, f.cards.UpdateSettings(testOwner, good))
	assert.Equal(t, training.CategoryIII, f.ws.Snapshot().SettingsOf(testOwner).TrainerCategory)
}
