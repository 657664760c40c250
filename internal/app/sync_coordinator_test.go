package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendpro/internal/domain/account"
	"attendpro/internal/domain/training"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type device struct {
	ws    *Workspace
	cards *CardService
	sync  *SyncCoordinator
}

func newDevice(clock *fakeClock, repo account.Repository, sess account.Session) *device {
	ws := NewWorkspace(NewState(), clock)
	engine := NewScheduleEngine()
	c := NewSyncCoordinator(ws, repo, engine, SyncOptions{Location: time.UTC}, testLogger())
	c.SignIn(sess)
	return &device{ws: ws, cards: NewCardService(ws, engine, time.UTC, testLogger()), sync: c}
}

func (d *device) cardIDs() []string {
	ids := []string{}
	d.ws.View(func(s *State) {
		for _, c := range s.CardsOf(testOwner) {
			ids = append(ids, c.ID)
		}
	})
	return ids
}

func registerTestAccount(t *testing.T, repo account.Repository) account.Session {
	t.Helper()
	sess, err := NewAccountService(repo, 0, 0, testLogger()).Register(context.Background(), testOwner, "secret-pass", "Коуч")
	require.NoError(t, err)
	return sess
}

func TestSync_PushThenPullIsFixedPoint(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	sess := registerTestAccount(t, repo)
	a := newDevice(clock, repo, sess)
	ctx := context.Background()

	mustCreateCard(t, a.cards, testOwner, time.Monday)
	require.True(t, a.ws.SyncState(testOwner).PendingDataSync)

	require.NoError(t, a.sync.Push(ctx))
	assert.False(t, a.ws.SyncState(testOwner).PendingDataSync)
	assert.Equal(t, 1, repo.Updates())

	outcome, err := a.sync.Pull(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, PullNoop, outcome)
	assert.Equal(t, PushClean, a.sync.Status().State)

	// nothing dirty, nothing to send
	require.NoError(t, a.sync.Push(ctx))
	assert.Equal(t, 1, repo.Updates())
}

func TestSync_LaterWriterWinsAcrossDevices(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	sess := registerTestAccount(t, repo)
	a := newDevice(clock, repo, sess)
	b := newDevice(clock, repo, sess)
	c := newDevice(clock, repo, sess)
	ctx := context.Background()

	// T1 on A
	clock.Advance(time.Minute)
	mustCreateCard(t, a.cards, testOwner, time.Monday)
	require.NoError(t, a.sync.Push(ctx))

	// T2 > T1 on B, which has not seen A's change
	clock.Advance(time.Minute)
	mustCreateCard(t, b.cards, testOwner, time.Tuesday)
	outcome, err := b.sync.Pull(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, PullPushedLocal, outcome)

	outcome, err = c.sync.Pull(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, PullMerged, outcome)

	outcome, err = a.sync.Pull(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, PullMerged, outcome)

	want := b.cardIDs()
	require.Len(t, want, 1)
	assert.Equal(t, want, a.cardIDs())
	assert.Equal(t, want, c.cardIDs())

	for _, d := range []*device{a, b, c} {
		outcome, err := d.sync.Pull(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, PullNoop, outcome)
	}
}

func TestSync_PullAdoptsNewerRemoteAndKeepsBackup(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	sess := registerTestAccount(t, repo)
	a := newDevice(clock, repo, sess)
	b := newDevice(clock, repo, sess)
	ctx := context.Background()

	clock.Advance(time.Minute)
	mustCreateCard(t, b.cards, testOwner, time.Tuesday)

	clock.Advance(time.Minute)
	mustCreateCard(t, a.cards, testOwner, time.Monday)
	require.NoError(t, a.sync.Push(ctx))

	outcome, err := b.sync.Pull(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, PullAdopted, outcome)
	assert.Equal(t, a.cardIDs(), b.cardIDs())
	assert.False(t, b.ws.SyncState(testOwner).PendingDataSync)

	snap := b.ws.Snapshot()
	require.Len(t, snap.ConflictBackups, 1)
	assert.Len(t, snap.ConflictBackups[0].Local.Cards, 1)
	assert.Len(t, snap.ConflictBackups[0].Remote.Cards, 1)
}

func TestSync_PullWithoutRemote(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	d := newDevice(clock, repo, account.Session{ID: testOwner, Email: testOwner, CredentialHash: "h"})

	outcome, err := d.sync.Pull(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, PullNoRemote, outcome)
}

func TestSync_PushCreatesMissingRecord(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	d := newDevice(clock, repo, account.Session{ID: testOwner, Email: testOwner, CredentialHash: "h"})

	mustCreateCard(t, d.cards, testOwner, time.Monday)
	require.NoError(t, d.sync.Push(context.Background()))

	rec, err := repo.GetByEmail(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Len(t, rec.State.Cards, 1)
}

func TestSync_CredentialConflictIsNotRetried(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	registerTestAccount(t, repo)
	d := newDevice(clock, repo, account.Session{ID: testOwner, Email: testOwner, CredentialHash: "someone-else"})
	d.sync.Start()
	defer d.sync.Stop()

	mustCreateCard(t, d.cards, testOwner, time.Monday)
	clock.Advance(DefaultDebounce)

	err := d.sync.Push(context.Background())
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotEqual(t, PushRetryScheduled, d.sync.Status().State)
	assert.True(t, d.ws.SyncState(testOwner).PendingDataSync)

	_, err = d.sync.Pull(context.Background(), false)
	assert.ErrorIs(t, err, ErrCredentialMismatch)
}

func TestSync_DebounceCoalescesCommits(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	sess := registerTestAccount(t, repo)
	d := newDevice(clock, repo, sess)
	d.sync.Start()
	defer d.sync.Stop()

	mustCreateCard(t, d.cards, testOwner, time.Monday)
	clock.Advance(time.Second)
	mustCreateCard(t, d.cards, testOwner, time.Wednesday)
	clock.Advance(time.Second)
	assert.Zero(t, repo.Updates())
	assert.Equal(t, PushDirty, d.sync.Status().State)

	clock.Advance(DefaultDebounce)
	assert.Equal(t, 1, repo.Updates())
	assert.Equal(t, PushClean, d.sync.Status().State)

	rec, err := repo.GetByEmail(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Len(t, rec.State.Cards, 2)
}

func TestSync_ReconcileCommitsDoNotTriggerPush(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	sess := registerTestAccount(t, repo)
	d := newDevice(clock, repo, sess)
	d.sync.Start()
	defer d.sync.Stop()

	require.NoError(t, d.cards.RefreshSchedules(testOwner))
	assert.Zero(t, clock.Active())
}

func TestSync_BackoffDoublesAndResets(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	sess := registerTestAccount(t, repo)
	d := newDevice(clock, repo, sess)
	d.sync.Start()
	defer d.sync.Stop()

	repo.SetUpdateErr(errors.New("connection refused"))
	mustCreateCard(t, d.cards, testOwner, time.Monday)

	clock.Advance(DefaultDebounce)
	st := d.sync.Status()
	assert.Equal(t, PushRetryScheduled, st.State)
	assert.Equal(t, "2s", st.Backoff)
	assert.Contains(t, st.LastError, "connection refused")

	clock.Advance(2 * time.Second)
	assert.Equal(t, "4s", d.sync.Status().Backoff)

	clock.Advance(4 * time.Second)
	assert.Equal(t, "8s", d.sync.Status().Backoff)

	repo.SetUpdateErr(nil)
	clock.Advance(8 * time.Second)
	st = d.sync.Status()
	assert.Equal(t, PushClean, st.State)
	assert.Empty(t, st.Backoff)
	assert.Equal(t, 1, repo.Updates())
}

func TestSync_BackoffIsCapped(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	sess := registerTestAccount(t, repo)
	d := newDevice(clock, repo, sess)
	d.sync.Start()
	defer d.sync.Stop()

	repo.SetUpdateErr(context.DeadlineExceeded)
	mustCreateCard(t, d.cards, testOwner, time.Monday)
	clock.Advance(DefaultDebounce)
	for i := 0; i < 10; i++ {
		clock.Advance(DefaultRetryMax)
	}
	st := d.sync.Status()
	assert.Equal(t, DefaultRetryMax.String(), st.Backoff)
	assert.Contains(t, st.LastError, ErrTimeout.Error())
}

func TestSync_RequiresSession(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	d := newDevice(clock, repo, account.Session{ID: testOwner, Email: testOwner})
	d.sync.SignOut()

	assert.ErrorIs(t, d.sync.Push(context.Background()), ErrNotSignedIn)
	_, err := d.sync.Pull(context.Background(), false)
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.ErrorIs(t, d.sync.Bootstrap(context.Background()), ErrNotSignedIn)
}

func TestSync_BootstrapAdoptsRemoteOnFreshDevice(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	sess := registerTestAccount(t, repo)
	a := newDevice(clock, repo, sess)
	ctx := context.Background()

	cardID := mustCreateCard(t, a.cards, testOwner, time.Monday)
	require.NoError(t, a.sync.Push(ctx))

	fresh := newDevice(clock, repo, sess)
	require.NoError(t, fresh.sync.Bootstrap(ctx))
	assert.Equal(t, []string{cardID}, fresh.cardIDs())

	var card *training.Card
	fresh.ws.View(func(s *State) { card = s.FindCard(testOwner, cardID).Clone() })
	assert.Equal(t, card.Remaining, card.PlannedCount())
}

func TestSync_SuccessfulPushKeepsNewerCommitsDirty(t *testing.T) {
	clock := newFakeClock(monday)
	repo := &slowRepo{fakeAccountRepo: newFakeAccountRepo(clock)}
	sess := registerTestAccount(t, repo)
	d := newDevice(clock, repo, sess)

	mustCreateCard(t, d.cards, testOwner, time.Monday)
	repo.during = func() { mustCreateCard(t, d.cards, testOwner, time.Friday) }

	require.NoError(t, d.sync.Push(context.Background()))
	assert.True(t, d.ws.SyncState(testOwner).PendingDataSync)
}

func TestSync_EqualTimestamps(t *testing.T) {
	tests := []struct {
		name          string
		preferRemote  bool
		wantOutcome   PullOutcome
		wantBackups   int
		wantLocalWins bool
	}{
		{"prefer remote adopts with backup", true, PullAdopted, 1, false},
		{"default keeps local and pushes", false, PullPushedLocal, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock(monday)
			repo := newFakeAccountRepo(clock)
			sess := registerTestAccount(t, repo)
			a := newDevice(clock, repo, sess)
			b := newDevice(clock, repo, sess)
			ctx := context.Background()

			mustCreateCard(t, a.cards, testOwner, time.Monday)
			require.NoError(t, a.sync.Push(ctx))
			localID := mustCreateCard(t, b.cards, testOwner, time.Tuesday)

			rec, err := repo.GetByEmail(ctx, testOwner)
			require.NoError(t, err)
			require.True(t, rec.DataTimestamp().Equal(b.ws.SyncState(testOwner).LocalTimestamp()))

			outcome, err := b.sync.Pull(ctx, tt.preferRemote)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Len(t, b.ws.Snapshot().ConflictBackups, tt.wantBackups)
			assert.False(t, b.ws.SyncState(testOwner).PendingDataSync)
			if tt.wantLocalWins {
				assert.Equal(t, []string{localID}, b.cardIDs())
			} else {
				assert.Equal(t, a.cardIDs(), b.cardIDs())
			}
		})
	}
}

func TestSync_MergeLeavesOtherOwnersUntouched(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	sess := registerTestAccount(t, repo)
	a := newDevice(clock, repo, sess)
	b := newDevice(clock, repo, sess)
	ctx := context.Background()

	const other = "other@example.com"
	otherID := mustCreateCard(t, b.cards, other, time.Wednesday)

	clock.Advance(time.Minute)
	ownID := mustCreateCard(t, a.cards, testOwner, time.Monday)
	require.NoError(t, a.sync.Push(ctx))

	outcome, err := b.sync.Pull(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, PullMerged, outcome)
	assert.Equal(t, []string{ownID}, b.cardIDs())

	b.ws.View(func(s *State) {
		cards := s.CardsOf(other)
		require.Len(t, cards, 1)
		assert.Equal(t, otherID, cards[0].ID)
		assert.Equal(t, other, cards[0].OwnerID)
		assert.Len(t, cards[0].Sessions, 5)
	})
	assert.True(t, b.ws.SyncState(other).PendingDataSync)
}

func TestSync_ConflictBackupRingKeepsNewestFive(t *testing.T) {
	clock := newFakeClock(monday)
	repo := newFakeAccountRepo(clock)
	sess := registerTestAccount(t, repo)
	a := newDevice(clock, repo, sess)
	b := newDevice(clock, repo, sess)
	ctx := context.Background()

	const rounds = account.MaxConflictBackups + 2
	for i := 1; i <= rounds; i++ {
		clock.Advance(time.Minute)
		mustCreateCard(t, b.cards, testOwner, time.Tuesday)
		clock.Advance(time.Minute)
		mustCreateCard(t, a.cards, testOwner, time.Monday)
		require.NoError(t, a.sync.Push(ctx))

		outcome, err := b.sync.Pull(ctx, false)
		require.NoError(t, err)
		require.Equal(t, PullAdopted, outcome, "round %d", i)
	}

	backups := b.ws.Snapshot().ConflictBackups
	require.Len(t, backups, account.MaxConflictBackups)
	// rounds 1 and 2 were dropped; round i saw i remote cards
	assert.Len(t, backups[0].Remote.Cards, 3)
	assert.Len(t, backups[len(backups)-1].Remote.Cards, rounds)
	for i := 1; i < len(backups); i++ {
		assert.True(t, backups[i-1].At.Before(backups[i].At))
	}
}

func TestSync_MidPushCommitsGetOneFollowUp(t *testing.T) {
	clock := newFakeClock(monday)
	repo := &slowRepo{fakeAccountRepo: newFakeAccountRepo(clock)}
	sess := registerTestAccount(t, repo)
	d := newDevice(clock, repo, sess)
	d.sync.Start()
	defer d.sync.Stop()

	mustCreateCard(t, d.cards, testOwner, time.Monday)
	repo.during = func() {
		mustCreateCard(t, d.cards, testOwner, time.Wednesday)
		mustCreateCard(t, d.cards, testOwner, time.Friday)
	}

	clock.Advance(DefaultDebounce)
	assert.Equal(t, 1, repo.Updates())
	assert.Equal(t, PushDirty, d.sync.Status().State)

	clock.Advance(DefaultDebounce)
	assert.Equal(t, 2, repo.Updates())
	assert.Equal(t, PushClean, d.sync.Status().State)

	clock.Advance(10 * DefaultDebounce)
	assert.Equal(t, 2, repo.Updates())
	rec, err := repo.GetByEmail(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Len(t, rec.State.Cards, 3)
}

// slowRepo runs a callback while UpdateState is in flight.
type slowRepo struct {
	*fakeAccountRepo
	during func()
}

func (r *slowRepo) UpdateState(ctx context.Context, email, hash string, doc account.StateDocument) (int64, error) {
	if r.during != nil {
		fn := r.during
		r.during = nil
		fn()
	}
	return r.fakeAccountRepo.UpdateState(ctx, email, hash, doc)
}
