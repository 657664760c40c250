package app

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"attendpro/internal/domain/account"
	"attendpro/internal/domain/training"
	idb "attendpro/internal/infra/database"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires timers only from Advance, never inside AfterFunc.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeAccountRepo is an in-memory remote with copy-on-read semantics.
type fakeAccountRepo struct {
	mu        sync.Mutex
	clock     Clock
	records   map[string]*account.Record
	updateErr error
	updates   int
	nextID    int64
}

func newFakeAccountRepo(clock Clock) *fakeAccountRepo {
	return &fakeAccountRepo{clock: clock, records: map[string]*account.Record{}}
}

// copy round-trips the document through JSON like a real remote would.
func (r *fakeAccountRepo) copy(rec *account.Record) *account.Record {
	cp := *rec
	data, err := json.Marshal(rec.State)
	if err != nil {
		panic(err)
	}
	cp.State = account.StateDocument{}
	if err := json.Unmarshal(data, &cp.State); err != nil {
		panic(err)
	}
	return &cp
}

func (r *fakeAccountRepo) Create(_ context.Context, rec *account.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.Email]; ok {
		return idb.ErrDuplicateEmail
	}
	r.nextID++
	rec.ID = r.nextID
	rec.UpdatedAt = r.clock.Now()
	r.records[rec.Email] = r.copy(rec)
	return nil
}

func (r *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*account.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[email]
	if !ok {
		return nil, idb.ErrAccountNotFound
	}
	return r.copy(rec), nil
}

func (r *fakeAccountRepo) UpdateState(_ context.Context, email, credentialHash string, doc account.StateDocument) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return 0, r.updateErr
	}
	rec, ok := r.records[email]
	if !ok || rec.CredentialHash != credentialHash {
		return 0, nil
	}
	next := *rec
	next.State = doc
	next.UpdatedAt = r.clock.Now()
	r.records[email] = r.copy(&next)
	r.updates++
	return 1, nil
}

func (r *fakeAccountRepo) ListAutoReportEnabled(_ context.Context) ([]*account.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*account.Record
	for _, rec := range r.records {
		if rec.State.Settings.AutoReport.Enabled {
			out = append(out, r.copy(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *fakeAccountRepo) SetLastSentSlot(_ context.Context, email, slotKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[email]
	if !ok {
		return idb.ErrAccountNotFound
	}
	rec.LastSentSlotKey = slotKey
	return nil
}

func (r *fakeAccountRepo) Updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

func (r *fakeAccountRepo) SetUpdateErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateErr = err
}

// fakeTelegram records sent reports. When block is set it waits for ctx.
type fakeTelegram struct {
	mu    sync.Mutex
	sent  []string
	err   error
	block bool
}

func (f *fakeTelegram) SendReport(ctx context.Context, text string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, text)
	return "msg-" + strconv.Itoa(len(f.sent)), nil
}

func (f *fakeTelegram) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// staticSessions is a SessionSource with a fixed account.
type staticSessions struct {
	sess account.Session
	ok   bool
}

func (s staticSessions) Session() (account.Session, bool) { return s.sess, s.ok }

var monday = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

const testOwner = "coach@example.com"

func newTestWorkspace(t *testing.T, now time.Time) (*Workspace, *fakeClock) {
	t.Helper()
	clock := newFakeClock(now)
	return NewWorkspace(NewState(), clock), clock
}

func mustCreateCard(t *testing.T, cards *CardService, owner string, days ...time.Weekday) string {
	t.Helper()
	card, err := cards.CreateCard(owner, CardInput{
		Kind:         training.KindPersonal,
		Participants: []string{"Иван"},
		Days:         days,
		Hour:         18,
		PackageCount: 5,
	})
	require.NoError(t, err)
	return card.ID
}
