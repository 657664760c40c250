package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"attendpro/internal/domain/account"
	"attendpro/internal/domain/training"
	idb "attendpro/internal/infra/database"

	"github.com/sirupsen/logrus"
)

const (
	DefaultDebounce      = 1200 * time.Millisecond
	DefaultRetryBase     = 2 * time.Second
	DefaultRetryMax      = 60 * time.Second
	DefaultRemoteTimeout = 15 * time.Second
)

// PushState is the coordinator's view of the signed-in account.
type PushState string

const (
	PushClean          PushState = "clean"
	PushDirty          PushState = "dirty"
	PushPushing        PushState = "pushing"
	PushRetryScheduled PushState = "retry-scheduled"
)

// PullOutcome says what a pull did to local state.
type PullOutcome string

const (
	PullNoop        PullOutcome = "noop"
	PullMerged      PullOutcome = "merged"
	PullAdopted     PullOutcome = "adopted" // local snapshot backed up first
	PullPushedLocal PullOutcome = "pushed_local"
	PullNoRemote    PullOutcome = "no_remote"
)

type SyncOptions struct {
	Debounce  time.Duration
	RetryBase time.Duration
	RetryMax  time.Duration
	Timeout   time.Duration
	Location  *time.Location
}

func (o *SyncOptions) withDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.RetryBase <= 0 {
		o.RetryBase = DefaultRetryBase
	}
	if o.RetryMax <= 0 {
		o.RetryMax = DefaultRetryMax
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultRemoteTimeout
	}
	if o.Location == nil {
		o.Location = time.Local
	}
}

// SyncStatus is a point-in-time view for health output and the CLI.
type SyncStatus struct {
	State     PushState `json:"state"`
	Pending   bool      `json:"pending"`
	InFlight  bool      `json:"inFlight"`
	Queued    bool      `json:"queued"`
	Backoff   string    `json:"backoff,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// SyncCoordinator pushes local commits of the signed-in account to the remote
// record and pulls remote changes back. At most one push is in flight; commits
// that arrive during a push are coalesced into a single follow-up push.
type SyncCoordinator struct {
	ws     *Workspace
	repo   account.Repository
	engine *ScheduleEngine
	opts   SyncOptions
	logger *logrus.Entry

	mu       sync.Mutex
	session  *account.Session
	running  bool
	inFlight bool
	queued   bool
	debounce Timer
	retry    Timer
	backoff  time.Duration
	lastErr  error
}

func NewSyncCoordinator(ws *Workspace, repo account.Repository, engine *ScheduleEngine, opts SyncOptions, logger *logrus.Entry) *SyncCoordinator {
	opts.withDefaults()
	c := &SyncCoordinator{ws: ws, repo: repo, engine: engine, opts: opts, logger: logger}
	ws.Observe(c)
	return c
}

// SignIn sets the account whose data the coordinator keeps in sync.
func (c *SyncCoordinator) SignIn(sess account.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimersLocked()
	c.session = &sess
	c.backoff = 0
	c.lastErr = nil
}

func (c *SyncCoordinator) SignOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimersLocked()
	c.session = nil
}

func (c *SyncCoordinator) Session() (account.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return account.Session{}, false
	}
	return *c.session, true
}

// Start enables automatic pushes. Pending changes left from an earlier run are scheduled right away.
func (c *SyncCoordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	if c.session != nil && c.ws.SyncState(c.session.ID).PendingDataSync {
		c.armDebounceLocked()
	}
}

// Stop cancels pending timers. A push already in flight runs to completion.
func (c *SyncCoordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.stopTimersLocked()
}

func (c *SyncCoordinator) stopTimersLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// OnCommit arms the debounce for local changes of the signed-in account.
func (c *SyncCoordinator) OnCommit(commit Commit) {
	if !commit.Dirty {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.session == nil || commit.OwnerID != c.session.ID {
		return
	}
	if c.inFlight {
		c.queued = true
		return
	}
	c.armDebounceLocked()
}

func (c *SyncCoordinator) armDebounceLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
	}
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.debounce = c.ws.Clock().AfterFunc(c.opts.Debounce, c.flush)
}

func (c *SyncCoordinator) flush() {
	c.mu.Lock()
	c.debounce = nil
	c.retry = nil
	running := c.running
	c.mu.Unlock()
	if !running {
		return
	}
	if err := c.Push(context.Background()); err != nil {
		c.logger.WithError(err).Warn("Background push failed")
	}
}

// Status reports the push state of the signed-in account.
func (c *SyncCoordinator) Status() SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := SyncStatus{State: PushClean, InFlight: c.inFlight, Queued: c.queued}
	if c.session != nil {
		st.Pending = c.ws.SyncState(c.session.ID).PendingDataSync
	}
	switch {
	case c.inFlight:
		st.State = PushPushing
	case c.retry != nil:
		st.State = PushRetryScheduled
	case st.Pending:
		st.State = PushDirty
	}
	if c.backoff > 0 {
		st.Backoff = c.backoff.String()
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Push sends the signed-in account's state to the remote record. If a push is
// already in flight the call is queued behind it and returns nil.
func (c *SyncCoordinator) Push(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	if c.inFlight {
		c.queued = true
		c.mu.Unlock()
		return nil
	}
	sess := *c.session
	if !c.ws.SyncState(sess.ID).PendingDataSync {
		c.mu.Unlock()
		return nil
	}
	c.inFlight = true
	c.queued = false
	c.mu.Unlock()

	err := c.push(ctx, sess)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	c.lastErr = err
	queued := c.queued
	c.queued = false

	if err != nil {
		if errors.Is(err, ErrConflict) || !c.running {
			return err
		}
		c.scheduleRetryLocked()
		return err
	}

	c.backoff = 0
	if c.running && (queued || c.ws.SyncState(sess.ID).PendingDataSync) {
		c.armDebounceLocked()
	}
	return nil
}

func (c *SyncCoordinator) scheduleRetryLocked() {
	if c.backoff == 0 {
		c.backoff = c.opts.RetryBase
	} else {
		c.backoff = min(c.backoff*2, c.opts.RetryMax)
	}
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.retry = c.ws.Clock().AfterFunc(c.backoff, c.flush)
	c.logger.WithField("backoff", c.backoff.String()).Info("Push retry scheduled")
}

func (c *SyncCoordinator) push(ctx context.Context, sess account.Session) error {
	var doc account.StateDocument
	var revision int64
	c.ws.View(func(s *State) {
		doc = s.Document(sess.ID)
		revision = s.Sync[sess.ID].Revision
	})

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	n, err := c.repo.UpdateState(callCtx, sess.Email, sess.CredentialHash, doc)
	if err != nil {
		return remoteErr("update remote state", err)
	}
	if n == 0 {
		existing, err := c.repo.GetByEmail(callCtx, sess.Email)
		switch {
		case err == nil && existing.CredentialHash != sess.CredentialHash:
			return fmt.Errorf("%w: %s", ErrConflict, sess.Email)
		case err == nil:
			return fmt.Errorf("%w: remote record for %s changed during update", ErrNetwork, sess.Email)
		case errors.Is(err, idb.ErrAccountNotFound):
			rec := &account.Record{
				Email:          sess.Email,
				CredentialHash: sess.CredentialHash,
				DisplayName:    sess.DisplayName,
				State:          doc,
			}
			if err := c.repo.Create(callCtx, rec); err != nil {
				if errors.Is(err, idb.ErrDuplicateEmail) {
					return fmt.Errorf("%w: %s", ErrConflict, sess.Email)
				}
				return remoteErr("create remote record", err)
			}
		default:
			return remoteErr("look up remote record", err)
		}
	}

	now := c.ws.Clock().Now()
	_, err = c.ws.Reconcile(sess.ID, "push_succeeded", func(s *State) error {
		ss := s.Sync[sess.ID]
		ss.LastCloudUpdateAt = now
		if ss.Revision == revision {
			ss.PendingDataSync = false
			ss.LastDataChangeAt = now
		}
		s.Sync[sess.ID] = ss
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{"account": sess.Email, "revision": revision}).Info("Pushed local state")
	return nil
}

// Pull fetches the remote record and reconciles it with local state.
func (c *SyncCoordinator) Pull(ctx context.Context, preferRemoteOnConflict bool) (PullOutcome, error) {
	sess, ok := c.Session()
	if !ok {
		return PullNoop, ErrNotSignedIn
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	rec, err := c.repo.GetByEmail(callCtx, sess.Email)
	cancel()
	if err != nil {
		if errors.Is(err, idb.ErrAccountNotFound) {
			return PullNoRemote, nil
		}
		return PullNoop, remoteErr("fetch remote record", err)
	}
	if rec.CredentialHash != sess.CredentialHash {
		return PullNoop, fmt.Errorf("%w: %s", ErrCredentialMismatch, sess.Email)
	}

	remoteAt := rec.DataTimestamp()
	var ss account.SyncState
	var hasData bool
	c.ws.View(func(s *State) {
		ss = s.Sync[sess.ID]
		hasData = s.HasData(sess.ID)
	})
	localAt := ss.LocalTimestamp()
	remoteNewer := remoteAt.After(localAt)

	if ss.PendingDataSync && (hasData || rec.State.IsEmpty()) {
		if remoteNewer || (preferRemoteOnConflict && !remoteAt.Before(localAt)) {
			if err := c.adopt(sess, rec, remoteAt, true); err != nil {
				return PullNoop, err
			}
			return PullAdopted, nil
		}
		if err := c.Push(ctx); err != nil {
			return PullNoop, err
		}
		return PullPushedLocal, nil
	}

	if !hasData || remoteNewer {
		if err := c.adopt(sess, rec, remoteAt, false); err != nil {
			return PullNoop, err
		}
		return PullMerged, nil
	}
	return PullNoop, nil
}

func (c *SyncCoordinator) adopt(sess account.Session, rec *account.Record, remoteAt time.Time, backup bool) error {
	now := c.ws.Clock().Now()
	if remoteAt.IsZero() {
		remoteAt = now
	}
	today := training.DateOf(now.In(c.opts.Location))
	_, err := c.ws.Reconcile(sess.ID, "pull_merge", func(s *State) error {
		if backup {
			s.pushConflictBackup(account.ConflictBackup{
				At:      now,
				OwnerID: sess.ID,
				Local:   s.Document(sess.ID),
				Remote:  rec.State,
			})
		}
		s.replaceOwnerRows(sess.ID, rec.State)
		regenerateOwner(c.engine, s, sess.ID, today)
		ss := s.Sync[sess.ID]
		ss.PendingDataSync = false
		ss.LastDataChangeAt = remoteAt
		ss.LastCloudUpdateAt = remoteAt
		s.Sync[sess.ID] = ss
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{"account": sess.Email, "backup": backup, "cards": len(rec.State.Cards)}).Info("Adopted remote state")
	return nil
}

// Bootstrap runs on login or launch: push first when dirty, otherwise pull
// first and push if the pull left changes behind.
func (c *SyncCoordinator) Bootstrap(ctx context.Context) error {
	sess, ok := c.Session()
	if !ok {
		return ErrNotSignedIn
	}
	if c.ws.SyncState(sess.ID).PendingDataSync {
		if err := c.Push(ctx); err != nil {
			return err
		}
		_, err := c.Pull(ctx, false)
		return err
	}
	if _, err := c.Pull(ctx, false); err != nil {
		return err
	}
	if c.ws.SyncState(sess.ID).PendingDataSync {
		return c.Push(ctx)
	}
	return nil
}

func remoteErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
}
