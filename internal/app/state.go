package app

import (
	"sync"
	"time"

	"attendpro/internal/domain/account"
	"attendpro/internal/domain/payroll"
	"attendpro/internal/domain/training"
)

// State is the device-local application state tree. Rows of several owners
// may live side by side; every query filters by owner.
type State struct {
	Cards           []*training.Card             `json:"cards"`
	Groups          []*training.GroupCard        `json:"groups"`
	Closures        []*payroll.Closure           `json:"closures"`
	Settings        map[string]account.Settings  `json:"settings"`
	Sync            map[string]account.SyncState `json:"sync"`
	ReportCadence   map[string]string            `json:"reportCadence"`
	ConflictBackups []account.ConflictBackup     `json:"conflictBackups"`
}

func NewState() *State {
	return &State{
		Cards:         []*training.Card{},
		Groups:        []*training.GroupCard{},
		Closures:      []*payroll.Closure{},
		Settings:      map[string]account.Settings{},
		Sync:          map[string]account.SyncState{},
		ReportCadence: map[string]string{},
	}
}

// ensureMaps fills nil maps left by decoding an older state file.
func (s *State) ensureMaps() {
	if s.Settings == nil {
		s.Settings = map[string]account.Settings{}
	}
	if s.Sync == nil {
		s.Sync = map[string]account.SyncState{}
	}
	if s.ReportCadence == nil {
		s.ReportCadence = map[string]string{}
	}
}

func (s *State) Clone() *State {
	cp := &State{
		Cards:           make([]*training.Card, len(s.Cards)),
		Groups:          make([]*training.GroupCard, len(s.Groups)),
		Closures:        make([]*payroll.Closure, len(s.Closures)),
		Settings:        make(map[string]account.Settings, len(s.Settings)),
		Sync:            make(map[string]account.SyncState, len(s.Sync)),
		ReportCadence:   make(map[string]string, len(s.ReportCadence)),
		ConflictBackups: append([]account.ConflictBackup(nil), s.ConflictBackups...),
	}
	for i, c := range s.Cards {
		cp.Cards[i] = c.Clone()
	}
	for i, g := range s.Groups {
		cp.Groups[i] = g.Clone()
	}
	for i, c := range s.Closures {
		cp.Closures[i] = c.Clone()
	}
	for k, v := range s.Settings {
		cp.Settings[k] = v.Clone()
	}
	for k, v := range s.Sync {
		cp.Sync[k] = v
	}
	for k, v := range s.ReportCadence {
		cp.ReportCadence[k] = v
	}
	return cp
}

func (s *State) CardsOf(owner string) []*training.Card {
	out := []*training.Card{}
	for _, c := range s.Cards {
		if c.OwnerID == owner {
			out = append(out, c)
		}
	}
	return out
}

func (s *State) GroupsOf(owner string) []*training.GroupCard {
	out := []*training.GroupCard{}
	for _, g := range s.Groups {
		if g.OwnerID == owner {
			out = append(out, g)
		}
	}
	return out
}

func (s *State) ClosuresOf(owner string) []*payroll.Closure {
	out := []*payroll.Closure{}
	for _, c := range s.Closures {
		if c.OwnerID == owner {
			out = append(out, c)
		}
	}
	return out
}

func (s *State) FindCard(owner, id string) *training.Card {
	for _, c := range s.Cards {
		if c.OwnerID == owner && c.ID == id {
			return c
		}
	}
	return nil
}

func (s *State) FindGroup(owner, id string) *training.GroupCard {
	for _, g := range s.Groups {
		if g.OwnerID == owner && g.ID == id {
			return g
		}
	}
	return nil
}

func (s *State) FindClosure(owner string, month training.Month) *payroll.Closure {
	for _, c := range s.Closures {
		if c.OwnerID == owner && c.Month.Equal(month) {
			return c
		}
	}
	return nil
}

// IsLocked is the locking gate: a date is locked iff its month is closed for the owner.
func (s *State) IsLocked(owner string, d training.Date) bool {
	return s.FindClosure(owner, d.Month()) != nil
}

func (s *State) SettingsOf(owner string) account.Settings {
	if st, ok := s.Settings[owner]; ok {
		return st
	}
	return account.DefaultSettings()
}

func (s *State) HasData(owner string) bool {
	return len(s.CardsOf(owner)) > 0 || len(s.GroupsOf(owner)) > 0 || len(s.ClosuresOf(owner)) > 0
}

// Document copies the owner's rows into a state document.
func (s *State) Document(owner string) account.StateDocument {
	doc := account.StateDocument{
		Cards:         []*training.Card{},
		Groups:        []*training.GroupCard{},
		Closures:      []*payroll.Closure{},
		Settings:      s.SettingsOf(owner).Clone(),
		DataUpdatedAt: s.Sync[owner].LastDataChangeAt,
	}
	for _, c := range s.CardsOf(owner) {
		doc.Cards = append(doc.Cards, c.Clone())
	}
	for _, g := range s.GroupsOf(owner) {
		doc.Groups = append(doc.Groups, g.Clone())
	}
	for _, c := range s.ClosuresOf(owner) {
		doc.Closures = append(doc.Closures, c.Clone())
	}
	return doc
}

// replaceOwnerRows drops every row held for owner and adopts the document's
// rows re-stamped with owner. Rows of other owners are untouched.
func (s *State) replaceOwnerRows(owner string, doc account.StateDocument) {
	cards := []*training.Card{}
	for _, c := range s.Cards {
		if c.OwnerID != owner {
			cards = append(cards, c)
		}
	}
	for _, c := range doc.Cards {
		cp := c.Clone()
		cp.OwnerID = owner
		cards = append(cards, cp)
	}
	s.Cards = cards

	groups := []*training.GroupCard{}
	for _, g := range s.Groups {
		if g.OwnerID != owner {
			groups = append(groups, g)
		}
	}
	for _, g := range doc.Groups {
		cp := g.Clone()
		cp.OwnerID = owner
		groups = append(groups, cp)
	}
	s.Groups = groups

	closures := []*payroll.Closure{}
	for _, c := range s.Closures {
		if c.OwnerID != owner {
			closures = append(closures, c)
		}
	}
	for _, c := range doc.Closures {
		cp := c.Clone()
		cp.OwnerID = owner
		closures = append(closures, cp)
	}
	s.Closures = closures

	s.Settings[owner] = doc.Settings.Clone()
}

func (s *State) pushConflictBackup(b account.ConflictBackup) {
	s.ConflictBackups = append(s.ConflictBackups, b)
	if n := len(s.ConflictBackups); n > account.MaxConflictBackups {
		s.ConflictBackups = append([]account.ConflictBackup(nil), s.ConflictBackups[n-account.MaxConflictBackups:]...)
	}
}

// Commit describes one applied change to the workspace.
type Commit struct {
	OwnerID  string
	Reason   string
	At       time.Time
	Revision int64
	Dirty    bool // false for changes that came from the remote side
}

// CommitObserver is notified after every commit, outside the workspace lock.
type CommitObserver interface {
	OnCommit(c Commit)
}

type CommitObserverFunc func(c Commit)

func (f CommitObserverFunc) OnCommit(c Commit) { f(c) }

// Workspace owns the State. Mutations run against a cloned draft and are
// swapped in only when the mutation function succeeds, so a failed mutation
// leaves no partial change behind.
type Workspace struct {
	mu        sync.Mutex
	state     *State
	clock     Clock
	observers []CommitObserver
}

func NewWorkspace(st *State, clock Clock) *Workspace {
	if st == nil {
		st = NewState()
	}
	st.ensureMaps()
	return &Workspace{state: st, clock: clock}
}

func (w *Workspace) Observe(o CommitObserver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, o)
}

func (w *Workspace) Clock() Clock { return w.clock }

// View runs fn with read access to the current state. fn must not retain or modify it.
func (w *Workspace) View(fn func(s *State)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.state)
}

// Snapshot returns a deep copy of the current state.
func (w *Workspace) Snapshot() *State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Clone()
}

func (w *Workspace) SyncState(owner string) account.SyncState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Sync[owner]
}

// Mutate applies a user change for owner and marks the owner's data dirty.
func (w *Workspace) Mutate(owner, reason string, fn func(s *State) error) (Commit, error) {
	return w.apply(owner, reason, true, fn)
}

// Reconcile applies a change originating from sync. It does not set the dirty flag.
func (w *Workspace) Reconcile(owner, reason string, fn func(s *State) error) (Commit, error) {
	return w.apply(owner, reason, false, fn)
}

func (w *Workspace) apply(owner, reason string, dirty bool, fn func(s *State) error) (Commit, error) {
	w.mu.Lock()
	draft := w.state.Clone()
	if err := fn(draft); err != nil {
		w.mu.Unlock()
		return Commit{}, err
	}
	now := w.clock.Now()
	ss := draft.Sync[owner]
	if dirty {
		ss.PendingDataSync = true
		ss.LastDataChangeAt = now
		ss.Revision++
		draft.Sync[owner] = ss
	}
	w.state = draft
	commit := Commit{OwnerID: owner, Reason: reason, At: now, Revision: ss.Revision, Dirty: dirty}
	observers := append([]CommitObserver(nil), w.observers...)
	w.mu.Unlock()

	for _, o := range observers {
		o.OnCommit(commit)
	}
	return commit, nil
}
