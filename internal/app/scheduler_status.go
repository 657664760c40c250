package app

import (
	"sort"
	"sync"
	"time"
)

// SchedulerStatus records poller runs for the health endpoint and /status.
type SchedulerStatus struct {
	mu            sync.Mutex
	enabled       bool
	mode          string
	spec          string
	lastRunAt     time.Time
	lastSuccessAt time.Time
	lastErrorAt   time.Time
	lastError     string
	dispatched    int
	integrations  map[string]bool
}

type SchedulerSnapshot struct {
	Enabled       bool            `json:"enabled"`
	Mode          string          `json:"mode"`
	Spec          string          `json:"spec"`
	LastRunAt     *time.Time      `json:"lastRunAt,omitempty"`
	LastSuccessAt *time.Time      `json:"lastSuccessAt,omitempty"`
	LastErrorAt   *time.Time      `json:"lastErrorAt,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
	Dispatched    int             `json:"dispatched"`
	Integrations  map[string]bool `json:"integrations"`
}

func NewSchedulerStatus(enabled bool, mode, spec string) *SchedulerStatus {
	return &SchedulerStatus{enabled: enabled, mode: mode, spec: spec, integrations: map[string]bool{}}
}

// SetIntegration marks an external dependency as configured and reachable.
func (s *SchedulerStatus) SetIntegration(name string, ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.integrations[name] = ready
}

func (s *SchedulerStatus) RecordRun(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunAt = at
}

func (s *SchedulerStatus) RecordSuccess(at time.Time, dispatched int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSuccessAt = at
	s.dispatched += dispatched
}

func (s *SchedulerStatus) RecordError(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErrorAt = at
	s.lastError = err.Error()
}

func (s *SchedulerStatus) Snapshot() SchedulerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := SchedulerSnapshot{
		Enabled:      s.enabled,
		Mode:         s.mode,
		Spec:         s.spec,
		LastError:    s.lastError,
		Dispatched:   s.dispatched,
		Integrations: make(map[string]bool, len(s.integrations)),
	}
	snap.LastRunAt = timePtr(s.lastRunAt)
	snap.LastSuccessAt = timePtr(s.lastSuccessAt)
	snap.LastErrorAt = timePtr(s.lastErrorAt)
	for k, v := range s.integrations {
		snap.Integrations[k] = v
	}
	return snap
}

// IntegrationNames lists known integrations in a stable order.
func (s SchedulerSnapshot) IntegrationNames() []string {
	names := make([]string, 0, len(s.Integrations))
	for k := range s.Integrations {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
