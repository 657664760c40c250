// Package idempotency holds dedupe stores used when the postgres table is not configured.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"attendpro/internal/domain/notification"
)

// DefaultTTL is how long a reservation blocks its key.
const DefaultTTL = 36 * time.Hour

var ErrRecordNotFound = fmt.Errorf("dispatch record not found")

type memoryEntry struct {
	rec     notification.IdempotencyRecord
	expires time.Time
}

// MemoryStore is an in-process TTL map. It only dedupes within one process.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: map[string]*memoryEntry{}}
}

// WithNow replaces the store's time source.
func (s *MemoryStore) WithNow(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Reserve(_ context.Context, rec *notification.IdempotencyRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictLocked(now)
	if _, ok := s.entries[rec.DedupeKey]; ok {
		return false, nil
	}
	cp := *rec
	cp.Status = notification.StatusPending
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.entries[rec.DedupeKey] = &memoryEntry{rec: cp, expires: now.Add(s.ttl)}
	return true, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, dedupeKey, messageID string) error {
	return s.update(dedupeKey, func(r *notification.IdempotencyRecord) {
		r.Status = notification.StatusSent
		r.MessageID = messageID
	})
}

func (s *MemoryStore) MarkFailed(_ context.Context, dedupeKey, reason string) error {
	return s.update(dedupeKey, func(r *notification.IdempotencyRecord) {
		r.Status = notification.StatusFailed
		r.Error = reason
	})
}

func (s *MemoryStore) update(dedupeKey string, fn func(r *notification.IdempotencyRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[dedupeKey]
	if !ok {
		return ErrRecordNotFound
	}
	fn(&e.rec)
	e.rec.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, dedupeKey string) (*notification.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(s.now())
	e, ok := s.entries[dedupeKey]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := e.rec
	return &cp, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(s.now())
	return len(s.entries)
}

func (s *MemoryStore) evictLocked(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
}
