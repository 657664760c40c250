package payroll

import (
	"time"

	"attendpro/internal/domain/training"
)

// Closure freezes a month's payroll for one owner. While it exists the month is locked.
type Closure struct {
	OwnerID  string         `json:"ownerId"`
	Month    training.Month `json:"month"`
	ClosedAt time.Time      `json:"closedAt"`
	Snapshot Report         `json:"snapshot"`
}

// Clone deep-copies the closure so the snapshot cannot be mutated through a shared slice.
func (c *Closure) Clone() *Closure {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Snapshot.Rows = append([]Row(nil), c.Snapshot.Rows...)
	if c.Snapshot.ClosedAt != nil {
		at := *c.Snapshot.ClosedAt
		cp.Snapshot.ClosedAt = &at
	}
	return &cp
}

// Frozen returns the snapshot as a closed report.
func (c *Closure) Frozen() Report {
	r := c.Clone().Snapshot
	r.IsClosed = true
	at := c.ClosedAt
	r.ClosedAt = &at
	return r
}
