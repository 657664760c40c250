// internal/domain/notification/dispatch.go
package notification

import (
	"fmt"
	"time"

	"attendpro/internal/domain/training"
)

// Source names the report stream a dispatch belongs to. Triggers that must not
// double-deliver the same slot share one source.
type Source string

const (
	SourceAutoReport   Source = "auto-report"   // server poller, client poller
	SourceManualReport Source = "manual-report" // operator "send now"
)

// DispatchStatus is the lifecycle of one reservation.
type DispatchStatus string

const (
	StatusPending DispatchStatus = "pending"
	StatusSent    DispatchStatus = "sent"
	StatusFailed  DispatchStatus = "failed"
)

// IdempotencyRecord is the reservation row for one dedupe key.
type IdempotencyRecord struct {
	DedupeKey    string
	Source       Source
	SlotKey      string
	ReportDate   training.Date
	AccountEmail string
	Status       DispatchStatus
	MessageID    string
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReportSlotKey names the scheduled opportunity on date at hour: YYYY-MM-DD__HH.
func ReportSlotKey(date training.Date, hour int) string {
	return training.SlotKey(date, hour)
}

// DedupeKey builds <source>:<account>:<slotKey-or-date>.
func DedupeKey(source Source, account, slotKey string, date training.Date) string {
	suffix := slotKey
	if suffix == "" {
		suffix = date.String()
	}
	return fmt.Sprintf("%s:%s:%s", source, account, suffix)
}
