package account

import (
	"time"

	"attendpro/internal/domain/payroll"
	"attendpro/internal/domain/training"
)

// Record is the remote per-account row: one structured state document per user.
type Record struct {
	ID              int64
	Email           string
	CredentialHash  string
	DisplayName     string
	State           StateDocument
	UpdatedAt       time.Time
	LastSentSlotKey string // cadence of the server-side auto report
}

// DataTimestamp is the document's embedded dataUpdatedAt, falling back to the row's update time.
func (r *Record) DataTimestamp() time.Time {
	if !r.State.DataUpdatedAt.IsZero() {
		return r.State.DataUpdatedAt
	}
	return r.UpdatedAt
}

// Session is the signed-in account on a device.
type Session struct {
	ID             string // owner id stamped on local rows
	Email          string
	CredentialHash string
	DisplayName    string
}

// AutoReport configures the scheduled attendance report.
type AutoReport struct {
	Enabled bool           `json:"enabled"`
	Days    []time.Weekday `json:"days"`
	Hour    int            `json:"hour"`
}

// Settings is replaced wholesale on merge.
type Settings struct {
	TrainerCategory training.Category `json:"trainerCategory"`
	CoachPercent    float64           `json:"coachPercent"`
	AutoReport      AutoReport        `json:"autoReport"`
}

func DefaultSettings() Settings {
	return Settings{
		TrainerCategory: training.CategoryI,
		CoachPercent:    training.DefaultCoachPercent,
		AutoReport:      AutoReport{Days: []time.Weekday{}, Hour: 21},
	}
}

func (s Settings) Clone() Settings {
	s.AutoReport.Days = append([]time.Weekday(nil), s.AutoReport.Days...)
	return s
}

// StateDocument is the payload exchanged with the remote record.
type StateDocument struct {
	Cards         []*training.Card      `json:"cards"`
	Groups        []*training.GroupCard `json:"groups"`
	Closures      []*payroll.Closure    `json:"closures"`
	Settings      Settings              `json:"settings"`
	DataUpdatedAt time.Time             `json:"dataUpdatedAt,omitempty"`
}

func (d StateDocument) IsEmpty() bool {
	return len(d.Cards) == 0 && len(d.Groups) == 0 && len(d.Closures) == 0
}

// SyncState tracks the per-owner dirty flag and sync timestamps on a device.
type SyncState struct {
	PendingDataSync   bool      `json:"pendingDataSync"`
	LastDataChangeAt  time.Time `json:"lastDataChangeAt"`
	LastCloudUpdateAt time.Time `json:"lastCloudUpdateAt"`
	Revision          int64     `json:"revision"`
}

// LocalTimestamp is the latest moment this device knows its data to be current.
func (s SyncState) LocalTimestamp() time.Time {
	if s.LastCloudUpdateAt.After(s.LastDataChangeAt) {
		return s.LastCloudUpdateAt
	}
	return s.LastDataChangeAt
}

// ConflictBackup keeps both sides of a conflicting sync before the remote side was adopted.
type ConflictBackup struct {
	At      time.Time     `json:"at"`
	OwnerID string        `json:"ownerId"`
	Local   StateDocument `json:"local"`
	Remote  StateDocument `json:"remote"`
}

const MaxConflictBackups = 5
