package account

import (
	"context"
)

// Repository defines the operations on remote account records.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	GetByEmail(ctx context.Context, email string) (*Record, error)
	// UpdateState writes the document on the row matching (email, credentialHash)
	// and returns the number of affected rows.
	UpdateState(ctx context.Context, email, credentialHash string, doc StateDocument) (int64, error)
	ListAutoReportEnabled(ctx context.Context) ([]*Record, error)
	SetLastSentSlot(ctx context.Context, email, slotKey string) error
}
