// internal/domain/notification/repository.go
package notification

import (
	"context"
)

// Store is the dedupe store behind reserve-then-send.
type Store interface {
	// Reserve inserts the record unless its key exists. Only the caller that
	// gets reserved=true may perform the side effect.
	Reserve(ctx context.Context, rec *IdempotencyRecord) (reserved bool, err error)
	MarkSent(ctx context.Context, dedupeKey, messageID string) error
	MarkFailed(ctx context.Context, dedupeKey, reason string) error
	Get(ctx context.Context, dedupeKey string) (*IdempotencyRecord, error)
}
