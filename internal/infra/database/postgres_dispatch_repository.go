// internal/infra/database/postgres_dispatch_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"attendpro/internal/domain/notification"
	"attendpro/internal/domain/training"
)

var ErrDispatchNotFound = fmt.Errorf("report dispatch not found")

// PostgresDispatchRepository is the dedupe store backed by the report_dispatches
// table. The unique dedupe_key column makes Reserve safe across processes.
type PostgresDispatchRepository struct {
	db *sql.DB
}

func NewPostgresDispatchRepository(db *sql.DB) *PostgresDispatchRepository {
	return &PostgresDispatchRepository{db: db}
}

func (r *PostgresDispatchRepository) Reserve(ctx context.Context, rec *notification.IdempotencyRecord) (bool, error) {
	query := `INSERT INTO report_dispatches (dedupe_key, source, slot_key, report_date, account_email, status)
               VALUES ($1, $2, $3, $4, $5, $6)
               ON CONFLICT (dedupe_key) DO NOTHING`

	var reportDate any
	if !rec.ReportDate.IsZero() {
		reportDate = rec.ReportDate.String()
	}
	res, err := r.db.ExecContext(ctx, query, rec.DedupeKey, rec.Source, rec.SlotKey, reportDate, rec.AccountEmail, notification.StatusPending)
	if err != nil {
		return false, fmt.Errorf("error reserving dispatch %s: %w", rec.DedupeKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresDispatchRepository) MarkSent(ctx context.Context, dedupeKey, messageID string) error {
	return r.finish(ctx, dedupeKey, notification.StatusSent, messageID, "")
}

func (r *PostgresDispatchRepository) MarkFailed(ctx context.Context, dedupeKey, reason string) error {
	return r.finish(ctx, dedupeKey, notification.StatusFailed, "", reason)
}

func (r *PostgresDispatchRepository) finish(ctx context.Context, dedupeKey string, status notification.DispatchStatus, messageID, reason string) error {
	query := `UPDATE report_dispatches
               SET status = $1, message_id = $2, error = $3, updated_at = NOW()
               WHERE dedupe_key = $4`
	res, err := r.db.ExecContext(ctx, query, status, messageID, reason, dedupeKey)
	if err != nil {
		return fmt.Errorf("error updating dispatch %s to %s: %w", dedupeKey, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDispatchNotFound
	}
	return nil
}

func (r *PostgresDispatchRepository) Get(ctx context.Context, dedupeKey string) (*notification.IdempotencyRecord, error) {
	query := `SELECT dedupe_key, source, slot_key, report_date, account_email, status, message_id, error, created_at, updated_at
               FROM report_dispatches WHERE dedupe_key = $1`
	rec := &notification.IdempotencyRecord{}
	var slotKey, messageID, reason sql.NullString
	var reportDate sql.NullTime
	err := r.db.QueryRowContext(ctx, query, dedupeKey).Scan(
		&rec.DedupeKey, &rec.Source, &slotKey, &reportDate, &rec.AccountEmail,
		&rec.Status, &messageID, &reason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDispatchNotFound
		}
		return nil, fmt.Errorf("error getting dispatch %s: %w", dedupeKey, err)
	}
	rec.SlotKey = slotKey.String
	rec.MessageID = messageID.String
	rec.Error = reason.String
	if reportDate.Valid {
		rec.ReportDate = training.DateOf(reportDate.Time.UTC())
	}
	return rec, nil
}

// PurgeBefore removes finished dispatches older than cutoff.
func (r *PostgresDispatchRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM report_dispatches WHERE status <> $1 AND updated_at < $2`, notification.StatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error purging dispatches: %w", err)
	}
	return res.RowsAffected()
}
