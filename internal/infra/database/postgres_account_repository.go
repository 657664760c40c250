package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"attendpro/internal/domain/account"

	"github.com/lib/pq"
)

var ErrAccountNotFound = fmt.Errorf("account not found")
var ErrDuplicateEmail = fmt.Errorf("account with this email already exists")

// uniqueViolation is the postgres SQLSTATE for a unique constraint hit.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type PostgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

func (r *PostgresAccountRepository) Create(ctx context.Context, rec *account.Record) error {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("error encoding account state: %w", err)
	}
	query := `INSERT INTO attendpro_accounts (email, credential_hash, display_name, state)
               VALUES ($1, $2, $3, $4)
               RETURNING id, updated_at`

	err = r.db.QueryRowContext(ctx, query, rec.Email, rec.CredentialHash, rec.DisplayName, state).Scan(&rec.ID, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("error creating account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) GetByEmail(ctx context.Context, email string) (*account.Record, error) {
	query := `SELECT id, email, credential_hash, display_name, state, updated_at, last_sent_slot_key
               FROM attendpro_accounts WHERE email = $1`
	rec, err := scanAccount(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("error getting account by email: %w", err)
	}
	return rec, nil
}

func (r *PostgresAccountRepository) UpdateState(ctx context.Context, email, credentialHash string, doc account.StateDocument) (int64, error) {
	state, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("error encoding account state: %w", err)
	}
	query := `UPDATE attendpro_accounts
               SET state = $1, updated_at = NOW()
               WHERE email = $2 AND credential_hash = $3`

	res, err := r.db.ExecContext(ctx, query, state, email, credentialHash)
	if err != nil {
		return 0, fmt.Errorf("error updating account state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n, nil
}

func (r *PostgresAccountRepository) ListAutoReportEnabled(ctx context.Context) ([]*account.Record, error) {
	query := `SELECT id, email, credential_hash, display_name, state, updated_at, last_sent_slot_key
               FROM attendpro_accounts
               WHERE COALESCE((state->'settings'->'autoReport'->>'enabled')::boolean, FALSE)
               ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing auto-report accounts: %w", err)
	}
	defer rows.Close()

	records := make([]*account.Record, 0)
	for rows.Next() {
		rec, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning auto-report account: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auto-report accounts: %w", err)
	}
	return records, nil
}

func (r *PostgresAccountRepository) SetLastSentSlot(ctx context.Context, email, slotKey string) error {
	query := `UPDATE attendpro_accounts SET last_sent_slot_key = $1 WHERE email = $2`
	res, err := r.db.ExecContext(ctx, query, slotKey, email)
	if err != nil {
		return fmt.Errorf("error updating last sent slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Record, error) {
	rec := &account.Record{}
	var state []byte
	var displayName, lastSlot sql.NullString
	if err := row.Scan(&rec.ID, &rec.Email, &rec.CredentialHash, &displayName, &state, &rec.UpdatedAt, &lastSlot); err != nil {
		return nil, err
	}
	rec.DisplayName = displayName.String
	rec.LastSentSlotKey = lastSlot.String
	if len(state) > 0 {
		if err := json.Unmarshal(state, &rec.State); err != nil {
			return nil, fmt.Errorf("error decoding account state: %w", err)
		}
	}
	return rec, nil
}
