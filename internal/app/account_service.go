package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"attendpro/internal/domain/account"
	idb "attendpro/internal/infra/database"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"
)

var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

const (
	credentialIterations = 120_000
	credentialKeyLen     = 32
	minPasswordLen       = 4
)

// NormalizeEmail is the canonical account key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CredentialHash derives the stored credential from the password. It is
// deterministic per (email, password) so every device computes the same value.
func CredentialHash(email, password string) string {
	key := pbkdf2.Key([]byte(password), []byte("attendpro:"+NormalizeEmail(email)), credentialIterations, credentialKeyLen, sha256.New)
	return hex.EncodeToString(key)
}

type AccountService struct {
	repo            account.Repository
	adminTelegramID int64
	timeout         time.Duration
	logger          *logrus.Entry
}

// NewAccountService bounds every repository call by timeout. Zero means DefaultRemoteTimeout.
func NewAccountService(repo account.Repository, adminID int64, timeout time.Duration, logger *logrus.Entry) *AccountService {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &AccountService{repo: repo, adminTelegramID: adminID, timeout: timeout, logger: logger}
}

func (s *AccountService) getByEmail(ctx context.Context, email string) (*account.Record, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.GetByEmail(callCtx, email)
}

func (s *AccountService) create(ctx context.Context, rec *account.Record) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.Create(callCtx, rec)
}

// Authorize checks that the bot command comes from the configured admin.
func (s *AccountService) Authorize(performingTelegramID int64) error {
	if s.adminTelegramID == 0 || performingTelegramID != s.adminTelegramID {
		return ErrAdminNotAuthorized
	}
	return nil
}

func validateCredentials(email, password string) error {
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return validationf("invalid email %q", email)
	}
	if len(password) < minPasswordLen {
		return validationf("password must be at least %d characters", minPasswordLen)
	}
	return nil
}

func sessionFor(rec *account.Record) account.Session {
	return account.Session{
		ID:             rec.Email,
		Email:          rec.Email,
		CredentialHash: rec.CredentialHash,
		DisplayName:    rec.DisplayName,
	}
}

// Register creates the remote record. Registering again with the same
// credential signs in; a different credential under the same email is a conflict.
func (s *AccountService) Register(ctx context.Context, email, password, displayName string) (account.Session, error) {
	email = NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return account.Session{}, err
	}
	hash := CredentialHash(email, password)

	existing, err := s.getByEmail(ctx, email)
	if err == nil {
		if existing.CredentialHash != hash {
			return account.Session{}, fmt.Errorf("%w: %s", ErrConflict, email)
		}
		return sessionFor(existing), nil
	}
	if !errors.Is(err, idb.ErrAccountNotFound) {
		return account.Session{}, remoteErr("check existing account", err)
	}

	rec := &account.Record{
		Email:          email,
		CredentialHash: hash,
		DisplayName:    strings.TrimSpace(displayName),
		State: account.StateDocument{
			Settings: account.DefaultSettings(),
		},
	}
	if err := s.create(ctx, rec); err != nil {
		if errors.Is(err, idb.ErrDuplicateEmail) {
			// lost a registration race; the winner decides
			sess, err := s.Login(ctx, email, password)
			if errors.Is(err, ErrCredentialMismatch) {
				return account.Session{}, fmt.Errorf("%w: %s", ErrConflict, email)
			}
			return sess, err
		}
		return account.Session{}, remoteErr("create account", err)
	}
	s.logger.WithField("account", email).Info("Account registered")
	return sessionFor(rec), nil
}

// Login verifies the credential against the remote record.
func (s *AccountService) Login(ctx context.Context, email, password string) (account.Session, error) {
	email = NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return account.Session{}, err
	}
	rec, err := s.getByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, idb.ErrAccountNotFound) {
			return account.Session{}, notFoundf("account %s", email)
		}
		return account.Session{}, remoteErr("load account", err)
	}
	if rec.CredentialHash != CredentialHash(email, password) {
		return account.Session{}, ErrCredentialMismatch
	}
	return sessionFor(rec), nil
}
