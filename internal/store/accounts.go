// ABOUTME: SQLite persistence for accounts and identity provider links.
// ABOUTME: Backs the credential resolver's external-id and email lookups.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

var emailFolder = cases.Fold()

// NormalizeEmail returns the lookup key for an email address: trimmed and
// Unicode case folded.
func NormalizeEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}

// CreateAccount stores a new account.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, email_key, display_name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, account.ID, account.Email, NormalizeEmail(account.Email), account.DisplayName, formatTime(account.CreatedAt))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// GetAccount retrieves an account by ID.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, created_at FROM accounts WHERE id = ?
	`, id)
	return scanAccount(row)
}

// ListAccounts returns every account ordered by creation time.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, display_name, created_at FROM accounts ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// LinkProvider records that provider's externalID belongs to an account.
// Returns ErrNotFound if the account does not exist and ErrConflict if the
// external id is already linked.
func (s *SQLiteStore) LinkProvider(ctx context.Context, link *ProviderLink) error {
	if _, err := s.GetAccount(ctx, link.AccountID); err != nil {
		return err
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_links (provider, external_id, account_id, created_at)
		VALUES (?, ?, ?, ?)
	`, link.Provider, link.ExternalID, link.AccountID, formatTime(link.CreatedAt))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// FindByExternalID looks up the account linked to a provider subject id.
func (s *SQLiteStore) FindByExternalID(ctx context.Context, provider, externalID string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.email, a.display_name, a.created_at
		FROM provider_links l
		JOIN accounts a ON a.id = l.account_id
		WHERE l.provider = ? AND l.external_id = ?
	`, provider, externalID)
	return scanAccount(row)
}

// FindByEmail looks up an account by case-folded email. When several
// accounts share an address the oldest wins.
func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	key := NormalizeEmail(email)
	if key == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, created_at FROM accounts
		WHERE email_key = ? ORDER BY created_at LIMIT 1
	`, key)
	return scanAccount(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*Account, error) {
	var a Account
	var createdAt string
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	a.CreatedAt = t
	return &a, nil
}
