package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides database operations for the recipient directory.
// The service itself only reads; writes come from the seeding tool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Recipient is a named payee in the directory.
type Recipient struct {
	Name        string    `db:"name"`
	AccountID   string    `db:"account_id"`
	Location    string    `db:"location"`
	Currency    string    `db:"currency"`
	KYCVerified bool      `db:"kyc_verified"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// UpsertRecipientParams contains the parameters for creating or updating a recipient.
type UpsertRecipientParams struct {
	Name        string
	AccountID   string
	Location    string
	Currency    string
	KYCVerified bool
}

const schema = `
CREATE TABLE IF NOT EXISTS recipients (
	name         TEXT PRIMARY KEY,
	account_id   TEXT NOT NULL,
	location     TEXT NOT NULL DEFAULT '',
	currency     TEXT NOT NULL DEFAULT '',
	kyc_verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const recipientColumns = "name, account_id, location, currency, kyc_verified, created_at, updated_at"

// EnsureSchema creates the recipients table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create recipients table: %w", err)
	}
	return nil
}

// ListRecipients returns every recipient ordered by name.
func (s *Store) ListRecipients(ctx context.Context) ([]*Recipient, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+recipientColumns+" FROM recipients ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	recipients, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Recipient])
	if err != nil {
		return nil, fmt.Errorf("failed to scan recipients: %w", err)
	}
	return recipients, nil
}

// GetRecipient retrieves a recipient by name. Names are matched case-insensitively.
func (s *Store) GetRecipient(ctx context.Context, name string) (*Recipient, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+recipientColumns+" FROM recipients WHERE name = $1",
		strings.ToLower(name),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipient: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Recipient])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan recipient: %w", err)
	}
	return r, nil
}

// UpsertRecipient creates a recipient or updates an existing one with the same name.
func (s *Store) UpsertRecipient(ctx context.Context, params UpsertRecipientParams) (*Recipient, error) {
	rows, err := s.pool.Query(ctx, `
		INSERT INTO recipients (name, account_id, location, currency, kyc_verified)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			location = EXCLUDED.location,
			currency = EXCLUDED.currency,
			kyc_verified = EXCLUDED.kyc_verified,
			updated_at = NOW()
		RETURNING `+recipientColumns,
		strings.ToLower(params.Name),
		params.AccountID,
		strings.ToLower(params.Location),
		strings.ToUpper(params.Currency),
		params.KYCVerified,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert recipient: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Recipient])
	if err != nil {
		return nil, fmt.Errorf("failed to scan upserted recipient: %w", err)
	}
	return r, nil
}

// DeleteRecipient removes a recipient by name.
func (s *Store) DeleteRecipient(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM recipients WHERE name = $1", strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("failed to delete recipient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
