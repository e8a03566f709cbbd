package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/agentpay/service/directory"
)

// KYCChecker reports whether an account has passed know-your-customer checks.
type KYCChecker interface {
	IsVerified(ctx context.Context, accountID string) (bool, error)
}

// SanctionsScreener reports whether an account is on a sanctions list.
type SanctionsScreener interface {
	Screen(ctx context.Context, accountID string) (bool, error)
}

// AllowAllKYC treats every account as verified.
type AllowAllKYC struct{}

func (AllowAllKYC) IsVerified(context.Context, string) (bool, error) { return true, nil }

// NoSanctions screens nobody.
type NoSanctions struct{}

func (NoSanctions) Screen(context.Context, string) (bool, error) { return false, nil }

// ListScreener flags a fixed set of accounts.
type ListScreener struct {
	blocked map[string]struct{}
}

// NewListScreener creates a screener for the given account ids.
func NewListScreener(accountIDs []string) *ListScreener {
	s := &ListScreener{blocked: make(map[string]struct{}, len(accountIDs))}
	for _, id := range accountIDs {
		if id = strings.TrimSpace(id); id != "" {
			s.blocked[id] = struct{}{}
		}
	}
	return s
}

// Screen implements SanctionsScreener.
func (s *ListScreener) Screen(_ context.Context, accountID string) (bool, error) {
	_, hit := s.blocked[accountID]
	return hit, nil
}

// AccountFinder is the part of a directory DirectoryKYC needs.
type AccountFinder interface {
	FindAccount(accountID string) (directory.Entry, bool)
}

// DirectoryKYC trusts the operator's own accounts and any directory entry
// marked as verified.
type DirectoryKYC struct {
	dir     AccountFinder
	trusted map[string]struct{}
}

// NewDirectoryKYC creates a checker; trusted accounts (typically the sender)
// are always verified.
func NewDirectoryKYC(dir AccountFinder, trusted ...string) *DirectoryKYC {
	k := &DirectoryKYC{dir: dir, trusted: make(map[string]struct{}, len(trusted))}
	for _, id := range trusted {
		k.trusted[id] = struct{}{}
	}
	return k
}

// IsVerified implements KYCChecker.
func (k *DirectoryKYC) IsVerified(_ context.Context, accountID string) (bool, error) {
	if _, ok := k.trusted[accountID]; ok {
		return true, nil
	}
	e, ok := k.dir.FindAccount(accountID)
	return ok && e.KYCVerified, nil
}

// TokenKYCKeyChecker reports whether a token carries a KYC key.
type TokenKYCKeyChecker interface {
	TokenHasKYCKey(ctx context.Context, tokenID string) (bool, error)
}

// TokenKYC treats every account as verified when the token enforces KYC on
// the ledger. The ledger cannot be queried for per-account grants, so the
// presence of the key stands in for them.
type TokenKYC struct {
	ledger  TokenKYCKeyChecker
	tokenID string
}

// NewTokenKYC creates a ledger-backed checker for tokenID.
func NewTokenKYC(ledger TokenKYCKeyChecker, tokenID string) *TokenKYC {
	return &TokenKYC{ledger: ledger, tokenID: tokenID}
}

// IsVerified implements KYCChecker.
func (k *TokenKYC) IsVerified(ctx context.Context, _ string) (bool, error) {
	return k.ledger.TokenHasKYCKey(ctx, k.tokenID)
}

// KYCRecord is one entry in a KYC store file.
type KYCRecord struct {
	KYCVerified bool   `json:"kycVerified"`
	Name        string `json:"name,omitempty"`
	IDNumber    string `json:"idNumber,omitempty"`
	UpdatedAt   int64  `json:"updatedAt,omitempty"`
}

// FileKYC is a JSON file keyed by account id. A missing file is an empty store.
type FileKYC struct {
	mu      sync.RWMutex
	path    string
	records map[string]KYCRecord
}

// OpenFileKYC loads the store at path.
func OpenFileKYC(path string) (*FileKYC, error) {
	f := &FileKYC{path: path, records: map[string]KYCRecord{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read kyc store: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.records); err != nil {
		return nil, fmt.Errorf("failed to parse kyc store %s: %w", path, err)
	}
	return f, nil
}

// IsVerified implements KYCChecker.
func (f *FileKYC) IsVerified(_ context.Context, accountID string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.records[accountID].KYCVerified, nil
}

// Set updates an account's record and rewrites the file.
func (f *FileKYC) Set(accountID string, rec KYCRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec.UpdatedAt = time.Now().UnixMilli()
	f.records[accountID] = rec

	data, err := json.MarshalIndent(f.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode kyc store: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write kyc store: %w", err)
	}
	return nil
}

// List returns a copy of every record.
func (f *FileKYC) List() map[string]KYCRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]KYCRecord, len(f.records))
	for k, v := range f.records {
		out[k] = v
	}
	return out
}
