// Package directory maps human-friendly recipient names to ledger accounts.
//
// A Directory is populated once at process start and is read-only afterwards,
// so it is safe to share between concurrent requests.
package directory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/brojonat/agentpay/service/db"
	"gopkg.in/yaml.v3"
)

// Entry is a known recipient.
type Entry struct {
	Name        string `yaml:"name" json:"name"`
	AccountID   string `yaml:"account_id" json:"account_id"`
	Location    string `yaml:"location" json:"location"`
	Currency    string `yaml:"currency,omitempty" json:"currency,omitempty"`
	KYCVerified bool   `yaml:"kyc_verified" json:"kyc_verified"`
}

// Directory is a read-only lookup of recipients by name.
type Directory interface {
	// Lookup finds a recipient by name. Names are case-insensitive.
	Lookup(ctx context.Context, name string) (Entry, bool, error)

	// List returns every recipient ordered by name.
	List(ctx context.Context) ([]Entry, error)
}

// StaticDirectory is an in-memory Directory.
type StaticDirectory struct {
	entries map[string]Entry
}

// NewStaticDirectory builds a directory from entries. Names and locations are
// lower-cased; later duplicates replace earlier ones.
func NewStaticDirectory(entries []Entry) *StaticDirectory {
	d := &StaticDirectory{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		e.Name = strings.ToLower(strings.TrimSpace(e.Name))
		e.Location = strings.ToLower(strings.TrimSpace(e.Location))
		e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
		if e.Name == "" {
			continue
		}
		d.entries[e.Name] = e
	}
	return d
}

// DefaultEntries returns the demo recipients, all paid into accountID.
func DefaultEntries(accountID string) []Entry {
	return []Entry{
		{Name: "priya", AccountID: accountID, Location: "india", Currency: "INR", KYCVerified: true},
		{Name: "anil", AccountID: accountID, Location: "india", Currency: "INR", KYCVerified: true},
	}
}

type fileFormat struct {
	Recipients []Entry `yaml:"recipients"`
}

// LoadFile reads a YAML recipients file of the form
//
//	recipients:
//	  - name: priya
//	    account_id: 0.0.1234567
//	    location: india
func LoadFile(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipients file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse recipients file %s: %w", path, err)
	}

	for i, e := range f.Recipients {
		if e.Name == "" {
			return nil, fmt.Errorf("recipients file %s: entry %d has no name", path, i)
		}
		if !IsAccountID(e.AccountID) {
			return nil, fmt.Errorf("recipients file %s: %q has invalid account id %q", path, e.Name, e.AccountID)
		}
	}

	return NewStaticDirectory(f.Recipients), nil
}

// RecipientLister is the subset of db.Store the directory needs.
type RecipientLister interface {
	ListRecipients(ctx context.Context) ([]*db.Recipient, error)
}

// LoadStore snapshots the recipients table into memory. The directory does
// not observe later changes to the table.
func LoadStore(ctx context.Context, store RecipientLister) (*StaticDirectory, error) {
	rows, err := store.ListRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipients: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{
			Name:        r.Name,
			AccountID:   r.AccountID,
			Location:    r.Location,
			Currency:    r.Currency,
			KYCVerified: r.KYCVerified,
		})
	}
	return NewStaticDirectory(entries), nil
}

// Lookup implements Directory.
func (d *StaticDirectory) Lookup(_ context.Context, name string) (Entry, bool, error) {
	e, ok := d.entries[strings.ToLower(strings.TrimSpace(name))]
	return e, ok, nil
}

// List implements Directory.
func (d *StaticDirectory) List(_ context.Context) ([]Entry, error) {
	out := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Len returns the number of entries.
func (d *StaticDirectory) Len() int {
	return len(d.entries)
}

// FindAccount returns an entry that pays into accountID. When several names
// share an account, a KYC-verified entry is preferred.
func (d *StaticDirectory) FindAccount(accountID string) (Entry, bool) {
	var found Entry
	ok := false
	for _, e := range d.entries {
		if e.AccountID != accountID {
			continue
		}
		if !ok || (e.KYCVerified && !found.KYCVerified) {
			found, ok = e, true
		}
	}
	return found, ok
}
