package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/brojonat/agentpay/service/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingDirectory struct{}

func (failingDirectory) Lookup(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("directory offline")
}

func (failingDirectory) List(context.Context) ([]Entry, error) {
	return nil, errors.New("directory offline")
}

func TestResolver_Resolve(t *testing.T) {
	dir := NewStaticDirectory(DefaultEntries("0.0.5005"))
	r := NewResolver(dir, testLogger())
	ctx := context.Background()

	tests := []struct {
		name     string
		text     string
		want     Resolution
		resolved bool
	}{
		{
			name:     "literal account",
			text:     "Send 10 TPYUSD to 0.0.1234567",
			want:     Resolution{Handle: "0.0.1234567", AccountID: "0.0.1234567", Literal: true},
			resolved: true,
		},
		{
			name:     "literal wins over name",
			text:     "send $5 to priya at 0.0.42",
			want:     Resolution{Handle: "0.0.42", AccountID: "0.0.42", Literal: true},
			resolved: true,
		},
		{
			name:     "known name with location",
			text:     "Send $500 to Priya in India",
			want:     Resolution{Handle: "priya", AccountID: "0.0.5005", Location: "india"},
			resolved: true,
		},
		{
			name:     "known name takes directory location",
			text:     "Transfer 1000 rupees to Anil",
			want:     Resolution{Handle: "anil", AccountID: "0.0.5005", Location: "india"},
			resolved: true,
		},
		{
			name: "unknown name",
			text: "Send $50 to Zed",
			want: Resolution{Handle: "zed"},
		},
		{
			name: "no recipient",
			text: "send fifty dollars",
			want: Resolution{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(ctx, tt.text)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.resolved, got.Resolved())
		})
	}
}

func TestResolver_DirectoryError(t *testing.T) {
	r := NewResolver(failingDirectory{}, testLogger())
	got := r.Resolve(context.Background(), "send $5 to priya")
	assert.Equal(t, "priya", got.Handle)
	assert.False(t, got.Resolved())
}

func TestIsAccountID(t *testing.T) {
	assert.True(t, IsAccountID("0.0.1234567"))
	assert.True(t, IsAccountID("1.2.3"))
	assert.False(t, IsAccountID("0.0"))
	assert.False(t, IsAccountID("0.0.x"))
	assert.False(t, IsAccountID(" 0.0.1"))
	assert.False(t, IsAccountID("0.0.1.2"))
	assert.False(t, IsAccountID(""))
}

func TestStaticDirectory(t *testing.T) {
	dir := NewStaticDirectory([]Entry{
		{Name: " Priya ", AccountID: "0.0.1", Location: "India", Currency: "inr"},
		{Name: "", AccountID: "0.0.2"},
		{Name: "bob", AccountID: "0.0.3", KYCVerified: true},
		{Name: "bobby", AccountID: "0.0.3"},
	})
	ctx := context.Background()

	assert.Equal(t, 3, dir.Len())

	e, ok, err := dir.Lookup(ctx, "PRIYA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "india", e.Location)
	assert.Equal(t, "INR", e.Currency)

	entries, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "bob", entries[0].Name)
	assert.Equal(t, "priya", entries[2].Name)

	found, ok := dir.FindAccount("0.0.3")
	require.True(t, ok)
	assert.True(t, found.KYCVerified)

	_, ok = dir.FindAccount("0.0.9")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipients.yaml")
	content := `recipients:
  - name: Priya
    account_id: 0.0.1234567
    location: India
    kyc_verified: true
  - name: marie
    account_id: 0.0.777
    location: France
    currency: EUR
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	dir, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, dir.Len())

	e, ok, _ := dir.Lookup(context.Background(), "marie")
	require.True(t, ok)
	assert.Equal(t, "EUR", e.Currency)
	assert.Equal(t, "france", e.Location)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "bad yaml", content: "recipients: [", errMsg: "failed to parse"},
		{name: "missing name", content: "recipients:\n  - account_id: 0.0.1\n", errMsg: "has no name"},
		{name: "bad account", content: "recipients:\n  - name: x\n    account_id: abc\n", errMsg: "invalid account id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "r.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := LoadFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

type stubLister struct {
	rows []*db.Recipient
	err  error
}

func (s stubLister) ListRecipients(context.Context) ([]*db.Recipient, error) {
	return s.rows, s.err
}

func TestLoadStore(t *testing.T) {
	dir, err := LoadStore(context.Background(), stubLister{rows: []*db.Recipient{
		{Name: "anil", AccountID: "0.0.11", Location: "india", KYCVerified: true},
	}})
	require.NoError(t, err)
	e, ok, _ := dir.Lookup(context.Background(), "Anil")
	require.True(t, ok)
	assert.Equal(t, "0.0.11", e.AccountID)

	_, err = LoadStore(context.Background(), stubLister{err: errors.New("boom")})
	assert.ErrorContains(t, err, "failed to load recipients")
}
