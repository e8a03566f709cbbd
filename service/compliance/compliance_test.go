package compliance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/brojonat/agentpay/service/directory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sender    = "0.0.1001"
	recipient = "0.0.2002"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubKYC struct {
	verified map[string]bool
	err      error
}

func (s stubKYC) IsVerified(_ context.Context, id string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.verified[id], nil
}

type errScreener struct{}

func (errScreener) Screen(context.Context, string) (bool, error) {
	return false, errors.New("screening service down")
}

type captureSink struct {
	decisions []Decision
	err       error
}

func (c *captureSink) Record(_ context.Context, d Decision) error {
	c.decisions = append(c.decisions, d)
	return c.err
}

func TestValidate(t *testing.T) {
	bothVerified := stubKYC{verified: map[string]bool{sender: true, recipient: true}}

	tests := []struct {
		name       string
		kyc        KYCChecker
		sanctions  SanctionsScreener
		amount     string
		want       Status
		wantDetail string
	}{
		{
			name:   "all checks pass",
			kyc:    bothVerified,
			amount: "100",
			want:   StatusApproved,
		},
		{
			name:   "amount at aml threshold passes",
			kyc:    bothVerified,
			amount: "10000",
			want:   StatusApproved,
		},
		{
			name:       "amount above aml threshold is pending",
			kyc:        bothVerified,
			amount:     "10000.01",
			want:       StatusPending,
			wantDetail: "High-value transaction pending manual review",
		},
		{
			name:       "recipient kyc missing rejects",
			kyc:        stubKYC{verified: map[string]bool{sender: true}},
			amount:     "50",
			want:       StatusRejected,
			wantDetail: "Sender KYC: true, Recipient KYC: false",
		},
		{
			name:       "kyc lookup error rejects",
			kyc:        stubKYC{err: errors.New("store unavailable")},
			amount:     "50",
			want:       StatusRejected,
			wantDetail: "Sender KYC: false, Recipient KYC: false",
		},
		{
			name:       "sanctioned recipient rejects",
			kyc:        bothVerified,
			sanctions:  NewListScreener([]string{recipient}),
			amount:     "50",
			want:       StatusRejected,
			wantDetail: "Account 0.0.2002 found on sanctions list",
		},
		{
			name:       "failure outranks pending",
			kyc:        stubKYC{},
			amount:     "50000",
			want:       StatusRejected,
			wantDetail: "Sender KYC: false, Recipient KYC: false",
		},
		{
			name:       "screening outage is pending",
			kyc:        bothVerified,
			sanctions:  errScreener{},
			amount:     "50",
			want:       StatusPending,
			wantDetail: "Sanctions screening unavailable for account 0.0.1001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &captureSink{}
			v := NewValidator(tt.kyc, tt.sanctions, Config{}, nil, testLogger(), sink)

			d := v.Validate(context.Background(), Request{
				Sender:    sender,
				Recipient: recipient,
				AmountUSD: decimal.RequireFromString(tt.amount),
			})

			assert.Equal(t, tt.want, d.Overall)
			assert.Equal(t, tt.wantDetail, d.BlockingDetail())
			assert.Equal(t, tt.want == StatusApproved, d.Approved())
			require.Len(t, d.Checks, 4)
			assert.Equal(t, CheckKYC, d.Checks[0].Type)
			assert.Equal(t, CheckSanctions, d.Checks[1].Type)
			assert.Equal(t, CheckSanctions, d.Checks[2].Type)
			assert.Equal(t, CheckAML, d.Checks[3].Type)
			assert.NotEmpty(t, d.ID)

			require.Len(t, sink.decisions, 1)
			assert.Equal(t, d.ID, sink.decisions[0].ID)
		})
	}
}

func TestValidate_AMLNeverApprovesAboveThreshold(t *testing.T) {
	v := NewValidator(AllowAllKYC{}, nil, Config{AMLThreshold: decimal.NewFromInt(500)}, nil, testLogger())
	for _, amt := range []string{"500.01", "501", "1000000"} {
		d := v.Validate(context.Background(), Request{Sender: sender, Recipient: recipient, AmountUSD: decimal.RequireFromString(amt)})
		assert.NotEqual(t, StatusApproved, d.Overall, amt)
	}
	d := v.Validate(context.Background(), Request{Sender: sender, Recipient: recipient, AmountUSD: decimal.NewFromInt(500)})
	assert.Equal(t, StatusApproved, d.Overall)
}

func TestValidate_SinkErrorDoesNotChangeDecision(t *testing.T) {
	sink := &captureSink{err: errors.New("nats down")}
	v := NewValidator(AllowAllKYC{}, nil, Config{}, nil, testLogger(), sink)
	d := v.Validate(context.Background(), Request{Sender: sender, Recipient: recipient, AmountUSD: decimal.NewFromInt(1)})
	assert.Equal(t, StatusApproved, d.Overall)
	assert.Len(t, sink.decisions, 1)
}

func TestAggregate(t *testing.T) {
	assert.Equal(t, StatusApproved, Aggregate(nil))
	assert.Equal(t, StatusApproved, Aggregate([]Check{{Status: CheckPassed}}))
	assert.Equal(t, StatusPending, Aggregate([]Check{{Status: CheckPassed}, {Status: CheckPending}}))
	assert.Equal(t, StatusRejected, Aggregate([]Check{{Status: CheckPending}, {Status: CheckFailed}}))
}

func TestIsValidAccountFormat(t *testing.T) {
	assert.True(t, IsValidAccountFormat("0.0.1234567"))
	assert.False(t, IsValidAccountFormat("0.0.abc"))
	assert.False(t, IsValidAccountFormat("priya"))
	assert.False(t, IsValidAccountFormat(""))
}

func TestDirectoryKYC(t *testing.T) {
	dir := directory.NewStaticDirectory([]directory.Entry{
		{Name: "priya", AccountID: "0.0.1", KYCVerified: true},
		{Name: "zed", AccountID: "0.0.2"},
	})
	k := NewDirectoryKYC(dir, sender)
	ctx := context.Background()

	ok, err := k.IsVerified(ctx, sender)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = k.IsVerified(ctx, "0.0.1")
	assert.True(t, ok)

	ok, _ = k.IsVerified(ctx, "0.0.2")
	assert.False(t, ok)

	ok, _ = k.IsVerified(ctx, "0.0.3")
	assert.False(t, ok)
}

type stubTokenLedger struct {
	hasKey bool
	err    error
}

func (s stubTokenLedger) TokenHasKYCKey(context.Context, string) (bool, error) {
	return s.hasKey, s.err
}

func TestTokenKYC(t *testing.T) {
	ok, err := NewTokenKYC(stubTokenLedger{hasKey: true}, "0.0.999").IsVerified(context.Background(), recipient)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = NewTokenKYC(stubTokenLedger{}, "0.0.999").IsVerified(context.Background(), recipient)
	assert.False(t, ok)

	_, err = NewTokenKYC(stubTokenLedger{err: errors.New("mirror node down")}, "0.0.999").IsVerified(context.Background(), recipient)
	assert.Error(t, err)
}

func TestFileKYC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kyc_store.json")

	store, err := OpenFileKYC(path)
	require.NoError(t, err)
	ok, _ := store.IsVerified(context.Background(), recipient)
	assert.False(t, ok)

	require.NoError(t, store.Set(recipient, KYCRecord{KYCVerified: true, Name: "Priya"}))

	reopened, err := OpenFileKYC(path)
	require.NoError(t, err)
	ok, _ = reopened.IsVerified(context.Background(), recipient)
	assert.True(t, ok)
	assert.Equal(t, "Priya", reopened.List()[recipient].Name)
	assert.NotZero(t, reopened.List()[recipient].UpdatedAt)
}

func TestFileKYC_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kyc_store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := OpenFileKYC(path)
	assert.ErrorContains(t, err, "failed to parse kyc store")

	require.NoError(t, os.WriteFile(path, []byte("  "), 0o600))
	store, err := OpenFileKYC(path)
	require.NoError(t, err)
	assert.Empty(t, store.List())
}
