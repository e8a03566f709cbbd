package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/agentpay/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExplorerURL(t *testing.T) {
	assert.Equal(t,
		"https://hashscan.io/testnet/transaction/0.0.1@1700000000.000000001",
		ExplorerURL("", "testnet", "0.0.1@1700000000.000000001"),
	)
	assert.Equal(t,
		"https://explorer.example/tx/abc?net=mainnet",
		ExplorerURL("https://explorer.example/tx/{id}?net={network}", "mainnet", "abc"),
	)
}

func TestSimulatedClient_Transfer(t *testing.T) {
	s := NewSimulatedClient(2, testLogger())
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }
	s.Fund("0.0.100", "0.0.9", 1000)
	ctx := context.Background()

	res, err := s.Transfer(ctx, TransferRequest{Sender: "0.0.100", Recipient: "0.0.200", TokenID: "0.0.9", AmountMinorUnits: 250})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "0.0.100@1700000000123", res.TransactionID)

	bal, err := s.TokenBalance(ctx, "0.0.100", "0.0.9")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("7.5").Equal(bal))

	bal, _ = s.TokenBalance(ctx, "0.0.200", "0.0.9")
	assert.True(t, decimal.RequireFromString("2.5").Equal(bal))

	require.Len(t, s.Transfers(), 1)
}

func TestSimulatedClient_InsufficientBalance(t *testing.T) {
	s := NewSimulatedClient(2, testLogger())
	s.Fund("0.0.100", "0.0.9", 10)

	res, err := s.Transfer(context.Background(), TransferRequest{Sender: "0.0.100", Recipient: "0.0.200", TokenID: "0.0.9", AmountMinorUnits: 11})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, StatusInsufficientBalance, res.Error)
	assert.Empty(t, s.Transfers())
}

func TestSimulatedClient_CancelledContext(t *testing.T) {
	s := NewSimulatedClient(2, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Transfer(ctx, TransferRequest{AmountMinorUnits: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedClient_Tokens(t *testing.T) {
	s := NewSimulatedClient(2, testLogger())
	ctx := context.Background()

	tokenID, err := s.CreateToken(ctx, CreateTokenRequest{
		Name: "Test PYUSD", Symbol: "TPYUSD", Decimals: 2, InitialSupply: 1000000, Treasury: "0.0.100", WithKYCKey: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.0.5001", tokenID)

	bal, _ := s.TokenBalance(ctx, "0.0.100", tokenID)
	assert.True(t, decimal.NewFromInt(10000).Equal(bal))

	hasKYC, err := s.TokenHasKYCKey(ctx, tokenID)
	require.NoError(t, err)
	assert.True(t, hasKYC)

	require.NoError(t, s.AssociateToken(ctx, "0.0.200", "key", tokenID))
	assert.ErrorContains(t, s.AssociateToken(ctx, "0.0.200", "key", tokenID), "TOKEN_ALREADY_ASSOCIATED_TO_ACCOUNT")
}

type failingClient struct {
	Client
}

func (failingClient) TokenBalance(context.Context, string, string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("mirror node unavailable")
}

func TestInstrumented_PassesThrough(t *testing.T) {
	sim := NewSimulatedClient(2, testLogger())
	sim.Fund("0.0.1", "0.0.9", 100)
	c := NewInstrumented(sim, metrics.NewMetrics(prometheus.NewRegistry()))
	ctx := context.Background()

	res, err := c.Transfer(ctx, TransferRequest{Sender: "0.0.1", Recipient: "0.0.2", TokenID: "0.0.9", AmountMinorUnits: 500})
	require.NoError(t, err)
	assert.False(t, res.Success)

	_, err = NewInstrumented(failingClient{}, nil).TokenBalance(ctx, "0.0.1", "0.0.9")
	assert.ErrorContains(t, err, "mirror node unavailable")
}
