package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/agentpay/service/money"
	"github.com/shopspring/decimal"
)

// StatusInsufficientBalance is the ledger status for an underfunded sender.
const StatusInsufficientBalance = "INSUFFICIENT_TOKEN_BALANCE"

// SimulatedClient keeps token balances in memory and never touches a network.
// Transaction ids have the form "{sender}@{unix millis}".
type SimulatedClient struct {
	mu           sync.RWMutex
	balances     map[string]int64
	kycTokens    map[string]bool
	associations map[string]bool
	transfers    []TransferRequest
	nextToken    int
	decimals     int32
	logger       *slog.Logger
	now          func() time.Time
}

// NewSimulatedClient creates an empty simulated ledger.
func NewSimulatedClient(decimals int32, logger *slog.Logger) *SimulatedClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimulatedClient{
		balances:     make(map[string]int64),
		kycTokens:    make(map[string]bool),
		associations: make(map[string]bool),
		nextToken:    5000,
		decimals:     decimals,
		logger:       logger,
		now:          time.Now,
	}
}

func balanceKey(accountID, tokenID string) string {
	return accountID + "/" + tokenID
}

// Fund credits units of tokenID to accountID.
func (s *SimulatedClient) Fund(accountID, tokenID string, units int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey(accountID, tokenID)] += units
}

// Transfers returns every successful transfer in submission order.
func (s *SimulatedClient) Transfers() []TransferRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TransferRequest, len(s.transfers))
	copy(out, s.transfers)
	return out
}

// Transfer implements Client.
func (s *SimulatedClient) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.AmountMinorUnits <= 0 {
		return &TransferResult{Success: false, Error: "INVALID_ACCOUNT_AMOUNTS"}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from := balanceKey(req.Sender, req.TokenID)
	if s.balances[from] < req.AmountMinorUnits {
		return &TransferResult{Success: false, Error: StatusInsufficientBalance}, nil
	}
	s.balances[from] -= req.AmountMinorUnits
	s.balances[balanceKey(req.Recipient, req.TokenID)] += req.AmountMinorUnits
	s.transfers = append(s.transfers, req)

	txID := fmt.Sprintf("%s@%d", req.Sender, s.now().UnixMilli())
	s.logger.InfoContext(ctx, "simulated token transfer",
		"transaction_id", txID,
		"sender", req.Sender,
		"recipient", req.Recipient,
		"amount_minor_units", req.AmountMinorUnits,
	)
	return &TransferResult{Success: true, TransactionID: txID}, nil
}

// TokenBalance implements Client.
func (s *SimulatedClient) TokenBalance(_ context.Context, accountID, tokenID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return money.FromMinorUnits(s.balances[balanceKey(accountID, tokenID)], s.decimals), nil
}

// TokenHasKYCKey implements Client.
func (s *SimulatedClient) TokenHasKYCKey(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kycTokens[tokenID], nil
}

// CreateToken implements Client. The initial supply is credited to the treasury.
func (s *SimulatedClient) CreateToken(_ context.Context, req CreateTokenRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextToken++
	tokenID := fmt.Sprintf("0.0.%d", s.nextToken)
	s.balances[balanceKey(req.Treasury, tokenID)] += int64(req.InitialSupply)
	s.kycTokens[tokenID] = req.WithKYCKey
	s.associations[balanceKey(req.Treasury, tokenID)] = true
	return tokenID, nil
}

// AssociateToken implements Client.
func (s *SimulatedClient) AssociateToken(_ context.Context, accountID, _ string, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := balanceKey(accountID, tokenID)
	if s.associations[key] {
		return fmt.Errorf("TOKEN_ALREADY_ASSOCIATED_TO_ACCOUNT: %s", accountID)
	}
	s.associations[key] = true
	return nil
}
