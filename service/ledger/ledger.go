// Package ledger submits token transfers and token administration
// transactions to the distributed ledger.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/brojonat/agentpay/service/metrics"
	"github.com/shopspring/decimal"
)

// DefaultExplorerURLTemplate links a transaction on the public explorer.
const DefaultExplorerURLTemplate = "https://hashscan.io/{network}/transaction/{id}"

// TransferRequest moves AmountMinorUnits of TokenID from Sender to Recipient.
type TransferRequest struct {
	Sender           string
	SenderKey        string
	Recipient        string
	TokenID          string
	AmountMinorUnits int64
}

// TransferResult is the ledger's answer to a transfer. A transfer the ledger
// rejected has Success false and the ledger's status code in Error.
type TransferResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// CreateTokenRequest describes a fungible token with infinite supply.
type CreateTokenRequest struct {
	Name          string
	Symbol        string
	Decimals      uint
	InitialSupply uint64
	Treasury      string
	TreasuryKey   string
	WithKYCKey    bool
}

// Client is the ledger collaborator. Implementations do not retry.
type Client interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	TokenBalance(ctx context.Context, accountID, tokenID string) (decimal.Decimal, error)
	TokenHasKYCKey(ctx context.Context, tokenID string) (bool, error)
	CreateToken(ctx context.Context, req CreateTokenRequest) (string, error)
	AssociateToken(ctx context.Context, accountID, accountKey, tokenID string) error
}

// ExplorerURL fills {network} and {id} in template.
func ExplorerURL(template, network, transactionID string) string {
	if template == "" {
		template = DefaultExplorerURLTemplate
	}
	return strings.NewReplacer("{network}", network, "{id}", transactionID).Replace(template)
}

// Instrumented records call counts and durations for every Client method.
type Instrumented struct {
	next    Client
	metrics *metrics.Metrics
}

// NewInstrumented wraps next.
func NewInstrumented(next Client, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	i.metrics.RecordLedgerCall(op, err, time.Since(start).Seconds())
}

func (i *Instrumented) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	start := time.Now()
	res, err := i.next.Transfer(ctx, req)
	callErr := err
	if callErr == nil && res != nil && !res.Success {
		callErr = errRejected
	}
	i.observe("transfer", start, callErr)
	return res, err
}

func (i *Instrumented) TokenBalance(ctx context.Context, accountID, tokenID string) (decimal.Decimal, error) {
	start := time.Now()
	bal, err := i.next.TokenBalance(ctx, accountID, tokenID)
	i.observe("token_balance", start, err)
	return bal, err
}

func (i *Instrumented) TokenHasKYCKey(ctx context.Context, tokenID string) (bool, error) {
	start := time.Now()
	ok, err := i.next.TokenHasKYCKey(ctx, tokenID)
	i.observe("token_info", start, err)
	return ok, err
}

func (i *Instrumented) CreateToken(ctx context.Context, req CreateTokenRequest) (string, error) {
	start := time.Now()
	id, err := i.next.CreateToken(ctx, req)
	i.observe("token_create", start, err)
	return id, err
}

func (i *Instrumented) AssociateToken(ctx context.Context, accountID, accountKey, tokenID string) error {
	start := time.Now()
	err := i.next.AssociateToken(ctx, accountID, accountKey, tokenID)
	i.observe("token_associate", start, err)
	return err
}

var errRejected = errors.New("rejected by ledger")
