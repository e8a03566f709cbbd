package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/agentpay/service/money"
	"github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/shopspring/decimal"
)

// HederaConfig configures a HederaClient.
type HederaConfig struct {
	// Network is "testnet", "previewnet" or "mainnet".
	Network     string
	OperatorID  string
	OperatorKey string
	// Decimals scales token balances reported by TokenBalance.
	Decimals int32
}

// HederaClient talks to a Hedera network through the Go SDK.
type HederaClient struct {
	client   *hedera.Client
	decimals int32
	logger   *slog.Logger
}

// NewHederaClient connects to the configured network with the operator
// paying fees for queries and transactions.
func NewHederaClient(cfg HederaConfig, logger *slog.Logger) (*HederaClient, error) {
	if cfg.Network == "" {
		cfg.Network = "testnet"
	}

	client, err := hedera.ClientForName(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to create hedera client for %s: %w", cfg.Network, err)
	}

	operatorID, err := hedera.AccountIDFromString(cfg.OperatorID)
	if err != nil {
		return nil, fmt.Errorf("invalid operator account id: %w", err)
	}
	operatorKey, err := hedera.PrivateKeyFromString(cfg.OperatorKey)
	if err != nil {
		return nil, fmt.Errorf("invalid operator private key: %w", err)
	}
	client.SetOperator(operatorID, operatorKey)

	logger.Info("connected to hedera network",
		"network", cfg.Network,
		"operator", cfg.OperatorID,
	)

	return &HederaClient{client: client, decimals: cfg.Decimals, logger: logger}, nil
}

// Close releases the SDK's network connections.
func (h *HederaClient) Close() error {
	return h.client.Close()
}

// Transfer implements Client. Precheck and receipt failures come back as an
// unsuccessful result carrying the ledger status, not as an error.
func (h *HederaClient) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sender, err := hedera.AccountIDFromString(req.Sender)
	if err != nil {
		return nil, fmt.Errorf("invalid sender account id: %w", err)
	}
	recipient, err := hedera.AccountIDFromString(req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient account id: %w", err)
	}
	token, err := hedera.TokenIDFromString(req.TokenID)
	if err != nil {
		return nil, fmt.Errorf("invalid token id: %w", err)
	}
	key, err := hedera.PrivateKeyFromString(req.SenderKey)
	if err != nil {
		return nil, fmt.Errorf("invalid sender private key: %w", err)
	}

	tx, err := hedera.NewTransferTransaction().
		AddTokenTransfer(token, sender, -req.AmountMinorUnits).
		AddTokenTransfer(token, recipient, req.AmountMinorUnits).
		FreezeWith(h.client)
	if err != nil {
		return nil, fmt.Errorf("failed to freeze transfer: %w", err)
	}

	resp, err := tx.Sign(key).Execute(h.client)
	if err != nil {
		var precheck hedera.ErrHederaPreCheckStatus
		if errors.As(err, &precheck) {
			return &TransferResult{Success: false, Error: precheck.Status.String()}, nil
		}
		return nil, fmt.Errorf("failed to submit transfer: %w", err)
	}

	txID := resp.TransactionID.String()
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		var status hedera.ErrHederaReceiptStatus
		if errors.As(err, &status) {
			return &TransferResult{Success: false, TransactionID: txID, Error: status.Status.String()}, nil
		}
		return nil, fmt.Errorf("failed to get transfer receipt: %w", err)
	}
	if receipt.Status != hedera.StatusSuccess {
		return &TransferResult{Success: false, TransactionID: txID, Error: receipt.Status.String()}, nil
	}

	h.logger.InfoContext(ctx, "token transfer succeeded",
		"transaction_id", txID,
		"sender", req.Sender,
		"recipient", req.Recipient,
		"token_id", req.TokenID,
		"amount_minor_units", req.AmountMinorUnits,
	)

	return &TransferResult{Success: true, TransactionID: txID}, nil
}

// TokenBalance implements Client.
func (h *HederaClient) TokenBalance(ctx context.Context, accountID, tokenID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	account, err := hedera.AccountIDFromString(accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid account id: %w", err)
	}
	token, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid token id: %w", err)
	}

	balance, err := hedera.NewAccountBalanceQuery().
		SetAccountID(account).
		Execute(h.client)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query balance of %s: %w", accountID, err)
	}

	units := balance.Tokens.Get(token)
	return money.FromMinorUnits(int64(units), h.decimals), nil
}

// TokenHasKYCKey implements Client.
func (h *HederaClient) TokenHasKYCKey(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	token, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return false, fmt.Errorf("invalid token id: %w", err)
	}

	info, err := hedera.NewTokenInfoQuery().
		SetTokenID(token).
		Execute(h.client)
	if err != nil {
		return false, fmt.Errorf("failed to query token info for %s: %w", tokenID, err)
	}
	return info.KycKey != nil, nil
}

// CreateToken implements Client. The treasury key is also the admin and
// supply key.
func (h *HederaClient) CreateToken(ctx context.Context, req CreateTokenRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	treasury, err := hedera.AccountIDFromString(req.Treasury)
	if err != nil {
		return "", fmt.Errorf("invalid treasury account id: %w", err)
	}
	key, err := hedera.PrivateKeyFromString(req.TreasuryKey)
	if err != nil {
		return "", fmt.Errorf("invalid treasury private key: %w", err)
	}

	create := hedera.NewTokenCreateTransaction().
		SetTokenName(req.Name).
		SetTokenSymbol(req.Symbol).
		SetDecimals(req.Decimals).
		SetInitialSupply(req.InitialSupply).
		SetTreasuryAccountID(treasury).
		SetSupplyType(hedera.TokenSupplyTypeInfinite).
		SetAdminKey(key.PublicKey()).
		SetSupplyKey(key.PublicKey())
	if req.WithKYCKey {
		create = create.SetKycKey(key.PublicKey())
	}

	tx, err := create.FreezeWith(h.client)
	if err != nil {
		return "", fmt.Errorf("failed to freeze token create: %w", err)
	}
	resp, err := tx.Sign(key).Execute(h.client)
	if err != nil {
		return "", fmt.Errorf("failed to submit token create: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return "", fmt.Errorf("token create failed: %w", err)
	}
	if receipt.TokenID == nil {
		return "", errors.New("token create receipt has no token id")
	}

	tokenID := receipt.TokenID.String()
	h.logger.InfoContext(ctx, "token created",
		"token_id", tokenID,
		"symbol", req.Symbol,
		"treasury", req.Treasury,
	)
	return tokenID, nil
}

// AssociateToken implements Client.
func (h *HederaClient) AssociateToken(ctx context.Context, accountID, accountKey, tokenID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	account, err := hedera.AccountIDFromString(accountID)
	if err != nil {
		return fmt.Errorf("invalid account id: %w", err)
	}
	key, err := hedera.PrivateKeyFromString(accountKey)
	if err != nil {
		return fmt.Errorf("invalid account private key: %w", err)
	}
	token, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return fmt.Errorf("invalid token id: %w", err)
	}

	tx, err := hedera.NewTokenAssociateTransaction().
		SetAccountID(account).
		SetTokenIDs(token).
		FreezeWith(h.client)
	if err != nil {
		return fmt.Errorf("failed to freeze token associate: %w", err)
	}
	resp, err := tx.Sign(key).Execute(h.client)
	if err != nil {
		return fmt.Errorf("failed to submit token associate: %w", err)
	}
	if _, err := resp.GetReceipt(h.client); err != nil {
		return fmt.Errorf("token associate failed: %w", err)
	}

	h.logger.InfoContext(ctx, "token associated", "account_id", accountID, "token_id", tokenID)
	return nil
}
