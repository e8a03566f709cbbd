package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"github.com/brojonat/agentpay/service/agent"
	"github.com/brojonat/agentpay/service/config"
	"github.com/brojonat/agentpay/service/directory"
	"github.com/brojonat/agentpay/service/intent"
	"github.com/brojonat/agentpay/service/temporal"
	"github.com/brojonat/agentpay/service/transfer"
	"github.com/shopspring/decimal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxMessageLength   = 2000
)

// ChatAgent answers free-text chat messages.
type ChatAgent interface {
	HandleChatMessage(ctx context.Context, text string) agent.ChatResponse
}

// InstructionBuilder builds instructions from structured requests.
type InstructionBuilder interface {
	FromFields(ctx context.Context, f intent.Fields) intent.TransferInstruction
}

// TransferExecutor runs instructions through the transfer pipeline.
type TransferExecutor interface {
	Execute(ctx context.Context, instr intent.TransferInstruction) (*transfer.Outcome, error)
}

// AsyncTransfers starts and inspects transfer workflows.
type AsyncTransfers interface {
	StartTransfer(ctx context.Context, input temporal.TransferWorkflowInput) (string, error)
	GetTransferStatus(ctx context.Context, workflowID string) (*temporal.TransferStatus, error)
}

// BalanceReader reads token balances from the ledger.
type BalanceReader interface {
	TokenBalance(ctx context.Context, accountID, tokenID string) (decimal.Decimal, error)
}

// RecipientLister lists directory entries.
type RecipientLister interface {
	List(ctx context.Context) ([]directory.Entry, error)
}

type chatRequest struct {
	Message string `json:"message"`
}

type transferRequest struct {
	// RecipientAccount is the original frontend's field; Recipient also
	// accepts directory names.
	RecipientAccount string          `json:"recipient_account"`
	Recipient        string          `json:"recipient"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Purpose          string          `json:"purpose"`
}

func (r transferRequest) recipient() string {
	if r.RecipientAccount != "" {
		return r.RecipientAccount
	}
	return r.Recipient
}

type transferResponse struct {
	Success       bool              `json:"success"`
	TransferID    string            `json:"transfer_id,omitempty"`
	State         string            `json:"state,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	ExplorerURL   string            `json:"explorer_url,omitempty"`
	Message       string            `json:"message,omitempty"`
	Error         string            `json:"error,omitempty"`
	Outcome       *transfer.Outcome `json:"outcome,omitempty"`
}

type asyncTransferRequest struct {
	Message string `json:"message"`
	transferRequest
}

type asyncTransferResponse struct {
	WorkflowID string `json:"workflow_id"`
	StatusURL  string `json:"status_url"`
}

type balance struct {
	Role      string `json:"role"`
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

// handleChat returns a handler that answers one chat message.
// POST /api/v1/chat
// Transfer failures are described in the response text, so this always
// answers 200 once the body is valid.
func handleChat(chat ChatAgent, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeBody(w, r, &req, logger) {
			return
		}

		if err := validateMessage(req.Message); err != nil {
			logger.DebugContext(r.Context(), "invalid chat message", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := chat.HandleChatMessage(r.Context(), req.Message)
		logger.InfoContext(r.Context(), "chat message handled",
			"success", resp.Success,
			"transaction_id", resp.TransactionID,
		)
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleTransfer returns a handler that executes a structured transfer.
// POST /api/v1/transfer
func handleTransfer(builder InstructionBuilder, executor TransferExecutor, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if !decodeBody(w, r, &req, logger) {
			return
		}

		if err := validateTransferRequest(req); err != nil {
			logger.DebugContext(r.Context(), "invalid transfer request", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		instr := builder.FromFields(r.Context(), intent.Fields{
			Recipient: req.recipient(),
			Amount:    req.Amount,
			Currency:  req.Currency,
			Purpose:   req.Purpose,
		})

		out, err := executor.Execute(r.Context(), instr)
		resp := transferResponse{Outcome: out}
		if out != nil {
			resp.TransferID = out.ID
			resp.State = string(out.State)
			resp.Reason = string(out.Reason)
			resp.TransactionID = out.TransactionID
			resp.ExplorerURL = out.ExplorerURL
			resp.Message = out.Message
		}
		if err != nil {
			resp.Error = errorMessage(err)
			logger.InfoContext(r.Context(), "transfer did not complete", "error", err)
			writeJSON(w, resp, transferStatusCode(err))
			return
		}

		resp.Success = true
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleStartAsyncTransfer returns a handler that starts a transfer workflow
// from either a chat message or structured fields.
// POST /api/v1/transfers/async
func handleStartAsyncTransfer(builder InstructionBuilder, async AsyncTransfers, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req asyncTransferRequest
		if !decodeBody(w, r, &req, logger) {
			return
		}

		var input temporal.TransferWorkflowInput
		if req.Message != "" {
			if err := validateMessage(req.Message); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			input.Message = req.Message
		} else {
			if err := validateTransferRequest(req.transferRequest); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			instr := builder.FromFields(r.Context(), intent.Fields{
				Recipient: req.recipient(),
				Amount:    req.Amount,
				Currency:  req.Currency,
				Purpose:   req.Purpose,
			})
			input.Instruction = &instr
		}

		workflowID, err := async.StartTransfer(r.Context(), input)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to start transfer workflow", "error", err)
			writeError(w, "failed to start transfer", http.StatusInternalServerError)
			return
		}

		writeJSON(w, asyncTransferResponse{
			WorkflowID: workflowID,
			StatusURL:  "/api/v1/transfers/async/" + workflowID,
		}, http.StatusAccepted)
	})
}

// handleGetAsyncTransfer returns a handler that reports a workflow's status.
// GET /api/v1/transfers/async/{workflow_id}
func handleGetAsyncTransfer(async AsyncTransfers, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workflowID := r.PathValue("workflow_id")
		if err := validateWorkflowID(workflowID); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		status, err := async.GetTransferStatus(r.Context(), workflowID)
		if errors.Is(err, temporal.ErrWorkflowNotFound) {
			writeError(w, "transfer not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get transfer status",
				"workflow_id", workflowID,
				"error", err,
			)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, status, http.StatusOK)
	})
}

// handleBalances returns a handler that reports token balances for the
// sender and default recipient, or for ?account= when given.
// GET /api/v1/balances
func handleBalances(ledger BalanceReader, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accounts := []balance{{Role: "sender", AccountID: cfg.SenderAccountID}}
		if cfg.RecipientAccountID != "" {
			accounts = append(accounts, balance{Role: "recipient", AccountID: cfg.RecipientAccountID})
		}

		if account := r.URL.Query().Get("account"); account != "" {
			if !directory.IsAccountID(account) {
				writeError(w, "invalid account: must look like 0.0.12345", http.StatusBadRequest)
				return
			}
			accounts = []balance{{Role: "account", AccountID: account}}
		}

		for i := range accounts {
			amount, err := ledger.TokenBalance(r.Context(), accounts[i].AccountID, cfg.TokenID)
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to read balance",
					"account", accounts[i].AccountID,
					"error", err,
				)
				writeError(w, "failed to read balance from ledger", http.StatusBadGateway)
				return
			}
			accounts[i].Balance = amount.StringFixed(cfg.TokenDecimals)
		}

		writeJSON(w, map[string]interface{}{
			"token_id":     cfg.TokenID,
			"token_symbol": cfg.TokenSymbol,
			"network":      cfg.LedgerNetwork,
			"balances":     accounts,
		}, http.StatusOK)
	})
}

// handleListRecipients returns a handler that lists the recipient directory.
// GET /api/v1/recipients
func handleListRecipients(dir RecipientLister, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries, err := dir.List(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list recipients", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.DebugContext(r.Context(), "recipients listed", "count", len(entries))
		writeJSON(w, map[string]interface{}{
			"recipients": entries,
		}, http.StatusOK)
	})
}

// decodeBody decodes a size-limited JSON body, writing the error response
// itself when decoding fails.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.DebugContext(r.Context(), "failed to decode request", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
			return false
		}
		writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// transferStatusCode maps a pipeline error to an HTTP status.
func transferStatusCode(err error) int {
	var te *transfer.Error
	if !errors.As(err, &te) {
		return http.StatusInternalServerError
	}
	switch te.Kind {
	case transfer.KindParseFailure, transfer.KindInvalidRecipient, transfer.KindInvalidAmount:
		return http.StatusBadRequest
	case transfer.KindComplianceBlocked:
		return http.StatusForbidden
	case transfer.KindConversionFailure:
		return http.StatusUnprocessableEntity
	case transfer.KindLedgerFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var te *transfer.Error
	if errors.As(err, &te) {
		return te.Detail
	}
	return "internal server error"
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateMessage validates a chat message.
func validateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errorf("message is required")
	}

	if len(message) > maxMessageLength {
		return errorf("message too long: maximum length is %d characters", maxMessageLength)
	}

	for _, r := range message {
		if r == 0 {
			return errorf("invalid characters in message: null bytes not allowed")
		}
	}

	return nil
}

// validateTransferRequest validates a structured transfer request.
func validateTransferRequest(req transferRequest) error {
	recipient := req.recipient()
	if recipient == "" {
		return errorf("recipient_account is required")
	}

	for _, r := range recipient {
		if unicode.IsControl(r) {
			return errorf("invalid characters in recipient: control characters not allowed")
		}
	}

	if req.RecipientAccount != "" && !directory.IsAccountID(req.RecipientAccount) {
		return errorf("invalid recipient_account: must look like 0.0.12345")
	}

	if !req.Amount.IsPositive() {
		return errorf("amount must be greater than zero")
	}

	return nil
}

// validateWorkflowID validates a workflow id path parameter.
func validateWorkflowID(id string) error {
	if id == "" {
		return errorf("workflow_id is required")
	}

	if len(id) > 100 {
		return errorf("workflow_id too long")
	}

	if !strings.HasPrefix(id, "transfer-") {
		return errorf("invalid workflow_id")
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
