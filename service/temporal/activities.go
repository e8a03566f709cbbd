package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/agentpay/service/intent"
	"github.com/brojonat/agentpay/service/metrics"
	"github.com/brojonat/agentpay/service/transfer"
)

// TransferWorkflowInput starts a transfer from either a chat message or an
// already structured instruction. Instruction wins when both are set.
type TransferWorkflowInput struct {
	Message     string                      `json:"message,omitempty"`
	Instruction *intent.TransferInstruction `json:"instruction,omitempty"`
}

// TransferWorkflowResult is what a finished TransferWorkflow reports.
type TransferWorkflowResult struct {
	Status        string    `json:"status"` // completed, rejected or failed
	TransferID    string    `json:"transfer_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ExplorerURL   string    `json:"explorer_url,omitempty"`
	AmountUSD     string    `json:"amount_usd,omitempty"`
	Message       string    `json:"message"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Error         *string   `json:"error,omitempty"`
}

// ParseIntentInput contains parameters for the ParseIntent activity.
type ParseIntentInput struct {
	Message string `json:"message"`
}

// ParseIntentResult contains the result of the ParseIntent activity.
type ParseIntentResult struct {
	Instruction intent.TransferInstruction `json:"instruction"`
}

// ExecuteTransferInput contains parameters for the ExecuteTransfer activity.
type ExecuteTransferInput struct {
	Instruction intent.TransferInstruction `json:"instruction"`
	StartedAt   time.Time                  `json:"started_at"`
}

// ExecuteTransferResult contains the result of the ExecuteTransfer activity.
// Rejections and ledger failures are results, not activity errors.
type ExecuteTransferResult struct {
	TransferID    string `json:"transfer_id"`
	State         string `json:"state"`
	Reason        string `json:"reason,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	ExplorerURL   string `json:"explorer_url,omitempty"`
	AmountUSD     string `json:"amount_usd,omitempty"`
	Message       string `json:"message"`
}

// IntentParser defines the parsing operation needed by activities.
type IntentParser interface {
	Parse(ctx context.Context, text string) intent.TransferInstruction
}

// TransferExecutor defines the transfer operation needed by activities.
type TransferExecutor interface {
	Execute(ctx context.Context, instr intent.TransferInstruction) (*transfer.Outcome, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	parser   IntentParser
	executor TransferExecutor
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(parser IntentParser, executor TransferExecutor, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		parser:   parser,
		executor: executor,
		metrics:  m,
		logger:   logger,
	}
}

// ParseIntent turns a chat message into an instruction. Model failures fall
// back to local parsing inside the parser, so this never fails.
func (a *Activities) ParseIntent(ctx context.Context, input ParseIntentInput) (*ParseIntentResult, error) {
	instr := a.parser.Parse(ctx, input.Message)
	a.logger.DebugContext(ctx, "parsed transfer intent",
		"action", instr.Action,
		"source", instr.Source,
		"recipient", instr.RecipientAccount,
	)
	return &ParseIntentResult{Instruction: instr}, nil
}

// ExecuteTransfer runs the instruction through the transfer pipeline.
func (a *Activities) ExecuteTransfer(ctx context.Context, input ExecuteTransferInput) (*ExecuteTransferResult, error) {
	out, err := a.executor.Execute(ctx, input.Instruction)

	var te *transfer.Error
	if err != nil && !errors.As(err, &te) {
		a.logger.ErrorContext(ctx, "transfer pipeline error", "error", err)
		return nil, fmt.Errorf("failed to execute transfer: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("transfer pipeline returned no outcome")
	}

	if !input.StartedAt.IsZero() {
		a.metrics.RecordWorkflowDuration(string(out.State), time.Since(input.StartedAt).Seconds())
	}

	result := &ExecuteTransferResult{
		TransferID:    out.ID,
		State:         string(out.State),
		Reason:        string(out.Reason),
		TransactionID: out.TransactionID,
		ExplorerURL:   out.ExplorerURL,
		Message:       out.Message,
	}
	if te != nil && te.Kind == transfer.KindParseFailure {
		result.Message = transfer.UnknownActionReply
	}
	if !out.AmountUSD.IsZero() {
		result.AmountUSD = out.AmountUSD.StringFixed(2)
	}

	a.logger.InfoContext(ctx, "transfer activity finished",
		"transfer_id", out.ID,
		"state", out.State,
		"transaction_id", out.TransactionID,
	)
	return result, nil
}
