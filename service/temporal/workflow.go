package temporal

import (
	"fmt"
	"time"

	"github.com/brojonat/agentpay/service/transfer"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// TransferWorkflow parses (when needed) and executes one transfer.
//
// Transfers are never retried: a ledger submission that timed out may still
// have landed, so each activity gets exactly one attempt.
func TransferWorkflow(ctx workflow.Context, input TransferWorkflowInput) (*TransferWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("TransferWorkflow started", "has_instruction", input.Instruction != nil)

	result := &TransferWorkflowResult{
		StartedAt: workflow.Now(ctx),
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	instr := input.Instruction
	if instr == nil {
		var parsed *ParseIntentResult
		err := workflow.ExecuteActivity(ctx, a.ParseIntent, ParseIntentInput{Message: input.Message}).Get(ctx, &parsed)
		if err != nil {
			return failed(ctx, result, fmt.Errorf("failed to parse intent: %w", err))
		}
		instr = &parsed.Instruction
	}

	var executed *ExecuteTransferResult
	err := workflow.ExecuteActivity(ctx, a.ExecuteTransfer, ExecuteTransferInput{
		Instruction: *instr,
		StartedAt:   result.StartedAt,
	}).Get(ctx, &executed)
	if err != nil {
		return failed(ctx, result, fmt.Errorf("failed to execute transfer: %w", err))
	}

	result.Status = executed.State
	result.TransferID = executed.TransferID
	result.Reason = executed.Reason
	result.TransactionID = executed.TransactionID
	result.ExplorerURL = executed.ExplorerURL
	result.AmountUSD = executed.AmountUSD
	result.Message = executed.Message
	result.FinishedAt = workflow.Now(ctx)

	logger.Info("TransferWorkflow completed",
		"status", result.Status,
		"transfer_id", result.TransferID,
		"transaction_id", result.TransactionID,
	)
	return result, nil
}

func failed(ctx workflow.Context, result *TransferWorkflowResult, err error) (*TransferWorkflowResult, error) {
	errMsg := err.Error()
	result.Status = string(transfer.StateFailed)
	result.Error = &errMsg
	result.FinishedAt = workflow.Now(ctx)
	workflow.GetLogger(ctx).Error("TransferWorkflow failed", "error", err)
	return result, err
}
