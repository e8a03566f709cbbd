package temporal

import (
	"errors"
	"testing"

	"github.com/brojonat/agentpay/service/intent"
	"github.com/brojonat/agentpay/service/transfer"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func sendInstruction() intent.TransferInstruction {
	return intent.TransferInstruction{
		Action:           intent.ActionSend,
		Amount:           decimal.NewFromInt(10),
		SourceCurrency:   "USD",
		TargetCurrency:   "USD",
		RecipientAccount: "0.0.1234567",
	}
}

func TestTransferWorkflow(t *testing.T) {
	instr := sendInstruction()

	tests := []struct {
		name           string
		input          TransferWorkflowInput
		mockActivities func(env *testsuite.TestWorkflowEnvironment)
		expectedError  bool
		validateResult func(*testing.T, *TransferWorkflowResult)
	}{
		{
			name:  "message is parsed then executed",
			input: TransferWorkflowInput{Message: "Send 10 TPYUSD to 0.0.1234567"},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(a.ParseIntent, mock.Anything, ParseIntentInput{Message: "Send 10 TPYUSD to 0.0.1234567"}).
					Return(&ParseIntentResult{Instruction: instr}, nil).Once()
				env.OnActivity(a.ExecuteTransfer, mock.Anything, mock.Anything).
					Return(&ExecuteTransferResult{
						TransferID:    "t-1",
						State:         string(transfer.StateCompleted),
						TransactionID: "0.0.1001@1700000000.1",
						ExplorerURL:   "https://hashscan.io/testnet/transaction/0.0.1001@1700000000.1",
						AmountUSD:     "10.00",
						Message:       "✅ Transfer complete!",
					}, nil).Once()
			},
			validateResult: func(t *testing.T, result *TransferWorkflowResult) {
				assert.Equal(t, "completed", result.Status)
				assert.Equal(t, "t-1", result.TransferID)
				assert.Equal(t, "0.0.1001@1700000000.1", result.TransactionID)
				assert.Equal(t, "10.00", result.AmountUSD)
				assert.Nil(t, result.Error)
			},
		},
		{
			name:  "structured instruction skips parsing",
			input: TransferWorkflowInput{Instruction: &instr},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(a.ExecuteTransfer, mock.Anything, mock.MatchedBy(func(in ExecuteTransferInput) bool {
					return in.Instruction.RecipientAccount == "0.0.1234567"
				})).Return(&ExecuteTransferResult{TransferID: "t-2", State: string(transfer.StateCompleted)}, nil).Once()
			},
			validateResult: func(t *testing.T, result *TransferWorkflowResult) {
				assert.Equal(t, "completed", result.Status)
				assert.Equal(t, "t-2", result.TransferID)
			},
		},
		{
			name:  "compliance rejection is a result, not an error",
			input: TransferWorkflowInput{Instruction: &instr},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(a.ExecuteTransfer, mock.Anything, mock.Anything).
					Return(&ExecuteTransferResult{
						TransferID: "t-3",
						State:      string(transfer.StateRejected),
						Reason:     string(transfer.KindComplianceBlocked),
						Message:    "Transfer held for review by compliance checks: High-value transaction pending manual review",
					}, nil).Once()
			},
			validateResult: func(t *testing.T, result *TransferWorkflowResult) {
				assert.Equal(t, "rejected", result.Status)
				assert.Equal(t, "compliance_blocked", result.Reason)
				assert.Contains(t, result.Message, "pending manual review")
				assert.Empty(t, result.TransactionID)
			},
		},
		{
			name:  "activity error fails the workflow without retry",
			input: TransferWorkflowInput{Instruction: &instr},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(a.ExecuteTransfer, mock.Anything, mock.Anything).
					Return(nil, errors.New("ledger unreachable")).Once()
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()
			env.RegisterActivity(a.ParseIntent)
			env.RegisterActivity(a.ExecuteTransfer)

			tt.mockActivities(env)

			env.ExecuteWorkflow(TransferWorkflow, tt.input)

			require.True(t, env.IsWorkflowCompleted())
			if tt.expectedError {
				assert.Error(t, env.GetWorkflowError())
				env.AssertExpectations(t)
				return
			}

			require.NoError(t, env.GetWorkflowError())
			var result TransferWorkflowResult
			require.NoError(t, env.GetWorkflowResult(&result))
			tt.validateResult(t, &result)
			env.AssertExpectations(t)
		})
	}
}
