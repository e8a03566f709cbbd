package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/agentpay/service/intent"
	"github.com/brojonat/agentpay/service/transfer"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock Parser
type MockParser struct {
	mock.Mock
}

func (m *MockParser) Parse(ctx context.Context, text string) intent.TransferInstruction {
	args := m.Called(ctx, text)
	return args.Get(0).(intent.TransferInstruction)
}

// Mock Executor
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, instr intent.TransferInstruction) (*transfer.Outcome, error) {
	args := m.Called(ctx, instr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transfer.Outcome), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseIntent(t *testing.T) {
	parser := new(MockParser)
	parser.On("Parse", mock.Anything, "send 10 to 0.0.42").Return(sendInstruction())

	acts := NewActivities(parser, new(MockExecutor), nil, testLogger())
	result, err := acts.ParseIntent(context.Background(), ParseIntentInput{Message: "send 10 to 0.0.42"})

	require.NoError(t, err)
	assert.Equal(t, intent.ActionSend, result.Instruction.Action)
	parser.AssertExpectations(t)
}

func TestExecuteTransfer(t *testing.T) {
	instr := sendInstruction()

	tests := []struct {
		name      string
		outcome   *transfer.Outcome
		err       error
		expectErr bool
		validate  func(*testing.T, *ExecuteTransferResult)
	}{
		{
			name: "completed transfer",
			outcome: &transfer.Outcome{
				ID:            "t-1",
				State:         transfer.StateCompleted,
				AmountUSD:     decimal.NewFromInt(10),
				TransactionID: "0.0.1001@1700000000.1",
				ExplorerURL:   "https://hashscan.io/testnet/transaction/0.0.1001@1700000000.1",
				Message:       "✅ Transfer complete!",
			},
			validate: func(t *testing.T, r *ExecuteTransferResult) {
				assert.Equal(t, "completed", r.State)
				assert.Equal(t, "10.00", r.AmountUSD)
				assert.Equal(t, "0.0.1001@1700000000.1", r.TransactionID)
				assert.Empty(t, r.Reason)
			},
		},
		{
			name: "typed pipeline error becomes a result",
			outcome: &transfer.Outcome{
				ID:      "t-2",
				State:   transfer.StateFailed,
				Reason:  transfer.KindLedgerFailure,
				Message: "Transfer failed: INSUFFICIENT_TOKEN_BALANCE",
			},
			err: &transfer.Error{Kind: transfer.KindLedgerFailure, Detail: "Transfer failed: INSUFFICIENT_TOKEN_BALANCE"},
			validate: func(t *testing.T, r *ExecuteTransferResult) {
				assert.Equal(t, "failed", r.State)
				assert.Equal(t, "ledger_failure", r.Reason)
				assert.Equal(t, "Transfer failed: INSUFFICIENT_TOKEN_BALANCE", r.Message)
				assert.Empty(t, r.AmountUSD)
			},
		},
		{
			name: "message that is not a transfer gets the help reply",
			outcome: &transfer.Outcome{
				ID:      "t-3",
				State:   transfer.StateRejected,
				Reason:  transfer.KindParseFailure,
				Message: "no transfer requested",
			},
			err: &transfer.Error{Kind: transfer.KindParseFailure, Detail: "no transfer requested"},
			validate: func(t *testing.T, r *ExecuteTransferResult) {
				assert.Equal(t, "rejected", r.State)
				assert.Equal(t, "parse_failure", r.Reason)
				assert.Equal(t, transfer.UnknownActionReply, r.Message)
			},
		},
		{
			name:      "untyped error fails the activity",
			err:       errors.New("boom"),
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := new(MockExecutor)
			if tt.outcome != nil {
				executor.On("Execute", mock.Anything, instr).Return(tt.outcome, tt.err)
			} else {
				executor.On("Execute", mock.Anything, instr).Return(nil, tt.err)
			}

			acts := NewActivities(new(MockParser), executor, nil, testLogger())
			result, err := acts.ExecuteTransfer(context.Background(), ExecuteTransferInput{
				Instruction: instr,
				StartedAt:   time.Now().Add(-time.Second),
			})

			if tt.expectErr {
				require.Error(t, err)
				assert.Nil(t, result)
			} else {
				require.NoError(t, err)
				tt.validate(t, result)
			}
			executor.AssertExpectations(t)
		})
	}
}

func TestTransferWorkflowID(t *testing.T) {
	id := transferWorkflowID()
	assert.Regexp(t, `^transfer-[0-9a-f-]{36}$`, id)
	assert.NotEqual(t, id, transferWorkflowID())
}
