// Package agent answers chat messages: it parses the transfer request,
// executes it, and renders every outcome as reply text.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brojonat/agentpay/service/intent"
	"github.com/brojonat/agentpay/service/transfer"
)

// UnknownActionReply is sent when a message is not a transfer request.
const UnknownActionReply = transfer.UnknownActionReply

var helpKeywords = []string{"help", "what can you do", "how this works", "examples"}

// Parser turns chat text into an instruction.
type Parser interface {
	Parse(ctx context.Context, text string) intent.TransferInstruction
}

// Executor runs an instruction.
type Executor interface {
	Execute(ctx context.Context, instr intent.TransferInstruction) (*transfer.Outcome, error)
}

// Config is shown in the help reply.
type Config struct {
	SenderAccountID  string
	TokenSymbol      string
	Network          string
	ExampleRecipient string
}

// ChatResponse is the reply to one chat message.
type ChatResponse struct {
	Success       bool                        `json:"success"`
	ResponseText  string                      `json:"response"`
	TransactionID string                      `json:"transaction_id,omitempty"`
	Instruction   *intent.TransferInstruction `json:"instruction,omitempty"`
	Outcome       *transfer.Outcome           `json:"outcome,omitempty"`
}

// Agent handles chat messages.
type Agent struct {
	parser   Parser
	executor Executor
	cfg      Config
	logger   *slog.Logger
}

// New creates an agent.
func New(parser Parser, executor Executor, cfg Config, logger *slog.Logger) *Agent {
	if cfg.TokenSymbol == "" {
		cfg.TokenSymbol = "TPYUSD"
	}
	if cfg.Network == "" {
		cfg.Network = "testnet"
	}
	if cfg.ExampleRecipient == "" {
		cfg.ExampleRecipient = "0.0.1234567"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{parser: parser, executor: executor, cfg: cfg, logger: logger}
}

// HandleChatMessage never returns an error; every failure is described in
// ResponseText.
func (a *Agent) HandleChatMessage(ctx context.Context, text string) ChatResponse {
	if isHelpRequest(text) {
		return ChatResponse{Success: true, ResponseText: a.HelpText()}
	}

	instr := a.parser.Parse(ctx, text)
	if instr.Action != intent.ActionSend {
		a.logger.InfoContext(ctx, "chat message is not a transfer request",
			"source", instr.Source,
		)
		return ChatResponse{Success: false, ResponseText: UnknownActionReply, Instruction: &instr}
	}

	out, err := a.executor.Execute(ctx, instr)
	if err != nil {
		a.logger.InfoContext(ctx, "chat transfer not completed",
			"source", instr.Source,
			"kind", errorKind(err),
			"error", err,
		)
		return ChatResponse{
			Success:      false,
			ResponseText: errorReply(err),
			Instruction:  &instr,
			Outcome:      out,
		}
	}

	a.logger.InfoContext(ctx, "chat transfer completed",
		"source", instr.Source,
		"transfer_id", out.ID,
		"transaction_id", out.TransactionID,
	)
	return ChatResponse{
		Success:       true,
		ResponseText:  out.Message,
		TransactionID: out.TransactionID,
		Instruction:   &instr,
		Outcome:       out,
	}
}

// HelpText describes what the agent understands.
func (a *Agent) HelpText() string {
	var b strings.Builder
	b.WriteString("🤖 AgentPay Help\n\n")
	fmt.Fprintf(&b, "I can send %s tokens on the %s network and convert from rupees or euros.\n\n", a.cfg.TokenSymbol, a.cfg.Network)
	b.WriteString("Examples:\n")
	fmt.Fprintf(&b, "• \"Send 10 %s to %s\"\n", a.cfg.TokenSymbol, a.cfg.ExampleRecipient)
	b.WriteString("• \"Send $500 to Priya in India\"\n")
	b.WriteString("• \"Transfer 1000 rupees to Anil\"\n\n")
	if a.cfg.SenderAccountID != "" {
		fmt.Fprintf(&b, "Sender: %s\n", a.cfg.SenderAccountID)
	}
	fmt.Fprintf(&b, "Token: %s", a.cfg.TokenSymbol)
	return b.String()
}

func isHelpRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range helpKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func errorKind(err error) string {
	var te *transfer.Error
	if errors.As(err, &te) {
		return string(te.Kind)
	}
	return "untyped"
}

func errorReply(err error) string {
	var te *transfer.Error
	if !errors.As(err, &te) {
		return "Sorry, I encountered an error: " + err.Error()
	}
	switch te.Kind {
	case transfer.KindParseFailure:
		return UnknownActionReply
	case transfer.KindConversionFailure, transfer.KindLedgerFailure:
		return "Sorry, I encountered an error: " + te.Detail
	default:
		return te.Detail
	}
}
