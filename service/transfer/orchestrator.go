// Package transfer turns a parsed transfer instruction into a ledger
// transfer: recipient and amount checks, currency conversion, compliance
// validation, and submission.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/agentpay/service/compliance"
	"github.com/brojonat/agentpay/service/currency"
	"github.com/brojonat/agentpay/service/intent"
	"github.com/brojonat/agentpay/service/ledger"
	"github.com/brojonat/agentpay/service/metrics"
	"github.com/brojonat/agentpay/service/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is a step in a transfer's lifecycle.
type State string

const (
	StateReceived  State = "received"
	StateParsed    State = "parsed"
	StateValidated State = "validated"
	StateSubmitted State = "submitted"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateRejected  State = "rejected"
)

// Converter converts amounts between currencies.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to money.Currency) (*currency.Conversion, error)
}

// Validator runs compliance checks.
type Validator interface {
	Validate(ctx context.Context, req compliance.Request) compliance.Decision
}

// Ledger submits token transfers.
type Ledger interface {
	Transfer(ctx context.Context, req ledger.TransferRequest) (*ledger.TransferResult, error)
}

// Publisher announces completed transfers.
type Publisher interface {
	PublishTransfer(ctx context.Context, o *Outcome) error
}

// Config holds the sending account and token settings.
type Config struct {
	SenderAccountID     string
	SenderPrivateKey    string
	TokenID             string
	TokenDecimals       int32
	Network             string
	ExplorerURLTemplate string
}

// Outcome records how far a transfer got and what it produced.
type Outcome struct {
	ID          string                     `json:"id"`
	Instruction intent.TransferInstruction `json:"instruction"`
	State       State                      `json:"state"`
	History     []State                    `json:"history"`
	Reason      Kind                       `json:"reason,omitempty"`

	Sender           string               `json:"sender"`
	Recipient        string               `json:"recipient"`
	TokenID          string               `json:"token_id"`
	AmountUSD        decimal.Decimal      `json:"amount_usd"`
	AmountMinorUnits int64                `json:"amount_minor_units"`
	Conversion       *currency.Conversion `json:"conversion,omitempty"`
	Payout           *currency.Conversion `json:"payout,omitempty"`
	Compliance       *compliance.Decision `json:"compliance,omitempty"`

	TransactionID string    `json:"transaction_id,omitempty"`
	ExplorerURL   string    `json:"explorer_url,omitempty"`
	Message       string    `json:"message"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

func (o *Outcome) advance(s State) {
	o.State = s
	o.History = append(o.History, s)
}

// Orchestrator executes transfer instructions.
type Orchestrator struct {
	converter Converter
	validator Validator
	ledger    Ledger
	publisher Publisher
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator. publisher may be nil.
func NewOrchestrator(converter Converter, validator Validator, l Ledger, publisher Publisher, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = 2
	}
	if cfg.Network == "" {
		cfg.Network = "testnet"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		converter: converter,
		validator: validator,
		ledger:    l,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// Execute runs instr through recipient and amount checks, conversion,
// compliance and the ledger. No step is retried. The outcome is returned
// even when err is non-nil; err is always a *Error.
func (o *Orchestrator) Execute(ctx context.Context, instr intent.TransferInstruction) (*Outcome, error) {
	out := &Outcome{
		ID:          uuid.NewString(),
		Instruction: instr,
		Sender:      o.cfg.SenderAccountID,
		Recipient:   instr.RecipientAccount,
		TokenID:     o.cfg.TokenID,
		StartedAt:   time.Now().UTC(),
	}
	out.advance(StateReceived)

	logger := o.logger.With("transfer_id", out.ID)

	if instr.Action != intent.ActionSend {
		return o.reject(ctx, out, newError(KindParseFailure, nil, "%s", UnknownActionReply))
	}
	out.advance(StateParsed)

	if !instr.HasRecipient() {
		name := instr.RecipientHandle
		if name == "" {
			return o.reject(ctx, out, newError(KindInvalidRecipient, nil,
				"I couldn't tell who to send to. Name a contact or use an account id like 0.0.12345."))
		}
		return o.reject(ctx, out, newError(KindInvalidRecipient, nil,
			"I couldn't find %q in your contacts. Use an account id like 0.0.12345 instead.", name))
	}
	if !compliance.IsValidAccountFormat(instr.RecipientAccount) {
		return o.reject(ctx, out, newError(KindInvalidRecipient, nil,
			"Invalid recipient account %q. Account ids look like 0.0.12345.", instr.RecipientAccount))
	}
	if !instr.Amount.IsPositive() {
		return o.reject(ctx, out, newError(KindInvalidAmount, nil,
			"Please include an amount greater than zero."))
	}

	source := money.NormalizeCurrency(string(instr.SourceCurrency))
	out.AmountUSD = instr.Amount
	if source != money.USD {
		conv, err := o.converter.Convert(ctx, instr.Amount, source, money.USD)
		if err != nil {
			return o.fail(ctx, out, newError(KindConversionFailure, err,
				"I couldn't convert %s to USD: %v", money.Format(instr.SourceAmount()), err))
		}
		out.Conversion = conv
		out.AmountUSD = conv.ToAmount
	}

	target := money.NormalizeCurrency(string(instr.TargetCurrency))
	if target != money.USD {
		payout, err := o.converter.Convert(ctx, out.AmountUSD, money.USD, target)
		if err != nil {
			logger.WarnContext(ctx, "payout quote unavailable",
				"target_currency", target,
				"error", err,
			)
		} else {
			out.Payout = payout
		}
	}

	units, err := money.ToMinorUnits(out.AmountUSD, o.cfg.TokenDecimals)
	if err != nil {
		return o.reject(ctx, out, newError(KindInvalidAmount, err,
			"%s is too large to send.", money.Format(instr.SourceAmount())))
	}
	out.AmountMinorUnits = units
	if out.AmountMinorUnits <= 0 {
		return o.reject(ctx, out, newError(KindInvalidAmount, nil,
			"%s is too small to send.", money.Format(instr.SourceAmount())))
	}

	decision := o.validator.Validate(ctx, compliance.Request{
		Sender:    out.Sender,
		Recipient: out.Recipient,
		AmountUSD: out.AmountUSD,
	})
	out.Compliance = &decision
	if !decision.Approved() {
		verb := "blocked"
		if decision.Overall == compliance.StatusPending {
			verb = "held for review"
		}
		return o.reject(ctx, out, newError(KindComplianceBlocked, nil,
			"Transfer %s by compliance checks: %s", verb, decision.BlockingDetail()))
	}
	out.advance(StateValidated)

	out.advance(StateSubmitted)
	res, err := o.ledger.Transfer(ctx, ledger.TransferRequest{
		Sender:           out.Sender,
		SenderKey:        o.cfg.SenderPrivateKey,
		Recipient:        out.Recipient,
		TokenID:          out.TokenID,
		AmountMinorUnits: out.AmountMinorUnits,
	})
	if err != nil {
		return o.fail(ctx, out, newError(KindLedgerFailure, err, "Transfer failed: %v", err))
	}
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "unknown ledger error"
		}
		out.TransactionID = res.TransactionID
		return o.fail(ctx, out, newError(KindLedgerFailure, nil, "Transfer failed: %s", reason))
	}

	out.TransactionID = res.TransactionID
	out.ExplorerURL = ledger.ExplorerURL(o.cfg.ExplorerURLTemplate, o.cfg.Network, res.TransactionID)
	out.Message = confirmation(out)
	out.FinishedAt = time.Now().UTC()
	out.advance(StateCompleted)

	usd, _ := out.AmountUSD.Float64()
	o.metrics.RecordTransfer(string(StateCompleted), "", usd)
	logger.InfoContext(ctx, "transfer completed",
		"transaction_id", out.TransactionID,
		"recipient", out.Recipient,
		"amount_usd", out.AmountUSD.StringFixed(2),
		"amount_minor_units", out.AmountMinorUnits,
	)

	if o.publisher != nil {
		if err := o.publisher.PublishTransfer(ctx, out); err != nil {
			logger.WarnContext(ctx, "failed to publish transfer event", "error", err)
		}
	}

	return out, nil
}

func (o *Orchestrator) reject(ctx context.Context, out *Outcome, e *Error) (*Outcome, error) {
	return o.finish(ctx, out, StateRejected, e)
}

func (o *Orchestrator) fail(ctx context.Context, out *Outcome, e *Error) (*Outcome, error) {
	return o.finish(ctx, out, StateFailed, e)
}

func (o *Orchestrator) finish(ctx context.Context, out *Outcome, s State, e *Error) (*Outcome, error) {
	out.Reason = e.Kind
	out.Message = e.Detail
	out.FinishedAt = time.Now().UTC()
	out.advance(s)

	usd, _ := out.AmountUSD.Float64()
	o.metrics.RecordTransfer(string(s), string(e.Kind), usd)

	level := slog.LevelInfo
	if s == StateFailed {
		level = slog.LevelWarn
	}
	o.logger.Log(ctx, level, "transfer did not complete",
		"transfer_id", out.ID,
		"state", s,
		"reason", e.Kind,
		"error", e,
	)
	return out, e
}

func confirmation(out *Outcome) string {
	instr := out.Instruction
	var b strings.Builder

	b.WriteString("✅ Transfer complete!\n\n")
	fmt.Fprintf(&b, "Amount: %s\n", money.Format(instr.SourceAmount()))
	if out.Conversion != nil {
		fmt.Fprintf(&b, "Amount in USD: %s (1 %s = %s USD)\n",
			money.Format(money.Amount{Value: out.AmountUSD.Round(2), Currency: money.USD}),
			out.Conversion.FromCurrency,
			out.Conversion.Rate.StringFixed(4),
		)
	}
	if out.Payout != nil {
		fmt.Fprintf(&b, "Recipient receives about: %s\n",
			money.Format(money.Amount{Value: out.Payout.ToAmount.Round(2), Currency: out.Payout.ToCurrency}))
	}
	if instr.RecipientHandle != "" && instr.RecipientHandle != out.Recipient {
		fmt.Fprintf(&b, "To: %s (%s)\n", out.Recipient, instr.RecipientHandle)
	} else {
		fmt.Fprintf(&b, "To: %s\n", out.Recipient)
	}
	fmt.Fprintf(&b, "Transaction ID: %s\n", out.TransactionID)
	fmt.Fprintf(&b, "View transaction: %s", out.ExplorerURL)
	return b.String()
}
