package nats

import (
	"time"

	"github.com/brojonat/agentpay/service/compliance"
	"github.com/brojonat/agentpay/service/transfer"
)

// TransferEvent is published to "transfers.{recipient_account}" when a
// transfer completes.
type TransferEvent struct {
	TransferID    string `json:"transfer_id"`
	TransactionID string `json:"transaction_id"`

	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
	RecipientHandle string `json:"recipient_handle,omitempty"`
	TokenID         string `json:"token_id"`

	// Amount is in SourceCurrency; AmountUSD is what moved on the ledger.
	Amount           string `json:"amount"`
	SourceCurrency   string `json:"source_currency"`
	TargetCurrency   string `json:"target_currency"`
	AmountUSD        string `json:"amount_usd"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	PurposeCode      string `json:"purpose_code"`

	ExplorerURL string    `json:"explorer_url"`
	CompletedAt time.Time `json:"completed_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromOutcome converts a completed transfer into an event.
func FromOutcome(o *transfer.Outcome) *TransferEvent {
	instr := o.Instruction
	return &TransferEvent{
		TransferID:       o.ID,
		TransactionID:    o.TransactionID,
		Sender:           o.Sender,
		Recipient:        o.Recipient,
		RecipientHandle:  instr.RecipientHandle,
		TokenID:          o.TokenID,
		Amount:           instr.Amount.String(),
		SourceCurrency:   string(instr.SourceCurrency),
		TargetCurrency:   string(instr.TargetCurrency),
		AmountUSD:        o.AmountUSD.StringFixed(2),
		AmountMinorUnits: o.AmountMinorUnits,
		PurposeCode:      instr.Regulatory.PurposeCode,
		ExplorerURL:      o.ExplorerURL,
		CompletedAt:      o.FinishedAt,
		PublishedAt:      time.Now().UTC(),
	}
}

// ComplianceEvent is published to "compliance.{status}" for every decision.
type ComplianceEvent struct {
	DecisionID  string             `json:"decision_id"`
	Sender      string             `json:"sender"`
	Recipient   string             `json:"recipient"`
	AmountUSD   string             `json:"amount_usd"`
	Overall     string             `json:"overall_status"`
	Checks      []compliance.Check `json:"checks"`
	CreatedAt   time.Time          `json:"created_at"`
	PublishedAt time.Time          `json:"published_at"`
}

// FromDecision converts a compliance decision into an event.
func FromDecision(d compliance.Decision) *ComplianceEvent {
	return &ComplianceEvent{
		DecisionID:  d.ID,
		Sender:      d.Sender,
		Recipient:   d.Recipient,
		AmountUSD:   d.Amount.StringFixed(2),
		Overall:     string(d.Overall),
		Checks:      d.Checks,
		CreatedAt:   d.CreatedAt,
		PublishedAt: time.Now().UTC(),
	}
}
