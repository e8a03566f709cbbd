package intent

import (
	"strings"

	"github.com/brojonat/agentpay/service/money"
	"github.com/shopspring/decimal"
)

// Action is what the user asked for.
type Action string

const (
	ActionSend    Action = "send"
	ActionUnknown Action = "unknown"
)

// Relationship between sender and recipient.
type Relationship string

const (
	RelationshipFamily   Relationship = "family"
	RelationshipFriend   Relationship = "friend"
	RelationshipBusiness Relationship = "business"
	RelationshipUnknown  Relationship = "unknown"
)

// Urgency of the transfer.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

// Purpose of the transfer.
type Purpose string

const (
	PurposeFamilySupport Purpose = "family_support"
	PurposeBusiness      Purpose = "business"
	PurposePersonal      Purpose = "personal"
	PurposeUnknown       Purpose = "unknown"
)

// Code returns the regulatory purpose code.
func (p Purpose) Code() string {
	switch p {
	case PurposeFamilySupport:
		return "FAM"
	case PurposeBusiness:
		return "BUS"
	case PurposePersonal:
		return "PER"
	default:
		return "OTH"
	}
}

// Source records which parse path produced an instruction.
type Source string

const (
	SourceLiteral Source = "literal"
	SourceModel   Source = "model"
	SourceLocal   Source = "local"
	SourceAPI     Source = "api"
)

// RegulatoryContext is derived from amount and purpose after parsing.
type RegulatoryContext struct {
	RequiresScreening  bool   `json:"requires_screening"`
	PurposeCode        string `json:"purpose_code"`
	IsFamilyRemittance bool   `json:"is_family_remittance"`
}

// TransferInstruction is the structured form of a chat message.
// A zero Amount means no amount could be parsed.
type TransferInstruction struct {
	Action            Action            `json:"action"`
	Amount            decimal.Decimal   `json:"amount"`
	SourceCurrency    money.Currency    `json:"source_currency"`
	TargetCurrency    money.Currency    `json:"target_currency"`
	RecipientHandle   string            `json:"recipient_handle,omitempty"`
	RecipientAccount  string            `json:"recipient_account,omitempty"`
	RecipientLocation string            `json:"recipient_location,omitempty"`
	Relationship      Relationship      `json:"relationship"`
	Urgency           Urgency           `json:"urgency"`
	Purpose           Purpose           `json:"purpose"`
	Regulatory        RegulatoryContext `json:"regulatory"`
	Source            Source            `json:"source"`
}

// SourceAmount returns the amount in its source currency.
func (t TransferInstruction) SourceAmount() money.Amount {
	return money.Amount{Value: t.Amount, Currency: t.SourceCurrency}
}

// HasRecipient reports whether a recipient account was resolved.
func (t TransferInstruction) HasRecipient() bool {
	return t.RecipientAccount != ""
}

// targetCurrencyFor picks the payout currency for a destination.
func targetCurrencyFor(location string) money.Currency {
	if strings.Contains(strings.ToLower(location), "india") {
		return money.INR
	}
	return money.USD
}

func normalizeAction(s string) Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "send", "transfer", "send_money", "remit":
		return ActionSend
	default:
		return ActionUnknown
	}
}

func normalizeRelationship(s string) Relationship {
	switch Relationship(strings.ToLower(strings.TrimSpace(s))) {
	case RelationshipFamily:
		return RelationshipFamily
	case RelationshipFriend:
		return RelationshipFriend
	case RelationshipBusiness:
		return RelationshipBusiness
	default:
		return RelationshipUnknown
	}
}

func normalizeUrgency(s string) Urgency {
	if strings.EqualFold(strings.TrimSpace(s), string(UrgencyHigh)) {
		return UrgencyHigh
	}
	return UrgencyNormal
}

func normalizePurpose(s string) Purpose {
	switch Purpose(strings.ToLower(strings.TrimSpace(s))) {
	case PurposeFamilySupport:
		return PurposeFamilySupport
	case PurposeBusiness:
		return PurposeBusiness
	case PurposePersonal:
		return PurposePersonal
	default:
		return PurposeUnknown
	}
}
