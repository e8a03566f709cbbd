package transfer

import "fmt"

// Kind classifies why a transfer did not complete.
type Kind string

const (
	KindParseFailure      Kind = "parse_failure"
	KindInvalidRecipient  Kind = "invalid_recipient"
	KindInvalidAmount     Kind = "invalid_amount"
	KindComplianceBlocked Kind = "compliance_blocked"
	KindConversionFailure Kind = "conversion_failure"
	KindLedgerFailure     Kind = "ledger_failure"
)

// UnknownActionReply is the detail for KindParseFailure.
const UnknownActionReply = `I'm not sure what you want to do. Try: "Send $500 to Priya in India" or "Transfer 1000 rupees to Anil"`

// Error is returned by Execute. Detail is safe to show to the user.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}
