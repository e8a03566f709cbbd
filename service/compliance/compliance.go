// Package compliance runs the regulatory checks a transfer must pass before
// it is submitted to the ledger.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/agentpay/service/directory"
	"github.com/brojonat/agentpay/service/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultAMLThreshold is the USD amount above which a transfer needs manual review.
var DefaultAMLThreshold = decimal.NewFromInt(10000)

// CheckType identifies a compliance check.
type CheckType string

const (
	CheckKYC       CheckType = "KYC"
	CheckSanctions CheckType = "SANCTIONS"
	CheckAML       CheckType = "AML"
)

// CheckStatus is the outcome of one check.
type CheckStatus string

const (
	CheckPassed  CheckStatus = "PASSED"
	CheckFailed  CheckStatus = "FAILED"
	CheckPending CheckStatus = "PENDING"
)

// Status is the aggregate outcome of all checks.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusPending  Status = "PENDING"
)

// Check is a single compliance check result.
type Check struct {
	Type      CheckType   `json:"type"`
	Status    CheckStatus `json:"status"`
	Detail    string      `json:"detail"`
	CheckedAt time.Time   `json:"checked_at"`
}

// Decision is the outcome of validating one transfer.
type Decision struct {
	ID        string          `json:"id"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Checks    []Check         `json:"checks"`
	Overall   Status          `json:"overall_status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Approved reports whether the transfer may proceed.
func (d Decision) Approved() bool {
	return d.Overall == StatusApproved
}

// BlockingDetail returns the detail of the first failed check, or of the
// first pending check when nothing failed. It is empty for approved decisions.
func (d Decision) BlockingDetail() string {
	for _, c := range d.Checks {
		if c.Status == CheckFailed {
			return c.Detail
		}
	}
	for _, c := range d.Checks {
		if c.Status == CheckPending {
			return c.Detail
		}
	}
	return ""
}

// Aggregate folds check statuses: any failure rejects, otherwise any pending
// check leaves the decision pending.
func Aggregate(checks []Check) Status {
	pending := false
	for _, c := range checks {
		switch c.Status {
		case CheckFailed:
			return StatusRejected
		case CheckPending:
			pending = true
		}
	}
	if pending {
		return StatusPending
	}
	return StatusApproved
}

// IsValidAccountFormat reports whether id is a shard.realm.num account identifier.
func IsValidAccountFormat(id string) bool {
	return directory.IsAccountID(id)
}

// Request is the input to Validate.
type Request struct {
	Sender    string
	Recipient string
	// AmountUSD is the transfer value after conversion to USD.
	AmountUSD decimal.Decimal
}

// RecordSink receives every decision for audit.
type RecordSink interface {
	Record(ctx context.Context, d Decision) error
}

// Config tunes the validator.
type Config struct {
	AMLThreshold decimal.Decimal
}

// Validator runs KYC, sanctions, and AML checks.
type Validator struct {
	kyc       KYCChecker
	sanctions SanctionsScreener
	sinks     []RecordSink
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewValidator creates a validator. A nil sanctions screener passes everyone.
func NewValidator(kyc KYCChecker, sanctions SanctionsScreener, cfg Config, m *metrics.Metrics, logger *slog.Logger, sinks ...RecordSink) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if sanctions == nil {
		sanctions = NoSanctions{}
	}
	if cfg.AMLThreshold.IsZero() {
		cfg.AMLThreshold = DefaultAMLThreshold
	}
	return &Validator{
		kyc:       kyc,
		sanctions: sanctions,
		sinks:     sinks,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Validate runs every check and aggregates the result. Checks run
// sequentially in a fixed order: KYC, sanctions for each party, AML.
func (v *Validator) Validate(ctx context.Context, req Request) Decision {
	d := Decision{
		ID:        uuid.NewString(),
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Amount:    req.AmountUSD,
		Currency:  "USD",
		CreatedAt: v.now().UTC(),
	}

	d.Checks = append(d.Checks, v.checkKYC(ctx, req.Sender, req.Recipient))
	d.Checks = append(d.Checks, v.checkSanctions(ctx, req.Sender))
	d.Checks = append(d.Checks, v.checkSanctions(ctx, req.Recipient))
	d.Checks = append(d.Checks, v.checkAML(req.AmountUSD))
	d.Overall = Aggregate(d.Checks)

	for _, c := range d.Checks {
		v.metrics.RecordComplianceCheck(string(c.Type), string(c.Status))
	}
	v.metrics.RecordComplianceDecision(string(d.Overall))

	for _, sink := range v.sinks {
		if err := sink.Record(ctx, d); err != nil {
			v.logger.WarnContext(ctx, "failed to record compliance decision",
				"decision_id", d.ID,
				"error", err,
			)
		}
	}

	return d
}

func (v *Validator) checkKYC(ctx context.Context, sender, recipient string) Check {
	senderOK := v.kycStatus(ctx, sender)
	recipientOK := v.kycStatus(ctx, recipient)

	status := CheckFailed
	if senderOK && recipientOK {
		status = CheckPassed
	}
	return Check{
		Type:      CheckKYC,
		Status:    status,
		Detail:    fmt.Sprintf("Sender KYC: %t, Recipient KYC: %t", senderOK, recipientOK),
		CheckedAt: v.now().UTC(),
	}
}

// kycStatus treats lookup errors as unverified.
func (v *Validator) kycStatus(ctx context.Context, accountID string) bool {
	ok, err := v.kyc.IsVerified(ctx, accountID)
	if err != nil {
		v.logger.WarnContext(ctx, "kyc lookup failed", "account_id", accountID, "error", err)
		return false
	}
	return ok
}

func (v *Validator) checkSanctions(ctx context.Context, accountID string) Check {
	c := Check{Type: CheckSanctions, CheckedAt: v.now().UTC()}

	hit, err := v.sanctions.Screen(ctx, accountID)
	switch {
	case err != nil:
		v.logger.WarnContext(ctx, "sanctions screening failed", "account_id", accountID, "error", err)
		c.Status = CheckPending
		c.Detail = fmt.Sprintf("Sanctions screening unavailable for account %s", accountID)
	case hit:
		c.Status = CheckFailed
		c.Detail = fmt.Sprintf("Account %s found on sanctions list", accountID)
	default:
		c.Status = CheckPassed
		c.Detail = "No sanctions detected"
	}
	return c
}

func (v *Validator) checkAML(amountUSD decimal.Decimal) Check {
	c := Check{Type: CheckAML, CheckedAt: v.now().UTC()}
	if amountUSD.GreaterThan(v.cfg.AMLThreshold) {
		c.Status = CheckPending
		c.Detail = "High-value transaction pending manual review"
	} else {
		c.Status = CheckPassed
		c.Detail = "Transaction within safe limits"
	}
	return c
}

// LogSink writes decisions to a structured audit log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs at Info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "compliance_audit")}
}

// Record implements RecordSink.
func (s *LogSink) Record(ctx context.Context, d Decision) error {
	s.logger.InfoContext(ctx, "compliance decision",
		"decision_id", d.ID,
		"sender", d.Sender,
		"recipient", d.Recipient,
		"amount", d.Amount.String(),
		"currency", d.Currency,
		"overall_status", d.Overall,
		"checks", d.Checks,
	)
	return nil
}
