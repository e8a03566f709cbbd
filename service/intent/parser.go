// Package intent turns a free-form chat message into a TransferInstruction.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/brojonat/agentpay/service/directory"
	"github.com/brojonat/agentpay/service/llm"
	"github.com/brojonat/agentpay/service/metrics"
	"github.com/brojonat/agentpay/service/money"
	"github.com/shopspring/decimal"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultScreeningThreshold is the amount above which a transfer is flagged
// for enhanced screening.
var DefaultScreeningThreshold = decimal.NewFromInt(3000)

var sendVerb = regexp.MustCompile(`(?i)\b(send\w*|sent|transfer\w*)\b`)

// Config tunes the parser.
type Config struct {
	ScreeningThreshold decimal.Decimal
	// Provider labels model metrics.
	Provider string
}

// Parser resolves chat messages into transfer instructions. It is safe for
// concurrent use.
type Parser struct {
	resolver *directory.Resolver
	model    llm.LanguageModel
	schema   *gojsonschema.Schema
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewParser creates a parser. model may be nil, in which case every message
// without a literal account goes through the local parser.
func NewParser(resolver *directory.Resolver, model llm.LanguageModel, cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Parser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScreeningThreshold.IsZero() {
		cfg.ScreeningThreshold = DefaultScreeningThreshold
	}
	if cfg.Provider == "" {
		cfg.Provider = "unknown"
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(extractionSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction schema: %w", err)
	}

	return &Parser{
		resolver: resolver,
		model:    model,
		schema:   schema,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}, nil
}

// Parse never fails: when nothing useful can be extracted the instruction
// has a zero amount and no recipient account.
//
// Paths are tried in order. A literal account id short-circuits to a
// deterministic parse without calling the model. Otherwise the model gets
// exactly one attempt, and any error or malformed output drops to the local
// parser.
func (p *Parser) Parse(ctx context.Context, text string) TransferInstruction {
	var instr TransferInstruction

	switch {
	case hasLiteralAccount(text):
		instr = p.parseLiteral(ctx, text)
	case p.model != nil:
		var err error
		instr, err = p.parseWithModel(ctx, text)
		if err != nil {
			p.logger.WarnContext(ctx, "model extraction failed, using local parser", "error", err)
			instr = p.parseLocal(ctx, text)
		}
	default:
		instr = p.parseLocal(ctx, text)
	}

	p.finish(&instr)
	p.metrics.RecordIntentParse(string(instr.Source), string(instr.Action))
	p.logger.DebugContext(ctx, "parsed transfer intent",
		"source", instr.Source,
		"action", instr.Action,
		"amount", instr.Amount.String(),
		"source_currency", instr.SourceCurrency,
		"recipient", instr.RecipientHandle,
		"resolved", instr.HasRecipient(),
	)
	return instr
}

// Fields is a transfer request that arrived already structured.
type Fields struct {
	// Recipient is an account id or a directory name.
	Recipient string
	Amount    decimal.Decimal
	Currency  string
	Purpose   string
}

// FromFields builds a send instruction without parsing free text. Names are
// resolved through the directory exactly as in chat messages.
func (p *Parser) FromFields(ctx context.Context, f Fields) TransferInstruction {
	recipient := strings.TrimSpace(f.Recipient)
	res := directory.Resolution{Handle: recipient}
	if directory.IsAccountID(recipient) {
		res = directory.Resolution{Handle: recipient, AccountID: recipient, Literal: true}
	}
	res = p.resolver.Lookup(ctx, res)

	instr := TransferInstruction{
		Action:            ActionSend,
		Amount:            f.Amount,
		SourceCurrency:    money.NormalizeCurrency(f.Currency),
		RecipientHandle:   res.Handle,
		RecipientAccount:  res.AccountID,
		RecipientLocation: res.Location,
		Purpose:           normalizePurpose(f.Purpose),
		Source:            SourceAPI,
	}
	p.finish(&instr)
	p.metrics.RecordIntentParse(string(instr.Source), string(instr.Action))
	return instr
}

func hasLiteralAccount(text string) bool {
	_, ok := directory.FindAccountID(text)
	return ok
}

func (p *Parser) parseLiteral(ctx context.Context, text string) TransferInstruction {
	res := p.resolver.Resolve(ctx, text)
	instr := TransferInstruction{
		Action:           ActionUnknown,
		RecipientHandle:  res.Handle,
		RecipientAccount: res.AccountID,
		Source:           SourceLiteral,
	}
	if sendVerb.MatchString(text) {
		instr.Action = ActionSend
	}
	applyAmount(&instr, text)
	// A literal account has no location to infer a payout currency from.
	instr.TargetCurrency = instr.SourceCurrency
	return instr
}

func (p *Parser) parseLocal(ctx context.Context, text string) TransferInstruction {
	res := p.resolver.Resolve(ctx, text)
	instr := TransferInstruction{
		Action:            ActionSend,
		RecipientHandle:   res.Handle,
		RecipientAccount:  res.AccountID,
		RecipientLocation: res.Location,
		Source:            SourceLocal,
	}
	applyAmount(&instr, text)
	return instr
}

func applyAmount(instr *TransferInstruction, text string) {
	instr.SourceCurrency = money.USD
	if amt, ok := money.Parse(text); ok {
		instr.Amount = amt.Value
		instr.SourceCurrency = amt.Currency
	}
}

// modelExtraction is the JSON object the model is asked to produce.
type modelExtraction struct {
	Action            string   `json:"action"`
	Amount            *float64 `json:"amount"`
	FromCurrency      string   `json:"fromCurrency"`
	ToCurrency        string   `json:"toCurrency"`
	RecipientName     string   `json:"recipientName"`
	RecipientLocation string   `json:"recipientLocation"`
	Relationship      string   `json:"relationship"`
	Urgency           string   `json:"urgency"`
	Purpose           string   `json:"purpose"`
}

func (p *Parser) parseWithModel(ctx context.Context, text string) (TransferInstruction, error) {
	start := time.Now()
	resp, err := p.model.GenerateStructured(ctx, buildPrompt(text))
	p.metrics.RecordLLMCall(p.cfg.Provider, err, time.Since(start).Seconds())
	if err != nil {
		return TransferInstruction{}, err
	}

	raw, ok := ExtractJSONObject(resp.Text)
	if !ok {
		return TransferInstruction{}, fmt.Errorf("no JSON object in model response")
	}

	result, err := p.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return TransferInstruction{}, fmt.Errorf("invalid JSON from model: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return TransferInstruction{}, fmt.Errorf("model output failed schema validation: %s", strings.Join(msgs, "; "))
	}

	var ext modelExtraction
	if err := json.Unmarshal([]byte(raw), &ext); err != nil {
		return TransferInstruction{}, fmt.Errorf("failed to decode model output: %w", err)
	}

	instr := TransferInstruction{
		Action:            normalizeAction(ext.Action),
		SourceCurrency:    money.NormalizeCurrency(ext.FromCurrency),
		RecipientHandle:   strings.ToLower(strings.TrimSpace(ext.RecipientName)),
		RecipientLocation: strings.ToLower(strings.TrimSpace(ext.RecipientLocation)),
		Relationship:      normalizeRelationship(ext.Relationship),
		Urgency:           normalizeUrgency(ext.Urgency),
		Purpose:           normalizePurpose(ext.Purpose),
		Source:            SourceModel,
	}
	if ext.Amount != nil {
		instr.Amount = decimal.NewFromFloat(*ext.Amount)
	}
	if ext.ToCurrency != "" {
		instr.TargetCurrency = money.NormalizeCurrency(ext.ToCurrency)
	}

	// The model sometimes drops the name; the local pattern can still find it.
	if instr.RecipientHandle == "" {
		res := p.resolver.Resolve(ctx, text)
		instr.RecipientHandle = res.Handle
		if instr.RecipientLocation == "" {
			instr.RecipientLocation = res.Location
		}
	}

	res := p.resolver.Lookup(ctx, directory.Resolution{
		Handle:   instr.RecipientHandle,
		Location: instr.RecipientLocation,
	})
	instr.RecipientAccount = res.AccountID
	instr.RecipientLocation = res.Location

	return instr, nil
}

// finish applies post-processing shared by all parse paths.
func (p *Parser) finish(instr *TransferInstruction) {
	instr.RecipientHandle = strings.ToLower(instr.RecipientHandle)
	instr.RecipientLocation = strings.ToLower(instr.RecipientLocation)
	if instr.SourceCurrency == "" {
		instr.SourceCurrency = money.USD
	}
	if instr.TargetCurrency == "" {
		instr.TargetCurrency = targetCurrencyFor(instr.RecipientLocation)
	}
	if instr.Relationship == "" {
		instr.Relationship = RelationshipUnknown
	}
	if instr.Urgency == "" {
		instr.Urgency = UrgencyNormal
	}
	if instr.Purpose == "" {
		instr.Purpose = PurposeUnknown
	}
	if instr.Amount.IsNegative() {
		instr.Amount = decimal.Zero
	}
	instr.Regulatory = RegulatoryContext{
		RequiresScreening:  instr.Amount.GreaterThan(p.cfg.ScreeningThreshold),
		PurposeCode:        instr.Purpose.Code(),
		IsFamilyRemittance: instr.Purpose == PurposeFamilySupport,
	}
}

// ExtractJSONObject returns the text between the first '{' and the last '}'.
// Models often wrap JSON in prose or code fences.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
