// Package currency converts amounts between currencies using liquidity
// provider quotes, with a short-lived per-pair rate cache.
package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/agentpay/service/metrics"
	"github.com/brojonat/agentpay/service/money"
	"github.com/shopspring/decimal"
)

// DefaultCacheTTL is how long a quote stays fresh.
const DefaultCacheTTL = time.Hour

var (
	// NetworkFee is the ledger's per-transaction fee in USD.
	NetworkFee = decimal.RequireFromString("0.001")
	// OfframpFee is the fixed local payout fee in USD.
	OfframpFee = decimal.RequireFromString("2.00")
)

var (
	ErrNoProvider      = errors.New("no liquidity provider available")
	ErrOutsideLimits   = errors.New("amount outside corridor limits")
	ErrAmountBelowFees = errors.New("amount does not cover fees")
)

var countries = map[money.Currency]string{
	money.USD: "United States",
	money.INR: "India",
	money.EUR: "European Union",
}

// Fees is the fee breakdown of a conversion, in USD.
type Fees struct {
	Exchange decimal.Decimal `json:"exchange"`
	Network  decimal.Decimal `json:"network"`
	Offramp  decimal.Decimal `json:"offramp"`
	Total    decimal.Decimal `json:"total"`
}

// Endpoint is one side of a remittance corridor.
type Endpoint struct {
	Country  string         `json:"country"`
	Currency money.Currency `json:"currency"`
}

// Conversion is the result of converting an amount.
type Conversion struct {
	FromAmount   decimal.Decimal `json:"from_amount"`
	FromCurrency money.Currency  `json:"from_currency"`
	// ToAmount is the converted amount net of fees.
	ToAmount   decimal.Decimal `json:"to_amount"`
	ToCurrency money.Currency  `json:"to_currency"`
	Rate       decimal.Decimal `json:"rate"`
	Provider   string          `json:"provider"`
	QuotedAt   time.Time       `json:"quoted_at"`
	Fees       Fees            `json:"fees"`
	From       Endpoint        `json:"from"`
	To         Endpoint        `json:"to"`
}

type quote struct {
	rate     decimal.Decimal
	provider string
	corridor Corridor
	quotedAt time.Time
}

// Converter picks the best provider rate for a pair and applies fees.
type Converter struct {
	providers []Provider
	ttl       time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.RWMutex
	cache map[string]quote
}

// NewConverter creates a converter. A non-positive ttl uses DefaultCacheTTL.
func NewConverter(providers []Provider, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *Converter {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		providers: providers,
		ttl:       ttl,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		cache:     make(map[string]quote),
	}
}

// Convert converts amount from one currency to another. Fees are charged in
// the corridor's fee currency and deducted from the converted amount.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to money.Currency) (*Conversion, error) {
	if from == to {
		return &Conversion{
			FromAmount:   amount,
			FromCurrency: from,
			ToAmount:     amount,
			ToCurrency:   to,
			Rate:         decimal.NewFromInt(1),
			QuotedAt:     c.now(),
			Fees:         Fees{Exchange: decimal.Zero, Network: decimal.Zero, Offramp: decimal.Zero, Total: decimal.Zero},
			From:         endpoint(from),
			To:           endpoint(to),
		}, nil
	}

	q, err := c.quote(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if !q.corridor.allows(amount) {
		return nil, fmt.Errorf("%w: %s %s via %s", ErrOutsideLimits, amount.String(), pairKey(from, to), q.provider)
	}

	converted := amount.Mul(q.rate)

	// The fee base is the amount expressed in the fee currency.
	feeCur := q.corridor.Fee.Currency
	var feeBase decimal.Decimal
	switch feeCur {
	case from:
		feeBase = amount
	case to:
		feeBase = converted
	default:
		return nil, fmt.Errorf("fee currency %s is not part of corridor %s", feeCur, pairKey(from, to))
	}

	fees := Fees{
		Exchange: feeBase.Mul(q.corridor.Fee.Percentage).Div(decimal.NewFromInt(100)).Add(q.corridor.Fee.Fixed),
		Network:  NetworkFee,
		Offramp:  OfframpFee,
	}
	fees.Total = fees.Exchange.Add(fees.Network).Add(fees.Offramp)

	feesInTarget := fees.Total
	if feeCur != to {
		feesInTarget = fees.Total.Mul(q.rate)
	}

	net := converted.Sub(feesInTarget)
	if !net.IsPositive() {
		return nil, fmt.Errorf("%w: %s %s after %s %s in fees", ErrAmountBelowFees, amount.String(), from, fees.Total.StringFixed(3), feeCur)
	}

	return &Conversion{
		FromAmount:   amount,
		FromCurrency: from,
		ToAmount:     net,
		ToCurrency:   to,
		Rate:         q.rate,
		Provider:     q.provider,
		QuotedAt:     q.quotedAt,
		Fees:         fees,
		From:         endpoint(from),
		To:           endpoint(to),
	}, nil
}

// quote returns a cached quote for the pair or fetches the best one.
// Concurrent misses may both fetch; the later write wins.
func (c *Converter) quote(ctx context.Context, from, to money.Currency) (quote, error) {
	key := pairKey(from, to)

	c.mu.RLock()
	q, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(q.quotedAt) < c.ttl {
		c.metrics.RecordConversionLookup(key, "hit")
		return q, nil
	}
	c.metrics.RecordConversionLookup(key, "miss")

	best, found := quote{}, false
	for _, p := range c.providers {
		corridor, ok := p.Corridor(from, to)
		if !ok {
			continue
		}
		rate, err := p.Rate(ctx, from, to)
		if err != nil {
			c.logger.WarnContext(ctx, "rate lookup failed",
				"provider", p.Name(),
				"pair", key,
				"error", err,
			)
			continue
		}
		if !found || rate.GreaterThan(best.rate) {
			best = quote{rate: rate, provider: p.Name(), corridor: corridor}
			found = true
		}
	}
	if !found {
		return quote{}, fmt.Errorf("%w for %s to %s", ErrNoProvider, from, to)
	}
	best.quotedAt = c.now()

	c.mu.Lock()
	c.cache[key] = best
	c.mu.Unlock()

	return best, nil
}

func endpoint(cur money.Currency) Endpoint {
	country, ok := countries[cur]
	if !ok {
		country = "Unknown"
	}
	return Endpoint{Country: country, Currency: cur}
}
