package currency

import (
	"context"
	"fmt"

	"github.com/brojonat/agentpay/service/money"
	"github.com/shopspring/decimal"
)

// Fee is a corridor's exchange fee: Percentage of the amount plus Fixed,
// both denominated in Currency.
type Fee struct {
	Percentage decimal.Decimal `json:"percentage"`
	Fixed      decimal.Decimal `json:"fixed"`
	Currency   money.Currency  `json:"currency"`
}

// Corridor is a currency pair a provider can serve. Zero limits are unbounded.
type Corridor struct {
	From      money.Currency  `json:"from"`
	To        money.Currency  `json:"to"`
	MinAmount decimal.Decimal `json:"min_amount"`
	MaxAmount decimal.Decimal `json:"max_amount"`
	Fee       Fee             `json:"fee"`
}

func (c Corridor) allows(amount decimal.Decimal) bool {
	if !c.MinAmount.IsZero() && amount.LessThan(c.MinAmount) {
		return false
	}
	if !c.MaxAmount.IsZero() && amount.GreaterThan(c.MaxAmount) {
		return false
	}
	return true
}

// Provider quotes exchange rates for the corridors it supports.
type Provider interface {
	Name() string
	Corridor(from, to money.Currency) (Corridor, bool)
	Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error)
}

// StaticProvider serves a fixed rate table.
type StaticProvider struct {
	name      string
	corridors []Corridor
	rates     map[string]decimal.Decimal
}

// NewStaticProvider creates a provider; rates is keyed by "FROM-TO".
func NewStaticProvider(name string, corridors []Corridor, rates map[string]decimal.Decimal) *StaticProvider {
	return &StaticProvider{name: name, corridors: corridors, rates: rates}
}

// Name implements Provider.
func (p *StaticProvider) Name() string { return p.name }

// Corridor implements Provider.
func (p *StaticProvider) Corridor(from, to money.Currency) (Corridor, bool) {
	for _, c := range p.corridors {
		if c.From == from && c.To == to {
			return c, true
		}
	}
	return Corridor{}, false
}

// Rate implements Provider.
func (p *StaticProvider) Rate(_ context.Context, from, to money.Currency) (decimal.Decimal, error) {
	r, ok := p.rates[pairKey(from, to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s has no rate for %s", p.name, pairKey(from, to))
	}
	return r, nil
}

// NewFastRemit returns the demo liquidity provider: USD to INR at 83.0 and
// USD to EUR at 0.93, plus the inverse pairs, with a 0.5% + 2 USD fee.
func NewFastRemit() *StaticProvider {
	usdINR := decimal.RequireFromString("83.0")
	usdEUR := decimal.RequireFromString("0.93")
	one := decimal.NewFromInt(1)

	fee := Fee{
		Percentage: decimal.RequireFromString("0.5"),
		Fixed:      decimal.NewFromInt(2),
		Currency:   money.USD,
	}
	return NewStaticProvider("FastRemit",
		[]Corridor{
			{From: money.USD, To: money.INR, MinAmount: one, MaxAmount: decimal.NewFromInt(10000), Fee: fee},
			{From: money.INR, To: money.USD, Fee: fee},
			{From: money.USD, To: money.EUR, Fee: fee},
			{From: money.EUR, To: money.USD, Fee: fee},
		},
		map[string]decimal.Decimal{
			"USD-INR": usdINR,
			"INR-USD": one.Div(usdINR),
			"USD-EUR": usdEUR,
			"EUR-USD": one.Div(usdEUR),
		},
	)
}

func pairKey(from, to money.Currency) string {
	return string(from) + "-" + string(to)
}
