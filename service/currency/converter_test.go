package currency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/agentpay/service/metrics"
	"github.com/brojonat/agentpay/service/money"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingProvider struct {
	Provider
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingProvider) Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return decimal.Zero, p.err
	}
	return p.Provider.Rate(ctx, from, to)
}

func approx(t *testing.T, want float64, got decimal.Decimal) {
	t.Helper()
	f, _ := got.Float64()
	assert.InDelta(t, want, f, 1e-6)
}

func TestConvert_USDToINR(t *testing.T) {
	c := NewConverter([]Provider{NewFastRemit()}, 0, nil, testLogger())

	conv, err := c.Convert(context.Background(), decimal.NewFromInt(100), money.USD, money.INR)
	require.NoError(t, err)

	assert.Equal(t, "FastRemit", conv.Provider)
	approx(t, 83.0, conv.Rate)
	approx(t, 2.5, conv.Fees.Exchange)
	approx(t, 0.001, conv.Fees.Network)
	approx(t, 2.0, conv.Fees.Offramp)
	approx(t, 4.501, conv.Fees.Total)
	// 8300 INR less 4.501 USD of fees at 83.
	approx(t, 8300-4.501*83, conv.ToAmount)
	assert.Equal(t, Endpoint{Country: "United States", Currency: money.USD}, conv.From)
	assert.Equal(t, Endpoint{Country: "India", Currency: money.INR}, conv.To)
}

func TestConvert_INRToUSD(t *testing.T) {
	c := NewConverter([]Provider{NewFastRemit()}, 0, nil, testLogger())

	conv, err := c.Convert(context.Background(), decimal.NewFromInt(1000), money.INR, money.USD)
	require.NoError(t, err)

	converted := 1000.0 / 83.0
	exchange := converted*0.005 + 2
	approx(t, exchange, conv.Fees.Exchange)
	approx(t, converted-(exchange+0.001+2), conv.ToAmount)
	assert.Equal(t, money.USD, conv.ToCurrency)
}

func TestConvert_SameCurrency(t *testing.T) {
	c := NewConverter(nil, 0, nil, testLogger())
	conv, err := c.Convert(context.Background(), decimal.NewFromInt(5), money.USD, money.USD)
	require.NoError(t, err)
	assert.True(t, conv.ToAmount.Equal(decimal.NewFromInt(5)))
	assert.True(t, conv.Fees.Total.IsZero())
}

func TestConvert_Errors(t *testing.T) {
	c := NewConverter([]Provider{NewFastRemit()}, 0, nil, testLogger())
	ctx := context.Background()

	_, err := c.Convert(ctx, decimal.NewFromInt(10), money.INR, money.EUR)
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = c.Convert(ctx, decimal.NewFromInt(15000), money.USD, money.INR)
	assert.ErrorIs(t, err, ErrOutsideLimits)

	_, err = c.Convert(ctx, decimal.RequireFromString("0.5"), money.USD, money.INR)
	assert.ErrorIs(t, err, ErrOutsideLimits)

	_, err = c.Convert(ctx, decimal.NewFromInt(100), money.INR, money.USD)
	assert.ErrorIs(t, err, ErrAmountBelowFees)
}

func TestConvert_ProviderErrorIsNoProvider(t *testing.T) {
	p := &countingProvider{Provider: NewFastRemit(), err: errors.New("rate feed timeout")}
	c := NewConverter([]Provider{p}, 0, nil, testLogger())

	_, err := c.Convert(context.Background(), decimal.NewFromInt(10), money.USD, money.EUR)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestConvert_BestRateWins(t *testing.T) {
	cheap := NewStaticProvider("Cheap",
		[]Corridor{{From: money.USD, To: money.EUR, Fee: Fee{Currency: money.USD}}},
		map[string]decimal.Decimal{"USD-EUR": decimal.RequireFromString("0.95")},
	)
	c := NewConverter([]Provider{NewFastRemit(), cheap}, 0, nil, testLogger())

	conv, err := c.Convert(context.Background(), decimal.NewFromInt(100), money.USD, money.EUR)
	require.NoError(t, err)
	assert.Equal(t, "Cheap", conv.Provider)
	approx(t, 0.95, conv.Rate)
	approx(t, 2.001, conv.Fees.Total)
}

func TestConvert_CachesPerPair(t *testing.T) {
	p := &countingProvider{Provider: NewFastRemit()}
	c := NewConverter([]Provider{p}, time.Minute, metrics.NewMetrics(prometheus.NewRegistry()), testLogger())

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Convert(ctx, decimal.NewFromInt(10), money.USD, money.INR)
	require.NoError(t, err)
	_, err = c.Convert(ctx, decimal.NewFromInt(20), money.USD, money.INR)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)

	_, err = c.Convert(ctx, decimal.NewFromInt(20), money.USD, money.EUR)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)

	now = now.Add(2 * time.Minute)
	_, err = c.Convert(ctx, decimal.NewFromInt(10), money.USD, money.INR)
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
}

func TestConvert_ConcurrentUse(t *testing.T) {
	c := NewConverter([]Provider{NewFastRemit()}, 0, nil, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Convert(context.Background(), decimal.NewFromInt(50), money.USD, money.INR)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
