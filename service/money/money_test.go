package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantOK   bool
		value    string
		currency Currency
	}{
		{name: "dollar sign", text: "Send $500 to Priya in India", wantOK: true, value: "500", currency: USD},
		{name: "dollar word", text: "send 25 dollars to bob", wantOK: true, value: "25", currency: USD},
		{name: "usd suffix", text: "transfer 12.75 USD", wantOK: true, value: "12.75", currency: USD},
		{name: "demo token", text: "Send 10 TPYUSD to 0.0.1234567", wantOK: true, value: "10", currency: USD},
		{name: "rupee sign", text: "send ₹2000 to anil", wantOK: true, value: "2000", currency: INR},
		{name: "rupees word", text: "Transfer 1000 rupees to Anil", wantOK: true, value: "1000", currency: INR},
		{name: "rs prefix", text: "pay rs.450 to priya", wantOK: true, value: "450", currency: INR},
		{name: "inr prefix", text: "pay INR 300", wantOK: true, value: "300", currency: INR},
		{name: "euro sign", text: "send €3.50", wantOK: true, value: "3.50", currency: EUR},
		{name: "euros word", text: "send 40 euros to marie", wantOK: true, value: "40", currency: EUR},
		{name: "commas stripped", text: "send $1,250.50 to anil", wantOK: true, value: "1250.50", currency: USD},
		{name: "bare number assumes usd", text: "send 20 to anil", wantOK: true, value: "20", currency: USD},
		{name: "usd wins over later rupees", text: "send $5 which is about 400 rupees", wantOK: true, value: "5", currency: USD},
		{name: "account literal is not an amount", text: "send to 0.0.98765", wantOK: false},
		{name: "no numeral", text: "hello there", wantOK: false},
		{name: "empty", text: "", wantOK: false},
		{name: "zero", text: "send 0 dollars", wantOK: true, value: "0", currency: USD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.text)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.True(t, decimal.RequireFromString(tt.value).Equal(got.Value), "got %s", got.Value)
			assert.Equal(t, tt.currency, got.Currency)
		})
	}
}

func TestParse_Idempotent(t *testing.T) {
	inputs := []string{"send $10", "1000 rupees", "€7", "nothing", "send 3 to 0.0.5"}
	for _, in := range inputs {
		a1, ok1 := Parse(in)
		a2, ok2 := Parse(in)
		assert.Equal(t, ok1, ok2)
		assert.True(t, a1.Value.Equal(a2.Value))
		assert.Equal(t, a1.Currency, a2.Currency)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	values := []string{"0.01", "10", "10.5", "999.99", "123456.78", "10.125", "0.0001"}
	for _, c := range []Currency{USD, INR, EUR} {
		for _, v := range values {
			a := Amount{Value: decimal.RequireFromString(v), Currency: c}
			got, ok := Parse(Format(a))
			require.True(t, ok, "format %s", Format(a))
			assert.True(t, a.Value.Equal(got.Value), "%s: got %s", Format(a), got.Value)
			assert.Equal(t, c, got.Currency)
		}
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$10.00", Format(Amount{Value: decimal.NewFromInt(10), Currency: USD}))
	assert.Equal(t, "₹500.00", Format(Amount{Value: decimal.NewFromInt(500), Currency: INR}))
	assert.Equal(t, "€3.50", Format(Amount{Value: decimal.RequireFromString("3.5"), Currency: EUR}))
	assert.Equal(t, "7.00 GBP", Format(Amount{Value: decimal.NewFromInt(7), Currency: "GBP"}))
	assert.Equal(t, "$10.125", Format(Amount{Value: decimal.RequireFromString("10.125"), Currency: USD}))
}

func TestFormat_ParsedSubCentAmount(t *testing.T) {
	a, ok := Parse("send $10.125 to priya")
	require.True(t, ok)
	again, ok := Parse(Format(a))
	require.True(t, ok)
	assert.True(t, a.Value.Equal(again.Value), "got %s", again.Value)
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		value    string
		decimals int32
		want     int64
	}{
		{"10", 2, 1000},
		{"10.005", 2, 1001},
		{"10.004", 2, 1000},
		{"0.01", 2, 1},
		{"1.5", 0, 2},
		{"3", 6, 3000000},
	}
	for _, tt := range tests {
		got, err := ToMinorUnits(decimal.RequireFromString(tt.value), tt.decimals)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "value %s decimals %d", tt.value, tt.decimals)
	}

	for _, v := range []string{"100000000000000000", "184467440737095517", "-100000000000000000"} {
		_, err := ToMinorUnits(decimal.RequireFromString(v), 2)
		assert.ErrorIs(t, err, ErrOutOfRange, "value %s", v)
	}
	got, err := ToMinorUnits(decimal.RequireFromString("92233720368547758.07"), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	assert.True(t, decimal.RequireFromString("12.34").Equal(FromMinorUnits(1234, 2)))
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, USD, NormalizeCurrency(""))
	assert.Equal(t, INR, NormalizeCurrency(" inr "))
	assert.Equal(t, EUR, NormalizeCurrency("Eur"))
}
