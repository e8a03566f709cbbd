// Package money extracts monetary amounts from free-form chat text and
// renders them back into the same notation.
package money

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an upper-case ISO-like currency code.
type Currency string

const (
	USD Currency = "USD"
	INR Currency = "INR"
	EUR Currency = "EUR"
)

// Amount is a non-negative quantity in a currency.
type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency Currency        `json:"currency"`
}

// String renders the amount the way Format does.
func (a Amount) String() string {
	return Format(a)
}

const number = `(\d+(?:\.\d+)?)`

type pattern struct {
	currency Currency
	re       *regexp.Regexp
}

// Patterns are tried in order and the first match wins. USD forms come
// before INR and EUR so that "$" always beats a trailing currency word.
var patterns = []pattern{
	{USD, regexp.MustCompile(`\$\s*` + number)},
	{USD, regexp.MustCompile(number + `\s*(?:usd|dollars?|tpyusd)\b`)},
	{INR, regexp.MustCompile(`₹\s*` + number)},
	{INR, regexp.MustCompile(`\b(?:rs\.?|inr)\s*` + number)},
	{INR, regexp.MustCompile(number + `\s*(?:inr|rupees?|rs)\b`)},
	{EUR, regexp.MustCompile(`€\s*` + number)},
	{EUR, regexp.MustCompile(number + `\s*(?:eur|euros?)\b`)},
}

var (
	bareNumber = regexp.MustCompile(number)

	// Ledger account literals look like numbers to the bare fallback.
	accountLiteral = regexp.MustCompile(`\d+\.\d+\.\d+`)
)

// Parse finds the first monetary amount in text. Text with a numeral but no
// currency marker is assumed to be USD. It returns false when text contains
// no numeral at all.
func Parse(text string) (Amount, bool) {
	s := strings.ToLower(strings.ReplaceAll(text, ",", ""))
	s = accountLiteral.ReplaceAllString(s, " ")

	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(s); m != nil {
			if v, err := decimal.NewFromString(m[1]); err == nil {
				return Amount{Value: v, Currency: p.currency}, true
			}
		}
	}

	if m := bareNumber.FindStringSubmatch(s); m != nil {
		if v, err := decimal.NewFromString(m[1]); err == nil {
			return Amount{Value: v, Currency: USD}, true
		}
	}

	return Amount{}, false
}

// Format renders an amount with its currency symbol and at least two decimal
// places, e.g. "$10.00", "₹500.00", "€3.50". Sub-cent digits are kept so the
// result parses back to the same value. Unknown currencies use a code suffix.
func Format(a Amount) string {
	places := max(int32(2), -a.Value.Exponent())
	s := a.Value.StringFixed(places)
	switch a.Currency {
	case USD:
		return "$" + s
	case INR:
		return "₹" + s
	case EUR:
		return "€" + s
	default:
		return fmt.Sprintf("%s %s", s, a.Currency)
	}
}

// ErrOutOfRange is returned when an amount does not fit the ledger's integer
// representation.
var ErrOutOfRange = errors.New("amount out of range")

var (
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = decimal.NewFromInt(math.MinInt64)
)

// ToMinorUnits converts an amount to the ledger's integer representation,
// rounding half away from zero.
func ToMinorUnits(v decimal.Decimal, decimals int32) (int64, error) {
	units := v.Shift(decimals).Round(0)
	if units.GreaterThan(maxMinorUnits) || units.LessThan(minMinorUnits) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, v)
	}
	return units.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(units int64, decimals int32) decimal.Decimal {
	return decimal.New(units, -decimals)
}

// NormalizeCurrency upper-cases a currency code and defaults empty codes to USD.
func NormalizeCurrency(code string) Currency {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return USD
	}
	return Currency(code)
}
