// Package pricing converts source variant prices into target-store prices.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// pricePoints is the ascending table of psychological price points.
var pricePoints = []decimal.Decimal{
	decimal.RequireFromString("24.99"),
	decimal.RequireFromString("49.99"),
	decimal.RequireFromString("74.99"),
	decimal.RequireFromString("99.99"),
	decimal.RequireFromString("124.99"),
	decimal.RequireFromString("149.99"),
	decimal.RequireFromString("174.99"),
	decimal.RequireFromString("199.99"),
	decimal.RequireFromString("224.99"),
	decimal.RequireFromString("249.99"),
}

var (
	step   = decimal.NewFromInt(25)
	offset = decimal.RequireFromString("24.99")
	two    = decimal.NewFromInt(2)
)

// SmartRound returns the first price point >= p. Prices above the table
// continue on the same 25-unit grid: floor(p/25)*25 + 24.99.
func SmartRound(p decimal.Decimal) decimal.Decimal {
	for _, point := range pricePoints {
		if point.GreaterThanOrEqual(p) {
			return point
		}
	}
	return p.Div(step).Floor().Mul(step).Add(offset)
}

// CompareAt returns the whole-unit "compare at" anchor for a rounded price.
func CompareAt(rounded decimal.Decimal) decimal.Decimal {
	return rounded.Mul(two).Round(0)
}

// Quote is a target price pair ready to be sent to the platform.
type Quote struct {
	Price     decimal.Decimal
	CompareAt decimal.Decimal
}

// PriceString formats the price with two decimals.
func (q Quote) PriceString() string {
	return q.Price.StringFixed(2)
}

// CompareAtString formats the compare-at price without cents.
func (q Quote) CompareAtString() string {
	return q.CompareAt.StringFixed(0)
}

// Transform applies the store multiplier to a source price and rounds the
// result. The source price is the platform's decimal string ("19.90").
func Transform(source string, multiplier decimal.Decimal) (Quote, error) {
	p, err := decimal.NewFromString(source)
	if err != nil {
		return Quote{}, fmt.Errorf("parse price %q: %w", source, err)
	}
	if p.IsNegative() {
		return Quote{}, fmt.Errorf("negative price %q", source)
	}
	rounded := SmartRound(p.Mul(multiplier))
	return Quote{Price: rounded, CompareAt: CompareAt(rounded)}, nil
}

// NeedsAdjustment reports whether a multiplier requires rewriting prices.
func NeedsAdjustment(multiplier decimal.Decimal) bool {
	return !multiplier.Equal(decimal.NewFromInt(1))
}
