package extractor

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var errEmptyAmount = errors.New("empty amount")

// parseAmount converts a captured numeric literal such as "1,23,456.78"
// into a decimal. Comma grouping of any width is accepted.
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if clean == "" {
		return decimal.Zero, errEmptyAmount
	}
	return decimal.NewFromString(clean)
}

// Bounds is an inclusive sanity range for a captured amount.
// A zero Min or Max leaves that side open.
type Bounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// FallbackBounds is the range accepted from loose, direction-less captures.
var FallbackBounds = Bounds{
	Min: decimal.NewFromInt(1),
	Max: decimal.NewFromInt(1_000_000),
}

// Contains reports whether d lies within b.
func (b Bounds) Contains(d decimal.Decimal) bool {
	if !b.Min.IsZero() && d.LessThan(b.Min) {
		return false
	}
	if !b.Max.IsZero() && d.GreaterThan(b.Max) {
		return false
	}
	return true
}
