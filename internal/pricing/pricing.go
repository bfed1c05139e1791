// Package pricing computes order totals from snapshotted line items and the
// fiscal settings of an outlet. Everything here is pure.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type RoundingRule string

const (
	RoundingNone        RoundingRule = "NONE"
	RoundingNearest100  RoundingRule = "NEAREST_100"
	RoundingNearest500  RoundingRule = "NEAREST_500"
	RoundingNearest1000 RoundingRule = "NEAREST_1000"
)

var (
	ErrInvalidLine     = errors.New("invalid order item")
	ErrInvalidDiscount = errors.New("invalid discount")
	ErrUnknownRounding = errors.New("unknown rounding rule")
)

var hundred = decimal.NewFromInt(100)

func ParseRoundingRule(value string) (RoundingRule, error) {
	rule := RoundingRule(strings.ToUpper(strings.TrimSpace(value)))
	if rule == "" {
		return RoundingNone, nil
	}
	switch rule {
	case RoundingNone, RoundingNearest100, RoundingNearest500, RoundingNearest1000:
		return rule, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRounding, value)
}

func (r RoundingRule) step() int64 {
	switch r {
	case RoundingNearest100:
		return 100
	case RoundingNearest500:
		return 500
	case RoundingNearest1000:
		return 1000
	default:
		return 0
	}
}

// Apply snaps amount to the nearest multiple of the rule's cash denomination.
// Exact halves round up.
func (r RoundingRule) Apply(amount decimal.Decimal) decimal.Decimal {
	step := r.step()
	if step == 0 {
		return amount
	}
	d := decimal.NewFromInt(step)
	return amount.Div(d).Round(0).Mul(d)
}

type Settings struct {
	TaxRate     decimal.Decimal
	ServiceRate decimal.Decimal
	Rounding    RoundingRule
}

type Line struct {
	BasePrice    decimal.Decimal
	VariantDelta decimal.Decimal
	AddonPrices  []decimal.Decimal
	Quantity     int32
}

func (l Line) UnitPrice() decimal.Decimal {
	unit := l.BasePrice.Add(l.VariantDelta)
	for _, addon := range l.AddonPrices {
		unit = unit.Add(addon)
	}
	return unit
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice().Mul(decimal.NewFromInt32(l.Quantity))
}

func (l Line) validate() error {
	if l.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if l.BasePrice.IsNegative() {
		return errors.New("price must not be negative")
	}
	for _, addon := range l.AddonPrices {
		if addon.IsNegative() {
			return errors.New("addon price must not be negative")
		}
	}
	if l.UnitPrice().IsNegative() {
		return errors.New("unit price must not be negative")
	}
	return nil
}

type LineError struct {
	Index  int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("items[%d]: %s", e.Index, e.Reason)
}

func (e *LineError) Unwrap() error {
	return ErrInvalidLine
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Service  decimal.Decimal `json:"service"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals prices a set of lines. Tax and service charge are taken on
// the subtotal before discount.
func ComputeTotals(lines []Line, settings Settings, discount decimal.Decimal) (Totals, error) {
	subtotal := decimal.Zero
	for i, line := range lines {
		if err := line.validate(); err != nil {
			return Totals{}, &LineError{Index: i, Reason: err.Error()}
		}
		subtotal = subtotal.Add(line.Total())
	}
	if subtotal.IsNegative() {
		return Totals{}, &LineError{Index: -1, Reason: "subtotal must not be negative"}
	}
	if discount.IsNegative() || discount.GreaterThan(subtotal) {
		return Totals{}, ErrInvalidDiscount
	}

	tax := percentOf(subtotal, settings.TaxRate)
	service := percentOf(subtotal, settings.ServiceRate)
	raw := subtotal.Sub(discount).Add(tax).Add(service)

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Service:  service,
		Total:    settings.Rounding.Apply(raw),
	}, nil
}

func percentOf(amount decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() || rate.IsNegative() {
		return decimal.Zero
	}
	return amount.Mul(rate).Div(hundred).Round(2)
}
