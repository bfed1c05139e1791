package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestComputeTotalsNasiGorengEsTeh(t *testing.T) {
	lines := []Line{
		{BasePrice: dec("25000"), Quantity: 1},
		{BasePrice: dec("8000"), Quantity: 1},
	}
	settings := Settings{TaxRate: dec("10"), ServiceRate: dec("5"), Rounding: RoundingNearest100}

	got, err := ComputeTotals(lines, settings, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expect := map[string][2]decimal.Decimal{
		"subtotal": {got.Subtotal, dec("33000")},
		"tax":      {got.Tax, dec("3300")},
		"service":  {got.Service, dec("1650")},
		"total":    {got.Total, dec("38000")},
	}
	for name, pair := range expect {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s: expected %s, got %s", name, pair[1], pair[0])
		}
	}
}

func TestComputeTotalsVariantsAndAddons(t *testing.T) {
	lines := []Line{
		{
			BasePrice:    dec("20000"),
			VariantDelta: dec("5000"),
			AddonPrices:  []decimal.Decimal{dec("3000"), dec("2000")},
			Quantity:     2,
		},
	}
	got, err := ComputeTotals(lines, Settings{Rounding: RoundingNone}, dec("10000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Subtotal.Equal(dec("60000")) {
		t.Fatalf("expected subtotal 60000, got %s", got.Subtotal)
	}
	if !got.Total.Equal(dec("50000")) {
		t.Fatalf("expected total 50000, got %s", got.Total)
	}
}

func TestComputeTotalsTaxOnPreDiscountSubtotal(t *testing.T) {
	lines := []Line{{BasePrice: dec("10000"), Quantity: 1}}
	settings := Settings{TaxRate: dec("10"), ServiceRate: dec("0"), Rounding: RoundingNone}

	got, err := ComputeTotals(lines, settings, dec("5000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Tax.Equal(dec("1000")) {
		t.Fatalf("expected tax 1000 on pre-discount subtotal, got %s", got.Tax)
	}
	if !got.Total.Equal(dec("6000")) {
		t.Fatalf("expected total 6000, got %s", got.Total)
	}
}

func TestRoundingRuleApply(t *testing.T) {
	cases := []struct {
		rule   RoundingRule
		amount string
		want   string
	}{
		{RoundingNone, "37950.55", "37950.55"},
		{RoundingNearest100, "37950", "38000"},
		{RoundingNearest100, "37949", "37900"},
		{RoundingNearest500, "37750", "38000"},
		{RoundingNearest500, "37749", "37500"},
		{RoundingNearest1000, "37499", "37000"},
		{RoundingNearest1000, "37500", "38000"},
	}
	for _, tc := range cases {
		t.Run(string(tc.rule)+"/"+tc.amount, func(t *testing.T) {
			got := tc.rule.Apply(dec(tc.amount))
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestComputeTotalsIsDeterministic(t *testing.T) {
	lines := []Line{
		{BasePrice: dec("12345.67"), Quantity: 3, AddonPrices: []decimal.Decimal{dec("1500")}},
		{BasePrice: dec("999"), VariantDelta: dec("1"), Quantity: 7},
	}
	settings := Settings{TaxRate: dec("11"), ServiceRate: dec("7.5"), Rounding: RoundingNearest500}

	first, err := ComputeTotals(lines, settings, dec("250"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := ComputeTotals(lines, settings, dec("250"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !again.Total.Equal(first.Total) || !again.Tax.Equal(first.Tax) || !again.Service.Equal(first.Service) {
			t.Fatalf("totals changed between runs: %+v vs %+v", first, again)
		}
	}

	raw := first.Subtotal.Sub(first.Discount).Add(first.Tax).Add(first.Service)
	if !first.Total.Equal(settings.Rounding.Apply(raw)) {
		t.Fatalf("total %s does not match rounded components %s", first.Total, raw)
	}
}

func TestComputeTotalsRejectsBadInput(t *testing.T) {
	cases := []struct {
		name     string
		lines    []Line
		discount decimal.Decimal
		target   error
	}{
		{"zero quantity", []Line{{BasePrice: dec("1000"), Quantity: 0}}, decimal.Zero, ErrInvalidLine},
		{"negative price", []Line{{BasePrice: dec("-1"), Quantity: 1}}, decimal.Zero, ErrInvalidLine},
		{"negative unit after variant", []Line{{BasePrice: dec("1000"), VariantDelta: dec("-2000"), Quantity: 1}}, decimal.Zero, ErrInvalidLine},
		{"negative discount", []Line{{BasePrice: dec("1000"), Quantity: 1}}, dec("-1"), ErrInvalidDiscount},
		{"discount above subtotal", []Line{{BasePrice: dec("1000"), Quantity: 1}}, dec("1001"), ErrInvalidDiscount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeTotals(tc.lines, Settings{}, tc.discount)
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
		})
	}
}

func TestParseRoundingRule(t *testing.T) {
	if rule, err := ParseRoundingRule(" nearest_500 "); err != nil || rule != RoundingNearest500 {
		t.Fatalf("expected NEAREST_500, got %q (%v)", rule, err)
	}
	if rule, err := ParseRoundingRule(""); err != nil || rule != RoundingNone {
		t.Fatalf("expected NONE for empty, got %q (%v)", rule, err)
	}
	if _, err := ParseRoundingRule("NEAREST_50"); !errors.Is(err, ErrUnknownRounding) {
		t.Fatalf("expected unknown rounding error, got %v", err)
	}
}
