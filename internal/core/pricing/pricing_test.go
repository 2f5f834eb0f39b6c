package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestQuantize_RoundHalfUp(t *testing.T) {
	cases := map[string]string{
		"1.005":   "1.01",
		"1.004":   "1",
		"2.675":   "2.68",
		"0.125":   "0.13",
		"10":      "10",
		"19.98":   "19.98",
		"-1.005":  "-1.01",
		"0.0049":  "0",
		"99.9951": "100",
	}
	for in, want := range cases {
		got := Quantize(d(in))
		if !got.Equal(d(want)) {
			t.Errorf("Quantize(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestQuantize_Idempotent(t *testing.T) {
	inputs := []string{"0", "0.001", "0.005", "1.2345", "9.99", "123456.785", "-3.335", "0.0051"}
	for _, in := range inputs {
		once := Quantize(d(in))
		twice := Quantize(once)
		if !once.Equal(twice) {
			t.Errorf("Quantize not idempotent for %s: %s vs %s", in, once, twice)
		}
	}
}

func TestLineTotal(t *testing.T) {
	got := LineTotal(d("9.99"), 2)
	if !got.Equal(d("19.98")) {
		t.Errorf("expected 19.98, got %s", got)
	}

	got = LineTotal(d("0.335"), 3)
	if !got.Equal(d("1.01")) {
		t.Errorf("expected 1.01, got %s", got)
	}
}

func TestCartTotal_WholeCentPricesMatchLineSum(t *testing.T) {
	lines := []Line{
		{UnitPrice: d("9.99"), Quantity: 2},
		{UnitPrice: d("0.01"), Quantity: 7},
		{UnitPrice: d("1234.50"), Quantity: 1},
	}

	lineSum := decimal.Zero
	for _, l := range lines {
		lineSum = lineSum.Add(LineTotal(l.UnitPrice, l.Quantity))
	}

	total := CartTotal(lines)
	if !total.Equal(Quantize(lineSum)) {
		t.Errorf("expected %s, got %s", Quantize(lineSum), total)
	}
	if !total.Equal(d("1254.55")) {
		t.Errorf("expected 1254.55, got %s", total)
	}
}

// Sub-cent prices show the summation order: the grand total rounds the exact
// sum once, while summing rounded lines rounds three times.
func TestCartTotal_SumsBeforeRounding(t *testing.T) {
	lines := []Line{
		{UnitPrice: d("0.005"), Quantity: 1},
		{UnitPrice: d("0.005"), Quantity: 1},
		{UnitPrice: d("0.005"), Quantity: 1},
	}

	total := CartTotal(lines)
	if !total.Equal(d("0.02")) {
		t.Errorf("expected 0.02, got %s", total)
	}

	lineSum := decimal.Zero
	for _, l := range lines {
		lineSum = lineSum.Add(LineTotal(l.UnitPrice, l.Quantity))
	}
	if !lineSum.Equal(d("0.03")) {
		t.Errorf("expected quantized line sum 0.03, got %s", lineSum)
	}

	// Bounded by half a cent per line.
	bound := d("0.005").Mul(decimal.NewFromInt(int64(len(lines))))
	if total.Sub(lineSum).Abs().GreaterThan(bound) {
		t.Errorf("difference %s exceeds %s", total.Sub(lineSum).Abs(), bound)
	}
}

func TestCartTotal_Empty(t *testing.T) {
	if !CartTotal(nil).IsZero() {
		t.Error("expected zero total for empty cart")
	}
}
