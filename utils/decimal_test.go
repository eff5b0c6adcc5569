package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount_AcceptsFormattedStrings(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"500", "500"},
		{"1,234.50", "1234.5"},
		{"INR 500.00", "500"},
		{"₹ -20", "-20"},
		{"  Rs. 75.25 ", "75.25"},
	}
	for _, tc := range cases {
		d, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("ParseAmount(%q) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestParseAmount_RejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "12a", "USD 5"} {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("ParseAmount(%q) expected error", in)
		}
	}
}

func TestAmountsEqual_CurrencyPrecision(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"500.00", "500", true},
		{"500.001", "500.00", true},
		{"500.01", "500.00", false},
		{"0.1", "0.10", true},
	}
	for _, tc := range cases {
		got := AmountsEqual(decimal.RequireFromString(tc.a), decimal.RequireFromString(tc.b))
		if got != tc.want {
			t.Fatalf("AmountsEqual(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
