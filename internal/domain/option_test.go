package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseOCCSymbol(t *testing.T) {
	tests := []struct {
		symbol     string
		underlying string
		expiry     string
		class      string
		strike     string
	}{
		{"AAPL240119C00190000", "AAPL", "2024-01-19", OptionClassCall, "190"},
		{"SPY251219P00450500", "SPY", "2025-12-19", OptionClassPut, "450.5"},
		{"F240621C00012500", "F", "2024-06-21", OptionClassCall, "12.5"},
		{"GOOGL260116P01500000", "GOOGL", "2026-01-16", OptionClassPut, "1500"},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			c, err := ParseOCCSymbol(tt.symbol)
			if err != nil {
				t.Fatalf("ParseOCCSymbol(%q) failed: %v", tt.symbol, err)
			}
			if c.Underlying != tt.underlying {
				t.Errorf("underlying = %q, want %q", c.Underlying, tt.underlying)
			}
			if c.Expiry != tt.expiry {
				t.Errorf("expiry = %q, want %q", c.Expiry, tt.expiry)
			}
			if c.Class != tt.class {
				t.Errorf("class = %q, want %q", c.Class, tt.class)
			}
			if want := decimal.RequireFromString(tt.strike); !c.Strike.Equal(want) {
				t.Errorf("strike = %s, want %s", c.Strike, want)
			}
		})
	}
}

func TestParseOCCSymbol_Rejects(t *testing.T) {
	symbols := []string{
		"AAPL",                 // plain equity
		"240119C00190000",      // no root
		"AAPL240119X00190000",  // bad class byte
		"AAPL241335C00190000",  // impossible date
		"AAPL240119C0019000x",  // non-numeric strike
		"BRK2240119C00190000",  // digit in root
	}

	for _, sym := range symbols {
		if _, err := ParseOCCSymbol(sym); err == nil {
			t.Errorf("ParseOCCSymbol(%q) succeeded, want error", sym)
		}
	}
}
