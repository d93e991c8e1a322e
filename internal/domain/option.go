package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// OptionContract is the parsed form of an OCC option symbol,
// e.g. AAPL240119C00190000 -> AAPL, 2024-01-19, call, 190.
type OptionContract struct {
	Underlying string
	Expiry     string // YYYY-MM-DD
	Class      string // "call" or "put"
	Strike     decimal.Decimal
}

// occTailLen is the fixed suffix of an OCC symbol: YYMMDD + C/P + 8 strike digits.
const occTailLen = 15

// ParseOCCSymbol parses a compact OCC option symbol (no padding spaces).
// Returns an error for anything that does not match; callers treat those
// symbols as equity instruments rather than failing.
func ParseOCCSymbol(symbol string) (*OptionContract, error) {
	if len(symbol) <= occTailLen {
		return nil, fmt.Errorf("symbol %q too short for OCC format", symbol)
	}

	root := symbol[:len(symbol)-occTailLen]
	tail := symbol[len(symbol)-occTailLen:]

	for _, r := range root {
		if r >= '0' && r <= '9' {
			return nil, fmt.Errorf("symbol %q has digits in root", symbol)
		}
	}

	expiry, err := time.Parse("060102", tail[:6])
	if err != nil {
		return nil, fmt.Errorf("symbol %q has invalid expiry: %w", symbol, err)
	}

	var class string
	switch tail[6] {
	case 'C':
		class = OptionClassCall
	case 'P':
		class = OptionClassPut
	default:
		return nil, fmt.Errorf("symbol %q has invalid option class %q", symbol, tail[6])
	}

	raw, err := strconv.ParseInt(tail[7:], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("symbol %q has invalid strike: %w", symbol, err)
	}

	// Strike is encoded as price * 1000.
	strike := decimal.NewFromInt(raw).Div(decimal.NewFromInt(1000))

	return &OptionContract{
		Underlying: root,
		Expiry:     expiry.Format("2006-01-02"),
		Class:      class,
		Strike:     strike,
	}, nil
}
