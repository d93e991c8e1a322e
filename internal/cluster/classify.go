package cluster

import (
	"trade_sync/internal/domain"
)

// classify names a cluster's structure from leg count, option class, and
// buy/sell sign pattern. It always resolves to a valid label; anything it
// cannot name falls back to a generic category, never an error.
func classify(legs []domain.Order) string {
	calls, puts, equities := 0, 0, 0
	longs, shorts := 0, 0
	longCalls, shortCalls, longPuts, shortPuts := 0, 0, 0, 0

	for _, leg := range legs {
		long := leg.IsBuy()
		if long {
			longs++
		} else {
			shorts++
		}
		switch leg.OptionClass {
		case domain.OptionClassCall:
			calls++
			if long {
				longCalls++
			} else {
				shortCalls++
			}
		case domain.OptionClassPut:
			puts++
			if long {
				longPuts++
			} else {
				shortPuts++
			}
		default:
			equities++
		}
	}

	switch len(legs) {
	case 0:
		return domain.StructureMultiLeg

	case 1:
		if equities == 1 {
			return domain.StructureEquity
		}
		return domain.StructureSingleLeg

	case 2:
		switch {
		case equities == 1 && shortCalls == 1:
			return domain.StructureCoveredCall
		case equities > 0:
			return domain.StructureMultiLeg
		case calls == 2 || puts == 2:
			// Same class, one long one short: a vertical.
			if longs == 1 && shorts == 1 {
				return domain.StructureVertical
			}
			return domain.StructureMultiLeg
		case calls == 1 && puts == 1 && longs == 2,
			calls == 1 && puts == 1 && shorts == 2:
			if sameStrike(legs) {
				return domain.StructureStraddle
			}
			return domain.StructureStrangle
		default:
			return domain.StructureMultiLeg
		}

	case 4:
		// Both option classes, mixed direction within each, no equity leg:
		// the compound four-leg spread.
		if equities == 0 && longCalls == 1 && shortCalls == 1 && longPuts == 1 && shortPuts == 1 {
			return domain.StructureIronCondor
		}
		return domain.StructureMultiLeg

	default:
		return domain.StructureMultiLeg
	}
}

func sameStrike(legs []domain.Order) bool {
	if len(legs) < 2 {
		return true
	}
	first := legs[0].Strike
	for _, leg := range legs[1:] {
		if !leg.Strike.Equal(first) {
			return false
		}
	}
	return true
}
