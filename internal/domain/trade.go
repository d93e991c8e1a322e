package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a derived grouping of Orders sharing one clustering key
// (underlying + expiry + temporal window). It is not independently
// authoritative: status and economics are recomputed from constituent
// orders on every sync. The ID is stable once assigned — re-clustering
// extends groups, it never re-keys them.
type Trade struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Underlying string `gorm:"index" json:"underlying"`
	Expiry     string `gorm:"index" json:"expiry,omitempty"`

	Structure string `json:"structure"`
	LegCount  int    `json:"leg_count"`
	Status    string `gorm:"index" json:"status"`

	// EntryCost is the net debit paid to open (credits negative).
	// ExitProceeds is the net credit received closing. RealizedPL is the
	// sum of per-leg cash flows; per-leg P/L is authoritative, the trade
	// level value is their sum.
	EntryCost    decimal.Decimal `json:"entry_cost"`
	ExitProceeds decimal.Decimal `json:"exit_proceeds"`
	RealizedPL   decimal.Decimal `json:"realized_pl"`

	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	NeedsReview bool `gorm:"index" json:"needs_review"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	TradeStatusOpen = "open"
	// TradeStatusPartiallyClosed marks trades with a mix of open and closed
	// legs; they are never collapsed into plain open or closed.
	TradeStatusPartiallyClosed = "partially_closed"
	TradeStatusClosed          = "closed"

	StructureSingleLeg   = "single-leg"
	StructureEquity      = "equity"
	StructureVertical    = "vertical"
	StructureStraddle    = "straddle"
	StructureStrangle    = "strangle"
	StructureCoveredCall = "covered call"
	StructureIronCondor  = "iron condor"
	StructureMultiLeg    = "multi-leg"
)

// IsWin reports whether a finished trade ended profitable.
func (t *Trade) IsWin() bool {
	return t.Status == TradeStatusClosed && t.RealizedPL.IsPositive()
}

// TradeFilter narrows trade queries. Zero values mean "no constraint".
type TradeFilter struct {
	Underlying string
	Status     string
	Limit      int
	Offset     int
}

// TradeStats summarizes persisted trades for the query surface.
type TradeStats struct {
	TotalTrades     int             `json:"total_trades"`
	OpenTrades      int             `json:"open_trades"`
	ClosedTrades    int             `json:"closed_trades"`
	PartiallyClosed int             `json:"partially_closed"`
	Wins            int             `json:"wins"`
	Losses          int             `json:"losses"`
	WinRate         decimal.Decimal `json:"win_rate"` // percent over closed trades
	TotalRealizedPL decimal.Decimal `json:"total_realized_pl"`
}
