package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the current exposure for one instrument symbol. The open set
// is replaced wholesale on every full position sync; superseded rows stay
// behind with Open=false. TradeID is a weak back-reference for lookup only —
// a position's lifecycle is independent of the trade's.
type Position struct {
	Symbol     string `gorm:"primaryKey" json:"symbol"`
	Underlying string `gorm:"index" json:"underlying"`

	Quantity decimal.Decimal `json:"quantity"`
	Side     string          `json:"side"` // "long", "short"

	EntryPrice   decimal.Decimal `json:"entry_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`

	UnrealizedPL    decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPct decimal.Decimal `json:"unrealized_pl_pct"`

	Open    bool   `gorm:"index" json:"open"`
	TradeID string `gorm:"index" json:"trade_id,omitempty"`

	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	PositionLong  = "long"
	PositionShort = "short"
)

// RefreshPL recomputes unrealized P/L from entry and current price.
func (p *Position) RefreshPL() {
	if p.EntryPrice.IsZero() || p.CurrentPrice.IsZero() {
		return
	}
	diff := p.CurrentPrice.Sub(p.EntryPrice)
	if p.Side == PositionShort {
		diff = diff.Neg()
	}
	p.UnrealizedPL = diff.Mul(p.Quantity.Abs())
	p.UnrealizedPLPct = diff.Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
}
