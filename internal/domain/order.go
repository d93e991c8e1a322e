package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the normalized record of one upstream brokerage order.
// It is created on first observation and updated in place; rows are never
// deleted. RawPayload keeps the full upstream record for auditing and is
// replaced wholesale on every re-sync.
type Order struct {
	UpstreamID string `gorm:"primaryKey" json:"upstream_id"`
	ClientID   string `gorm:"index" json:"client_id,omitempty"`

	Symbol      string          `gorm:"index" json:"symbol"`
	Underlying  string          `gorm:"index" json:"underlying"`
	Expiry      string          `gorm:"index" json:"expiry,omitempty"` // YYYY-MM-DD, empty for equity
	Strike      decimal.Decimal `json:"strike,omitempty"`
	OptionClass string          `json:"option_class"` // "call", "put", "equity"

	Side      string          `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	FilledQty decimal.Decimal `json:"filled_qty"`
	Kind      string          `json:"kind"`     // "limit", "market", "stop", "stop_limit"
	Duration  string          `json:"duration"` // "day", "gtc"

	LimitPrice   decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice    decimal.Decimal `json:"stop_price,omitempty"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price,omitempty"`

	Status  string `gorm:"index" json:"status"`
	TradeID string `gorm:"index" json:"trade_id,omitempty"` // assigned by clustering

	SubmittedAt time.Time  `gorm:"index" json:"submitted_at"`
	FilledAt    *time.Time `json:"filled_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`

	// EventSeq is the upstream event timestamp in microseconds. Out-of-order
	// deliveries reconcile last-writer-wins on this field, never arrival order.
	EventSeq int64 `json:"event_seq"`

	RawPayload  string `json:"-"`
	NeedsReview bool   `gorm:"index" json:"needs_review"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	SideBuy         = "buy"
	SideSell        = "sell"
	SideBuyToOpen   = "buy_to_open"
	SideBuyToClose  = "buy_to_close"
	SideSellToOpen  = "sell_to_open"
	SideSellToClose = "sell_to_close"
	SideSellShort   = "sell_short"

	OrderKindLimit     = "limit"
	OrderKindMarket    = "market"
	OrderKindStop      = "stop"
	OrderKindStopLimit = "stop_limit"

	OrderStatusNew             = "new"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusFilled          = "filled"
	OrderStatusDone            = "done"
	OrderStatusCanceled        = "canceled"
	OrderStatusExpired         = "expired"
	OrderStatusReplaced        = "replaced"
	OrderStatusRejected        = "rejected"
	OrderStatusSuspended       = "suspended"

	OptionClassCall   = "call"
	OptionClassPut    = "put"
	OptionClassEquity = "equity"
)

// IsOpen checks if the order is still working at the venue.
func (o *Order) IsOpen() bool {
	switch o.Status {
	case OrderStatusNew, OrderStatusPartiallyFilled, OrderStatusSuspended:
		return true
	}
	return false
}

// IsTerminal reports whether the order can no longer change upstream.
// Terminal orders are immutable here except for RawPayload.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusDone, OrderStatusCanceled,
		OrderStatusExpired, OrderStatusReplaced, OrderStatusRejected:
		return true
	}
	return false
}

// IsBuy reports whether the order adds long exposure.
func (o *Order) IsBuy() bool {
	switch o.Side {
	case SideBuy, SideBuyToOpen, SideBuyToClose:
		return true
	}
	return false
}

// IsOpening reports whether the order opens exposure rather than closing it.
// Plain buy/sell on equities is treated as opening.
func (o *Order) IsOpening() bool {
	switch o.Side {
	case SideBuyToClose, SideSellToClose:
		return false
	}
	return true
}

// Multiplier returns the contract multiplier for notional math.
func (o *Order) Multiplier() decimal.Decimal {
	if o.OptionClass == OptionClassEquity {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(100)
}

// CashFlow returns the signed fill cash flow: sells positive, buys negative.
func (o *Order) CashFlow() decimal.Decimal {
	notional := o.AvgFillPrice.Mul(o.FilledQty).Mul(o.Multiplier())
	if o.IsBuy() {
		return notional.Neg()
	}
	return notional
}

// GroupKey identifies the clustering group an order belongs to.
type GroupKey struct {
	Underlying string
	Expiry     string
}

// Group returns the order's clustering key.
func (o *Order) Group() GroupKey {
	return GroupKey{Underlying: o.Underlying, Expiry: o.Expiry}
}
