package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stream event kinds delivered by the upstream push feed.
const (
	StreamEventOrder     = "order"
	StreamEventQuote     = "quote"
	StreamEventHeartbeat = "heartbeat"
)

// StreamEvent is the normalized form of one upstream push message. All
// upstream shapes are converted at the boundary so the core only ever sees
// this one concrete type.
type StreamEvent struct {
	Type   string
	Symbol string

	// Order is set for order events only.
	Order *Order

	// Price is set for quote events only.
	Price decimal.Decimal

	// Seq is the upstream event timestamp in microseconds, used for
	// last-writer-wins reconciliation.
	Seq int64

	ReceivedAt time.Time
}
