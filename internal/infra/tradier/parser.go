package tradier

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"trade_sync/internal/domain"

	"github.com/shopspring/decimal"
)

// Boundary normalization: every upstream shape becomes a fixed domain record
// here, so internal code only ever sees one concrete form. Absent or
// malformed fields degrade to zero values, never to a crash.

var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
	"2006-01-02T15:04:05Z",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDecimal(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func normalizeStatus(s string) string {
	switch strings.ToLower(s) {
	case "open", "pending", "new":
		return domain.OrderStatusNew
	case "partially_filled":
		return domain.OrderStatusPartiallyFilled
	case "filled":
		return domain.OrderStatusFilled
	case "done":
		return domain.OrderStatusDone
	case "canceled", "cancelled":
		return domain.OrderStatusCanceled
	case "expired":
		return domain.OrderStatusExpired
	case "replaced":
		return domain.OrderStatusReplaced
	case "rejected", "error":
		return domain.OrderStatusRejected
	case "held", "suspended":
		return domain.OrderStatusSuspended
	default:
		return domain.OrderStatusNew
	}
}

// parseOrder converts one raw leg-less order into a domain record.
func parseOrder(raw rawOrder, upstreamID string, payload []byte) domain.Order {
	o := domain.Order{
		UpstreamID:   upstreamID,
		ClientID:     raw.ClientID,
		Side:         strings.ToLower(raw.Side),
		Quantity:     parseDecimal(raw.Quantity),
		FilledQty:    parseDecimal(raw.ExecQuantity),
		Kind:         strings.ToLower(raw.Type),
		Duration:     strings.ToLower(raw.Duration),
		LimitPrice:   parseDecimal(raw.Price),
		StopPrice:    parseDecimal(raw.StopPrice),
		AvgFillPrice: parseDecimal(raw.AvgFillPrice),
		Status:       normalizeStatus(raw.Status),
		RawPayload:   string(payload),
	}

	symbol := raw.OptionSymbol
	if symbol == "" {
		symbol = raw.Symbol
	}
	o.Symbol = symbol

	if contract, err := domain.ParseOCCSymbol(symbol); err == nil {
		o.Underlying = contract.Underlying
		o.Expiry = contract.Expiry
		o.Strike = contract.Strike
		o.OptionClass = contract.Class
	} else {
		// Anything that is not a valid OCC symbol is an equity leg.
		o.Underlying = symbol
		o.OptionClass = domain.OptionClassEquity
	}

	if t, ok := parseTime(raw.CreateDate); ok {
		o.SubmittedAt = t
	} else {
		// Unusable submission time: the order cannot be clustered
		// automatically and is flagged for manual reconciliation.
		o.NeedsReview = true
	}

	if t, ok := parseTime(raw.TransactionAt); ok {
		o.EventSeq = t.UnixMicro()
		if o.Status == domain.OrderStatusFilled {
			filled := t
			o.FilledAt = &filled
		}
		if o.Status == domain.OrderStatusCanceled {
			canceled := t
			o.CanceledAt = &canceled
		}
	} else if !o.SubmittedAt.IsZero() {
		o.EventSeq = o.SubmittedAt.UnixMicro()
	}

	return o
}

// flattenOrder expands multileg orders into one record per leg. Leg records
// share the parent upstream ID with a leg suffix so repeated syncs hit the
// same natural key.
func flattenOrder(raw rawOrder, payload []byte) []domain.Order {
	id := raw.ID.String()
	if id == "" {
		return nil
	}

	if len(raw.Legs) == 0 {
		return []domain.Order{parseOrder(raw, id, payload)}
	}

	orders := make([]domain.Order, 0, len(raw.Legs))
	for i, leg := range raw.Legs {
		if leg.CreateDate == "" {
			leg.CreateDate = raw.CreateDate
		}
		if leg.TransactionAt == "" {
			leg.TransactionAt = raw.TransactionAt
		}
		legID := fmt.Sprintf("%s.%d", id, i+1)
		orders = append(orders, parseOrder(leg, legID, payload))
	}
	return orders
}

func parsePosition(raw rawPosition) domain.Position {
	qty := parseDecimal(raw.Quantity)

	p := domain.Position{
		Symbol:   raw.Symbol,
		Quantity: qty.Abs(),
		Side:     domain.PositionLong,
		Open:     true,
	}
	if qty.IsNegative() {
		p.Side = domain.PositionShort
	}

	if contract, err := domain.ParseOCCSymbol(raw.Symbol); err == nil {
		p.Underlying = contract.Underlying
	} else {
		p.Underlying = raw.Symbol
	}

	// cost_basis covers the whole lot; entry price is per unit.
	cost := parseDecimal(raw.CostBasis)
	if !qty.IsZero() {
		mult := decimal.NewFromInt(1)
		if p.Underlying != p.Symbol {
			mult = decimal.NewFromInt(100)
		}
		p.EntryPrice = cost.Div(qty.Abs()).Div(mult).Abs()
	}

	if t, ok := parseTime(raw.DateAcquired); ok {
		p.OpenedAt = t
	}

	return p
}

// parseStreamEvents normalizes one push message. A multileg order message
// expands into one event per leg. Unknown types come back as heartbeats so
// the read loop still counts them as connectivity evidence.
func parseStreamEvents(msg []byte) []domain.StreamEvent {
	now := time.Now()
	heartbeat := []domain.StreamEvent{{Type: domain.StreamEventHeartbeat, ReceivedAt: now}}

	var raw rawStreamEvent
	if err := json.Unmarshal(msg, &raw); err != nil {
		return heartbeat
	}

	seq := now.UnixMicro()
	if ms, err := raw.Date.Int64(); err == nil && ms > 0 {
		seq = ms * 1000
	}

	switch raw.Type {
	case "order":
		if raw.Order == nil {
			return heartbeat
		}
		orders := flattenOrder(*raw.Order, msg)
		if len(orders) == 0 {
			return heartbeat
		}
		events := make([]domain.StreamEvent, 0, len(orders))
		for i := range orders {
			if orders[i].EventSeq == 0 {
				orders[i].EventSeq = seq
			}
			events = append(events, domain.StreamEvent{
				Type:       domain.StreamEventOrder,
				Symbol:     orders[i].Symbol,
				Order:      &orders[i],
				Seq:        seq,
				ReceivedAt: now,
			})
		}
		return events

	case "quote", "trade":
		price := parseDecimal(raw.Last)
		if price.IsZero() {
			price = parseDecimal(raw.Price)
		}
		return []domain.StreamEvent{{
			Type:       domain.StreamEventQuote,
			Symbol:     raw.Symbol,
			Price:      price,
			Seq:        seq,
			ReceivedAt: now,
		}}

	default:
		return heartbeat
	}
}
