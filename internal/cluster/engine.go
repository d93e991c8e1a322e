// Package cluster groups raw orders into logical multi-leg trades by
// temporal proximity and classifies each group's structure. It is pure:
// no I/O, no clocks, deterministic for a given input.
package cluster

import (
	"sort"
	"time"

	"trade_sync/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultWindow is the maximum submission-time gap between consecutive
// orders of the same (underlying, expiry) group that still counts as one
// trade. The boundary is inclusive: gap == window stays in the cluster.
const DefaultWindow = 5 * time.Minute

// Engine partitions orders into trade clusters.
type Engine struct {
	window time.Duration
}

// NewEngine creates an engine; window <= 0 selects DefaultWindow.
func NewEngine(window time.Duration) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{window: window}
}

// Result carries the clustered output. Orders come back with TradeID set;
// Trades are fully derived (structure, economics, status).
type Result struct {
	Orders []domain.Order
	Trades []domain.Trade
}

// Cluster partitions orders and assigns stable trade identifiers.
//
// existing maps order UpstreamID to a previously assigned trade ID. Orders
// that already carry an assignment keep it unconditionally — re-clustering
// a superset of seen orders only adds new members to existing groups or
// opens new ones, it never re-keys. Orders without a usable submission time
// become singleton clusters flagged for manual reconciliation.
func (e *Engine) Cluster(orders []domain.Order, existing map[string]string) Result {
	var clusterable []domain.Order
	var orphans []domain.Order

	for _, o := range orders {
		if o.SubmittedAt.IsZero() {
			o.NeedsReview = true
			orphans = append(orphans, o)
			continue
		}
		clusterable = append(clusterable, o)
	}

	groups := make(map[domain.GroupKey][]domain.Order)
	for _, o := range clusterable {
		key := o.Group()
		groups[key] = append(groups[key], o)
	}

	var result Result
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			return members[i].SubmittedAt.Before(members[j].SubmittedAt)
		})

		start := 0
		for i := 1; i <= len(members); i++ {
			if i < len(members) {
				gap := members[i].SubmittedAt.Sub(members[i-1].SubmittedAt)
				if gap <= e.window {
					continue
				}
			}
			e.emitCluster(&result, members[start:i], existing)
			start = i
		}
	}

	for _, o := range orphans {
		e.emitCluster(&result, []domain.Order{o}, existing)
	}

	return result
}

// emitCluster assigns trade IDs within one temporal cluster and derives the
// trade rows. Members that already carry an ID keep it; unassigned members
// adopt the cluster's primary ID (the first previously assigned one, or a
// freshly generated one).
func (e *Engine) emitCluster(result *Result, members []domain.Order, existing map[string]string) {
	primary := ""
	for _, o := range members {
		if id := assignedID(o, existing); id != "" {
			primary = id
			break
		}
	}
	if primary == "" {
		primary = uuid.NewString()
	}

	byTrade := make(map[string][]domain.Order)
	var tradeOrder []string

	for _, o := range members {
		id := assignedID(o, existing)
		if id == "" {
			id = primary
		}
		o.TradeID = id
		if _, seen := byTrade[id]; !seen {
			tradeOrder = append(tradeOrder, id)
		}
		byTrade[id] = append(byTrade[id], o)
		result.Orders = append(result.Orders, o)
	}

	for _, id := range tradeOrder {
		result.Trades = append(result.Trades, deriveTrade(id, byTrade[id]))
	}
}

func assignedID(o domain.Order, existing map[string]string) string {
	if o.TradeID != "" {
		return o.TradeID
	}
	return existing[o.UpstreamID]
}

// deriveTrade computes the trade row for one set of legs.
func deriveTrade(id string, legs []domain.Order) domain.Trade {
	trade := domain.Trade{
		ID:       id,
		LegCount: len(legs),
	}

	if len(legs) > 0 {
		trade.Underlying = legs[0].Underlying
		trade.Expiry = legs[0].Expiry
	}

	var latestTerminal time.Time
	openLegs, closedLegs := 0, 0

	for _, leg := range legs {
		if leg.NeedsReview {
			trade.NeedsReview = true
		}
		if trade.OpenedAt.IsZero() || (!leg.SubmittedAt.IsZero() && leg.SubmittedAt.Before(trade.OpenedAt)) {
			trade.OpenedAt = leg.SubmittedAt
		}

		cash := leg.CashFlow()
		if leg.IsOpening() {
			trade.EntryCost = trade.EntryCost.Sub(cash) // debit positive
		} else {
			trade.ExitProceeds = trade.ExitProceeds.Add(cash)
		}
		trade.RealizedPL = trade.RealizedPL.Add(cash)

		if leg.IsTerminal() && !leg.IsOpen() {
			closedLegs++
			if leg.FilledAt != nil && leg.FilledAt.After(latestTerminal) {
				latestTerminal = *leg.FilledAt
			}
			if leg.CanceledAt != nil && leg.CanceledAt.After(latestTerminal) {
				latestTerminal = *leg.CanceledAt
			}
		} else {
			openLegs++
		}
	}

	switch {
	case openLegs == 0:
		trade.Status = domain.TradeStatusClosed
		if !latestTerminal.IsZero() {
			trade.ClosedAt = &latestTerminal
		}
	case closedLegs == 0:
		trade.Status = domain.TradeStatusOpen
		trade.RealizedPL = decimal.Zero
	default:
		// Mixed open and closed legs are kept distinct, not collapsed.
		trade.Status = domain.TradeStatusPartiallyClosed
	}

	trade.Structure = classify(legs)
	return trade
}
