package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BrokerageClient defines the request/response surface of the upstream venue.
type BrokerageClient interface {
	// ListOrders returns one page of orders updated at or after since,
	// plus whether more pages remain.
	ListOrders(ctx context.Context, since time.Time, page int) ([]Order, bool, error)

	// ListPositions returns the full current open-position set.
	ListPositions(ctx context.Context) ([]Position, error)

	// GetQuotes returns last prices for the given symbols.
	GetQuotes(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// StreamWorker defines the lifecycle of the upstream push connection.
type StreamWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	Subscribe(symbols ...string) error
	// Fatal delivers the terminal error when the reconnect budget is exhausted.
	Fatal() <-chan error
}

// EventPublisher fans newly persisted updates out to presentation clients.
// Delivery is best-effort; catch-up happens via the query surface.
type EventPublisher interface {
	PublishOrderUpdate(order *Order)
	PublishPriceUpdate(symbol string, price decimal.Decimal)
}
