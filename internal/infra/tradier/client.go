package tradier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trade_sync/internal/domain"
	"trade_sync/internal/infra"

	"github.com/shopspring/decimal"
)

// Client is the rate-limited REST client for the brokerage API. Every call
// waits on the shared token bucket (bounded, so sync never silently skips
// work under load) and classifies failures into transient vs. permanent.
type Client struct {
	baseURL    string
	streamURL  string
	token      string
	accountID  string
	pageSize   int
	httpClient *http.Client
	limiter    *infra.RateLimiter
	maxWait    time.Duration
	logger     *slog.Logger
}

// NewClient creates a new brokerage API client.
func NewClient(cfg *infra.Config, limiter *infra.RateLimiter) *Client {
	return &Client{
		baseURL:   cfg.API.BaseURL,
		streamURL: cfg.API.StreamURL,
		token:     cfg.API.Token,
		accountID: cfg.API.AccountID,
		pageSize:  cfg.Sync.PageSize,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.API.TimeoutSec) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		limiter: limiter,
		maxWait: time.Duration(cfg.API.MaxWaitSec) * time.Second,
		logger:  slog.Default().With("module", "brokerage_client"),
	}
}

// doRequest acquires a token, issues the call, and classifies the outcome.
func (c *Client) doRequest(ctx context.Context, method, op, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.WaitContext(ctx, c.maxWait); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, domain.NewPermanentAPIError(op, 0, err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures are transient.
		return nil, domain.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", op, domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, domain.NewTransientAPIError(op, resp.StatusCode, string(body))
	case resp.StatusCode >= 400:
		return nil, domain.NewPermanentAPIError(op, resp.StatusCode, string(body))
	}

	return body, nil
}

// ListOrders returns one page of orders updated at or after since, and
// whether more pages remain.
func (c *Client) ListOrders(ctx context.Context, since time.Time, page int) ([]domain.Order, bool, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(c.pageSize))
	query.Set("includeTags", "true")
	if !since.IsZero() {
		query.Set("start", since.UTC().Format("2006-01-02T15:04:05Z"))
	}

	path := fmt.Sprintf("/v1/accounts/%s/orders", c.accountID)
	body, err := c.doRequest(ctx, http.MethodGet, "list_orders", path, query)
	if err != nil {
		return nil, false, err
	}

	var env ordersEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, domain.NewPermanentAPIError("list_orders", 0, "malformed response: "+err.Error())
	}

	orders := make([]domain.Order, 0, len(env.Orders.Order))
	for _, raw := range env.Orders.Order {
		rawJSON, _ := json.Marshal(raw)
		orders = append(orders, flattenOrder(raw, rawJSON)...)
	}

	hasMore := len(env.Orders.Order) >= c.pageSize
	return orders, hasMore, nil
}

// ListPositions returns the full current open-position set.
func (c *Client) ListPositions(ctx context.Context) ([]domain.Position, error) {
	path := fmt.Sprintf("/v1/accounts/%s/positions", c.accountID)
	body, err := c.doRequest(ctx, http.MethodGet, "list_positions", path, nil)
	if err != nil {
		return nil, err
	}

	var env positionsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.NewPermanentAPIError("list_positions", 0, "malformed response: "+err.Error())
	}

	positions := make([]domain.Position, 0, len(env.Positions.Position))
	for _, raw := range env.Positions.Position {
		positions = append(positions, parsePosition(raw))
	}
	return positions, nil
}

// GetQuotes returns last prices for the given symbols.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))

	body, err := c.doRequest(ctx, http.MethodGet, "get_quotes", "/v1/markets/quotes", query)
	if err != nil {
		return nil, err
	}

	var env quotesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.NewPermanentAPIError("get_quotes", 0, "malformed response: "+err.Error())
	}

	quotes := make(map[string]decimal.Decimal, len(env.Quotes.Quote))
	for _, q := range env.Quotes.Quote {
		quotes[q.Symbol] = parseDecimal(q.Last)
	}
	return quotes, nil
}

// CreateStreamSession obtains a short-lived session ID for the push feed.
func (c *Client) CreateStreamSession(ctx context.Context) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "create_stream_session", "/v1/accounts/events/session", nil)
	if err != nil {
		return "", err
	}

	var env streamSessionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", domain.NewPermanentAPIError("create_stream_session", 0, "malformed response: "+err.Error())
	}
	if env.Stream.SessionID == "" {
		return "", domain.NewPermanentAPIError("create_stream_session", 0, "empty session id")
	}
	return env.Stream.SessionID, nil
}
