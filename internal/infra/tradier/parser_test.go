package tradier

import (
	"encoding/json"
	"testing"

	"trade_sync/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooseList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"array", `[{"id":"1"},{"id":"2"}]`, 2},
		{"bare object", `{"id":"1"}`, 1},
		{"null", `null`, 0},
		{"string null", `"null"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l looseList[rawOrder]
			require.NoError(t, json.Unmarshal([]byte(tt.in), &l))
			assert.Len(t, l, tt.want)
		})
	}
}

func TestParseOrder_Option(t *testing.T) {
	payload := []byte(`{
		"id": 228175,
		"symbol": "AAPL",
		"option_symbol": "AAPL240119C00190000",
		"side": "buy_to_open",
		"quantity": 2.0,
		"exec_quantity": 2.0,
		"type": "limit",
		"duration": "day",
		"price": 2.50,
		"avg_fill_price": 2.45,
		"status": "filled",
		"class": "option",
		"create_date": "2024-01-10T14:30:00.000Z",
		"transaction_date": "2024-01-10T14:30:05.000Z"
	}`)

	var raw rawOrder
	require.NoError(t, json.Unmarshal(payload, &raw))

	orders := flattenOrder(raw, payload)
	require.Len(t, orders, 1)
	o := orders[0]

	assert.Equal(t, "228175", o.UpstreamID)
	assert.Equal(t, "AAPL240119C00190000", o.Symbol)
	assert.Equal(t, "AAPL", o.Underlying)
	assert.Equal(t, "2024-01-19", o.Expiry)
	assert.Equal(t, domain.OptionClassCall, o.OptionClass)
	assert.True(t, o.Strike.Equal(decimal.NewFromInt(190)))
	assert.Equal(t, domain.SideBuyToOpen, o.Side)
	assert.Equal(t, domain.OrderStatusFilled, o.Status)
	assert.True(t, o.AvgFillPrice.Equal(decimal.NewFromFloat(2.45)))
	assert.False(t, o.SubmittedAt.IsZero())
	assert.False(t, o.NeedsReview)
	require.NotNil(t, o.FilledAt)
	assert.Equal(t, o.FilledAt.UnixMicro(), o.EventSeq, "event sequence follows the transaction timestamp")
}

func TestParseOrder_EquityFallback(t *testing.T) {
	payload := []byte(`{
		"id": 99,
		"symbol": "AAPL",
		"side": "buy",
		"quantity": 100,
		"status": "open",
		"class": "equity",
		"create_date": "2024-01-10T14:30:00.000Z"
	}`)

	var raw rawOrder
	require.NoError(t, json.Unmarshal(payload, &raw))

	orders := flattenOrder(raw, payload)
	require.Len(t, orders, 1)

	assert.Equal(t, domain.OptionClassEquity, orders[0].OptionClass)
	assert.Equal(t, "AAPL", orders[0].Underlying)
	assert.Equal(t, domain.OrderStatusNew, orders[0].Status)
}

func TestParseOrder_MissingTimestampFlagsReview(t *testing.T) {
	var raw rawOrder
	require.NoError(t, json.Unmarshal([]byte(`{"id": 7, "symbol": "SPY", "status": "filled"}`), &raw))

	orders := flattenOrder(raw, nil)
	require.Len(t, orders, 1)

	assert.True(t, orders[0].NeedsReview, "order without a submission time is flagged")
	assert.True(t, orders[0].SubmittedAt.IsZero())
}

func TestFlattenOrder_Multileg(t *testing.T) {
	payload := []byte(`{
		"id": 500,
		"class": "multileg",
		"status": "filled",
		"create_date": "2024-01-10T14:30:00.000Z",
		"transaction_date": "2024-01-10T14:30:05.000Z",
		"leg": [
			{"option_symbol": "SPY240119C00450000", "side": "buy_to_open", "quantity": 1, "status": "filled"},
			{"option_symbol": "SPY240119C00455000", "side": "sell_to_open", "quantity": 1, "status": "filled"}
		]
	}`)

	var raw rawOrder
	require.NoError(t, json.Unmarshal(payload, &raw))

	orders := flattenOrder(raw, payload)
	require.Len(t, orders, 2)

	assert.Equal(t, "500.1", orders[0].UpstreamID)
	assert.Equal(t, "500.2", orders[1].UpstreamID)
	assert.Equal(t, "SPY", orders[0].Underlying)
	assert.Equal(t, "2024-01-19", orders[0].Expiry)
	// Legs inherit the parent timestamps when they carry none of their own.
	assert.False(t, orders[0].SubmittedAt.IsZero())
	assert.Equal(t, orders[0].SubmittedAt, orders[1].SubmittedAt)
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"open", domain.OrderStatusNew},
		{"pending", domain.OrderStatusNew},
		{"Filled", domain.OrderStatusFilled},
		{"cancelled", domain.OrderStatusCanceled},
		{"canceled", domain.OrderStatusCanceled},
		{"error", domain.OrderStatusRejected},
		{"held", domain.OrderStatusSuspended},
		{"something_else", domain.OrderStatusNew},
	}

	for _, tt := range tests {
		if got := normalizeStatus(tt.in); got != tt.want {
			t.Errorf("normalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePosition(t *testing.T) {
	var raw rawPosition
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 1,
		"symbol": "AAPL240119C00190000",
		"quantity": 2,
		"cost_basis": 490.00,
		"date_acquired": "2024-01-10T14:30:05.000Z"
	}`), &raw))

	p := parsePosition(raw)
	assert.Equal(t, "AAPL240119C00190000", p.Symbol)
	assert.Equal(t, "AAPL", p.Underlying)
	assert.Equal(t, domain.PositionLong, p.Side)
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(2)))
	// 490 cost basis over 2 contracts at the 100x multiplier.
	assert.True(t, p.EntryPrice.Equal(decimal.NewFromFloat(2.45)), "entry price = %s", p.EntryPrice)
	assert.True(t, p.Open)
}

func TestParsePosition_Short(t *testing.T) {
	var raw rawPosition
	require.NoError(t, json.Unmarshal([]byte(`{"symbol": "AAPL", "quantity": -100, "cost_basis": -19000}`), &raw))

	p := parsePosition(raw)
	assert.Equal(t, domain.PositionShort, p.Side)
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(100)), "quantity stored unsigned")
	assert.True(t, p.EntryPrice.Equal(decimal.NewFromInt(190)), "entry price = %s", p.EntryPrice)
}

func TestParseStreamEvents(t *testing.T) {
	t.Run("quote", func(t *testing.T) {
		events := parseStreamEvents([]byte(`{"type":"quote","symbol":"AAPL","last":190.25,"date":1704897000000}`))
		require.Len(t, events, 1)
		assert.Equal(t, domain.StreamEventQuote, events[0].Type)
		assert.Equal(t, "AAPL", events[0].Symbol)
		assert.True(t, events[0].Price.Equal(decimal.NewFromFloat(190.25)))
		assert.Equal(t, int64(1704897000000000), events[0].Seq)
	})

	t.Run("order expands legs", func(t *testing.T) {
		events := parseStreamEvents([]byte(`{
			"type": "order",
			"date": 1704897000000,
			"order": {
				"id": 500,
				"class": "multileg",
				"status": "filled",
				"create_date": "2024-01-10T14:30:00.000Z",
				"leg": [
					{"option_symbol": "SPY240119C00450000", "side": "buy_to_open", "status": "filled"},
					{"option_symbol": "SPY240119C00455000", "side": "sell_to_open", "status": "filled"}
				]
			}
		}`))
		require.Len(t, events, 2)
		for _, ev := range events {
			assert.Equal(t, domain.StreamEventOrder, ev.Type)
			require.NotNil(t, ev.Order)
		}
		assert.Equal(t, "500.1", events[0].Order.UpstreamID)
		assert.Equal(t, "500.2", events[1].Order.UpstreamID)
	})

	t.Run("unknown type is a heartbeat", func(t *testing.T) {
		events := parseStreamEvents([]byte(`{"type":"summary","symbol":"AAPL"}`))
		require.Len(t, events, 1)
		assert.Equal(t, domain.StreamEventHeartbeat, events[0].Type)
	})

	t.Run("garbage is a heartbeat", func(t *testing.T) {
		events := parseStreamEvents([]byte(`not json`))
		require.Len(t, events, 1)
		assert.Equal(t, domain.StreamEventHeartbeat, events[0].Type)
	})
}
