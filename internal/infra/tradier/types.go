package tradier

import (
	"bytes"
	"encoding/json"
)

// Raw API shapes. The upstream wraps lists inconsistently: a single element
// arrives as a bare object, multiple as an array, and an empty list as the
// string "null". Everything here is decoded leniently and normalized in
// parser.go before it reaches the core.

type rawOrder struct {
	ID            json.Number `json:"id"`
	ClientID      string      `json:"tag"`
	Symbol        string      `json:"symbol"`
	OptionSymbol  string      `json:"option_symbol"`
	Side          string      `json:"side"`
	Quantity      json.Number `json:"quantity"`
	ExecQuantity  json.Number `json:"exec_quantity"`
	Type          string      `json:"type"`
	Duration      string      `json:"duration"`
	Price         json.Number `json:"price"`
	StopPrice     json.Number `json:"stop_price"`
	AvgFillPrice  json.Number `json:"avg_fill_price"`
	Status        string      `json:"status"`
	Class         string      `json:"class"` // "equity", "option", "multileg", "combo"
	CreateDate    string      `json:"create_date"`
	TransactionAt string      `json:"transaction_date"`
	Legs          []rawOrder  `json:"leg"`
}

type ordersEnvelope struct {
	Orders orderContainer `json:"orders"`
}

// An empty list arrives as "orders": "null" (a string), not an object.
type orderContainer struct {
	Order looseList[rawOrder] `json:"order"`
}

func (c *orderContainer) UnmarshalJSON(data []byte) error {
	if skipNonObject(data) {
		return nil
	}
	type alias orderContainer
	return json.Unmarshal(data, (*alias)(c))
}

type rawPosition struct {
	ID           json.Number `json:"id"`
	Symbol       string      `json:"symbol"`
	Quantity     json.Number `json:"quantity"`
	CostBasis    json.Number `json:"cost_basis"`
	DateAcquired string      `json:"date_acquired"`
}

type positionsEnvelope struct {
	Positions positionContainer `json:"positions"`
}

type positionContainer struct {
	Position looseList[rawPosition] `json:"position"`
}

func (c *positionContainer) UnmarshalJSON(data []byte) error {
	if skipNonObject(data) {
		return nil
	}
	type alias positionContainer
	return json.Unmarshal(data, (*alias)(c))
}

type rawQuote struct {
	Symbol string      `json:"symbol"`
	Last   json.Number `json:"last"`
}

type quotesEnvelope struct {
	Quotes struct {
		Quote looseList[rawQuote] `json:"quote"`
	} `json:"quotes"`
}

type streamSessionEnvelope struct {
	Stream struct {
		SessionID string `json:"sessionid"`
		URL       string `json:"url"`
	} `json:"stream"`
}

// rawStreamEvent covers every push message shape; irrelevant fields stay zero.
type rawStreamEvent struct {
	Type   string      `json:"type"` // "quote", "trade", "order", "heartbeat"
	Symbol string      `json:"symbol"`
	Last   json.Number `json:"last"`
	Price  json.Number `json:"price"`
	Date   json.Number `json:"date"` // epoch millis
	Order  *rawOrder   `json:"order"`
}

// skipNonObject reports whether data is null or a string and should decode
// to the zero value instead of an error.
func skipNonObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) == 0 || bytes.Equal(data, []byte("null")) || data[0] == '"'
}

// looseList accepts a bare object, an array, or a JSON string/null as a list.
type looseList[T any] []T

func (l *looseList[T]) UnmarshalJSON(data []byte) error {
	if skipNonObject(data) {
		*l = nil
		return nil
	}
	data = bytes.TrimSpace(data)
	if data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var single T
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = []T{single}
	return nil
}
