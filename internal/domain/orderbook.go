package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type OrderBook struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Bids      []Order   `json:"bids"`
	Asks      []Order   `json:"asks"`
}

// Order is one aggregated price level.
type Order struct {
	Price  decimal.Decimal `json:"price"`
	Volume int64           `json:"volume"`
	Venues int             `json:"venues"`
}

// StreamMessage is one data frame delivered by a streaming transport.
type StreamMessage struct {
	Service   string          `json:"service"`
	Command   string          `json:"command"`
	Timestamp time.Time       `json:"timestamp"`
	Content   json.RawMessage `json:"content"`
}
