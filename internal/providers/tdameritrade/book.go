package tdameritrade

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/igefined/generic-trader/internal/domain"
)

// NASDAQ_BOOK content uses numeric field keys: "1" book time, "2" bids, "3" asks.
// Each level has "0" price, "1" total size and "2" number of market makers.
type bookContent struct {
	Key  string      `json:"key"`
	Time int64       `json:"1"`
	Bids []bookLevel `json:"2"`
	Asks []bookLevel `json:"3"`
}

type bookLevel struct {
	Price  decimal.Decimal `json:"0"`
	Size   int64           `json:"1"`
	Venues int             `json:"2"`
}

const exchangeName = "NASDAQ_BOOK"

// DecodeBook turns one NASDAQ_BOOK data message into order books, one per key.
func DecodeBook(msg domain.StreamMessage) ([]domain.OrderBook, error) {
	var contents []bookContent
	if err := json.Unmarshal(msg.Content, &contents); err != nil {
		return nil, domain.MalformedError("%s content: %v", msg.Service, err)
	}

	books := make([]domain.OrderBook, 0, len(contents))
	for _, c := range contents {
		ts := msg.Timestamp
		if c.Time > 0 {
			ts = time.UnixMilli(c.Time).UTC()
		}
		books = append(books, domain.OrderBook{
			Exchange:  exchangeName,
			Symbol:    c.Key,
			Timestamp: ts,
			Bids:      toOrders(c.Bids),
			Asks:      toOrders(c.Asks),
		})
	}
	return books, nil
}

func toOrders(levels []bookLevel) []domain.Order {
	orders := make([]domain.Order, 0, len(levels))
	for _, l := range levels {
		if !l.Price.IsPositive() || l.Size <= 0 {
			continue
		}
		orders = append(orders, domain.Order{Price: l.Price, Volume: l.Size, Venues: l.Venues})
	}
	return orders
}
