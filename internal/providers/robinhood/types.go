package robinhood

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote prices are nullable; the broker sends null for symbols without trades.
type Quote struct {
	Symbol         string              `json:"symbol"`
	LastTradePrice decimal.NullDecimal `json:"last_trade_price"`
	PreviousClose  decimal.NullDecimal `json:"previous_close"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type Fundamentals struct {
	Open   decimal.NullDecimal `json:"open"`
	High   decimal.NullDecimal `json:"high"`
	Low    decimal.NullDecimal `json:"low"`
	Volume decimal.NullDecimal `json:"volume"`
}

type Historical struct {
	BeginsAt   time.Time           `json:"begins_at"`
	OpenPrice  decimal.NullDecimal `json:"open_price"`
	HighPrice  decimal.NullDecimal `json:"high_price"`
	LowPrice   decimal.NullDecimal `json:"low_price"`
	ClosePrice decimal.NullDecimal `json:"close_price"`
	Volume     int64               `json:"volume"`
}

type historicalsPage struct {
	Results []struct {
		Symbol      string       `json:"symbol"`
		Historicals []Historical `json:"historicals"`
	} `json:"results"`
}

type Instrument struct {
	ID              string `json:"id"`
	Symbol          string `json:"symbol"`
	TradableChainID string `json:"tradable_chain_id"`
}

type instrumentPage struct {
	Results []Instrument `json:"results"`
}

type Chain struct {
	ID              string   `json:"id"`
	Symbol          string   `json:"symbol"`
	ExpirationDates []string `json:"expiration_dates"`
}
