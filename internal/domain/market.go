package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV interval. Daily bars are dated at midnight UTC of the trading
// day, minute bars carry the interval start in US/Pacific.
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

func (b Bar) Validate() error {
	if b.Volume < 0 {
		return fmt.Errorf("%w: bar %s has negative volume %d", ErrMalformedResponse, b.Date.Format(time.RFC3339), b.Volume)
	}
	if b.High.LessThan(b.Low) ||
		b.High.LessThan(decimal.Max(b.Open, b.Close)) ||
		b.Low.GreaterThan(decimal.Min(b.Open, b.Close)) {
		return fmt.Errorf("%w: bar %s has inconsistent OHLC %s/%s/%s/%s",
			ErrMalformedResponse, b.Date.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close)
	}
	return nil
}

// NormalizeBars sorts bars ascending by date and rejects duplicates and
// inconsistent bars. The input slice is reordered in place.
func NormalizeBars(bars []Bar) ([]Bar, error) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})

	for i, bar := range bars {
		if err := bar.Validate(); err != nil {
			return nil, err
		}
		if i > 0 && bars[i-1].Date.Equal(bar.Date) {
			return nil, fmt.Errorf("%w: duplicate bar at %s", ErrMalformedResponse, bar.Date.Format(time.RFC3339))
		}
	}

	return bars, nil
}

type Quote struct {
	Ticker    string          `json:"ticker"`
	LastPrice decimal.Decimal `json:"last_price"`
	OpenPrice decimal.Decimal `json:"open_price"`
	AsOf      time.Time       `json:"as_of"`
}

type ContractType string

const (
	Call ContractType = "CALL"
	Put  ContractType = "PUT"
)

// OptionContract is one listed contract. Strike always equals the strike key the
// vendor indexed it under.
type OptionContract struct {
	Symbol     string          `json:"symbol"`
	Strike     decimal.Decimal `json:"strike"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	LastPrice  decimal.Decimal `json:"last_price"`
	Type       ContractType    `json:"contract_type"`
	InTheMoney bool            `json:"in_the_money"`
	Expiration time.Time       `json:"expiration"`
}

type Moneyness uint8

const (
	AnyMoneyness Moneyness = iota
	InTheMoney
	OutOfTheMoney
)

// ChainFilter is a parsed option chain filter. Zero value keeps everything.
type ChainFilter struct {
	Type      ContractType
	Moneyness Moneyness
}

// NormalizeTicker trims and upper-cases a symbol before it reaches a vendor.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// NormalizeTickers applies NormalizeTicker to each entry and drops blanks.
func NormalizeTickers(tickers []string) []string {
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if t = NormalizeTicker(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
