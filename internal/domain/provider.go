package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProviderKey selects one adapter in the facade registry.
type ProviderKey uint8

const (
	PrimaryBroker ProviderKey = iota + 1
	SecondaryBroker
	DataVendor
	Institutional
)

var providerNames = map[ProviderKey]string{
	PrimaryBroker:   "PRIMARY_BROKER",
	SecondaryBroker: "SECONDARY_BROKER",
	DataVendor:      "DATA_VENDOR",
	Institutional:   "INSTITUTIONAL",
}

// Short tags accepted from configuration and callers used to the old source strings.
var providerAliases = map[string]ProviderKey{
	"td":  PrimaryBroker,
	"rob": SecondaryBroker,
	"yf":  DataVendor,
	"ib":  Institutional,
}

func (k ProviderKey) String() string {
	if name, ok := providerNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ProviderKey(%d)", uint8(k))
}

func (k ProviderKey) Valid() bool {
	_, ok := providerNames[k]
	return ok
}

// ParseProviderKey accepts either the canonical name or a short tag, case-insensitively.
func ParseProviderKey(s string) (ProviderKey, error) {
	s = strings.TrimSpace(s)
	if k, ok := providerAliases[strings.ToLower(s)]; ok {
		return k, nil
	}
	for k, name := range providerNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return 0, &UnknownProviderError{Name: s}
}

// Operation names one capability of a provider.
type Operation uint8

const (
	OpGetQuote Operation = iota + 1
	OpGetLatestPrice
	OpGetOpenPrice
	OpGetHistoricalDailyBars
	OpGetMinuteBars
	OpGetOptionExpirationDates
	OpGetOptionChain
	OpGetMultiHistoricalBars
)

func (o Operation) String() string {
	switch o {
	case OpGetQuote:
		return "GetQuote"
	case OpGetLatestPrice:
		return "GetLatestPrice"
	case OpGetOpenPrice:
		return "GetOpenPrice"
	case OpGetHistoricalDailyBars:
		return "GetHistoricalDailyBars"
	case OpGetMinuteBars:
		return "GetMinuteBars"
	case OpGetOptionExpirationDates:
		return "GetOptionExpirationDates"
	case OpGetOptionChain:
		return "GetOptionChain"
	case OpGetMultiHistoricalBars:
		return "GetMultiHistoricalBars"
	default:
		return fmt.Sprintf("Operation(%d)", uint8(o))
	}
}

// Provider is the minimum every adapter implements. The data operations are
// optional capabilities below; the facade discovers them by type assertion.
type Provider interface {
	Key() ProviderKey
}

type Quoter interface {
	GetQuote(ctx context.Context, ticker string) (Quote, error)
}

type LatestPricer interface {
	GetLatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

type OpenPricer interface {
	GetOpenPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

type DailyBarFetcher interface {
	GetHistoricalDailyBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error)
}

type MinuteBarFetcher interface {
	GetMinuteBars(ctx context.Context, req MinuteBarRequest) ([]Bar, error)
}

type OptionDateLister interface {
	GetOptionExpirationDates(ctx context.Context, ticker string) ([]time.Time, error)
}

type OptionChainFetcher interface {
	GetOptionChain(ctx context.Context, req OptionChainRequest) ([]OptionContract, error)
}

type MultiBarFetcher interface {
	GetMultiHistoricalBars(ctx context.Context, tickers []string, horizon string) (map[string][]Bar, error)
}

// MinuteBarRequest carries the intraday query. Frequency is one of 1m, 5m, 10m, 15m, 30m.
// NumBars <= 0 keeps every bar in the window.
type MinuteBarRequest struct {
	Ticker              string
	Frequency           string
	NumBars             int
	LookbackDays        int
	KeepNonTradingHours bool
	FromMarketOpen      bool
}

type OptionChainRequest struct {
	Ticker string
	Expiry time.Time
	Filter ChainFilter
}
