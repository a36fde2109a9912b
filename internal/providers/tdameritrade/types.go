package tdameritrade

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/igefined/generic-trader/internal/chain"
)

// Prices are nullable so that an absent field is told apart from zero.
type Candle struct {
	Open     decimal.NullDecimal `json:"open"`
	High     decimal.NullDecimal `json:"high"`
	Low      decimal.NullDecimal `json:"low"`
	Close    decimal.NullDecimal `json:"close"`
	Volume   int64               `json:"volume"`
	Datetime int64               `json:"datetime"`
}

type PriceHistory struct {
	Symbol  string   `json:"symbol"`
	Empty   bool     `json:"empty"`
	Candles []Candle `json:"candles"`
}

type QuoteEntry struct {
	Symbol          string              `json:"symbol"`
	LastPrice       decimal.NullDecimal `json:"lastPrice"`
	OpenPrice       decimal.NullDecimal `json:"openPrice"`
	QuoteTimeInLong int64               `json:"quoteTimeInLong"`
}

type RawContract struct {
	PutCall     string              `json:"putCall"`
	Symbol      string              `json:"symbol"`
	Bid         decimal.NullDecimal `json:"bid"`
	Ask         decimal.NullDecimal `json:"ask"`
	Last        decimal.NullDecimal `json:"last"`
	StrikePrice decimal.NullDecimal `json:"strikePrice"`
	InTheMoney  bool                `json:"inTheMoney"`
}

type OptionChain struct {
	Symbol         string                          `json:"symbol"`
	Status         string                          `json:"status"`
	CallExpDateMap chain.ExpirationMap[RawContract] `json:"callExpDateMap"`
	PutExpDateMap  chain.ExpirationMap[RawContract] `json:"putExpDateMap"`
}

// PriceHistoryQuery mirrors the pricehistory endpoint parameters.
type PriceHistoryQuery struct {
	PeriodType    string
	FrequencyType string
	Frequency     int
	Start         time.Time
	End           time.Time
	ExtendedHours bool
}

// ChainQuery limits a chain request to expirations in [From, To]. Zero values
// request every listed expiration.
type ChainQuery struct {
	From time.Time
	To   time.Time
}

type UserPrincipals struct {
	UserID                   string       `json:"userId"`
	StreamerInfo             StreamerInfo `json:"streamerInfo"`
	StreamerSubscriptionKeys struct {
		Keys []struct {
			Key string `json:"key"`
		} `json:"keys"`
	} `json:"streamerSubscriptionKeys"`
	Accounts []Account `json:"accounts"`
}

type StreamerInfo struct {
	StreamerSocketURL string `json:"streamerSocketUrl"`
	Token             string `json:"token"`
	TokenTimestamp    string `json:"tokenTimestamp"`
	UserGroup         string `json:"userGroup"`
	AccessLevel       string `json:"accessLevel"`
	ACL               string `json:"acl"`
	AppID             string `json:"appId"`
}

type Account struct {
	AccountID         string `json:"accountId"`
	Company           string `json:"company"`
	Segment           string `json:"segment"`
	AccountCdDomainID string `json:"accountCdDomainId"`
}
