package tdameritrade

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/chain"
	"github.com/igefined/generic-trader/internal/domain"
	"github.com/igefined/generic-trader/internal/window"
)

var minuteFrequencies = map[string]int{
	"1m":  1,
	"5m":  5,
	"10m": 10,
	"15m": 15,
	"30m": 30,
}

type Provider struct {
	transport Transport
	logger    *zap.Logger
	now       func() time.Time
}

func NewProvider(transport Transport, logger *zap.Logger) *Provider {
	return &Provider{
		transport: transport,
		logger:    logger.Named("td-ameritrade"),
		now:       time.Now,
	}
}

func (p *Provider) Key() domain.ProviderKey {
	return domain.PrimaryBroker
}

func (p *Provider) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	symbol, entry, err := p.quote(ctx, ticker)
	if err != nil {
		return domain.Quote{}, err
	}
	if !entry.LastPrice.Valid || !entry.OpenPrice.Valid || entry.QuoteTimeInLong <= 0 {
		return domain.Quote{}, domain.MalformedError("%s quote missing lastPrice, openPrice or quoteTimeInLong", symbol)
	}

	return domain.Quote{
		Ticker:    symbol,
		LastPrice: entry.LastPrice.Decimal,
		OpenPrice: entry.OpenPrice.Decimal,
		AsOf:      time.UnixMilli(entry.QuoteTimeInLong).UTC(),
	}, nil
}

func (p *Provider) GetLatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	symbol, entry, err := p.quote(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	if !entry.LastPrice.Valid {
		return decimal.Zero, domain.MalformedError("%s quote missing lastPrice", symbol)
	}
	return entry.LastPrice.Decimal, nil
}

func (p *Provider) GetOpenPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	symbol, entry, err := p.quote(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	if !entry.OpenPrice.Valid {
		return decimal.Zero, domain.MalformedError("%s quote missing openPrice", symbol)
	}
	return entry.OpenPrice.Decimal, nil
}

func (p *Provider) quote(ctx context.Context, ticker string) (string, QuoteEntry, error) {
	symbol := domain.NormalizeTicker(ticker)
	p.logger.Debug("Fetching quote", zap.String("ticker", symbol))

	quotes, err := p.transport.Quotes(ctx, symbol)
	if err != nil {
		return symbol, QuoteEntry{}, err
	}

	entry, ok := quotes[symbol]
	if !ok && len(quotes) == 1 {
		for _, only := range quotes {
			entry, ok = only, true
		}
	}
	if !ok {
		return symbol, QuoteEntry{}, domain.MalformedError("no quote returned for %s", symbol)
	}
	return symbol, entry, nil
}

// GetHistoricalDailyBars returns daily bars for [start, end], each dated at
// midnight UTC of its trading day.
func (p *Provider) GetHistoricalDailyBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	symbol := domain.NormalizeTicker(ticker)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", domain.ErrInvalidArgument,
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	startedAt := p.now()
	history, err := p.transport.PriceHistory(ctx, symbol, PriceHistoryQuery{
		PeriodType:    "year",
		FrequencyType: "daily",
		Frequency:     1,
		Start:         start,
		End:           end,
	})
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(history.Candles))
	for _, c := range history.Candles {
		ts := time.UnixMilli(c.Datetime).UTC()
		bar, err := toBar(c, time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC))
		if err != nil {
			return nil, fmt.Errorf("%s daily bars: %w", symbol, err)
		}
		bars = append(bars, bar)
	}

	bars, err = domain.NormalizeBars(bars)
	if err != nil {
		return nil, fmt.Errorf("%s daily bars: %w", symbol, err)
	}

	p.logger.Info("Fetched daily bars",
		zap.String("ticker", symbol),
		zap.Int("bars", len(bars)),
		zap.Duration("execution_time", p.now().Sub(startedAt)))
	return bars, nil
}

// GetMinuteBars returns intraday bars in US/Pacific time. Bars outside the
// regular session are dropped unless KeepNonTradingHours is set, and a
// positive NumBars keeps only the most recent bars.
func (p *Provider) GetMinuteBars(ctx context.Context, req domain.MinuteBarRequest) ([]domain.Bar, error) {
	symbol := domain.NormalizeTicker(req.Ticker)

	frequency, ok := minuteFrequencies[req.Frequency]
	if !ok {
		return nil, fmt.Errorf("%w: frequency window %q, expected one of 1m, 5m, 10m, 15m, 30m",
			domain.ErrInvalidArgument, req.Frequency)
	}
	if req.LookbackDays < 0 {
		return nil, fmt.Errorf("%w: negative lookback %d", domain.ErrInvalidArgument, req.LookbackDays)
	}

	w := window.Compute(p.now(), req.LookbackDays, req.FromMarketOpen)
	if err := w.Validate(); err != nil {
		return nil, err
	}

	p.logger.Debug("Fetching minute bars",
		zap.String("ticker", symbol),
		zap.String("frequency", req.Frequency),
		zap.Time("start", w.Start),
		zap.Time("end", w.End))

	history, err := p.transport.PriceHistory(ctx, symbol, PriceHistoryQuery{
		PeriodType:    "day",
		FrequencyType: "minute",
		Frequency:     frequency,
		Start:         w.Start,
		End:           w.End,
		ExtendedHours: req.KeepNonTradingHours,
	})
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(history.Candles))
	for _, c := range history.Candles {
		ts := time.UnixMilli(c.Datetime).In(window.Pacific)
		if !req.KeepNonTradingHours && !window.IsTradingHour(ts) {
			continue
		}
		bar, err := toBar(c, ts)
		if err != nil {
			return nil, fmt.Errorf("%s minute bars: %w", symbol, err)
		}
		bars = append(bars, bar)
	}

	bars, err = domain.NormalizeBars(bars)
	if err != nil {
		return nil, fmt.Errorf("%s minute bars: %w", symbol, err)
	}

	if req.NumBars > 0 && len(bars) > req.NumBars {
		bars = bars[len(bars)-req.NumBars:]
	}
	return bars, nil
}

func (p *Provider) GetOptionExpirationDates(ctx context.Context, ticker string) ([]time.Time, error) {
	symbol := domain.NormalizeTicker(ticker)

	oc, err := p.transport.OptionChain(ctx, symbol, ChainQuery{})
	if err != nil {
		return nil, err
	}

	dates, err := chain.ExpirationDates(oc.CallExpDateMap, oc.PutExpDateMap)
	if err != nil {
		return nil, domain.MalformedError("%s option dates: %v", symbol, err)
	}
	return dates, nil
}

// GetOptionChain returns the contracts expiring on req.Expiry, calls first,
// in the order the broker listed them.
func (p *Provider) GetOptionChain(ctx context.Context, req domain.OptionChainRequest) ([]domain.OptionContract, error) {
	symbol := domain.NormalizeTicker(req.Ticker)
	if req.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: expiry date is required", domain.ErrInvalidArgument)
	}

	p.logger.Debug("Fetching option chain",
		zap.String("ticker", symbol),
		zap.String("expiry", req.Expiry.Format(time.DateOnly)))

	oc, err := p.transport.OptionChain(ctx, symbol, ChainQuery{From: req.Expiry, To: req.Expiry})
	if err != nil {
		return nil, err
	}

	expiry := req.Expiry.Format(time.DateOnly)
	return chain.Normalize(p.logger, convertContract, req.Filter,
		onExpiry(oc.CallExpDateMap, expiry), onExpiry(oc.PutExpDateMap, expiry))
}

func onExpiry(m chain.ExpirationMap[RawContract], date string) chain.ExpirationMap[RawContract] {
	out := make(chain.ExpirationMap[RawContract], 0, 1)
	for _, exp := range m {
		d, err := chain.ParseExpirationKey(exp.Key)
		if err != nil || d.Format(time.DateOnly) == date {
			// Unparseable keys are kept so the normalizer reports them.
			out = append(out, exp)
		}
	}
	return out
}

func convertContract(raw RawContract) (domain.OptionContract, error) {
	var kind domain.ContractType
	switch raw.PutCall {
	case "CALL":
		kind = domain.Call
	case "PUT":
		kind = domain.Put
	default:
		return domain.OptionContract{}, domain.MalformedError("contract %s has putCall %q", raw.Symbol, raw.PutCall)
	}

	if !raw.StrikePrice.Valid || !raw.Bid.Valid || !raw.Ask.Valid || !raw.Last.Valid {
		return domain.OptionContract{}, domain.MalformedError("contract %s missing strikePrice, bid, ask or last", raw.Symbol)
	}

	return domain.OptionContract{
		Symbol:     raw.Symbol,
		Strike:     raw.StrikePrice.Decimal,
		Bid:        raw.Bid.Decimal,
		Ask:        raw.Ask.Decimal,
		LastPrice:  raw.Last.Decimal,
		Type:       kind,
		InTheMoney: raw.InTheMoney,
	}, nil
}

func toBar(c Candle, date time.Time) (domain.Bar, error) {
	if !c.Open.Valid || !c.High.Valid || !c.Low.Valid || !c.Close.Valid {
		return domain.Bar{}, domain.MalformedError("candle at %d missing open, high, low or close", c.Datetime)
	}
	return domain.Bar{
		Date:   date,
		Open:   c.Open.Decimal,
		High:   c.High.Decimal,
		Low:    c.Low.Decimal,
		Close:  c.Close.Decimal,
		Volume: c.Volume,
	}, nil
}
