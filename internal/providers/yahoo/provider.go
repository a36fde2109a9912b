package yahoo

import (
	"context"
	"fmt"
	"sort"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/datetime"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/chain"
	"github.com/igefined/generic-trader/internal/domain"
	"github.com/igefined/generic-trader/internal/window"
)

// The vendor has no 10 minute interval.
var minuteIntervals = map[string]datetime.Interval{
	"1m":  datetime.OneMin,
	"5m":  datetime.FiveMins,
	"15m": datetime.FifteenMins,
	"30m": datetime.ThirtyMins,
}

// Horizons accepted by GetMultiHistoricalBars.
var horizons = map[string]func(now time.Time) time.Time{
	"1d":  func(now time.Time) time.Time { return now.AddDate(0, 0, -1) },
	"5d":  func(now time.Time) time.Time { return now.AddDate(0, 0, -5) },
	"1mo": func(now time.Time) time.Time { return now.AddDate(0, -1, 0) },
	"3mo": func(now time.Time) time.Time { return now.AddDate(0, -3, 0) },
	"6mo": func(now time.Time) time.Time { return now.AddDate(0, -6, 0) },
	"1y":  func(now time.Time) time.Time { return now.AddDate(-1, 0, 0) },
	"2y":  func(now time.Time) time.Time { return now.AddDate(-2, 0, 0) },
	"5y":  func(now time.Time) time.Time { return now.AddDate(-5, 0, 0) },
	"10y": func(now time.Time) time.Time { return now.AddDate(-10, 0, 0) },
	"ytd": func(now time.Time) time.Time { return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()) },
	"max": func(time.Time) time.Time { return time.Unix(0, 0).UTC() },
}

// Provider is the data-only vendor. It needs no session.
type Provider struct {
	transport Transport
	logger    *zap.Logger
	now       func() time.Time
}

func NewProvider(transport Transport, logger *zap.Logger) *Provider {
	return &Provider{
		transport: transport,
		logger:    logger.Named("yahoo"),
		now:       time.Now,
	}
}

func (p *Provider) Key() domain.ProviderKey {
	return domain.DataVendor
}

func (p *Provider) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	symbol := domain.NormalizeTicker(ticker)

	q, err := p.transport.Quote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	// The library decodes absent fields as zero.
	if q.RegularMarketPrice <= 0 || q.RegularMarketOpen <= 0 || q.RegularMarketTime <= 0 {
		return domain.Quote{}, domain.MalformedError("%s quote missing regularMarketPrice, regularMarketOpen or regularMarketTime", symbol)
	}

	return domain.Quote{
		Ticker:    symbol,
		LastPrice: decimal.NewFromFloat(q.RegularMarketPrice),
		OpenPrice: decimal.NewFromFloat(q.RegularMarketOpen),
		AsOf:      time.Unix(int64(q.RegularMarketTime), 0).UTC(),
	}, nil
}

func (p *Provider) GetLatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	symbol := domain.NormalizeTicker(ticker)

	q, err := p.transport.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if q.RegularMarketPrice <= 0 {
		return decimal.Zero, domain.MalformedError("%s quote missing regularMarketPrice", symbol)
	}
	return decimal.NewFromFloat(q.RegularMarketPrice), nil
}

func (p *Provider) GetOpenPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	symbol := domain.NormalizeTicker(ticker)

	q, err := p.transport.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if q.RegularMarketOpen <= 0 {
		return decimal.Zero, domain.MalformedError("%s quote missing regularMarketOpen", symbol)
	}
	return decimal.NewFromFloat(q.RegularMarketOpen), nil
}

func (p *Provider) GetHistoricalDailyBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", domain.ErrInvalidArgument,
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return p.dailyBars(ctx, domain.NormalizeTicker(ticker), start, end)
}

// GetMultiHistoricalBars fetches each distinct ticker in turn over horizon.
// Any failed ticker fails the whole call; the per-ticker errors are combined.
func (p *Provider) GetMultiHistoricalBars(ctx context.Context, tickers []string, horizon string) (map[string][]domain.Bar, error) {
	startOf, ok := horizons[horizon]
	if !ok {
		return nil, fmt.Errorf("%w: horizon %q", domain.ErrInvalidArgument, horizon)
	}

	now := p.now()
	start := startOf(now)
	symbols := domain.NormalizeTickers(tickers)

	result := make(map[string][]domain.Bar, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	var errs error
	for _, symbol := range symbols {
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}

		bars, err := p.dailyBars(ctx, symbol, start, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", symbol, err))
			continue
		}
		result[symbol] = bars
	}
	if errs != nil {
		return nil, errs
	}

	p.logger.Info("Fetched multi-ticker history",
		zap.Int("tickers", len(result)),
		zap.String("horizon", horizon),
		zap.Duration("execution_time", p.now().Sub(now)))
	return result, nil
}

func (p *Provider) GetOptionExpirationDates(ctx context.Context, ticker string) ([]time.Time, error) {
	symbol := domain.NormalizeTicker(ticker)

	raw, err := p.transport.ExpirationDates(ctx, symbol)
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, len(raw))
	for _, ts := range raw {
		t := time.Unix(int64(ts), 0).UTC()
		dates = append(dates, time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// GetMinuteBars returns intraday bars in US/Pacific time with the same window
// and session rules as the primary broker. Frequency 10m is not offered.
func (p *Provider) GetMinuteBars(ctx context.Context, req domain.MinuteBarRequest) ([]domain.Bar, error) {
	symbol := domain.NormalizeTicker(req.Ticker)

	interval, ok := minuteIntervals[req.Frequency]
	if !ok {
		return nil, fmt.Errorf("%w: frequency window %q, expected one of 1m, 5m, 15m, 30m",
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

	raw, err := p.transport.Chart(ctx, symbol, ChartQuery{
		Start:      w.Start,
		End:        w.End,
		Interval:   interval,
		IncludeExt: req.KeepNonTradingHours,
	})
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, b := range raw {
		ts := time.Unix(int64(b.Timestamp), 0).In(window.Pacific)
		if !req.KeepNonTradingHours && !window.IsTradingHour(ts) {
			continue
		}
		bar, err := toBar(b, ts)
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

// GetOptionChain returns the contracts expiring on req.Expiry, calls first,
// each side in strike order as listed.
func (p *Provider) GetOptionChain(ctx context.Context, req domain.OptionChainRequest) ([]domain.OptionContract, error) {
	symbol := domain.NormalizeTicker(req.Ticker)
	if req.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: expiry date is required", domain.ErrInvalidArgument)
	}
	expiry := time.Date(req.Expiry.Year(), req.Expiry.Month(), req.Expiry.Day(), 0, 0, 0, 0, time.UTC)

	p.logger.Debug("Fetching option chain",
		zap.String("ticker", symbol),
		zap.String("expiry", expiry.Format(time.DateOnly)))

	straddles, err := p.transport.Straddles(ctx, symbol, expiry)
	if err != nil {
		return nil, err
	}

	calls := make([]domain.OptionContract, 0, len(straddles))
	puts := make([]domain.OptionContract, 0, len(straddles))
	for _, s := range straddles {
		if s.Call != nil {
			c, err := convertContract(s.Call, domain.Call, s.Strike, expiry)
			if err != nil {
				return nil, fmt.Errorf("%s option chain: %w", symbol, err)
			}
			calls = append(calls, c)
		}
		if s.Put != nil {
			c, err := convertContract(s.Put, domain.Put, s.Strike, expiry)
			if err != nil {
				return nil, fmt.Errorf("%s option chain: %w", symbol, err)
			}
			puts = append(puts, c)
		}
	}

	return chain.Apply(append(calls, puts...), req.Filter)
}

func convertContract(raw *finance.Contract, kind domain.ContractType, strike float64, expiry time.Time) (domain.OptionContract, error) {
	if raw.Symbol == "" || strike <= 0 {
		return domain.OptionContract{}, domain.MalformedError("contract %q missing contractSymbol or strike", raw.Symbol)
	}
	if raw.Strike != strike {
		return domain.OptionContract{}, domain.MalformedError("contract %s strike %v listed under %v", raw.Symbol, raw.Strike, strike)
	}

	expiration := expiry
	if raw.Expiration > 0 {
		ts := time.Unix(int64(raw.Expiration), 0).UTC()
		expiration = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}

	return domain.OptionContract{
		Symbol:     raw.Symbol,
		Strike:     decimal.NewFromFloat(strike),
		Bid:        decimal.NewFromFloat(raw.Bid),
		Ask:        decimal.NewFromFloat(raw.Ask),
		LastPrice:  decimal.NewFromFloat(raw.LastPrice),
		Type:       kind,
		InTheMoney: raw.InTheMoney,
		Expiration: expiration,
	}, nil
}

// dailyBars requests one extra day so that end is included, then trims.
func (p *Provider) dailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	raw, err := p.transport.Chart(ctx, symbol, ChartQuery{
		Start:    start,
		End:      end.AddDate(0, 0, 1),
		Interval: datetime.OneDay,
	})
	if err != nil {
		return nil, err
	}

	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 0, len(raw))
	for _, b := range raw {
		ts := time.Unix(int64(b.Timestamp), 0).UTC()
		date := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		if date.After(last) {
			continue
		}
		bar, err := toBar(b, date)
		if err != nil {
			return nil, fmt.Errorf("%s daily bars: %w", symbol, err)
		}
		bars = append(bars, bar)
	}

	bars, err = domain.NormalizeBars(bars)
	if err != nil {
		return nil, fmt.Errorf("%s daily bars: %w", symbol, err)
	}
	return bars, nil
}

// toBar rejects bars with a non-positive price; the library decodes nulls
// as zero.
func toBar(b finance.ChartBar, date time.Time) (domain.Bar, error) {
	if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
		return domain.Bar{}, domain.MalformedError("bar at %d missing open, high, low or close", b.Timestamp)
	}
	return domain.Bar{
		Date:   date,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: int64(b.Volume),
	}, nil
}
