package robinhood

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/domain"
)

// Provider serves quotes, regular-session daily history and option
// expirations.
type Provider struct {
	transport Transport
	logger    *zap.Logger
	now       func() time.Time
}

func NewProvider(transport Transport, logger *zap.Logger) *Provider {
	return &Provider{
		transport: transport,
		logger:    logger.Named("robinhood"),
		now:       time.Now,
	}
}

// Spans offered by the historicals endpoint, shortest first.
var spans = []struct {
	name string
	days int
}{
	{"week", 7},
	{"month", 31},
	{"3month", 92},
	{"year", 366},
	{"5year", 5*366 + 1},
}

func (p *Provider) Key() domain.ProviderKey {
	return domain.SecondaryBroker
}

func (p *Provider) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	symbol := domain.NormalizeTicker(ticker)

	q, err := p.transport.Quote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	f, err := p.transport.Fundamentals(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}

	if !q.LastTradePrice.Valid || !f.Open.Valid || q.UpdatedAt.IsZero() {
		return domain.Quote{}, domain.MalformedError("%s quote missing last_trade_price, open or updated_at", symbol)
	}

	return domain.Quote{
		Ticker:    symbol,
		LastPrice: q.LastTradePrice.Decimal,
		OpenPrice: f.Open.Decimal,
		AsOf:      q.UpdatedAt,
	}, nil
}

func (p *Provider) GetLatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	symbol := domain.NormalizeTicker(ticker)

	q, err := p.transport.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !q.LastTradePrice.Valid {
		return decimal.Zero, domain.MalformedError("%s quote missing last_trade_price", symbol)
	}
	return q.LastTradePrice.Decimal, nil
}

func (p *Provider) GetOpenPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	symbol := domain.NormalizeTicker(ticker)

	f, err := p.transport.Fundamentals(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !f.Open.Valid {
		return decimal.Zero, domain.MalformedError("%s fundamentals missing open", symbol)
	}
	return f.Open.Decimal, nil
}

// GetHistoricalDailyBars asks for the shortest span reaching back to start
// and keeps the bars dated within [start, end].
func (p *Provider) GetHistoricalDailyBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	symbol := domain.NormalizeTicker(ticker)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", domain.ErrInvalidArgument,
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	startedAt := p.now()
	span := spanFor(startedAt, start)
	raw, err := p.transport.Historicals(ctx, symbol, span)
	if err != nil {
		return nil, err
	}

	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 0, len(raw))
	for _, h := range raw {
		if !h.OpenPrice.Valid || !h.HighPrice.Valid || !h.LowPrice.Valid || !h.ClosePrice.Valid || h.BeginsAt.IsZero() {
			return nil, domain.MalformedError("%s historical at %s missing begins_at or prices", symbol, h.BeginsAt.Format(time.RFC3339))
		}
		ts := h.BeginsAt.UTC()
		date := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		if date.Before(first) || date.After(last) {
			continue
		}
		bars = append(bars, domain.Bar{
			Date:   date,
			Open:   h.OpenPrice.Decimal,
			High:   h.HighPrice.Decimal,
			Low:    h.LowPrice.Decimal,
			Close:  h.ClosePrice.Decimal,
			Volume: h.Volume,
		})
	}

	bars, err = domain.NormalizeBars(bars)
	if err != nil {
		return nil, fmt.Errorf("%s daily bars: %w", symbol, err)
	}

	p.logger.Info("Fetched daily bars",
		zap.String("ticker", symbol),
		zap.String("span", span),
		zap.Int("bars", len(bars)),
		zap.Duration("execution_time", p.now().Sub(startedAt)))
	return bars, nil
}

func spanFor(now, start time.Time) string {
	days := int(now.Sub(start).Hours() / 24)
	for _, s := range spans {
		if days < s.days {
			return s.name
		}
	}
	return spans[len(spans)-1].name
}

func (p *Provider) GetOptionExpirationDates(ctx context.Context, ticker string) ([]time.Time, error) {
	symbol := domain.NormalizeTicker(ticker)

	instrument, err := p.transport.Instrument(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if instrument.TradableChainID == "" {
		p.logger.Debug("Instrument has no option chain", zap.String("ticker", symbol))
		return []time.Time{}, nil
	}

	c, err := p.transport.Chain(ctx, instrument.TradableChainID)
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, len(c.ExpirationDates))
	for _, raw := range c.ExpirationDates {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, domain.MalformedError("%s expiration date %q: %v", symbol, raw, err)
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	return dates, nil
}
