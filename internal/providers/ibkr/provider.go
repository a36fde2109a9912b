package ibkr

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/domain"
)

const (
	fieldLast = "31"
	fieldOpen = "7295"

	// The first snapshot for a contract only opens the subscription.
	snapshotAttempts = 3
)

type Provider struct {
	transport Transport
	logger    *zap.Logger
	now       func() time.Time
	backoff   time.Duration
}

func NewProvider(transport Transport, logger *zap.Logger) *Provider {
	return &Provider{
		transport: transport,
		logger:    logger.Named("ibkr"),
		now:       time.Now,
		backoff:   500 * time.Millisecond,
	}
}

func (p *Provider) Key() domain.ProviderKey {
	return domain.Institutional
}

func (p *Provider) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	symbol := domain.NormalizeTicker(ticker)

	conid, err := p.resolve(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	snap, err := p.snapshot(ctx, symbol, conid)
	if err != nil {
		return domain.Quote{}, err
	}

	last, err := parsePrice(snap.Last)
	if err != nil {
		return domain.Quote{}, domain.MalformedError("%s last price %q: %v", symbol, snap.Last, err)
	}
	var open decimal.Decimal
	if snap.Open != "" {
		if open, err = parsePrice(snap.Open); err != nil {
			return domain.Quote{}, domain.MalformedError("%s open price %q: %v", symbol, snap.Open, err)
		}
	}

	q := domain.Quote{Ticker: symbol, LastPrice: last, OpenPrice: open}
	if snap.Updated > 0 {
		q.AsOf = time.UnixMilli(snap.Updated).UTC()
	}
	return q, nil
}

func (p *Provider) GetLatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	q, err := p.GetQuote(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	return q.LastPrice, nil
}

func (p *Provider) GetOpenPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	q, err := p.GetQuote(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	if q.OpenPrice.IsZero() {
		return decimal.Zero, domain.MalformedError("%s snapshot without open price", q.Ticker)
	}
	return q.OpenPrice, nil
}

// GetHistoricalDailyBars requests enough days back from today to cover start
// and keeps the bars dated within [start, end].
func (p *Provider) GetHistoricalDailyBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	symbol := domain.NormalizeTicker(ticker)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", domain.ErrInvalidArgument,
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	now := p.now()
	if start.After(now) {
		return nil, fmt.Errorf("%w: start %s is in the future", domain.ErrInvalidArgument, start.Format(time.DateOnly))
	}

	conid, err := p.resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	days := int(math.Ceil(now.Sub(start).Hours()/24)) + 1
	history, err := p.transport.History(ctx, conid, fmt.Sprintf("%dd", days), "1d")
	if err != nil {
		return nil, err
	}

	first := dateOf(start)
	last := dateOf(end)
	bars := make([]domain.Bar, 0, len(history.Data))
	for _, b := range history.Data {
		if b.Time <= 0 || !b.Open.Valid || !b.High.Valid || !b.Low.Valid || !b.Close.Valid {
			return nil, domain.MalformedError("%s history bar at %d missing t, o, h, l or c", symbol, b.Time)
		}
		date := dateOf(time.UnixMilli(b.Time).UTC())
		if date.Before(first) || date.After(last) {
			continue
		}
		bars = append(bars, domain.Bar{
			Date:   date,
			Open:   b.Open.Decimal,
			High:   b.High.Decimal,
			Low:    b.Low.Decimal,
			Close:  b.Close.Decimal,
			Volume: b.Volume.IntPart(),
		})
	}

	bars, err = domain.NormalizeBars(bars)
	if err != nil {
		return nil, fmt.Errorf("%s daily bars: %w", symbol, err)
	}
	return bars, nil
}

func (p *Provider) resolve(ctx context.Context, symbol string) (ConID, error) {
	defs, err := p.transport.Search(ctx, symbol)
	if err != nil {
		return 0, err
	}
	for _, d := range defs {
		if d.ConID != 0 {
			return d.ConID, nil
		}
	}
	return 0, domain.MalformedError("no contract found for %s", symbol)
}

func (p *Provider) snapshot(ctx context.Context, symbol string, conid ConID) (Snapshot, error) {
	for attempt := 1; ; attempt++ {
		snaps, err := p.transport.Snapshot(ctx, conid, []string{fieldLast, fieldOpen})
		if err != nil {
			return Snapshot{}, err
		}
		if len(snaps) > 0 && snaps[0].Last != "" {
			return snaps[0], nil
		}
		if attempt == snapshotAttempts {
			return Snapshot{}, domain.MalformedError("snapshot for %s has no last price after %d attempts", symbol, attempt)
		}

		p.logger.Debug("Snapshot not ready, retrying", zap.String("ticker", symbol), zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-time.After(p.backoff):
		}
	}
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
