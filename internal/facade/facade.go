// Package facade dispatches market-data requests to the adapter registered
// under a provider key.
package facade

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/chain"
	"github.com/igefined/generic-trader/internal/domain"
)

type Facade struct {
	providers map[domain.ProviderKey]domain.Provider
	logger    *zap.Logger
}

type Params struct {
	fx.In

	Providers []domain.Provider `group:"providers"`
	Logger    *zap.Logger
}

func New(params Params) (*Facade, error) {
	f := &Facade{
		providers: make(map[domain.ProviderKey]domain.Provider, len(params.Providers)),
		logger:    params.Logger.Named("facade"),
	}
	for _, p := range params.Providers {
		if p == nil {
			continue
		}
		key := p.Key()
		if !key.Valid() {
			return nil, fmt.Errorf("register provider: %w", &domain.UnknownProviderError{Key: key})
		}
		if _, ok := f.providers[key]; ok {
			return nil, fmt.Errorf("register provider: %s registered twice", key)
		}
		f.providers[key] = p
	}

	keys := make([]string, 0, len(f.providers))
	for k := range f.providers {
		keys = append(keys, k.String())
	}
	slices.Sort(keys)
	f.logger.Info("Provider registry built", zap.Strings("providers", keys))
	return f, nil
}

// Has reports whether key has a registered adapter.
func (f *Facade) Has(key domain.ProviderKey) bool {
	_, ok := f.providers[key]
	return ok
}

// lookup resolves key to the adapter and asserts it implements capability C.
func lookup[C any](f *Facade, key domain.ProviderKey, op domain.Operation) (C, error) {
	var zero C
	p, ok := f.providers[key]
	if !ok {
		return zero, &domain.ProviderError{Provider: key, Operation: op, Err: &domain.UnknownProviderError{Key: key}}
	}
	c, ok := p.(C)
	if !ok {
		return zero, &domain.ProviderError{
			Provider:  key,
			Operation: op,
			Err:       &domain.UnsupportedOperationError{Provider: key, Operation: op},
		}
	}
	return c, nil
}

func (f *Facade) attribute(key domain.ProviderKey, op domain.Operation, started time.Time, err error) error {
	if err == nil {
		f.logger.Debug("Request served",
			zap.Stringer("provider", key),
			zap.Stringer("operation", op),
			zap.Duration("execution_time", time.Since(started)))
		return nil
	}
	return &domain.ProviderError{Provider: key, Operation: op, Err: err}
}

func (f *Facade) GetQuote(ctx context.Context, ticker string, key domain.ProviderKey) (domain.Quote, error) {
	const op = domain.OpGetQuote
	p, err := lookup[domain.Quoter](f, key, op)
	if err != nil {
		return domain.Quote{}, err
	}
	started := time.Now()
	q, err := p.GetQuote(ctx, ticker)
	return q, f.attribute(key, op, started, err)
}

func (f *Facade) GetLatestPrice(ctx context.Context, ticker string, key domain.ProviderKey) (decimal.Decimal, error) {
	const op = domain.OpGetLatestPrice
	p, err := lookup[domain.LatestPricer](f, key, op)
	if err != nil {
		return decimal.Zero, err
	}
	started := time.Now()
	price, err := p.GetLatestPrice(ctx, ticker)
	return price, f.attribute(key, op, started, err)
}

func (f *Facade) GetOpenPrice(ctx context.Context, ticker string, key domain.ProviderKey) (decimal.Decimal, error) {
	const op = domain.OpGetOpenPrice
	p, err := lookup[domain.OpenPricer](f, key, op)
	if err != nil {
		return decimal.Zero, err
	}
	started := time.Now()
	price, err := p.GetOpenPrice(ctx, ticker)
	return price, f.attribute(key, op, started, err)
}

func (f *Facade) GetHistoricalDailyBars(ctx context.Context, ticker string, start, end time.Time, key domain.ProviderKey) ([]domain.Bar, error) {
	const op = domain.OpGetHistoricalDailyBars
	p, err := lookup[domain.DailyBarFetcher](f, key, op)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	bars, err := p.GetHistoricalDailyBars(ctx, ticker, start, end)
	if err != nil {
		return nil, f.attribute(key, op, started, err)
	}
	return bars, f.attribute(key, op, started, nil)
}

// GetMultiHistoricalDailyBars returns bars per upper-cased ticker over a
// named horizon such as 1mo or ytd.
func (f *Facade) GetMultiHistoricalDailyBars(ctx context.Context, tickers []string, horizon string, key domain.ProviderKey) (map[string][]domain.Bar, error) {
	const op = domain.OpGetMultiHistoricalBars
	p, err := lookup[domain.MultiBarFetcher](f, key, op)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	bars, err := p.GetMultiHistoricalBars(ctx, tickers, horizon)
	if err != nil {
		return nil, f.attribute(key, op, started, err)
	}
	return bars, f.attribute(key, op, started, nil)
}

func (f *Facade) GetMinuteBars(ctx context.Context, req domain.MinuteBarRequest, key domain.ProviderKey) ([]domain.Bar, error) {
	const op = domain.OpGetMinuteBars
	p, err := lookup[domain.MinuteBarFetcher](f, key, op)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	bars, err := p.GetMinuteBars(ctx, req)
	if err != nil {
		return nil, f.attribute(key, op, started, err)
	}
	return bars, f.attribute(key, op, started, nil)
}

func (f *Facade) GetOptionDates(ctx context.Context, ticker string, key domain.ProviderKey) ([]time.Time, error) {
	const op = domain.OpGetOptionExpirationDates
	p, err := lookup[domain.OptionDateLister](f, key, op)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	dates, err := p.GetOptionExpirationDates(ctx, ticker)
	if err != nil {
		return nil, f.attribute(key, op, started, err)
	}
	return dates, f.attribute(key, op, started, nil)
}

// GetOptionChain takes the raw filter strings ("call", "put", "in", "out" or
// empty) and rejects bad values before contacting the provider. The result
// keeps provider iteration order.
func (f *Facade) GetOptionChain(ctx context.Context, ticker string, expiry time.Time, callOrPut, inOrOut string, key domain.ProviderKey) ([]domain.OptionContract, error) {
	const op = domain.OpGetOptionChain
	p, err := lookup[domain.OptionChainFetcher](f, key, op)
	if err != nil {
		return nil, err
	}
	filter, err := chain.ParseFilter(callOrPut, inOrOut)
	if err != nil {
		return nil, &domain.ProviderError{Provider: key, Operation: op, Err: err}
	}
	started := time.Now()
	contracts, err := p.GetOptionChain(ctx, domain.OptionChainRequest{Ticker: ticker, Expiry: expiry, Filter: filter})
	if err != nil {
		return nil, f.attribute(key, op, started, err)
	}
	return contracts, f.attribute(key, op, started, nil)
}
