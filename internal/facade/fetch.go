package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/igefined/generic-trader/internal/domain"
)

// Request is the untyped parameter set for Fetch. Each operation reads only
// the fields it needs.
type Request struct {
	Ticker  string
	Tickers []string
	Start   time.Time
	End     time.Time
	Horizon string
	Expiry  time.Time

	CallOrPut string
	InOrOut   string

	Minute domain.MinuteBarRequest
}

// Fetch dispatches op by value. The result type follows the typed method for
// the same operation.
func (f *Facade) Fetch(ctx context.Context, op domain.Operation, key domain.ProviderKey, req Request) (any, error) {
	switch op {
	case domain.OpGetQuote:
		return f.GetQuote(ctx, req.Ticker, key)
	case domain.OpGetLatestPrice:
		return f.GetLatestPrice(ctx, req.Ticker, key)
	case domain.OpGetOpenPrice:
		return f.GetOpenPrice(ctx, req.Ticker, key)
	case domain.OpGetHistoricalDailyBars:
		return f.GetHistoricalDailyBars(ctx, req.Ticker, req.Start, req.End, key)
	case domain.OpGetMinuteBars:
		return f.GetMinuteBars(ctx, req.Minute, key)
	case domain.OpGetOptionExpirationDates:
		return f.GetOptionDates(ctx, req.Ticker, key)
	case domain.OpGetOptionChain:
		return f.GetOptionChain(ctx, req.Ticker, req.Expiry, req.CallOrPut, req.InOrOut, key)
	case domain.OpGetMultiHistoricalBars:
		return f.GetMultiHistoricalDailyBars(ctx, req.Tickers, req.Horizon, key)
	default:
		return nil, &domain.ProviderError{
			Provider:  key,
			Operation: op,
			Err:       fmt.Errorf("%w: operation %s", domain.ErrInvalidArgument, op),
		}
	}
}
