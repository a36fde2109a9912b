package yahoo

import (
	"context"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/options"
	"github.com/piquette/finance-go/quote"

	"github.com/igefined/generic-trader/internal/domain"
)

// Transport is the subset of the vendor library the adapter consumes.
type Transport interface {
	Quote(ctx context.Context, symbol string) (*finance.Quote, error)
	Chart(ctx context.Context, symbol string, q ChartQuery) ([]finance.ChartBar, error)
	ExpirationDates(ctx context.Context, symbol string) ([]int, error)
	Straddles(ctx context.Context, symbol string, expiry time.Time) ([]finance.Straddle, error)
}

// ChartQuery selects a bar range. IncludeExt adds pre and post market bars.
type ChartQuery struct {
	Start      time.Time
	End        time.Time
	Interval   datetime.Interval
	IncludeExt bool
}

// Client calls the vendor through finance-go, passing ctx on every request.
type Client struct{}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) Quote(ctx context.Context, symbol string) (*finance.Quote, error) {
	iter := quote.ListP(&quote.Params{
		Params:  finance.Params{Context: &ctx},
		Symbols: []string{symbol},
	})

	var q *finance.Quote
	for iter.Next() {
		if q == nil {
			q = iter.Quote()
		}
	}
	if err := iter.Err(); err != nil {
		return nil, domain.TransportError("quote "+symbol, err)
	}
	if q == nil {
		return nil, domain.MalformedError("no quote returned for %s", symbol)
	}
	return q, nil
}

func (c *Client) Chart(ctx context.Context, symbol string, q ChartQuery) ([]finance.ChartBar, error) {
	iter := chart.Get(&chart.Params{
		Params:     finance.Params{Context: &ctx},
		Symbol:     symbol,
		Start:      datetime.New(&q.Start),
		End:        datetime.New(&q.End),
		Interval:   q.Interval,
		IncludeExt: q.IncludeExt,
	})

	bars := make([]finance.ChartBar, 0)
	for iter.Next() {
		if b := iter.Bar(); b != nil {
			bars = append(bars, *b)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, domain.TransportError("chart "+symbol, err)
	}
	return bars, nil
}

func (c *Client) ExpirationDates(ctx context.Context, symbol string) ([]int, error) {
	iter := options.GetStraddleP(&options.Params{
		Params:           finance.Params{Context: &ctx},
		UnderlyingSymbol: symbol,
	})
	if err := iter.Err(); err != nil {
		return nil, domain.TransportError("options "+symbol, err)
	}

	meta, ok := iter.Iter.Meta().(*finance.OptionsMeta)
	if !ok || meta == nil {
		return nil, domain.MalformedError("options response for %s without metadata", symbol)
	}
	return meta.AllExpirationDates, nil
}

// Straddles returns the chain for one expiration, one entry per strike.
func (c *Client) Straddles(ctx context.Context, symbol string, expiry time.Time) ([]finance.Straddle, error) {
	iter := options.GetStraddleP(&options.Params{
		Params:           finance.Params{Context: &ctx},
		UnderlyingSymbol: symbol,
		Expiration:       datetime.New(&expiry),
	})

	straddles := make([]finance.Straddle, 0)
	for iter.Next() {
		if s := iter.Straddle(); s != nil {
			straddles = append(straddles, *s)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, domain.TransportError("options "+symbol, err)
	}
	return straddles, nil
}
