package tdameritrade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/igefined/generic-trader/internal/domain"
	"github.com/igefined/generic-trader/internal/session"
)

// Transport is the subset of the broker REST API the adapter consumes.
type Transport interface {
	PriceHistory(ctx context.Context, symbol string, q PriceHistoryQuery) (PriceHistory, error)
	Quotes(ctx context.Context, symbol string) (map[string]QuoteEntry, error)
	OptionChain(ctx context.Context, symbol string, q ChainQuery) (OptionChain, error)
}

// Client is the REST transport. Every request borrows the current access
// token from the session source.
type Client struct {
	http     *resty.Client
	sessions session.Source
}

func NewClient(baseURL string, sessions session.Source) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json"),
		sessions: sessions,
	}
}

func (c *Client) PriceHistory(ctx context.Context, symbol string, q PriceHistoryQuery) (PriceHistory, error) {
	var out PriceHistory
	params := map[string]string{
		"periodType":            q.PeriodType,
		"frequencyType":         q.FrequencyType,
		"frequency":             strconv.Itoa(q.Frequency),
		"startDate":             strconv.FormatInt(q.Start.UnixMilli(), 10),
		"endDate":               strconv.FormatInt(q.End.UnixMilli(), 10),
		"needExtendedHoursData": strconv.FormatBool(q.ExtendedHours),
	}
	err := c.get(ctx, "/v1/marketdata/{symbol}/pricehistory", symbol, params, &out)
	return out, err
}

func (c *Client) Quotes(ctx context.Context, symbol string) (map[string]QuoteEntry, error) {
	var out map[string]QuoteEntry
	err := c.get(ctx, "/v1/marketdata/{symbol}/quotes", symbol, nil, &out)
	return out, err
}

func (c *Client) OptionChain(ctx context.Context, symbol string, q ChainQuery) (OptionChain, error) {
	var out OptionChain
	params := map[string]string{
		"symbol":        symbol,
		"contractType":  "ALL",
		"includeQuotes": "FALSE",
	}
	if !q.From.IsZero() {
		params["fromDate"] = q.From.Format(time.DateOnly)
	}
	if !q.To.IsZero() {
		params["toDate"] = q.To.Format(time.DateOnly)
	}
	err := c.get(ctx, "/v1/marketdata/chains", "", params, &out)
	return out, err
}

// UserPrincipals returns the streamer connection info for the stream login.
func (c *Client) UserPrincipals(ctx context.Context) (UserPrincipals, error) {
	var out UserPrincipals
	params := map[string]string{"fields": "streamerSubscriptionKeys,streamerConnectionInfo"}
	err := c.get(ctx, "/v1/userprincipals", "", params, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path, symbol string, params map[string]string, out any) error {
	s, err := c.sessions.Current(ctx)
	if err != nil {
		return err
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(s.AccessToken).
		SetQueryParams(params)
	if symbol != "" {
		req.SetPathParam("symbol", symbol)
	}

	resp, err := req.Get(path)
	if err != nil {
		return domain.TransportError("GET "+path, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return fmt.Errorf("GET %s: %w: access token rejected", path, domain.ErrSessionExpired)
	}
	if resp.IsError() {
		return domain.TransportError("GET "+path, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return domain.MalformedError("GET %s: %v", path, err)
	}
	return nil
}
