package robinhood

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/igefined/generic-trader/internal/domain"
	"github.com/igefined/generic-trader/internal/session"
)

type Transport interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	Fundamentals(ctx context.Context, symbol string) (Fundamentals, error)
	Instrument(ctx context.Context, symbol string) (Instrument, error)
	Chain(ctx context.Context, chainID string) (Chain, error)
	Historicals(ctx context.Context, symbol, span string) ([]Historical, error)
}

type Client struct {
	http     *resty.Client
	sessions session.Source
}

func NewClient(baseURL string, sessions session.Source) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(20*time.Second).
			SetHeader("Accept", "application/json"),
		sessions: sessions,
	}
}

func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	var out Quote
	err := c.get(ctx, "/quotes/"+symbol+"/", nil, &out)
	return out, err
}

func (c *Client) Fundamentals(ctx context.Context, symbol string) (Fundamentals, error) {
	var out Fundamentals
	err := c.get(ctx, "/fundamentals/"+symbol+"/", nil, &out)
	return out, err
}

func (c *Client) Instrument(ctx context.Context, symbol string) (Instrument, error) {
	var page instrumentPage
	if err := c.get(ctx, "/instruments/", map[string]string{"symbol": symbol}, &page); err != nil {
		return Instrument{}, err
	}
	if len(page.Results) == 0 {
		return Instrument{}, domain.MalformedError("no instrument for %s", symbol)
	}
	return page.Results[0], nil
}

func (c *Client) Chain(ctx context.Context, chainID string) (Chain, error) {
	var out Chain
	err := c.get(ctx, "/options/chains/"+chainID+"/", nil, &out)
	return out, err
}

// Historicals returns regular-session daily bars over span (week, month,
// 3month, year or 5year).
func (c *Client) Historicals(ctx context.Context, symbol, span string) ([]Historical, error) {
	var page historicalsPage
	if err := c.get(ctx, "/marketdata/historicals/", map[string]string{
		"symbols":  symbol,
		"interval": "day",
		"span":     span,
		"bounds":   "regular",
	}, &page); err != nil {
		return nil, err
	}
	for _, r := range page.Results {
		if r.Symbol == symbol {
			return r.Historicals, nil
		}
	}
	return nil, domain.MalformedError("no historicals for %s", symbol)
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	s, err := c.sessions.Current(ctx)
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(s.AccessToken).
		SetQueryParams(params).
		Get(path)
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
