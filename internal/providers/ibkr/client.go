package ibkr

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/igefined/generic-trader/internal/domain"
)

type Transport interface {
	Search(ctx context.Context, symbol string) ([]SecDef, error)
	Snapshot(ctx context.Context, conid ConID, fields []string) ([]Snapshot, error)
	History(ctx context.Context, conid ConID, period, bar string) (History, error)
}

// Client talks to a locally running Client Portal gateway, which holds the
// brokerage session itself.
type Client struct {
	http *resty.Client
}

func NewClient(gatewayURL string, insecureTLS bool) *Client {
	http := resty.New().
		SetBaseURL(gatewayURL).
		SetTimeout(20*time.Second).
		SetHeader("Accept", "application/json")
	if insecureTLS {
		// The gateway ships with a self-signed certificate.
		http.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}
	return &Client{http: http}
}

func (c *Client) Search(ctx context.Context, symbol string) ([]SecDef, error) {
	var out []SecDef
	err := c.get(ctx, "/iserver/secdef/search", map[string]string{"symbol": symbol}, &out)
	return out, err
}

func (c *Client) Snapshot(ctx context.Context, conid ConID, fields []string) ([]Snapshot, error) {
	var out []Snapshot
	err := c.get(ctx, "/iserver/marketdata/snapshot", map[string]string{
		"conids": conid.String(),
		"fields": strings.Join(fields, ","),
	}, &out)
	return out, err
}

func (c *Client) History(ctx context.Context, conid ConID, period, bar string) (History, error) {
	var out History
	err := c.get(ctx, "/iserver/marketdata/history", map[string]string{
		"conid":  conid.String(),
		"period": period,
		"bar":    bar,
	}, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return domain.TransportError("GET "+path, err)
	}
	if resp.IsError() {
		return domain.TransportError("GET "+path, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return domain.MalformedError("GET %s: %v", path, err)
	}
	return nil
}
