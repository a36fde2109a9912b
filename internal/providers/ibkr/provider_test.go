package ibkr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/igefined/generic-trader/internal/domain"
)

type gateway struct {
	snapshots []string
	history   string

	snapshotCalls int
	period        string
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/iserver/secdef/search":
		fmt.Fprintf(w, `[{"conid":"265598","symbol":%q,"companyName":"APPLE INC"}]`, r.URL.Query().Get("symbol"))
	case "/iserver/marketdata/snapshot":
		i := min(g.snapshotCalls, len(g.snapshots)-1)
		g.snapshotCalls++
		fmt.Fprint(w, g.snapshots[i])
	case "/iserver/marketdata/history":
		g.period = r.URL.Query().Get("period")
		fmt.Fprint(w, g.history)
	default:
		http.NotFound(w, r)
	}
}

func newTestProvider(t *testing.T, g *gateway) *Provider {
	t.Helper()
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)

	p := NewProvider(NewClient(srv.URL, false), zaptest.NewLogger(t))
	p.backoff = time.Millisecond
	p.now = func() time.Time { return time.Date(2024, time.March, 15, 20, 0, 0, 0, time.UTC) }
	return p
}

func TestGetQuoteRetriesUntilFieldsArrive(t *testing.T) {
	g := &gateway{snapshots: []string{
		`[{"conid":265598}]`,
		`[{"conid":265598,"31":"C171.05","7295":"169.90","_updated":1710532800000}]`,
	}}
	p := newTestProvider(t, g)

	q, err := p.GetQuote(context.Background(), " aapl ")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.Ticker != "AAPL" || q.LastPrice.String() != "171.05" || q.OpenPrice.String() != "169.9" {
		t.Errorf("quote = %+v", q)
	}
	if g.snapshotCalls != 2 {
		t.Errorf("snapshot calls = %d, want 2", g.snapshotCalls)
	}
	if !q.AsOf.Equal(time.UnixMilli(1710532800000)) {
		t.Errorf("as of = %s", q.AsOf)
	}
}

func TestGetQuoteGivesUp(t *testing.T) {
	g := &gateway{snapshots: []string{`[{"conid":265598}]`}}
	p := newTestProvider(t, g)

	_, err := p.GetLatestPrice(context.Background(), "AAPL")
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("err = %v, want malformed response", err)
	}
	if g.snapshotCalls != snapshotAttempts {
		t.Errorf("snapshot calls = %d, want %d", g.snapshotCalls, snapshotAttempts)
	}
}

func TestGetOpenPriceMissing(t *testing.T) {
	g := &gateway{snapshots: []string{`[{"conid":265598,"31":"171.05"}]`}}
	p := newTestProvider(t, g)

	if _, err := p.GetOpenPrice(context.Background(), "AAPL"); !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("err = %v, want malformed response", err)
	}
}

func TestGetHistoricalDailyBars(t *testing.T) {
	day := func(d int) int64 {
		return time.Date(2024, time.March, d, 13, 30, 0, 0, time.UTC).UnixMilli()
	}
	g := &gateway{history: fmt.Sprintf(`{"symbol":"AAPL","data":[
		{"o":170,"h":172,"l":169,"c":171,"v":1000,"t":%d},
		{"o":171,"h":173,"l":170,"c":172,"v":1100.0,"t":%d},
		{"o":172,"h":174,"l":171,"c":173,"v":1200,"t":%d},
		{"o":173,"h":175,"l":172,"c":174,"v":1300,"t":%d}
	]}`, day(11), day(12), day(13), day(14))}
	p := newTestProvider(t, g)

	start := time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC)
	bars, err := p.GetHistoricalDailyBars(context.Background(), "AAPL", start, end)
	if err != nil {
		t.Fatalf("GetHistoricalDailyBars: %v", err)
	}

	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if !bars[0].Date.Equal(start) || !bars[1].Date.Equal(end) {
		t.Errorf("dates = %s, %s", bars[0].Date, bars[1].Date)
	}
	if bars[0].Volume != 1100 {
		t.Errorf("volume = %d", bars[0].Volume)
	}
	if g.period != "5d" {
		t.Errorf("period = %q, want 5d", g.period)
	}
}

func TestGetHistoricalDailyBarsErrors(t *testing.T) {
	at := time.Date(2024, time.March, 13, 13, 30, 0, 0, time.UTC).UnixMilli()
	start := time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		history string
		start   time.Time
		end     time.Time
		want    error
		fetched bool
	}{
		{name: "inverted range", start: start, end: start.AddDate(0, 0, -1), want: domain.ErrInvalidArgument},
		{
			name:  "start after now",
			start: time.Date(2024, time.March, 18, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2024, time.March, 19, 0, 0, 0, 0, time.UTC),
			want:  domain.ErrInvalidArgument,
		},
		{
			name:    "bar without close",
			history: fmt.Sprintf(`{"data":[{"o":170,"h":172,"l":169,"v":1000,"t":%d}]}`, at),
			start:   start,
			end:     start,
			want:    domain.ErrMalformedResponse,
			fetched: true,
		},
		{
			name:    "bar with null open",
			history: fmt.Sprintf(`{"data":[{"o":null,"h":172,"l":169,"c":171,"v":1000,"t":%d}]}`, at),
			start:   start,
			end:     start,
			want:    domain.ErrMalformedResponse,
			fetched: true,
		},
		{
			name:    "bar without time",
			history: `{"data":[{"o":170,"h":172,"l":169,"c":171,"v":1000}]}`,
			start:   start,
			end:     start,
			want:    domain.ErrMalformedResponse,
			fetched: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &gateway{history: tt.history}
			p := newTestProvider(t, g)

			_, err := p.GetHistoricalDailyBars(context.Background(), "AAPL", tt.start, tt.end)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if fetched := g.period != ""; fetched != tt.fetched {
				t.Errorf("history fetched = %v, want %v", fetched, tt.fetched)
			}
		})
	}
}

func TestGatewayErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	p := NewProvider(NewClient(srv.URL, true), zaptest.NewLogger(t))

	if _, err := p.GetQuote(context.Background(), "AAPL"); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("err = %v, want transport error", err)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"171.05", "171.05", true},
		{"C171.05", "171.05", true},
		{"H12", "12", true},
		{"n/a", "", false},
	}
	for _, tt := range tests {
		got, err := parsePrice(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parsePrice(%q) err = %v", tt.in, err)
			continue
		}
		if tt.ok && got.String() != tt.want {
			t.Errorf("parsePrice(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
