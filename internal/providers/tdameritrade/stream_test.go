package tdameritrade

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/igefined/generic-trader/internal/domain"
)

type principalsStub struct {
	principals UserPrincipals
}

func (p principalsStub) UserPrincipals(context.Context) (UserPrincipals, error) {
	return p.principals, nil
}

type wireRequests struct {
	Requests []streamRequest `json:"requests"`
}

// streamerServer acknowledges every request, rejecting LOGIN when loginCode
// is non-zero, and pushes book frames after SUBS.
func streamerServer(t *testing.T, loginCode int, frames []string, seen chan<- streamRequest) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var reqs wireRequests
			if err := json.Unmarshal(data, &reqs); err != nil {
				t.Errorf("bad request frame: %v", err)
				return
			}
			req := reqs.Requests[0]
			seen <- req

			code := 0
			if req.Command == "LOGIN" {
				code = loginCode
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"notify":[{"heartbeat":"1710345600000"}]}`))
			resp := `{"response":[{"service":"` + req.Service + `","command":"` + req.Command +
				`","requestid":"` + req.RequestID + `","timestamp":1710345600000,"content":{"code":` +
				strconv.Itoa(code) + `,"msg":"ok"}}]}`
			_ = conn.WriteMessage(websocket.TextMessage, []byte(resp))

			if req.Command == "SUBS" {
				for _, f := range frames {
					_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
				}
			}
		}
	}))
}

func testPrincipals(host string) UserPrincipals {
	return UserPrincipals{
		StreamerInfo: StreamerInfo{
			StreamerSocketURL: host,
			Token:             "stream-token",
			TokenTimestamp:    "2024-03-13T16:00:00+0000",
			UserGroup:         "ACCT",
			AccessLevel:       "ACCT",
			ACL:               "AKBR",
			AppID:             "app",
		},
		Accounts: []Account{{AccountID: "123", Company: "AMER", Segment: "AMER", AccountCdDomainID: "A000"}},
	}
}

func newTestStream(t *testing.T, srv *httptest.Server) *StreamTransport {
	host := strings.TrimPrefix(srv.URL, "http://")
	st := NewStreamTransport(principalsStub{testPrincipals(host)}, "", 0, zaptest.NewLogger(t))
	st.socketURL = func(h string) string { return "ws://" + h }
	return st
}

const bookFrame = `{"data":[{"service":"NASDAQ_BOOK","command":"SUBS","timestamp":1710345601000,"content":[{"key":"SPY","1":1710345601000,"2":[{"0":510.1,"1":300,"2":2}],"3":[{"0":510.2,"1":200,"2":1},{"0":0,"1":0,"2":0}]}]}]}`

func TestStreamLoginSubscribeRead(t *testing.T) {
	seen := make(chan streamRequest, 8)
	srv := streamerServer(t, 0, []string{bookFrame, bookFrame}, seen)
	defer srv.Close()

	st := newTestStream(t, srv)
	defer st.Close()
	ctx := context.Background()

	if err := st.Login(ctx); err != nil {
		t.Fatalf("Login() unexpected error: %v", err)
	}
	if err := st.Subscribe(ctx, "spy"); err != nil {
		t.Fatalf("Subscribe() unexpected error: %v", err)
	}

	login, qos, subs := <-seen, <-seen, <-seen
	if login.Service != "ADMIN" || login.Command != "LOGIN" || login.Account != "123" || login.Parameters["token"] != "stream-token" {
		t.Errorf("login request = %+v", login)
	}
	if !strings.Contains(login.Parameters["credential"], "timestamp=1710345600000") {
		t.Errorf("credential = %q", login.Parameters["credential"])
	}
	if qos.Command != "QOS" || qos.Parameters["qoslevel"] != "0" {
		t.Errorf("qos request = %+v", qos)
	}
	if subs.Service != "NASDAQ_BOOK" || subs.Parameters["keys"] != "SPY" {
		t.Errorf("subs request = %+v", subs)
	}

	for i := 0; i < 2; i++ {
		msg, err := st.ReadOne(ctx)
		if err != nil {
			t.Fatalf("ReadOne() unexpected error: %v", err)
		}
		if msg.Service != "NASDAQ_BOOK" {
			t.Errorf("message service = %s", msg.Service)
		}
		books, err := DecodeBook(msg)
		if err != nil {
			t.Fatalf("DecodeBook() unexpected error: %v", err)
		}
		if len(books) != 1 || books[0].Symbol != "SPY" || len(books[0].Bids) != 1 || len(books[0].Asks) != 1 {
			t.Errorf("books = %+v", books)
		}
		if books[0].Bids[0].Volume != 300 || books[0].Asks[0].Price.String() != "510.2" {
			t.Errorf("levels = %+v / %+v", books[0].Bids, books[0].Asks)
		}
	}
}

func TestStreamLoginRejected(t *testing.T) {
	seen := make(chan streamRequest, 8)
	srv := streamerServer(t, 3, nil, seen)
	defer srv.Close()

	st := newTestStream(t, srv)
	defer st.Close()

	err := st.Login(context.Background())
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Errorf("Login() error = %v, expected ErrAuthenticationFailed", err)
	}
}

func TestStreamReadAfterCloseFails(t *testing.T) {
	seen := make(chan streamRequest, 8)
	srv := streamerServer(t, 0, nil, seen)
	defer srv.Close()

	st := newTestStream(t, srv)
	if err := st.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := st.ReadOne(context.Background())
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	_ = st.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("ReadOne() after Close should fail")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ReadOne() not unblocked by Close")
	}
}

func TestStreamLoginAccountSelection(t *testing.T) {
	tests := []struct {
		name      string
		accountID string
		expected  string
		err       error
	}{
		{name: "first account by default", accountID: "", expected: "123"},
		{name: "configured account", accountID: "456", expected: "456"},
		{name: "configured account missing", accountID: "789", err: domain.ErrAuthenticationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(chan streamRequest, 8)
			srv := streamerServer(t, 0, nil, seen)
			defer srv.Close()

			host := strings.TrimPrefix(srv.URL, "http://")
			p := testPrincipals(host)
			p.Accounts = append(p.Accounts, Account{AccountID: "456", Company: "AMER", Segment: "AMER", AccountCdDomainID: "A001"})
			st := NewStreamTransport(principalsStub{p}, tt.accountID, 0, zaptest.NewLogger(t))
			st.socketURL = func(h string) string { return "ws://" + h }
			defer st.Close()

			err := st.Login(context.Background())
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("Login() error = %v, expected %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() unexpected error: %v", err)
			}
			login := <-seen
			if login.Account != tt.expected {
				t.Errorf("login account = %s, expected %s", login.Account, tt.expected)
			}
			if !strings.Contains(login.Parameters["credential"], "userid="+tt.expected) {
				t.Errorf("credential = %q", login.Parameters["credential"])
			}
		})
	}
}

// silentServer runs beforeUpgrade, upgrades the connection and never answers.
func silentServer(t *testing.T, beforeUpgrade func()) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		beforeUpgrade()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestStreamLoginDoesNotHang(t *testing.T) {
	tests := []struct {
		name   string
		cancel bool
	}{
		{name: "context cancelled during dial", cancel: true},
		{name: "streamer never answers", cancel: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			srv := silentServer(t, func() {
				if tt.cancel {
					cancel()
				}
			})
			defer srv.Close()

			st := newTestStream(t, srv)
			st.handshake = 200 * time.Millisecond
			defer st.Close()

			done := make(chan error, 1)
			go func() { done <- st.Login(ctx) }()

			select {
			case err := <-done:
				if err == nil {
					t.Error("Login() expected an error")
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Login() did not return")
			}
		})
	}
}
