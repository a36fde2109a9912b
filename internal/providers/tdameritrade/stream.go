package tdameritrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/domain"
	"github.com/igefined/generic-trader/internal/stream"
)

var _ stream.Transport = (*StreamTransport)(nil)

type streamRequest struct {
	Service    string            `json:"service"`
	Command    string            `json:"command"`
	RequestID  string            `json:"requestid"`
	Account    string            `json:"account"`
	Source     string            `json:"source"`
	Parameters map[string]string `json:"parameters"`
}

type streamEnvelope struct {
	Response []struct {
		Service   string `json:"service"`
		Command   string `json:"command"`
		RequestID string `json:"requestid"`
		Timestamp int64  `json:"timestamp"`
		Content   struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		} `json:"content"`
	} `json:"response"`
	Notify []json.RawMessage `json:"notify"`
	Data   []struct {
		Service   string          `json:"service"`
		Command   string          `json:"command"`
		Timestamp int64           `json:"timestamp"`
		Content   json.RawMessage `json:"content"`
	} `json:"data"`
}

type principalsSource interface {
	UserPrincipals(ctx context.Context) (UserPrincipals, error)
}

// StreamTransport speaks the broker's websocket streamer protocol. It holds
// one connection at a time and is driven by a single stream.Subscription.
type StreamTransport struct {
	principals principalsSource
	accountID  string
	qosLevel   int
	dialer     *websocket.Dialer
	handshake  time.Duration
	socketURL  func(host string) string
	logger     *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	account   string
	source    string
	requestID int
	pending   []domain.StreamMessage
}

// NewStreamTransport logs in as accountID, or as the first account on the
// user principals when accountID is empty.
func NewStreamTransport(principals principalsSource, accountID string, qosLevel int, logger *zap.Logger) *StreamTransport {
	return &StreamTransport{
		principals: principals,
		accountID:  accountID,
		qosLevel:   qosLevel,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handshake:  30 * time.Second,
		socketURL:  func(host string) string { return "wss://" + host + "/ws" },
		logger:     logger.Named("td-stream"),
	}
}

// Login dials the streamer, completes ADMIN/LOGIN and negotiates the QOS level.
func (t *StreamTransport) Login(ctx context.Context) error {
	p, err := t.principals.UserPrincipals(ctx)
	if err != nil {
		return fmt.Errorf("fetch user principals: %w", err)
	}
	acct, err := t.streamAccount(p)
	if err != nil {
		return err
	}

	conn, _, err := t.dialer.DialContext(ctx, t.socketURL(p.StreamerInfo.StreamerSocketURL), nil)
	if err != nil {
		return domain.TransportError("dial streamer", err)
	}

	// A cancel that fired before conn was stored found nothing to close.
	t.mu.Lock()
	if err := ctx.Err(); err != nil {
		t.mu.Unlock()
		_ = conn.Close()
		return err
	}
	t.conn = conn
	t.account = acct.AccountID
	t.source = p.StreamerInfo.AppID
	t.pending = nil
	t.mu.Unlock()

	credential, err := loginCredential(p, acct)
	if err != nil {
		return err
	}

	if err := conn.SetReadDeadline(time.Now().Add(t.handshake)); err != nil {
		return domain.TransportError("set handshake deadline", err)
	}
	if err := t.call(ctx, "ADMIN", "LOGIN", map[string]string{
		"credential": credential,
		"token":      p.StreamerInfo.Token,
		"version":    "1.0",
	}); err != nil {
		return err
	}
	if err := t.call(ctx, "ADMIN", "QOS", map[string]string{
		"qoslevel": strconv.Itoa(t.qosLevel),
	}); err != nil {
		return err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return domain.TransportError("clear handshake deadline", err)
	}
	return nil
}

func (t *StreamTransport) streamAccount(p UserPrincipals) (Account, error) {
	if len(p.Accounts) == 0 {
		return Account{}, domain.MalformedError("user principals without accounts")
	}
	if t.accountID == "" {
		return p.Accounts[0], nil
	}
	for _, a := range p.Accounts {
		if a.AccountID == t.accountID {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: account %s not found in user principals", domain.ErrAuthenticationFailed, t.accountID)
}

// Subscribe requests the NASDAQ level two book for feedID.
func (t *StreamTransport) Subscribe(ctx context.Context, feedID string) error {
	return t.call(ctx, "NASDAQ_BOOK", "SUBS", map[string]string{
		"keys":   domain.NormalizeTicker(feedID),
		"fields": "0,1,2,3",
	})
}

// ReadOne returns the next data message, skipping heartbeats and responses.
func (t *StreamTransport) ReadOne(ctx context.Context) (domain.StreamMessage, error) {
	for {
		t.mu.Lock()
		if len(t.pending) > 0 {
			msg := t.pending[0]
			t.pending = t.pending[1:]
			t.mu.Unlock()
			return msg, nil
		}
		t.mu.Unlock()

		env, err := t.readEnvelope(ctx)
		if err != nil {
			return domain.StreamMessage{}, err
		}

		for _, r := range env.Response {
			t.logger.Debug("Stream response",
				zap.String("service", r.Service),
				zap.String("command", r.Command),
				zap.Int("code", r.Content.Code))
		}

		t.queue(env)
	}
}

func (t *StreamTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// call sends one request and waits for its response, queueing any data
// frames that arrive in between.
func (t *StreamTransport) call(ctx context.Context, service, command string, params map[string]string) error {
	t.mu.Lock()
	conn := t.conn
	t.requestID++
	req := streamRequest{
		Service:    service,
		Command:    command,
		RequestID:  strconv.Itoa(t.requestID),
		Account:    t.account,
		Source:     t.source,
		Parameters: params,
	}
	t.mu.Unlock()

	if conn == nil {
		return errors.New("stream connection not established")
	}

	payload, err := json.Marshal(map[string][]streamRequest{"requests": {req}})
	if err != nil {
		return fmt.Errorf("marshal %s %s request: %w", service, command, err)
	}

	t.logger.Debug("Sending stream request", zap.String("service", service), zap.String("command", command))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return domain.TransportError(fmt.Sprintf("send %s %s", service, command), err)
	}

	for {
		env, err := t.readEnvelope(ctx)
		if err != nil {
			return err
		}

		t.queue(env)

		for _, r := range env.Response {
			if r.RequestID != req.RequestID {
				continue
			}
			if r.Content.Code != 0 {
				if command == "LOGIN" {
					return fmt.Errorf("%w: stream login: %s", domain.ErrAuthenticationFailed, r.Content.Msg)
				}
				return fmt.Errorf("%s %s rejected with code %d: %s", service, command, r.Content.Code, r.Content.Msg)
			}
			return nil
		}
	}
}

func (t *StreamTransport) queue(env streamEnvelope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range env.Data {
		t.pending = append(t.pending, domain.StreamMessage{
			Service:   d.Service,
			Command:   d.Command,
			Timestamp: time.UnixMilli(d.Timestamp).UTC(),
			Content:   d.Content,
		})
	}
}

func (t *StreamTransport) readEnvelope(ctx context.Context) (streamEnvelope, error) {
	var env streamEnvelope

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		if ctx.Err() != nil {
			return env, ctx.Err()
		}
		return env, errors.New("stream connection not established")
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		return env, domain.TransportError("read stream frame", err)
	}
	if err := json.Unmarshal(message, &env); err != nil {
		return env, domain.MalformedError("stream frame: %v", err)
	}
	return env, nil
}

func loginCredential(p UserPrincipals, acct Account) (string, error) {
	ts, err := time.Parse("2006-01-02T15:04:05-0700", p.StreamerInfo.TokenTimestamp)
	if err != nil {
		return "", domain.MalformedError("streamer token timestamp %q: %v", p.StreamerInfo.TokenTimestamp, err)
	}

	return url.Values{
		"userid":      {acct.AccountID},
		"token":       {p.StreamerInfo.Token},
		"company":     {acct.Company},
		"segment":     {acct.Segment},
		"cddomain":    {acct.AccountCdDomainID},
		"usergroup":   {p.StreamerInfo.UserGroup},
		"accesslevel": {p.StreamerInfo.AccessLevel},
		"authorized":  {"Y"},
		"timestamp":   {strconv.FormatInt(ts.UnixMilli(), 10)},
		"appid":       {p.StreamerInfo.AppID},
		"acl":         {p.StreamerInfo.ACL},
	}.Encode(), nil
}
