package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/igefined/generic-trader/internal/domain"
)

// scriptedTransport delivers n messages, then fails or blocks until closed.
type scriptedTransport struct {
	messages  int
	failAfter error
	loginErr  error

	mu      sync.Mutex
	calls   []string
	read    int
	closed  chan struct{}
	closeMu sync.Once
}

func newScripted(messages int, failAfter error) *scriptedTransport {
	return &scriptedTransport{messages: messages, failAfter: failAfter, closed: make(chan struct{})}
}

func (s *scriptedTransport) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *scriptedTransport) Login(context.Context) error {
	s.record("login")
	return s.loginErr
}

func (s *scriptedTransport) Subscribe(_ context.Context, feedID string) error {
	s.record("subscribe:" + feedID)
	return nil
}

func (s *scriptedTransport) ReadOne(context.Context) (domain.StreamMessage, error) {
	if s.read < s.messages {
		s.read++
		return domain.StreamMessage{Service: "NASDAQ_BOOK", Command: fmt.Sprint(s.read)}, nil
	}
	if s.failAfter != nil {
		return domain.StreamMessage{}, s.failAfter
	}
	<-s.closed
	return domain.StreamMessage{}, errors.New("use of closed network connection")
}

func (s *scriptedTransport) Close() error {
	s.closeMu.Do(func() { close(s.closed) })
	return nil
}

func TestRunDeliversInOrderThenPropagatesFailure(t *testing.T) {
	readErr := errors.New("connection reset by peer")
	transport := newScripted(3, readErr)
	sub := NewSubscription(transport, zaptest.NewLogger(t))

	var got []string
	err := sub.Run(context.Background(), "SPY", HandlerFunc(func(_ context.Context, msg domain.StreamMessage) error {
		if sub.State() != Subscribed {
			t.Errorf("State() = %s while delivering", sub.State())
		}
		got = append(got, msg.Command)
		return nil
	}))

	if !errors.Is(err, readErr) {
		t.Fatalf("Run() error = %v, expected %v", err, readErr)
	}
	if len(got) != 3 || got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Errorf("delivered %v, expected [1 2 3]", got)
	}
	if transport.calls[0] != "login" || transport.calls[1] != "subscribe:SPY" {
		t.Errorf("calls = %v", transport.calls)
	}
	if sub.State() != Idle {
		t.Errorf("State() after Run = %s, expected idle", sub.State())
	}
}

func TestRunLoginFailure(t *testing.T) {
	transport := newScripted(0, nil)
	transport.loginErr = errors.New("LOGIN denied")
	sub := NewSubscription(transport, zaptest.NewLogger(t))

	var states []State
	sub.Observe(func(s State) { states = append(states, s) })

	err := sub.Run(context.Background(), "SPY", HandlerFunc(func(context.Context, domain.StreamMessage) error {
		t.Error("handler must not be called")
		return nil
	}))
	if !errors.Is(err, transport.loginErr) {
		t.Fatalf("Run() error = %v", err)
	}
	if len(states) != 2 || states[0] != Authenticating || states[1] != Idle {
		t.Errorf("states = %v", states)
	}
}

func TestRunCancelledReturnsNil(t *testing.T) {
	transport := newScripted(2, nil)
	sub := NewSubscription(transport, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	var delivered int
	done := make(chan error, 1)
	go func() {
		done <- sub.Run(ctx, "SPY", HandlerFunc(func(context.Context, domain.StreamMessage) error {
			delivered++
			if delivered == 2 {
				cancel()
			}
			return nil
		}))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, expected nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if delivered != 2 {
		t.Errorf("delivered %d, expected 2", delivered)
	}
}

func TestRunBlockedReadUnblockedByCancel(t *testing.T) {
	transport := newScripted(0, nil)
	sub := NewSubscription(transport, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	subscribed := make(chan struct{})
	sub.Observe(func(s State) {
		if s == Subscribed {
			close(subscribed)
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- sub.Run(ctx, "SPY", HandlerFunc(func(context.Context, domain.StreamMessage) error { return nil }))
	}()

	<-subscribed
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, expected nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("blocked read was not interrupted")
	}
}

func TestRunConcurrentIsBusy(t *testing.T) {
	transport := newScripted(0, nil)
	sub := NewSubscription(transport, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscribed := make(chan struct{})
	sub.Observe(func(s State) {
		if s == Subscribed {
			close(subscribed)
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- sub.Run(ctx, "SPY", HandlerFunc(func(context.Context, domain.StreamMessage) error { return nil }))
	}()
	<-subscribed

	err := sub.Run(context.Background(), "QQQ", HandlerFunc(func(context.Context, domain.StreamMessage) error { return nil }))
	if !errors.Is(err, domain.ErrStreamBusy) {
		t.Errorf("second Run() error = %v, expected ErrStreamBusy", err)
	}

	cancel()
	<-done
}

func TestRunHandlerErrorStopsLoop(t *testing.T) {
	transport := newScripted(5, nil)
	sub := NewSubscription(transport, zaptest.NewLogger(t))
	handlerErr := errors.New("nats: connection closed")

	var delivered int
	err := sub.Run(context.Background(), "SPY", HandlerFunc(func(context.Context, domain.StreamMessage) error {
		delivered++
		if delivered == 2 {
			return handlerErr
		}
		return nil
	}))
	if !errors.Is(err, handlerErr) {
		t.Errorf("Run() error = %v", err)
	}
	if delivered != 2 {
		t.Errorf("delivered %d, expected 2", delivered)
	}
}
