// Package stream runs a single order-book subscription: one stream login,
// one subscription, then messages delivered to a handler strictly in arrival
// order until the context is cancelled or the transport fails.
package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/domain"
)

// Transport is the streaming collaborator. ReadOne blocks until the next data
// message; Close unblocks it.
type Transport interface {
	Login(ctx context.Context) error
	Subscribe(ctx context.Context, feedID string) error
	ReadOne(ctx context.Context) (domain.StreamMessage, error)
	Close() error
}

type Handler interface {
	Handle(ctx context.Context, msg domain.StreamMessage) error
}

type HandlerFunc func(ctx context.Context, msg domain.StreamMessage) error

func (f HandlerFunc) Handle(ctx context.Context, msg domain.StreamMessage) error {
	return f(ctx, msg)
}

type State int32

const (
	Idle State = iota
	Authenticating
	Subscribed
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Subscribed:
		return "subscribed"
	default:
		return "idle"
	}
}

// Subscription owns one transport connection. Run may not be called
// concurrently; a second caller gets ErrStreamBusy.
type Subscription struct {
	transport Transport
	logger    *zap.Logger

	running atomic.Bool
	state   atomic.Int32

	mu        sync.Mutex
	observers []func(State)
}

func NewSubscription(transport Transport, logger *zap.Logger) *Subscription {
	return &Subscription{
		transport: transport,
		logger:    logger.Named("stream"),
	}
}

func (s *Subscription) State() State {
	return State(s.state.Load())
}

// Observe registers fn to be called on every state change.
func (s *Subscription) Observe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Subscription) setState(state State) {
	s.state.Store(int32(state))

	s.mu.Lock()
	observers := append([]func(State){}, s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

// Run logs in, subscribes to feedID and hands each message to handler. It
// returns nil when ctx is cancelled, otherwise the first transport or handler
// error. There is no reconnect.
func (s *Subscription) Run(ctx context.Context, feedID string, handler Handler) error {
	if !s.running.CompareAndSwap(false, true) {
		return domain.ErrStreamBusy
	}
	defer s.running.Store(false)
	defer s.setState(Idle)

	// Closing the transport is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() {
		_ = s.transport.Close()
	})
	defer func() {
		if stop() {
			_ = s.transport.Close()
		}
	}()

	s.setState(Authenticating)
	s.logger.Info("Logging in to stream")
	if err := s.transport.Login(ctx); err != nil {
		return s.exit(ctx, fmt.Errorf("stream login: %w", err))
	}

	if err := s.transport.Subscribe(ctx, feedID); err != nil {
		return s.exit(ctx, fmt.Errorf("subscribe %s: %w", feedID, err))
	}
	s.setState(Subscribed)
	s.logger.Info("Subscribed to feed", zap.String("feed", feedID))

	var delivered int
	for {
		if ctx.Err() != nil {
			s.logger.Info("Context cancelled, stopping stream", zap.Int("delivered", delivered))
			return nil
		}

		msg, err := s.transport.ReadOne(ctx)
		if err != nil {
			return s.exit(ctx, fmt.Errorf("read stream message: %w", err))
		}

		if err := handler.Handle(ctx, msg); err != nil {
			return fmt.Errorf("handle %s message: %w", msg.Service, err)
		}
		delivered++
	}
}

// exit turns errors caused by our own cancellation into a clean shutdown.
func (s *Subscription) exit(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.logger.Info("Context cancelled, stopping stream")
		return nil
	}
	s.logger.Error("Stream terminated", zap.Error(err))
	return err
}
