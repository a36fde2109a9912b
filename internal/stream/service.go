package stream

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/config"
)

// Service runs the configured subscription for the lifetime of the process.
// A failed subscription ends only the stream, not the process.
type Service struct {
	subscription *Subscription
	handler      Handler
	feedID       string
	logger       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Params struct {
	fx.In

	Config       *config.Config
	Subscription *Subscription
	Handler      Handler
	Logger       *zap.Logger
}

func NewService(params Params) *Service {
	return &Service{
		subscription: params.Subscription,
		handler:      params.Handler,
		feedID:       params.Config.Stream.FeedID,
		logger:       params.Logger.Named("stream-service"),
	}
}

func (s *Service) Start() error {
	s.logger.Info("Starting stream service", zap.String("feed", s.feedID))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.subscription.Run(ctx, s.feedID, s.handler); err != nil {
			s.logger.Error("Stream stopped", zap.String("feed", s.feedID), zap.Error(err))
			return
		}
		s.logger.Info("Stream stopped", zap.String("feed", s.feedID))
	}()

	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("Stopping stream service")

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
