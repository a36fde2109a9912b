// Package health serves the standard gRPC health protocol. The stream service
// name reports SERVING only while the order-book subscription is live.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/igefined/generic-trader/internal/stream"
)

const StreamService = "generictrader.Stream"

type Server struct {
	addr   string
	server *grpc.Server
	health *health.Server
	logger *zap.Logger

	listener net.Listener
	done     chan struct{}
}

func NewServer(addr string, logger *zap.Logger) *Server {
	s := &Server{
		addr:   addr,
		server: grpc.NewServer(),
		health: health.NewServer(),
		logger: logger.Named("health"),
	}
	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	return s
}

// Watch ties the stream service status to the subscription state.
func (s *Server) Watch(sub *stream.Subscription) {
	s.setStream(sub.State())
	sub.Observe(s.setStream)
}

func (s *Server) setStream(state stream.State) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if state == stream.Subscribed {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(StreamService, status)
	s.logger.Debug("Stream health changed", zap.Stringer("state", state), zap.Stringer("status", status))
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("Health server failed", zap.Error(err))
		}
	}()

	s.logger.Info("Health server started", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.logger.Warn("Health server graceful stop timed out, forcing stop")
		s.server.Stop()
	}

	if s.done != nil {
		<-s.done
	}
	s.logger.Info("Health server stopped")
	return nil
}
