package health

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/config"
	"github.com/igefined/generic-trader/internal/stream"
)

type watchParams struct {
	fx.In

	Lifecycle    fx.Lifecycle
	Server       *Server
	Subscription *stream.Subscription `optional:"true"`
}

var Module = fx.Module("health",
	fx.Provide(func(cfg *config.Config, logger *zap.Logger) *Server {
		return NewServer(cfg.Health.Addr, logger)
	}),
	fx.Invoke(func(p watchParams) {
		if p.Subscription != nil {
			p.Server.Watch(p.Subscription)
		}
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return p.Server.Start()
			},
			OnStop: p.Server.Stop,
		})
	}),
)
