package stream

import (
	"context"

	"go.uber.org/fx"
)

const moduleName = "stream"

var Module = fx.Module(moduleName,
	fx.Provide(NewSubscription, NewService),
	fx.Invoke(func(lc fx.Lifecycle, service *Service) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return service.Start()
			},
			OnStop: func(ctx context.Context) error {
				return service.Stop(ctx)
			},
		})
	}),
)
