package sink

import (
	"context"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/config"
	"github.com/igefined/generic-trader/internal/providers/tdameritrade"
	"github.com/igefined/generic-trader/internal/stream"
)

const handlersGroup = `group:"sinks"`

type chainParams struct {
	fx.In

	Handlers []stream.Handler `group:"sinks"`
}

// Module provides the stream.Handler used by the stream service: the book
// log plus every other handler in the sinks group.
var Module = fx.Module("sink",
	fx.Provide(
		fx.Annotate(
			func(logger *zap.Logger) stream.Handler {
				return NewLogger(tdameritrade.DecodeBook, logger)
			},
			fx.ResultTags(handlersGroup),
		),
		func(lc fx.Lifecycle, params chainParams) stream.Handler {
			chain := Chain(params.Handlers)
			lc.Append(fx.Hook{OnStop: func(context.Context) error { return chain.Close() }})
			return chain
		},
	),
)

// NATSModule adds the NATS publisher to the sinks group.
var NATSModule = fx.Module("sink-nats",
	fx.Provide(
		fx.Private,
		func(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
			conn, err := Connect(cfg.NATS, logger)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{OnStop: func(context.Context) error { return conn.Drain() }})
			return conn, nil
		},
	),
	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config, conn *nats.Conn, logger *zap.Logger) stream.Handler {
				return NewNATSPublisher(conn, cfg.NATS.Subject, cfg.Stream.FeedID, logger)
			},
			fx.ResultTags(handlersGroup),
		),
	),
)
