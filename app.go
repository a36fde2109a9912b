package main

import (
	"time"

	"go.uber.org/fx"

	"github.com/igefined/generic-trader/pkg/logger"

	"github.com/igefined/generic-trader/internal/config"
	"github.com/igefined/generic-trader/internal/facade"
	"github.com/igefined/generic-trader/internal/health"
	"github.com/igefined/generic-trader/internal/providers/ibkr"
	"github.com/igefined/generic-trader/internal/providers/robinhood"
	"github.com/igefined/generic-trader/internal/providers/tdameritrade"
	"github.com/igefined/generic-trader/internal/providers/yahoo"
	"github.com/igefined/generic-trader/internal/sink"
	"github.com/igefined/generic-trader/internal/stream"
)

// The interactive browser login may wait several minutes for a human.
const startTimeout = 6 * time.Minute

// options composes the application from the enabled parts of cfg. Module
// order is hook order: provider sessions start before the stream.
func options(cfg *config.Config) fx.Option {
	opts := []fx.Option{
		fx.Supply(cfg),
		fx.StartTimeout(startTimeout),
		logger.Module,
	}

	// Provider modules
	if cfg.TDAmeritrade.Enabled {
		opts = append(opts, tdameritrade.Module)
	}
	if cfg.Robinhood.Enabled {
		opts = append(opts, robinhood.Module)
	}
	if cfg.Yahoo.Enabled {
		opts = append(opts, yahoo.Module)
	}
	if cfg.IBKR.Enabled {
		opts = append(opts, ibkr.Module)
	}

	opts = append(opts,
		facade.Module,
		// Build the registry at startup so a bad provider set fails fast.
		fx.Invoke(func(*facade.Facade) {}),
		health.Module,
	)

	if cfg.Stream.Enabled {
		opts = append(opts, sink.Module)
		if cfg.NATS.URL != "" {
			opts = append(opts, sink.NATSModule)
		}
		opts = append(opts, stream.Module)
	}

	return fx.Options(opts...)
}
