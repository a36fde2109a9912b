package ibkr

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/config"
	"github.com/igefined/generic-trader/internal/domain"
)

var Module = fx.Module("ibkr",
	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config, logger *zap.Logger) domain.Provider {
				return NewProvider(NewClient(cfg.IBKR.GatewayURL, cfg.IBKR.InsecureTLS), logger)
			},
			fx.ResultTags(`group:"providers"`),
		),
	),
)
