package yahoo

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/domain"
)

var Module = fx.Module("yahoo",
	fx.Provide(
		fx.Annotate(
			func(logger *zap.Logger) domain.Provider {
				return NewProvider(NewClient(), logger)
			},
			fx.ResultTags(`group:"providers"`),
		),
	),
)
