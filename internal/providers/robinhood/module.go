package robinhood

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/config"
	"github.com/igefined/generic-trader/internal/domain"
	"github.com/igefined/generic-trader/internal/session"
)

const moduleName = "robinhood"

var Module = fx.Module(moduleName,
	fx.Provide(newSessionManager, fx.Private),
	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config, manager *session.Manager, logger *zap.Logger) domain.Provider {
				return NewProvider(NewClient(cfg.Robinhood.BaseURL, manager), logger)
			},
			fx.ResultTags(`group:"providers"`),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, manager *session.Manager) {
		lc.Append(fx.Hook{OnStart: manager.Start})
	}),
)

func newSessionManager(cfg *config.Config, logger *zap.Logger) *session.Manager {
	rh := cfg.Robinhood
	login := NewPasswordLogin(rh.BaseURL, rh.Username, rh.Password, rh.TOTPSecret)
	return session.NewManager(moduleName, session.NewFileStore(rh.TokenPath), login, logger)
}
