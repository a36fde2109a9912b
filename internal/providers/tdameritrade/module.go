package tdameritrade

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/config"
	"github.com/igefined/generic-trader/internal/domain"
	"github.com/igefined/generic-trader/internal/session"
	"github.com/igefined/generic-trader/internal/stream"
)

const moduleName = "td-ameritrade"

var Module = fx.Module(moduleName,
	fx.Provide(newSessionManager, newClient, fx.Private),
	fx.Provide(
		fx.Annotate(
			func(client *Client, logger *zap.Logger) domain.Provider {
				return NewProvider(client, logger)
			},
			fx.ResultTags(`group:"providers"`),
		),
		func(cfg *config.Config, client *Client, logger *zap.Logger) stream.Transport {
			return NewStreamTransport(client, cfg.TDAmeritrade.AccountID, cfg.Stream.QOSLevel, logger)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, manager *session.Manager) {
		lc.Append(fx.Hook{OnStart: manager.Start})
	}),
)

// newSessionManager picks the non-interactive login when a refresh token is
// configured and the browser flow otherwise.
func newSessionManager(cfg *config.Config, logger *zap.Logger) *session.Manager {
	td := cfg.TDAmeritrade
	clientID := td.APIKey + "@AMER.OAUTHAP"
	tokens := session.NewTokenClient(td.TokenURL, clientID, td.RedirectURI)

	var auth session.AuthProvider
	if td.RefreshToken != "" {
		auth = session.NewRefreshLogin(td.RefreshToken, td.AccountID, tokens)
	} else {
		auth = session.NewBrowserLogin(td.AuthURL, clientID, td.RedirectURI, td.AccountID,
			session.ChromeCapturer{Headless: td.BrowserHeadless}, tokens, logger)
	}

	return session.NewManager(moduleName, session.NewFileStore(td.TokenPath), auth, logger)
}

func newClient(cfg *config.Config, manager *session.Manager) *Client {
	return NewClient(cfg.TDAmeritrade.BaseURL, manager)
}
