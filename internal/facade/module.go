package facade

import "go.uber.org/fx"

var Module = fx.Module("facade",
	fx.Provide(New),
)
