package lp

import "go.uber.org/fx"

var Module = fx.Module("relay-lp",
	fx.Provide(NewLPHandler),
)
