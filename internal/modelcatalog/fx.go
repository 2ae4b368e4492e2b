package modelcatalog

import "go.uber.org/fx"

var Module = fx.Module("modelcatalog",
	fx.Provide(Load),
)
