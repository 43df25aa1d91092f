package intake

import (
	"referralpay/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("intake",
	fx.Provide(
		ProvideArchiver,
		NewQueue,
		NewService,
		httpapi.AsRoutes(NewHandler),
	),
)
