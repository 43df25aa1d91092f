package account

import (
	"referralpay/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("account",
	fx.Provide(
		NewService,
		httpapi.AsRoutes(NewHandler),
	),
)
