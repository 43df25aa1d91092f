package payment

import (
	"referralpay/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		NewService,
		httpapi.AsRoutes(NewHandler),
	),
)
