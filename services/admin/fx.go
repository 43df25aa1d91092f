package admin

import (
	"referralpay/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("admin",
	fx.Provide(
		NewService,
		httpapi.AsRoutes(NewHandler),
	),
)
