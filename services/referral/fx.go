package referral

import "go.uber.org/fx"

var Module = fx.Module("referral",
	fx.Provide(NewEngine),
)
