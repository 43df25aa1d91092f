package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("bootstrap",
	fx.Provide(
		NewService,
	),
	fx.Invoke(runBootstrap),
)

// runBootstrap runs once on start and then stops the application.
func runBootstrap(lc fx.Lifecycle, shutdowner fx.Shutdowner, b *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := b.Run(ctx); err != nil {
				zap.L().Error("[bootstrap] failed", zap.Error(err))
				return err
			}
			return shutdowner.Shutdown()
		},
	})
}
