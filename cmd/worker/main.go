package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"referralpay/pkg/asynq"
	"referralpay/pkg/config"
	"referralpay/pkg/db"
	"referralpay/pkg/gen"
	"referralpay/pkg/hashistack/secretmanager"
	"referralpay/pkg/health"
	"referralpay/pkg/httpapi"
	"referralpay/pkg/lock"
	"referralpay/pkg/logger"
	"referralpay/pkg/otelcol"
	"referralpay/pkg/profiling"
	"referralpay/pkg/redis"
	"referralpay/pkg/server"
	"referralpay/pkg/task"
	"referralpay/services/intake"
	"referralpay/services/ledger"
	"referralpay/services/reconciler"
	"referralpay/services/referral"
)

// The worker drains the callback queue. It serves only health and metrics
// over HTTP.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Source(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		lock.Module,
		task.Client,
		asynq.Server,
		ledger.Module,
		referral.Module,
		fx.Provide(intake.ProvideArchiver, intake.NewQueue),
		reconciler.Module,
		httpapi.Module,
		health.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
