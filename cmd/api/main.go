package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"referralpay/pkg/auth"
	"referralpay/pkg/config"
	"referralpay/pkg/db"
	"referralpay/pkg/featureflags"
	"referralpay/pkg/gen"
	"referralpay/pkg/hashistack/secretmanager"
	"referralpay/pkg/hashistack/servicediscover"
	"referralpay/pkg/health"
	"referralpay/pkg/httpapi"
	"referralpay/pkg/logger"
	"referralpay/pkg/middleware"
	"referralpay/pkg/otelcol"
	"referralpay/pkg/policy"
	"referralpay/pkg/profiling"
	"referralpay/pkg/redis"
	"referralpay/pkg/sequence"
	"referralpay/pkg/server"
	"referralpay/pkg/task"
	"referralpay/services/account"
	"referralpay/services/admin"
	"referralpay/services/gateway"
	"referralpay/services/intake"
	"referralpay/services/ledger"
	"referralpay/services/payment"
)

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
		task.Client,
		sequence.Module,
		auth.Module,
		policy.Module,
		middleware.Module,
		featureflags.Module,
		gateway.Module,
		ledger.Module,
		intake.Module,
		account.Module,
		payment.Module,
		admin.Module,
		httpapi.Module,
		health.Module,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		servicediscover.Module,
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
