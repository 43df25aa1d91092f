package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"referralpay/pkg/config"
	"referralpay/pkg/db"
	"referralpay/pkg/gen"
	"referralpay/pkg/hashistack/secretmanager"
	"referralpay/pkg/logger"
	"referralpay/services/bootstrap"
	"referralpay/services/intake"
	"referralpay/services/ledger"
)

// Migrates the schema, seeds the initial deposit threshold and the admin
// account, then exits.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Source(),
		logger.Module,
		db.Module,
		gen.Module,
		ledger.Module,
		fx.Provide(intake.NewQueue),
		bootstrap.Module,
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
