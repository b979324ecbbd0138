package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"scout_bot/internal/modules/ai"
	"scout_bot/internal/modules/config"
	"scout_bot/internal/modules/exchange"
	"scout_bot/internal/modules/health"
	"scout_bot/internal/modules/postgres"
	"scout_bot/internal/modules/risk"
	telegram "scout_bot/internal/modules/telegram_bot"
	"scout_bot/internal/runner"
	"scout_bot/pkg/logger"
	"scout_bot/pkg/tracing"
)

const serviceName = "scout_bot"

func main() {
	logger.SetServiceName(serviceName)
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	tracing.SetServiceName(serviceName)

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module,
		fx.Provide(newTracer),
		postgres.Module(),
		exchange.Module(),
		risk.Module(),
		ai.Module(),
		runner.Module(),
		telegram.Module(),
		health.Module(),
	)
	app.Run()
}
