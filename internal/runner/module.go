package runner

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"

	aiservice "scout_bot/internal/modules/ai/service"
	"scout_bot/internal/modules/config"
	exchservice "scout_bot/internal/modules/exchange/service"
	riskservice "scout_bot/internal/modules/risk/service"
	"scout_bot/internal/storage/pg"
)

// Module связывает цикл с конкретными реализациями портов и запускает его.
func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(
				cfg *config.Config,
				exch *exchservice.Client,
				risk *riskservice.Manager,
				adviser *aiservice.Adapter,
				audit *pg.AuditRepo,
				pairs *pg.PairsRepo,
				notify Notifier,
				tracer opentracing.Tracer,
			) *Trader {
				return NewTrader(cfg, exch, exch, risk, adviser, audit, pairs, notify, tracer)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, t *Trader) {
			runCtx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := t.Bootstrap(ctx); err != nil {
						return err
					}
					go func() {
						defer close(done)
						t.Run(runCtx)
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					cancel()
					// дожидаемся выхода цикла
					select {
					case <-done:
					case <-ctx.Done():
					}
					return nil
				},
			})
		}),
	)
}
