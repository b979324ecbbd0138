package risk

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"

	"scout_bot/internal/modules/config"
	"scout_bot/internal/modules/risk/service"
	"scout_bot/internal/storage/pg"
	"scout_bot/pkg/logger"
)

// Module поднимает риск-менеджера и крон на границу торгового дня.
func Module() fx.Option {
	return fx.Module("risk",
		fx.Provide(
			func(cfg *config.Config, states *pg.RiskStateRepo, events *pg.RiskEventsRepo) *service.Manager {
				return service.NewManager(cfg.MaxDailyLossPct, states, events)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, m *service.Manager) {
			c := cron.New()
			// граница дня фиксируется и кроном, и лениво в самом CheckAndUpdate:
			// если процесс спал через полночь, перебазирование не потеряется.
			_, err := c.AddFunc("0 0 * * *", func() {
				m.MarkDayBoundary(context.Background())
			})
			if err != nil {
				logger.Fatal("risk cron: %v", err)
			}

			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := m.Restore(ctx); err != nil {
						return err
					}
					c.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					<-c.Stop().Done()
					return nil
				},
			})
		}),
	)
}
