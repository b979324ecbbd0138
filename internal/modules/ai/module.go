package ai

import (
	"context"

	"go.uber.org/fx"

	"scout_bot/internal/modules/ai/service"
	"scout_bot/internal/modules/config"
	"scout_bot/internal/storage/pg"
)

// Module поднимает rule-based рекомендателя параметров.
func Module() fx.Option {
	return fx.Module("ai",
		fx.Provide(
			func(cfg *config.Config, store *pg.AIParamsRepo) *service.Adapter {
				return service.NewAdapter(cfg.AIEnabled, service.Settings{
					MinOutcomes:  cfg.AIMinOutcomes,
					PatternN:     cfg.AIPatternN,
					MaxStep:      cfg.AIMaxStep,
					VolRef:       cfg.AIVolRef,
					MinScoutMult: cfg.MinScoutMult,
					MaxScoutMult: cfg.MaxScoutMult,
					MinTrendW:    cfg.MinTrendW,
					MaxTrendW:    cfg.MaxTrendW,
				}, store)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, a *service.Adapter) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return a.Restore(ctx)
				},
			})
		}),
	)
}
