package exchange

import (
	"context"

	"go.uber.org/fx"

	"scout_bot/internal/modules/exchange/service"
)

// Module поднимает клиента биржи и его WS-стример цен.
func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(service.NewClient),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client) {
			streamCtx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go c.Start(streamCtx)
					return nil
				},
				OnStop: func(ctx context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
