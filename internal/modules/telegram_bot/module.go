package telegram

import (
	"context"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/fx"

	"scout_bot/internal/modules/config"
	"scout_bot/internal/modules/telegram_bot/service"
	"scout_bot/internal/notify"
	"scout_bot/internal/runner"
	"scout_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("telegram",
		// 1. Командная поверхность как *service.Telegram
		fx.Provide(
			service.NewTelegram,
		),

		// 2. Нотифайер цикла: отдельный клиент, чтобы не завязывать Trader
		// на командную поверхность. Без чата в конфиге — stdout-заглушка.
		fx.Provide(
			func(cfg *config.Config) runner.Notifier {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					return notify.NewStdout()
				}
				bot, err := tgbot.NewBotAPI(cfg.Telegram.Token)
				if err != nil {
					logger.Error("notify bot: %v", err)
					return notify.NewStdout()
				}
				return notify.NewTelegram(bot, cfg.Telegram.ChatID)
			},
		),

		// Запуск long-polling через Lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						go func() {
							if err := t.Start(context.Background()); err != nil {
								logger.Error("telegram: %v", err)
							}
						}()
						return nil
					},
					OnStop: func(ctx context.Context) error {
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
