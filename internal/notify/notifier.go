package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier — исходящие уведомления цикла. Отправка не должна блокировать
// и не должна ронять цикл при недоступном Telegram.
type Notifier interface {
	Send(ctx context.Context, format string, args ...any)
}

// Telegram — пассивный нотифайер: только пишет в заданный чат.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(bot *tgbot.BotAPI, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID}
}

func (t *Telegram) Send(ctx context.Context, format string, args ...any) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	msg := fmt.Sprintf(format, args...)
	go func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, msg))
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}()
}

// Stdout — заглушка для локального запуска без Telegram.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) Send(_ context.Context, format string, args ...any) {
	log.Printf(format, args...)
}
