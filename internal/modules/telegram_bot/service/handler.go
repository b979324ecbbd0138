package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scout_bot/internal/models"
	"scout_bot/pkg/logger"
)

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// 1) Обычные сообщения
	if msg := update.Message; msg != nil {
		chatID := msg.Chat.ID
		if t.cfg.Telegram.ChatID != 0 && chatID != t.cfg.Telegram.ChatID {
			return
		}

		if msg.IsCommand() {
			t.handleCommand(ctx, chatID, msg)
			return
		}
		return
	}

	// 2) Inline-кнопки (CallbackQuery)
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil {
			return
		}
		t.handleCallback(ctx, cb)
		return
	}
}

func (t *Telegram) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		t.handleStart(ctx, chatID)
	case "status":
		t.handleStatus(ctx, chatID)
	case "pause":
		t.trader.Pause()
		_, _ = t.Send(ctx, chatID, "⏸ Цикл на паузе. Возврат — /resume")
	case "resume":
		t.handleResume(ctx, chatID)
	case "confirm_resume":
		go t.handleConfirmResume(ctx, chatID)
	case "setloss":
		t.handleSetLoss(ctx, chatID, args)
	case "setwma":
		t.handleSetWMA(ctx, chatID, args)
	case "toggleai":
		t.handleToggleAI(ctx, chatID)
	case "preset":
		t.handlePreset(ctx, chatID, args)
	case "report":
		t.handleReport(ctx, chatID)
	case "emergency":
		go t.handleEmergency(ctx, chatID)
	default:
		_, _ = t.Send(ctx, chatID, "Неизвестная команда, список — /start")
	}
}

func (t *Telegram) handleStart(ctx context.Context, chatID int64) {
	msgText := "Привет! Я скаут-бот: прыгаю между монетами, когда соотношение цен выгоднее порога.\n\n" +
		"Команды:\n" +
		"📊 /status — состояние цикла и риска\n" +
		"⏸ /pause — пауза цикла\n" +
		"▶️ /resume — снять паузу\n" +
		"🔓 /confirm_resume — возобновить после halt\n" +
		"🛑 /emergency — аварийная остановка\n" +
		"⚙️ /setloss 5 — дневной лимит просадки, %\n" +
		"⚙️ /setwma 7 21 — периоды WMA\n" +
		"🤖 /toggleai — вкл/выкл AI-адаптер\n" +
		"🎚 /preset safe|mid|aggr — пресет лимитов\n" +
		"📋 /report — последние решения и события"

	msg := tgbotapi.NewMessage(chatID, msgText)
	if _, err := t.bot.Send(msg); err != nil {
		logger.Error("handleStart: %v", err)
	}
}

func (t *Telegram) handleStatus(ctx context.Context, chatID int64) {
	st := t.trader.Status()
	rs := t.risk.Snapshot()

	statusEmoji := "🟢"
	if rs.Status == models.RiskHalted {
		statusEmoji = "🛑"
	}
	pausedStr := "нет"
	if st.Paused {
		pausedStr = "да"
	}
	aiStr := "выключен"
	if t.adviser.Enabled() {
		aiStr = "включён"
	}
	lastCycle := "ещё не было"
	if !st.LastCycle.IsZero() {
		lastCycle = st.LastCycle.Format("15:04:05")
	}

	_, _ = t.SendF(ctx, chatID,
		"%s Риск: %s\n"+
			"• День: %s, просадка %.2f%% (лимит %.2f%%)\n"+
			"• Сделок: %d (✅ %d / ❌ %d)\n"+
			"• Монета: %s, пауза: %s\n"+
			"• Последний цикл: %s\n"+
			"• WMA: %d/%d, порог %.4f (×%.2f), вес тренда %.2f\n"+
			"• AI-адаптер: %s",
		statusEmoji, rs.Status,
		rs.DayDate, rs.CurrentLossPct, t.risk.MaxLossPct(),
		rs.TradesToday, rs.WinsToday, rs.LossesToday,
		orDash(st.CurrentCoin), pausedStr,
		lastCycle,
		st.WMAShort, st.WMALong, st.ScoutThreshold, st.ScoutMult, st.TrendWeight,
		aiStr,
	)
}

func (t *Telegram) handleResume(ctx context.Context, chatID int64) {
	if err := t.trader.Resume(); err != nil {
		if errors.Is(err, models.ErrHalted) {
			_, _ = t.Send(ctx, chatID, "🛑 Торговля остановлена риск-менеджером.\nПауза тут не при чём — нужен /confirm_resume")
			return
		}
		_, _ = t.SendF(ctx, chatID, "⚠️ %v", err)
		return
	}
	_, _ = t.Send(ctx, chatID, "▶️ Пауза снята, цикл работает")
}

func (t *Telegram) handleConfirmResume(ctx context.Context, chatID int64) {
	rs := t.risk.Snapshot()
	if rs.Status != models.RiskHalted {
		_, _ = t.Send(ctx, chatID, "ℹ️ Торговля не остановлена, подтверждать нечего")
		return
	}

	prompt := fmt.Sprintf(
		"🔓 Возобновить торговлю?\n\nПричина остановки: %s\nBaseline дня будет перебазирован на текущую стоимость портфеля.",
		rs.HaltReason,
	)
	if !t.Confirm(ctx, chatID, prompt, 2*time.Minute) {
		return
	}

	portfolio, err := t.market.Portfolio(ctx)
	if err != nil {
		_, _ = t.SendF(ctx, chatID, "❗️ Не удалось получить портфель: %v", err)
		return
	}
	if err := t.risk.ConfirmResume(ctx, portfolio.TotalUSD); err != nil {
		_, _ = t.SendF(ctx, chatID, "⚠️ %v", err)
		return
	}
	if err := t.trader.Resume(); err != nil {
		_, _ = t.SendF(ctx, chatID, "⚠️ %v", err)
		return
	}
	_, _ = t.SendF(ctx, chatID, "✅ Торговля возобновлена, baseline %.2f", portfolio.TotalUSD)
}

func (t *Telegram) handleSetLoss(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		_, _ = t.Send(ctx, chatID, "Формат: /setloss 5")
		return
	}
	pct, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		_, _ = t.Send(ctx, chatID, "Формат: /setloss 5")
		return
	}

	if err := t.risk.SetLossLimit(ctx, pct); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			_, _ = t.SendF(ctx, chatID, "⚠️ Недопустимое значение %s, диапазон %s. Старое значение не изменено.", verr.Field, verr.Range)
			return
		}
		_, _ = t.SendF(ctx, chatID, "⚠️ %v", err)
		return
	}
	_, _ = t.SendF(ctx, chatID, "✅ Дневной лимит: %.2f%%. Применится со следующего цикла.", pct)
}

func (t *Telegram) handleSetWMA(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		_, _ = t.Send(ctx, chatID, "Формат: /setwma 7 21")
		return
	}
	short, err1 := strconv.Atoi(args[0])
	long, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		_, _ = t.Send(ctx, chatID, "Формат: /setwma 7 21")
		return
	}

	if err := t.trader.SetWMAPeriods(short, long); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			_, _ = t.SendF(ctx, chatID, "⚠️ Недопустимые периоды, нужно %s. Старые значения не изменены.", verr.Range)
			return
		}
		_, _ = t.SendF(ctx, chatID, "⚠️ %v", err)
		return
	}
	_, _ = t.SendF(ctx, chatID, "✅ WMA %d/%d. Применится со следующего цикла.", short, long)
}

func (t *Telegram) handleToggleAI(ctx context.Context, chatID int64) {
	on := !t.adviser.Enabled()
	t.adviser.SetEnabled(on)
	if on {
		_, _ = t.Send(ctx, chatID, "🤖 AI-адаптер включён, параметры будут пересчитываться каждый цикл")
		return
	}
	_, _ = t.Send(ctx, chatID, "🤖 AI-адаптер выключен, цикл работает на последних применённых значениях")
}

func (t *Telegram) handlePreset(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		_, _ = t.Send(ctx, chatID, "Формат: /preset safe|mid|aggr")
		return
	}
	preset, ok := models.Presets[args[0]]
	if !ok {
		_, _ = t.Send(ctx, chatID, "Нет такого пресета: safe, mid или aggr")
		return
	}

	limits := models.Limits{}
	preset.Apply(&limits)

	if err := t.risk.SetLossLimit(ctx, limits.MaxDailyLossPct); err != nil {
		_, _ = t.SendF(ctx, chatID, "⚠️ %v", err)
		return
	}
	if err := t.trader.SetScoutThreshold(limits.ScoutThreshold); err != nil {
		_, _ = t.SendF(ctx, chatID, "⚠️ %v", err)
		return
	}
	if err := t.adviser.SetScoutBounds(limits.MinScoutMult, limits.MaxScoutMult); err != nil {
		_, _ = t.SendF(ctx, chatID, "⚠️ %v", err)
		return
	}
	if err := t.adviser.SetMaxStep(limits.AIMaxStep); err != nil {
		_, _ = t.SendF(ctx, chatID, "⚠️ %v", err)
		return
	}

	_, _ = t.SendF(ctx, chatID,
		"%s\n%s\n\n• Дневной лимит: %.1f%%\n• Порог отбора: %.4f\n• Границы множителя: [%.2f, %.2f]\n• Шаг AI: %.2f",
		preset.Name, preset.Description,
		limits.MaxDailyLossPct, limits.ScoutThreshold,
		limits.MinScoutMult, limits.MaxScoutMult, limits.AIMaxStep,
	)
}

func (t *Telegram) handleReport(ctx context.Context, chatID int64) {
	var b strings.Builder

	records, err := t.audit.RecentDecisions(ctx, 10)
	if err != nil {
		_, _ = t.SendF(ctx, chatID, "❗️ Журнал решений недоступен: %v", err)
		return
	}
	if len(records) == 0 {
		b.WriteString("📭 Решений пока нет\n")
	} else {
		b.WriteString("📋 Последние решения:\n")
		for _, rec := range records {
			mark := "·"
			if rec.Decision.Chosen {
				mark = "🔄"
				if rec.Decision.Failed {
					mark = "❌"
				}
			}
			fmt.Fprintf(&b, "%s %s score=%.4f", mark, rec.Decision.Pair, rec.Decision.CompositeScore)
			if rec.Decision.Chosen && !rec.Decision.Failed {
				fmt.Fprintf(&b, " pnl=%+.2f%%", rec.Decision.PnLPct)
			}
			b.WriteString("\n")
		}
	}

	events, err := t.events.Recent(ctx, 5)
	if err == nil && len(events) > 0 {
		b.WriteString("\n⚡️ События риска:\n")
		for _, ev := range events {
			fmt.Fprintf(&b, "- [%s] %s\n", ev.Type, ev.Description)
		}
	}

	_, _ = t.Send(ctx, chatID, b.String())
}

func (t *Telegram) handleEmergency(ctx context.Context, chatID int64) {
	if !t.Confirm(ctx, chatID, "🛑 Аварийная остановка торговли?\nВозврат — только через /confirm_resume.", time.Minute) {
		return
	}
	t.risk.EmergencyShutdown(ctx, "команда оператора")
	_, _ = t.Send(ctx, chatID, "🛑 Торговля остановлена. Возобновление — /confirm_resume")
}

func (t *Telegram) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// ответ Telegram для остановки спиннера
	_, _ = t.bot.Request(tgbotapi.NewCallback(cb.ID, ""))

	data := cb.Data // ожидаем CONF::token / REJ::token
	var verb, token string
	for i := 0; i < len(data); i++ {
		if i+1 < len(data) && data[i] == ':' && data[i+1] == ':' {
			verb, token = data[:i], data[i+2:]
			break
		}
	}
	if verb == "" || token == "" {
		return
	}

	t.mu.Lock()
	p, ok := t.pendings[token]
	t.mu.Unlock()
	if !ok {
		return
	}

	accepted := verb == "CONF"
	p.ch <- accepted
	close(p.ch)

	status := "Отклонено"
	emoji := "❌"
	if accepted {
		status = "Подтверждено"
		emoji = "✅"
	}

	chatID := cb.Message.Chat.ID
	_ = t.editReplyMarkupRemove(chatID, p.msgID)
	_ = t.editText(chatID, p.msgID, fmt.Sprintf("%s\n\n%s %s", p.prompt, emoji, status))

	t.mu.Lock()
	delete(t.pendings, token)
	t.mu.Unlock()
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
