package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scout_bot/internal/models"
	"scout_bot/pkg/logger"
)

// EventJournal — куда пишем переходы (append-only).
type EventJournal interface {
	Append(ctx context.Context, ev models.RiskEvent) error
}

// StateStore — персист состояния между рестартами.
type StateStore interface {
	Save(ctx context.Context, state *models.RiskState) error
	Load(ctx context.Context) (*models.RiskState, error)
}

// Manager — дневной circuit-breaker. Все мутации состояния идут через него
// под одним мьютексом; снаружи состояние видно только копиями.
//
// Два жёстких правила:
//   - HALTED снимается только явным ConfirmResume, полуночный сброс статус не трогает;
//   - baseline дня переустанавливается ровно один раз на границе локальной даты.
type Manager struct {
	mu sync.Mutex

	state   models.RiskState
	maxLoss float64 // дневной лимит просадки, %

	store   StateStore
	journal EventJournal
	now     func() time.Time
}

func NewManager(maxLossPct float64, store StateStore, journal EventJournal) *Manager {
	return &Manager{
		maxLoss: maxLossPct,
		store:   store,
		journal: journal,
		now:     time.Now,
		state:   models.RiskState{Status: models.RiskActive},
	}
}

// Restore подтягивает состояние из базы. Пустая или недоступная база —
// чистый старт с дефолтов, процесс не валим.
func (m *Manager) Restore(ctx context.Context) error {
	st, err := m.store.Load(ctx)
	if err != nil {
		logger.Error("risk restore: %v, starting from defaults", err)
		return nil
	}
	if st == nil {
		return nil
	}

	m.mu.Lock()
	m.state = *st
	m.mu.Unlock()

	logger.Info("risk state restored: status=%s day=%s loss=%.2f%%", st.Status, st.DayDate, st.CurrentLossPct)
	return nil
}

func dayOf(t time.Time) string { return t.Local().Format("2006-01-02") }

// CheckAndUpdate — одна проверка на цикл: принимает свежую стоимость портфеля,
// при необходимости перебазирует день, пересчитывает просадку и решает,
// можно ли торговать. HALTED-статус переживает смену дня.
func (m *Manager) CheckAndUpdate(ctx context.Context, portfolioValue float64) (models.RiskDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	today := dayOf(now)

	if m.state.DayDate != today {
		m.rebaseDayLocked(ctx, today, portfolioValue, now)
	}

	m.state.CurrentValue = portfolioValue

	loss := 0.0
	if m.state.DayStartValue > 0 {
		loss = (m.state.DayStartValue - portfolioValue) / m.state.DayStartValue * 100
	}
	if loss < 0 {
		loss = 0 // прибыльный день лимит не трогает
	}
	m.state.CurrentLossPct = loss

	if m.state.Status == models.RiskHalted {
		dec := models.RiskDecision{
			Allowed: false,
			LossPct: loss,
			Status:  models.RiskHalted,
			Reason:  m.state.HaltReason,
		}
		m.persistLocked(ctx)
		return dec, nil
	}

	if loss >= m.maxLoss {
		m.state.Status = models.RiskHalted
		m.state.HaltReason = fmt.Sprintf("дневная просадка %.2f%% >= лимита %.2f%%", loss, m.maxLoss)
		m.state.HaltedAt = now

		logger.Error("risk halt: %s", m.state.HaltReason)
		m.appendEventLocked(ctx, models.RiskEvent{
			Type:           models.RiskEventHalt,
			Description:    m.state.HaltReason,
			PortfolioValue: portfolioValue,
			LossPct:        loss,
			Time:           now,
			Action:         "торговля остановлена до ручного confirm-resume",
		})

		dec := models.RiskDecision{Allowed: false, LossPct: loss, Status: models.RiskHalted, Reason: m.state.HaltReason}
		m.persistLocked(ctx)
		return dec, nil
	}

	m.persistLocked(ctx)
	return models.RiskDecision{Allowed: true, LossPct: loss, Status: models.RiskActive}, nil
}

// MarkDayBoundary — крон-зацепка на полночь: если цикл спит, граница дня
// всё равно фиксируется. Перебазирование по реальной стоимости произойдёт
// в ближайшем CheckAndUpdate.
func (m *Manager) MarkDayBoundary(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := dayOf(m.now())
	if m.state.DayDate == today {
		return
	}
	logger.Info("day boundary: %s -> %s", m.state.DayDate, today)
}

// ConfirmResume — единственный выход из HALTED. Перебазирует день на текущую
// стоимость, чтобы возобновление не словило мгновенный повторный halt.
func (m *Manager) ConfirmResume(ctx context.Context, portfolioValue float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status != models.RiskHalted {
		return fmt.Errorf("resume: status is %s, nothing to confirm", m.state.Status)
	}

	now := m.now()
	m.state.Status = models.RiskActive
	m.state.HaltReason = ""
	m.state.HaltedAt = time.Time{}
	m.state.DayDate = dayOf(now)
	m.state.DayStartValue = portfolioValue
	m.state.CurrentValue = portfolioValue
	m.state.CurrentLossPct = 0

	logger.Info("risk resume confirmed, new baseline %.2f", portfolioValue)
	m.appendEventLocked(ctx, models.RiskEvent{
		Type:           models.RiskEventResume,
		Description:    "торговля возобновлена вручную",
		PortfolioValue: portfolioValue,
		Time:           now,
		Action:         "baseline перебазирован на текущую стоимость",
	})
	m.persistLocked(ctx)
	return nil
}

// SetLossLimit меняет дневной лимит. Вне (0,100] — ValidationError, старое значение живёт.
// Новый лимит применяется со следующего CheckAndUpdate, задним числом halt не происходит.
func (m *Manager) SetLossLimit(ctx context.Context, pct float64) error {
	if pct <= 0 || pct > 100 {
		return models.NewValidationError("max_daily_loss_pct", "(0, 100]")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.maxLoss
	m.maxLoss = pct

	logger.Info("loss limit: %.2f%% -> %.2f%%", old, pct)
	m.appendEventLocked(ctx, models.RiskEvent{
		Type:        models.RiskEventThresholdChange,
		Description: fmt.Sprintf("дневной лимит: %.2f%% -> %.2f%%", old, pct),
		Time:        m.now(),
		Action:      "применится со следующего цикла",
	})
	return nil
}

// EmergencyShutdown — ручной halt без условия по просадке.
func (m *Manager) EmergencyShutdown(ctx context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status == models.RiskHalted {
		return
	}

	now := m.now()
	m.state.Status = models.RiskHalted
	m.state.HaltReason = "аварийная остановка: " + reason
	m.state.HaltedAt = now

	logger.Error("emergency shutdown: %s", reason)
	m.appendEventLocked(ctx, models.RiskEvent{
		Type:           models.RiskEventEmergencyShutdown,
		Description:    reason,
		PortfolioValue: m.state.CurrentValue,
		LossPct:        m.state.CurrentLossPct,
		Time:           now,
		Action:         "торговля остановлена до ручного confirm-resume",
	})
	m.persistLocked(ctx)
}

// RecordTradeResult обновляет дневные счётчики по исходу прыжка.
func (m *Manager) RecordTradeResult(ctx context.Context, pnlPct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.TradesToday++
	if pnlPct >= 0 {
		m.state.WinsToday++
	} else {
		m.state.LossesToday++
	}
	m.persistLocked(ctx)
}

// Snapshot — копия состояния для /status и health.
func (m *Manager) Snapshot() models.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) MaxLossPct() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxLoss
}

// rebaseDayLocked — смена дня: baseline и счётчики в ноль, статус НЕ трогаем.
func (m *Manager) rebaseDayLocked(ctx context.Context, today string, portfolioValue float64, now time.Time) {
	prev := m.state.DayDate
	m.state.DayDate = today
	m.state.DayStartValue = portfolioValue
	m.state.CurrentLossPct = 0
	m.state.TradesToday = 0
	m.state.WinsToday = 0
	m.state.LossesToday = 0

	logger.Info("daily reset: %s -> %s, baseline %.2f, status=%s", prev, today, portfolioValue, m.state.Status)
	m.appendEventLocked(ctx, models.RiskEvent{
		Type:           models.RiskEventDailyReset,
		Description:    fmt.Sprintf("новый торговый день %s", today),
		PortfolioValue: portfolioValue,
		Time:           now,
		Action:         "baseline и счётчики сброшены",
	})
}

func (m *Manager) appendEventLocked(ctx context.Context, ev models.RiskEvent) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Append(ctx, ev); err != nil {
		logger.Error("risk journal: %v", err)
	}
}

func (m *Manager) persistLocked(ctx context.Context) {
	if m.store == nil {
		return
	}
	st := m.state
	if err := m.store.Save(ctx, &st); err != nil {
		logger.Error("risk persist: %v", err)
	}
}
