package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout_bot/internal/models"
	"scout_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type memStore struct {
	saved *models.RiskState
}

func (s *memStore) Save(_ context.Context, st *models.RiskState) error {
	cp := *st
	s.saved = &cp
	return nil
}

func (s *memStore) Load(_ context.Context) (*models.RiskState, error) {
	return s.saved, nil
}

type memJournal struct {
	events []models.RiskEvent
}

func (j *memJournal) Append(_ context.Context, ev models.RiskEvent) error {
	j.events = append(j.events, ev)
	return nil
}

func newTestManager(maxLoss float64) (*Manager, *memStore, *memJournal, *time.Time) {
	store := &memStore{}
	journal := &memJournal{}
	m := NewManager(maxLoss, store, journal)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local)
	m.now = func() time.Time { return now }
	return m, store, journal, &now
}

func TestHaltOnDailyLoss(t *testing.T) {
	ctx := context.Background()
	m, _, journal, _ := newTestManager(5.0)

	dec, err := m.CheckAndUpdate(ctx, 10000)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, models.RiskActive, dec.Status)

	// просадка ровно 6% — выше лимита 5%
	dec, err = m.CheckAndUpdate(ctx, 9400)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, models.RiskHalted, dec.Status)
	assert.InDelta(t, 6.0, dec.LossPct, 1e-9)

	var haltSeen bool
	for _, ev := range journal.events {
		if ev.Type == models.RiskEventHalt {
			haltSeen = true
		}
	}
	assert.True(t, haltSeen, "halt must be journaled")
}

func TestHaltSurvivesMidnight(t *testing.T) {
	ctx := context.Background()
	m, _, _, now := newTestManager(5.0)

	_, err := m.CheckAndUpdate(ctx, 10000)
	require.NoError(t, err)
	dec, err := m.CheckAndUpdate(ctx, 9000)
	require.NoError(t, err)
	require.Equal(t, models.RiskHalted, dec.Status)

	// следующий день: счётчики обнуляются, HALTED остаётся
	*now = now.Add(24 * time.Hour)
	dec, err = m.CheckAndUpdate(ctx, 9000)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, models.RiskHalted, dec.Status)

	st := m.Snapshot()
	assert.Equal(t, "2025-06-11", st.DayDate)
	assert.Zero(t, st.TradesToday)
	assert.Zero(t, st.CurrentLossPct, "baseline перебазирован на текущую стоимость")
}

func TestProfitDayNeverHalts(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestManager(5.0)

	_, err := m.CheckAndUpdate(ctx, 10000)
	require.NoError(t, err)

	dec, err := m.CheckAndUpdate(ctx, 12000)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Zero(t, dec.LossPct, "прибыль не считается просадкой")
}

func TestConfirmResumeRebaselines(t *testing.T) {
	ctx := context.Background()
	m, _, journal, _ := newTestManager(5.0)

	_, err := m.CheckAndUpdate(ctx, 10000)
	require.NoError(t, err)
	_, err = m.CheckAndUpdate(ctx, 9000)
	require.NoError(t, err)
	require.Equal(t, models.RiskHalted, m.Snapshot().Status)

	// resume не из HALTED — ошибка
	require.NoError(t, m.ConfirmResume(ctx, 9000))
	require.Error(t, m.ConfirmResume(ctx, 9000))

	st := m.Snapshot()
	assert.Equal(t, models.RiskActive, st.Status)
	assert.Equal(t, 9000.0, st.DayStartValue)

	// после перебазирования тот же портфель не триггерит повторный halt
	dec, err := m.CheckAndUpdate(ctx, 9000)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	var resumeSeen bool
	for _, ev := range journal.events {
		if ev.Type == models.RiskEventResume {
			resumeSeen = true
		}
	}
	assert.True(t, resumeSeen)
}

func TestSetLossLimitValidation(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestManager(5.0)

	var verr *models.ValidationError
	require.ErrorAs(t, m.SetLossLimit(ctx, 0), &verr)
	require.ErrorAs(t, m.SetLossLimit(ctx, -3), &verr)
	require.ErrorAs(t, m.SetLossLimit(ctx, 150), &verr)
	assert.Equal(t, 5.0, m.MaxLossPct(), "невалидное значение не затирает старое")

	require.NoError(t, m.SetLossLimit(ctx, 2.5))
	assert.Equal(t, 2.5, m.MaxLossPct())
}

func TestEmergencyShutdown(t *testing.T) {
	ctx := context.Background()
	m, _, journal, _ := newTestManager(5.0)

	_, err := m.CheckAndUpdate(ctx, 10000)
	require.NoError(t, err)

	m.EmergencyShutdown(ctx, "ручная остановка оператором")
	dec, err := m.CheckAndUpdate(ctx, 10000)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)

	require.NotEmpty(t, journal.events)
	last := journal.events[len(journal.events)-1]
	assert.Equal(t, models.RiskEventEmergencyShutdown, last.Type)
}

func TestRestoreFromStore(t *testing.T) {
	ctx := context.Background()
	m, store, _, _ := newTestManager(5.0)

	_, err := m.CheckAndUpdate(ctx, 10000)
	require.NoError(t, err)
	_, err = m.CheckAndUpdate(ctx, 9000)
	require.NoError(t, err)

	fresh := NewManager(5.0, store, &memJournal{})
	require.NoError(t, fresh.Restore(ctx))
	assert.Equal(t, models.RiskHalted, fresh.Snapshot().Status, "HALTED переживает рестарт")
}

func TestTradeCounters(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestManager(5.0)

	_, err := m.CheckAndUpdate(ctx, 10000)
	require.NoError(t, err)

	m.RecordTradeResult(ctx, 1.2)
	m.RecordTradeResult(ctx, -0.4)
	m.RecordTradeResult(ctx, 0.0)

	st := m.Snapshot()
	assert.Equal(t, 3, st.TradesToday)
	assert.Equal(t, 2, st.WinsToday)
	assert.Equal(t, 1, st.LossesToday)
}
