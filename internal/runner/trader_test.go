package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout_bot/internal/models"
	ai "scout_bot/internal/modules/ai/service"
	"scout_bot/internal/modules/config"
	"scout_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// --- фейки портов ---

type fakeMarket struct {
	histories map[string][]models.PriceSample // pair id -> ratio series
	prices    map[string]float64
	portfolio models.PortfolioSnapshot
	failAll   bool
	histErr   error // ошибка для всех PairHistory
}

func (f *fakeMarket) CoinHistory(_ context.Context, coin string, _ int) ([]models.PriceSample, error) {
	if f.failAll {
		return nil, models.ErrNetwork
	}
	return nil, nil
}

func (f *fakeMarket) PairHistory(_ context.Context, pair models.Pair, _ int) ([]models.PriceSample, error) {
	if f.failAll {
		return nil, models.ErrNetwork
	}
	if f.histErr != nil {
		return nil, f.histErr
	}
	h, ok := f.histories[pair.ID]
	if !ok {
		return nil, models.ErrInsufficientData
	}
	return h, nil
}

func (f *fakeMarket) Price(_ context.Context, coin string) (float64, error) {
	if f.failAll {
		return 0, models.ErrNetwork
	}
	px, ok := f.prices[coin]
	if !ok {
		return 0, fmt.Errorf("no price for %s", coin)
	}
	return px, nil
}

func (f *fakeMarket) Portfolio(_ context.Context) (models.PortfolioSnapshot, error) {
	if f.failAll {
		return models.PortfolioSnapshot{}, models.ErrNetwork
	}
	return f.portfolio, nil
}

func (f *fakeMarket) BootstrapPairs(_ context.Context, known []models.Pair) ([]models.Pair, error) {
	return known, nil
}

type fakeExec struct {
	fills    []models.Fill
	failSell bool
	calls    []string
}

func (f *fakeExec) Execute(_ context.Context, coin string, side models.Side, amount float64) (models.Fill, error) {
	f.calls = append(f.calls, string(side)+" "+coin)
	if side == models.SideSell && f.failSell {
		return models.Fill{}, errors.New("exchange rejected order")
	}
	price := 1.0
	fill := models.Fill{OrderID: "1", Pair: coin, Side: side, Price: price, Amount: amount, Time: time.Now()}
	f.fills = append(f.fills, fill)
	return fill, nil
}

type fakeRisk struct {
	decision models.RiskDecision
	recorded []float64
	checks   int
}

func (f *fakeRisk) CheckAndUpdate(_ context.Context, _ float64) (models.RiskDecision, error) {
	f.checks++
	return f.decision, nil
}

func (f *fakeRisk) RecordTradeResult(_ context.Context, pnl float64) {
	f.recorded = append(f.recorded, pnl)
}

type fakeAdvisor struct {
	enabled bool
	mult    float64
	weight  float64

	restoredMult float64
	restoredW    float64
	restoredOK   bool
}

func (f *fakeAdvisor) Enabled() bool { return f.enabled }

func (f *fakeAdvisor) Restored() (float64, float64, bool) {
	return f.restoredMult, f.restoredW, f.restoredOK
}

func (f *fakeAdvisor) Recommend(_ context.Context, in ai.Input) (models.AIParameter, models.AIParameter) {
	return models.AIParameter{Name: models.ParamScoutMultiplier, Recommended: f.mult},
		models.AIParameter{Name: models.ParamTrendWeight, Recommended: f.weight}
}

type fakeAudit struct {
	records  []models.AuditRecord
	outcomes []float64
}

func (f *fakeAudit) Append(_ context.Context, rec models.AuditRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAudit) RecentOutcomes(_ context.Context, _ int) ([]float64, error) {
	return f.outcomes, nil
}

type fakePairs struct {
	saved []models.Pair
}

func (f *fakePairs) Save(_ context.Context, p models.Pair) error {
	f.saved = append(f.saved, p)
	return nil
}

func (f *fakePairs) LoadAll(_ context.Context) ([]models.Pair, error) { return nil, nil }

type fakeNotify struct {
	messages []string
}

func (f *fakeNotify) Send(_ context.Context, format string, args ...any) {
	f.messages = append(f.messages, fmt.Sprintf(format, args...))
}

// --- сборка ---

func flatHistory(pairID string, ratio float64, n int) []models.PriceSample {
	t0 := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	out := make([]models.PriceSample, n)
	for i := range out {
		out[i] = models.PriceSample{Pair: pairID, Time: t0.Add(time.Duration(i) * time.Minute), Price: ratio}
	}
	return out
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Coins = []string{"BTC", "ETH"}
	cfg.Bridge = "USDT"
	cfg.PollInterval = time.Minute
	cfg.Lookback = 50
	cfg.WMAShortPeriod = 7
	cfg.WMALongPeriod = 21
	cfg.TrendWeight = 0.3
	cfg.ScoutThreshold = 0.001
	cfg.ScoutFee = 0.001
	cfg.AIWindow = 50
	return cfg
}

type harness struct {
	trader  *Trader
	market  *fakeMarket
	exec    *fakeExec
	risk    *fakeRisk
	advisor *fakeAdvisor
	audit   *fakeAudit
	pairs   *fakePairs
	notify  *fakeNotify
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		market: &fakeMarket{
			histories: map[string][]models.PriceSample{},
			prices:    map[string]float64{"BTC": 50000, "ETH": 2500},
			portfolio: models.PortfolioSnapshot{
				TotalUSD: 10000,
				Holdings: map[string]float64{"BTC": 0.2},
			},
		},
		exec:    &fakeExec{},
		risk:    &fakeRisk{decision: models.RiskDecision{Allowed: true, Status: models.RiskActive}},
		advisor: &fakeAdvisor{},
		audit:   &fakeAudit{},
		pairs:   &fakePairs{},
		notify:  &fakeNotify{},
	}
	h.trader = NewTrader(testConfig(), h.market, h.exec, h.risk, h.advisor, h.audit, h.pairs, h.notify, opentracing.NoopTracer{})
	return h
}

func (h *harness) watch(pairs ...models.Pair) {
	h.trader.mu.Lock()
	h.trader.watched = pairs
	h.trader.mu.Unlock()
}

// --- тесты ---

func TestCycleExecutesBestJump(t *testing.T) {
	h := newHarness(t)
	// текущее ratio 22 против порога 20: выгодный прыжок
	h.watch(models.Pair{ID: "BTC->ETH", FromCoin: "BTC", ToCoin: "ETH", Ratio: 20})
	h.market.histories["BTC->ETH"] = flatHistory("BTC->ETH", 22, 50)

	h.trader.Cycle(context.Background())

	require.Equal(t, []string{"SELL BTC", "BUY ETH"}, h.exec.calls)
	require.Len(t, h.audit.records, 1)
	assert.True(t, h.audit.records[0].Decision.Chosen)
	assert.Len(t, h.risk.recorded, 1)
	assert.Equal(t, "ETH", h.trader.Status().CurrentCoin)
}

func TestCycleNoCandidateBelowThreshold(t *testing.T) {
	h := newHarness(t)
	// ratio на пороге: composite ниже threshold после комиссий
	h.watch(models.Pair{ID: "BTC->ETH", FromCoin: "BTC", ToCoin: "ETH", Ratio: 20})
	h.market.histories["BTC->ETH"] = flatHistory("BTC->ETH", 20, 50)

	h.trader.Cycle(context.Background())

	assert.Empty(t, h.exec.calls, "прыжка быть не должно")
	require.Len(t, h.audit.records, 1)
	assert.False(t, h.audit.records[0].Decision.Chosen)
}

func TestCycleHaltedGateBlocksTrading(t *testing.T) {
	h := newHarness(t)
	h.watch(models.Pair{ID: "BTC->ETH", FromCoin: "BTC", ToCoin: "ETH", Ratio: 20})
	h.market.histories["BTC->ETH"] = flatHistory("BTC->ETH", 22, 50)
	h.risk.decision = models.RiskDecision{Allowed: false, Status: models.RiskHalted, Reason: "дневной лимит"}

	h.trader.Cycle(context.Background())

	assert.Empty(t, h.exec.calls)
	assert.Empty(t, h.audit.records, "при halt пары даже не оцениваются")
	require.NotEmpty(t, h.notify.messages, "оператор узнаёт о переходе в HALTED")
}

func TestCycleTieBreakLowestPairID(t *testing.T) {
	h := newHarness(t)
	h.market.portfolio.Holdings = map[string]float64{"BTC": 0.2}
	h.watch(
		models.Pair{ID: "BTC->XRP", FromCoin: "BTC", ToCoin: "XRP", Ratio: 20},
		models.Pair{ID: "BTC->ETH", FromCoin: "BTC", ToCoin: "ETH", Ratio: 20},
	)
	// одинаковые серии — одинаковые composite score
	h.market.histories["BTC->XRP"] = flatHistory("BTC->XRP", 22, 50)
	h.market.histories["BTC->ETH"] = flatHistory("BTC->ETH", 22, 50)
	h.market.prices["XRP"] = 2.0

	h.trader.Cycle(context.Background())

	require.NotEmpty(t, h.exec.calls)
	assert.Equal(t, "BUY ETH", h.exec.calls[1], "при равных скорах побеждает меньший id")
}

func TestCycleExecutionFailureNoRetry(t *testing.T) {
	h := newHarness(t)
	h.watch(models.Pair{ID: "BTC->ETH", FromCoin: "BTC", ToCoin: "ETH", Ratio: 20})
	h.market.histories["BTC->ETH"] = flatHistory("BTC->ETH", 22, 50)
	h.exec.failSell = true

	h.trader.Cycle(context.Background())

	assert.Equal(t, []string{"SELL BTC"}, h.exec.calls, "один вызов, без ретраев")
	require.Len(t, h.audit.records, 1)
	assert.True(t, h.audit.records[0].Decision.Failed)
	assert.Empty(t, h.risk.recorded, "неисполненный прыжок не попадает в счётчики")
}

func TestCyclePausedSkipsEverything(t *testing.T) {
	h := newHarness(t)
	h.watch(models.Pair{ID: "BTC->ETH", FromCoin: "BTC", ToCoin: "ETH", Ratio: 20})
	h.market.histories["BTC->ETH"] = flatHistory("BTC->ETH", 22, 50)

	h.trader.Pause()
	h.trader.Cycle(context.Background())
	assert.Zero(t, h.risk.checks, "пауза — цикл не трогает даже риск-гейт")

	require.NoError(t, h.trader.Resume())
	h.trader.Cycle(context.Background())
	assert.Equal(t, 1, h.risk.checks)
}

func TestResumeRefusedWhenHalted(t *testing.T) {
	h := newHarness(t)
	h.risk.decision = models.RiskDecision{Allowed: false, Status: models.RiskHalted, Reason: "дневной лимит"}
	h.trader.Cycle(context.Background())

	h.trader.Pause()
	require.ErrorIs(t, h.trader.Resume(), models.ErrHalted)
}

func TestMarketFailureArmsBackoff(t *testing.T) {
	h := newHarness(t)
	h.market.failAll = true

	h.trader.Cycle(context.Background())
	assert.Zero(t, h.risk.checks)

	// до конца паузы циклы пропускаются
	h.market.failAll = false
	h.trader.Cycle(context.Background())
	assert.Zero(t, h.risk.checks)

	// после паузы цикл живёт снова
	h.trader.mu.Lock()
	h.trader.backoffUntil = time.Time{}
	h.trader.mu.Unlock()
	h.trader.Cycle(context.Background())
	assert.Equal(t, 1, h.risk.checks)
}

func TestPairHistoryRateLimitArmsBackoff(t *testing.T) {
	h := newHarness(t)
	h.watch(models.Pair{ID: "BTC->ETH", FromCoin: "BTC", ToCoin: "ETH", Ratio: 20})
	h.market.histErr = models.ErrRateLimited

	h.trader.Cycle(context.Background())
	require.Equal(t, 1, h.risk.checks)
	assert.Empty(t, h.exec.calls)

	// до конца паузы следующие тики пропускаются целиком
	h.trader.Cycle(context.Background())
	assert.Equal(t, 1, h.risk.checks)

	// повторный отказ удваивает паузу
	h.trader.mu.Lock()
	first := h.trader.backoff
	h.trader.backoffUntil = time.Time{}
	h.trader.mu.Unlock()
	h.trader.Cycle(context.Background())
	h.trader.mu.Lock()
	second := h.trader.backoff
	h.trader.mu.Unlock()
	assert.Greater(t, second, first)

	// биржа ожила — пауза снимается
	h.market.histErr = nil
	h.market.histories["BTC->ETH"] = flatHistory("BTC->ETH", 20, 50)
	h.trader.mu.Lock()
	h.trader.backoffUntil = time.Time{}
	h.trader.mu.Unlock()
	h.trader.Cycle(context.Background())
	h.trader.mu.Lock()
	defer h.trader.mu.Unlock()
	assert.Zero(t, h.trader.backoff)
}

func TestBootstrapSeedsRestoredParams(t *testing.T) {
	h := newHarness(t)
	h.advisor.restoredMult, h.advisor.restoredW, h.advisor.restoredOK = 1.4, 0.25, true

	require.NoError(t, h.trader.Bootstrap(context.Background()))

	st := h.trader.Status()
	assert.Equal(t, 1.4, st.ScoutMult, "множитель порога переживает рестарт")
	assert.Equal(t, 0.25, st.TrendWeight)
}

func TestBootstrapWithoutPersistedParamsKeepsDefaults(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.trader.Bootstrap(context.Background()))

	st := h.trader.Status()
	assert.Equal(t, 1.0, st.ScoutMult)
	assert.Equal(t, 0.3, st.TrendWeight)
}

func TestSetWMAPeriodsAppliedOnBoundary(t *testing.T) {
	h := newHarness(t)

	var verr *models.ValidationError
	require.ErrorAs(t, h.trader.SetWMAPeriods(21, 7), &verr)
	require.ErrorAs(t, h.trader.SetWMAPeriods(0, 21), &verr)

	require.NoError(t, h.trader.SetWMAPeriods(5, 15))
	st := h.trader.Status()
	assert.Equal(t, 7, st.WMAShort, "до границы цикла старые периоды")

	h.trader.Cycle(context.Background())
	st = h.trader.Status()
	assert.Equal(t, 5, st.WMAShort)
	assert.Equal(t, 15, st.WMALong)
}

func TestSetScoutThresholdStaged(t *testing.T) {
	h := newHarness(t)

	var verr *models.ValidationError
	require.ErrorAs(t, h.trader.SetScoutThreshold(0), &verr)
	require.ErrorAs(t, h.trader.SetScoutThreshold(1.5), &verr)

	require.NoError(t, h.trader.SetScoutThreshold(0.01))
	assert.Equal(t, 0.001, h.trader.Status().ScoutThreshold, "до границы цикла старый порог")

	h.trader.Cycle(context.Background())
	assert.Equal(t, 0.01, h.trader.Status().ScoutThreshold)
}

func TestInsufficientHistoryDegradesToNeutral(t *testing.T) {
	h := newHarness(t)
	h.watch(models.Pair{ID: "BTC->ETH", FromCoin: "BTC", ToCoin: "ETH", Ratio: 20})
	// 10 точек < longN=21 — сигнал нейтральный, но скоринг по ratio живёт
	h.market.histories["BTC->ETH"] = flatHistory("BTC->ETH", 22, 10)

	h.trader.Cycle(context.Background())

	require.Len(t, h.audit.records, 1)
	assert.Zero(t, h.audit.records[0].Decision.TrendContribution)
	assert.True(t, h.audit.records[0].Decision.Chosen, "нейтральный сигнал не мешает выгодному прыжку")
}
