package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"scout_bot/internal/analysis"
	"scout_bot/internal/models"
	ai "scout_bot/internal/modules/ai/service"
	"scout_bot/internal/modules/config"
	"scout_bot/pkg/logger"
)

// Trader — управляющий цикл: раз в PollInterval оценивает все прыжки из текущей
// монеты, прогоняет лучшего кандидата через риск-гейт и исполняет его.
//
// Правила цикла:
//   - риск-гейт стоит перед любой торговлей, HALTED молча не обходится;
//   - исполнение без ретраев, следующая попытка — следующий цикл;
//   - команды (пауза, смена периодов) применяются на границе цикла, не посреди него.
type Trader struct {
	cfg *config.Config

	market MarketData
	exec   Executor
	risk   RiskGate
	ai     Advisor
	audit  AuditStore
	pairs  PairStore
	notify Notifier
	tracer opentracing.Tracer

	mu          sync.Mutex
	paused      bool
	watched     []models.Pair
	currentCoin string

	// применённые на этом цикле значения
	scoutMult      float64
	trendW         float64
	wmaShort       int
	wmaLong        int
	scoutThreshold float64

	// staged-команды, вступают в силу на границе следующего цикла
	pendingWMA       *[2]int
	pendingThreshold *float64

	lastCycle  time.Time
	lastStatus models.RiskStatus

	// backoff по сетевым сбоям: цикл пропускается до backoffUntil
	backoff      time.Duration
	backoffUntil time.Time

	now func() time.Time
}

func NewTrader(
	cfg *config.Config,
	market MarketData,
	exec Executor,
	risk RiskGate,
	adviser Advisor,
	audit AuditStore,
	pairs PairStore,
	notify Notifier,
	tracer opentracing.Tracer,
) *Trader {
	return &Trader{
		cfg:            cfg,
		market:         market,
		exec:           exec,
		risk:           risk,
		ai:             adviser,
		audit:          audit,
		pairs:          pairs,
		notify:         notify,
		tracer:         tracer,
		scoutMult:      1.0,
		trendW:         cfg.TrendWeight,
		wmaShort:       cfg.WMAShortPeriod,
		wmaLong:        cfg.WMALongPeriod,
		scoutThreshold: cfg.ScoutThreshold,
		lastStatus:     models.RiskActive,
		now:            time.Now,
	}
}

// Bootstrap инициализирует граф пар: сохранённые пороги из базы плюс свежие
// ratio для новых пар.
func (t *Trader) Bootstrap(ctx context.Context) error {
	if t.ai != nil {
		if mult, w, ok := t.ai.Restored(); ok {
			t.mu.Lock()
			t.scoutMult, t.trendW = mult, w
			t.mu.Unlock()
			logger.Info("applied params restored: scout_mult=%.4f trend_weight=%.4f", mult, w)
		}
	}

	known, err := t.pairs.LoadAll(ctx)
	if err != nil {
		// недоступная база не блокирует старт: пороги проинициализируются заново
		logger.Error("bootstrap load: %v, starting from fresh ratios", err)
		known = nil
	}
	all, err := t.market.BootstrapPairs(ctx, known)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	for _, p := range all {
		if err := t.pairs.Save(ctx, p); err != nil {
			return fmt.Errorf("bootstrap save %s: %w", p.ID, err)
		}
	}

	t.mu.Lock()
	t.watched = all
	t.mu.Unlock()

	logger.Info("bootstrap: %d pairs over %d coins", len(all), len(t.cfg.Coins))
	return nil
}

// Run крутит цикл до отмены контекста.
func (t *Trader) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	t.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Cycle(ctx)
		}
	}
}

// Cycle — одна итерация. Все ошибки внутри не валят процесс: цикл живёт дальше.
func (t *Trader) Cycle(ctx context.Context) {
	t.mu.Lock()
	if t.paused {
		t.mu.Unlock()
		return
	}
	t.applyPendingLocked()
	if t.now().Before(t.backoffUntil) {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	span := t.tracer.StartSpan("trade_cycle")
	defer span.Finish()
	ctx = opentracing.ContextWithSpan(ctx, span)

	now := t.now()

	portfolio, err := t.market.Portfolio(ctx)
	if err != nil {
		t.armBackoff(err)
		return
	}

	decision, err := t.risk.CheckAndUpdate(ctx, portfolio.TotalUSD)
	if err != nil {
		logger.Error("risk gate: %v", err)
		return
	}
	t.noteRiskStatus(ctx, decision)
	if !decision.Allowed {
		return
	}

	coin := t.pickCurrentCoin(portfolio)
	if coin == "" {
		logger.Info("cycle: нет монеты для прыжка, портфель в бридже")
		t.markCycle(now)
		return
	}

	scoutMult, trendW := t.adviseParams(ctx, coin)
	span.SetTag("coin", coin)
	span.SetTag("scout_mult", scoutMult)

	t.mu.Lock()
	baseThreshold := t.scoutThreshold
	t.mu.Unlock()

	// множитель от адаптера двигает порог: выше множитель — придирчивее отбор
	records, netErr := t.evaluate(ctx, coin, scoutMult, trendW, now)
	if netErr != nil {
		// биржа душит запросы или сеть лежит: пары без свежей истории уже
		// пропущены, следующие тики ждут паузу
		t.armBackoff(netErr)
	} else {
		t.resetBackoff()
	}
	best := pickBest(records, 1+baseThreshold*scoutMult)
	if best >= 0 {
		t.jump(ctx, &records[best], portfolio)
	}

	for _, rec := range records {
		if err := t.audit.Append(ctx, models.NewAuditRecord(rec)); err != nil {
			logger.Error("audit: %v", err)
		}
	}
	t.markCycle(now)
}

// evaluate собирает TradeDecision по каждой паре из текущей монеты.
// Сетевой отказ или rate-limit истории возвращается вторым значением,
// чтобы цикл взвёл backoff.
func (t *Trader) evaluate(ctx context.Context, coin string, scoutMult, trendW float64, now time.Time) ([]models.TradeDecision, error) {
	t.mu.Lock()
	watched := t.watched
	wmaShort, wmaLong := t.wmaShort, t.wmaLong
	t.mu.Unlock()

	var out []models.TradeDecision
	var netErr error
	for i := range watched {
		pair := watched[i]
		if pair.FromCoin != coin || pair.Ratio <= 0 {
			continue
		}

		hist, err := t.market.PairHistory(ctx, pair, t.cfg.Lookback)
		if err != nil {
			if errors.Is(err, models.ErrNetwork) || errors.Is(err, models.ErrRateLimited) {
				netErr = err
			}
			logger.Error("history %s: %v", pair.ID, err)
			continue
		}

		sig, err := analysis.ComputeSignal(hist, wmaShort, wmaLong)
		switch {
		case errors.Is(err, models.ErrInsufficientData):
			sig = models.NeutralSignal(pair.ID, now)
		case err != nil:
			logger.Error("signal %s: %v", pair.ID, err)
			continue
		}

		// base — во сколько раз текущий ratio (за вычетом комиссий двух ног)
		// лучше порогового; >1 значит прыжок в плюс
		curRatio := hist[len(hist)-1].Price
		fee := 1 - t.cfg.ScoutFee
		base := curRatio * fee * fee / pair.Ratio

		contrib := sig.Contribution()
		composite := base * (1 + contrib*trendW)

		out = append(out, models.TradeDecision{
			Pair:              pair.ID,
			BaseRatio:         base,
			TrendContribution: contrib,
			AIAdjustment:      scoutMult,
			CompositeScore:    composite,
			RiskGatePassed:    true,
			Time:              now,
		})
	}
	return out, netErr
}

// pickBest — индекс лучшего кандидата выше порога, при равных скорах
// побеждает меньший id пары. Нет кандидата — -1.
func pickBest(records []models.TradeDecision, threshold float64) int {
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ra, rb := records[idx[a]], records[idx[b]]
		if ra.CompositeScore != rb.CompositeScore {
			return ra.CompositeScore > rb.CompositeScore
		}
		return ra.Pair < rb.Pair
	})

	if len(idx) == 0 || records[idx[0]].CompositeScore <= threshold {
		return -1
	}
	return idx[0]
}

// jump исполняет прыжок: продажа текущей монеты в бридж, покупка целевой.
// Любая ошибка помечает решение failed и ждёт следующего цикла, ретраев нет.
func (t *Trader) jump(ctx context.Context, rec *models.TradeDecision, portfolio models.PortfolioSnapshot) {
	pair, ok := t.findPair(rec.Pair)
	if !ok {
		rec.Failed = true
		rec.Error = "pair not watched"
		return
	}

	amount := portfolio.Holdings[pair.FromCoin]
	if amount <= 0 {
		rec.Failed = true
		rec.Error = fmt.Sprintf("no %s balance", pair.FromCoin)
		return
	}

	sell, err := t.exec.Execute(ctx, pair.FromCoin, models.SideSell, amount)
	if err != nil {
		rec.Failed = true
		rec.Error = err.Error()
		logger.Error("jump %s sell: %v", pair.ID, err)
		t.notify.Send(ctx, "❌ Прыжок %s: продажа не прошла: %v", pair.ID, err)
		return
	}

	proceeds := sell.Price * sell.Amount * (1 - t.cfg.ScoutFee)
	buyPrice, err := t.market.Price(ctx, pair.ToCoin)
	if err != nil {
		rec.Failed = true
		rec.Error = err.Error()
		t.notify.Send(ctx, "⚠️ Прыжок %s: продали, но не купили (цена): %v. Портфель в бридже.", pair.ID, err)
		t.setCurrentCoin("")
		return
	}

	buy, err := t.exec.Execute(ctx, pair.ToCoin, models.SideBuy, proceeds/buyPrice)
	if err != nil {
		rec.Failed = true
		rec.Error = err.Error()
		logger.Error("jump %s buy: %v", pair.ID, err)
		t.notify.Send(ctx, "⚠️ Прыжок %s: продали, но не купили: %v. Портфель в бридже.", pair.ID, err)
		t.setCurrentCoin("")
		return
	}

	oldRatio := pair.Ratio
	actualRatio := sell.Price / buy.Price
	pair.Ratio = actualRatio
	if err := t.pairs.Save(ctx, pair); err != nil {
		logger.Error("save pair %s: %v", pair.ID, err)
	}
	t.replacePair(pair)
	t.setCurrentCoin(pair.ToCoin)

	pnl := (actualRatio/oldRatio - 1) * 100
	rec.Chosen = true
	rec.PnLPct = pnl
	t.risk.RecordTradeResult(ctx, pnl)

	logger.Info("jump %s: ratio %.6f -> %.6f, pnl %.2f%%", pair.ID, oldRatio, actualRatio, pnl)
	t.notify.Send(ctx, "🔄 Прыжок %s → %s\n• Ratio: %.6f → %.6f\n• PnL: %+.2f%%",
		pair.FromCoin, pair.ToCoin, oldRatio, actualRatio, pnl)
}

// adviseParams запрашивает у адаптера множитель порога и вес тренда.
// Выключенный адаптер — работаем на последних применённых значениях.
func (t *Trader) adviseParams(ctx context.Context, coin string) (scoutMult, trendW float64) {
	t.mu.Lock()
	scoutMult, trendW = t.scoutMult, t.trendW
	t.mu.Unlock()

	if t.ai == nil || !t.ai.Enabled() {
		return scoutMult, trendW
	}

	outcomes, err := t.audit.RecentOutcomes(ctx, t.cfg.AIWindow)
	if err != nil {
		logger.Error("ai outcomes: %v", err)
		return scoutMult, trendW
	}

	var returns []float64
	if hist, err := t.market.CoinHistory(ctx, coin, t.cfg.Lookback); err == nil {
		returns = logReturns(hist)
	}

	mult, w := t.ai.Recommend(ctx, ai.Input{
		Outcomes:         outcomes,
		Returns:          returns,
		CurrentScoutMult: scoutMult,
		CurrentTrendW:    trendW,
	})

	t.mu.Lock()
	t.scoutMult = mult.Recommended
	t.trendW = w.Recommended
	scoutMult, trendW = t.scoutMult, t.trendW
	t.mu.Unlock()
	return scoutMult, trendW
}

func logReturns(hist []models.PriceSample) []float64 {
	if len(hist) < 2 {
		return nil
	}
	out := make([]float64, 0, len(hist)-1)
	for i := 1; i < len(hist); i++ {
		if hist[i-1].Price <= 0 || hist[i].Price <= 0 {
			continue
		}
		out = append(out, math.Log(hist[i].Price/hist[i-1].Price))
	}
	return out
}

// Pause останавливает цикл с границы следующей итерации.
func (t *Trader) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
	logger.Info("trader paused")
}

// Resume снимает паузу. Если торговля остановлена риск-менеджером,
// пауза не при чём — нужен confirm-resume.
func (t *Trader) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastStatus == models.RiskHalted {
		return models.ErrHalted
	}
	t.paused = false
	logger.Info("trader resumed")
	return nil
}

// SetScoutThreshold стейджит новый базовый порог отбора.
func (t *Trader) SetScoutThreshold(v float64) error {
	if v <= 0 || v >= 1 {
		return models.NewValidationError("scout_threshold", "(0, 1)")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingThreshold = &v
	logger.Info("scout threshold staged: %.4f", v)
	return nil
}

// SetWMAPeriods стейджит новые периоды; применятся на границе следующего цикла.
func (t *Trader) SetWMAPeriods(short, long int) error {
	if short <= 0 || long <= 0 || short >= long {
		return models.NewValidationError("wma periods", "0 < short < long")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingWMA = &[2]int{short, long}
	logger.Info("wma periods staged: %d/%d", short, long)
	return nil
}

// Status — снимок для /status и health.
type Status struct {
	Paused         bool
	CurrentCoin    string
	LastCycle      time.Time
	ScoutMult      float64
	ScoutThreshold float64
	TrendWeight    float64
	WMAShort       int
	WMALong        int
	RiskStatus     models.RiskStatus
}

func (t *Trader) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Paused:         t.paused,
		CurrentCoin:    t.currentCoin,
		LastCycle:      t.lastCycle,
		ScoutMult:      t.scoutMult,
		ScoutThreshold: t.scoutThreshold,
		TrendWeight:    t.trendW,
		WMAShort:       t.wmaShort,
		WMALong:        t.wmaLong,
		RiskStatus:     t.lastStatus,
	}
}

func (t *Trader) applyPendingLocked() {
	if t.pendingWMA != nil {
		t.wmaShort, t.wmaLong = t.pendingWMA[0], t.pendingWMA[1]
		t.pendingWMA = nil
		logger.Info("wma periods applied: %d/%d", t.wmaShort, t.wmaLong)
	}
	if t.pendingThreshold != nil {
		t.scoutThreshold = *t.pendingThreshold
		t.pendingThreshold = nil
		logger.Info("scout threshold applied: %.4f", t.scoutThreshold)
	}
}

// pickCurrentCoin — монета с наибольшей долей портфеля, бридж не считается.
func (t *Trader) pickCurrentCoin(portfolio models.PortfolioSnapshot) string {
	t.mu.Lock()
	coin := t.currentCoin
	t.mu.Unlock()
	if coin != "" {
		if amount := portfolio.Holdings[coin]; amount > 0 {
			return coin
		}
	}

	best, bestAmount := "", 0.0
	for _, c := range t.cfg.Coins {
		if amount := portfolio.Holdings[c]; amount > bestAmount {
			best, bestAmount = c, amount
		}
	}
	if best != "" {
		t.setCurrentCoin(best)
	}
	return best
}

func (t *Trader) noteRiskStatus(ctx context.Context, dec models.RiskDecision) {
	t.mu.Lock()
	prev := t.lastStatus
	t.lastStatus = dec.Status
	t.mu.Unlock()

	if prev != dec.Status && dec.Status == models.RiskHalted {
		t.notify.Send(ctx, "🛑 Торговля остановлена: %s\nВозобновление — только /confirm_resume", dec.Reason)
	}
}

func (t *Trader) armBackoff(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.backoff == 0 {
		t.backoff = t.cfg.PollInterval
	} else if t.backoff < 8*t.cfg.PollInterval {
		t.backoff *= 2
	}
	t.backoffUntil = t.now().Add(t.backoff)
	logger.Error("market data: %v, backoff until %s", err, t.backoffUntil.Format(time.RFC3339))
}

func (t *Trader) resetBackoff() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.backoff = 0
	t.backoffUntil = time.Time{}
}

func (t *Trader) markCycle(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCycle = at
}

func (t *Trader) setCurrentCoin(coin string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentCoin = coin
}

func (t *Trader) findPair(id string) (models.Pair, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.watched {
		if p.ID == id {
			return p, true
		}
	}
	return models.Pair{}, false
}

func (t *Trader) replacePair(pair models.Pair) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.watched {
		if t.watched[i].ID == pair.ID {
			t.watched[i] = pair
			return
		}
	}
}
