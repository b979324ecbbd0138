package service

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"scout_bot/internal/models"
	"scout_bot/pkg/logger"
)

// ParamStore — персист последней рекомендации по каждому параметру.
type ParamStore interface {
	Save(ctx context.Context, param *models.AIParameter) error
	Load(ctx context.Context, name string) (*models.AIParameter, error)
}

// Settings — границы и шаги адаптера. Всё, что он рекомендует, живёт внутри этих границ.
type Settings struct {
	MinOutcomes int     // меньше — отдаём дефолты с confidence=0
	PatternN    int     // хвост исходов для win/loss-смещения
	MaxStep     float64 // максимальный сдвиг рекомендации за один апдейт
	VolRef      float64 // stddev доходностей, считающийся "высокой" волатильностью

	MinScoutMult float64
	MaxScoutMult float64
	MinTrendW    float64
	MaxTrendW    float64
}

// Input — сырьё одного пересчёта: исходы прыжков (PnL, %) в хронологическом
// порядке и доходности цен для оценки волатильности.
type Input struct {
	Outcomes []float64
	Returns  []float64

	CurrentScoutMult float64
	CurrentTrendW    float64
}

// Adapter — rule-based рекомендатель параметров. Никакой магии: волатильность
// двигает множитель порога, полоса проигрышей поджимает агрессию. Главное
// свойство — детерминизм и жёсткие границы: что бы ни насчитали правила,
// наружу уходит значение из [Min,Max], сдвинутое не больше чем на MaxStep.
type Adapter struct {
	mu       sync.RWMutex
	enabled  bool
	settings Settings

	restoredMult *float64
	restoredW    *float64

	store ParamStore
	now   func() time.Time
}

func NewAdapter(enabled bool, settings Settings, store ParamStore) *Adapter {
	return &Adapter{
		enabled:  enabled,
		settings: settings,
		store:    store,
		now:      time.Now,
	}
}

// Restore подтягивает последние сохранённые рекомендации из базы, чтобы
// адаптивный дрейф переживал рестарт. Пустая или недоступная база — стартуем
// с конфиговых дефолтов, процесс не валим.
func (a *Adapter) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}

	mult, err := a.store.Load(ctx, models.ParamScoutMultiplier)
	if err != nil {
		logger.Error("ai restore: %v, starting from defaults", err)
		return nil
	}
	w, err := a.store.Load(ctx, models.ParamTrendWeight)
	if err != nil {
		logger.Error("ai restore: %v, starting from defaults", err)
		return nil
	}
	if mult == nil || w == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// границы могли смениться между рестартами — сохранённое значение зажимаем
	mult.Min, mult.Max = a.settings.MinScoutMult, a.settings.MaxScoutMult
	mult.Clamp()
	w.Min, w.Max = a.settings.MinTrendW, a.settings.MaxTrendW
	w.Clamp()

	a.restoredMult = &mult.Recommended
	a.restoredW = &w.Recommended

	logger.Info("ai params restored: %s=%.4f %s=%.4f",
		models.ParamScoutMultiplier, mult.Recommended, models.ParamTrendWeight, w.Recommended)
	return nil
}

// Restored отдаёт значения последнего рестора; ok=false — персиста не было.
func (a *Adapter) Restored() (scoutMult, trendW float64, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.restoredMult == nil || a.restoredW == nil {
		return 0, 0, false
	}
	return *a.restoredMult, *a.restoredW, true
}

func (a *Adapter) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetEnabled переключает адаптер. Выключенный адаптер не трогает параметры:
// цикл работает на последних применённых значениях.
func (a *Adapter) SetEnabled(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enabled != on {
		logger.Info("ai adapter enabled=%v", on)
	}
	a.enabled = on
}

func (a *Adapter) SetMaxStep(step float64) error {
	if step <= 0 || step > 1 {
		return models.NewValidationError("ai_max_step", "(0, 1]")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings.MaxStep = step
	return nil
}

// SetScoutBounds меняет границы множителя порога. Текущие рекомендации
// подтянутся к новым границам на следующем Recommend.
func (a *Adapter) SetScoutBounds(min, max float64) error {
	if min <= 0 || min >= max {
		return models.NewValidationError("scout multiplier bounds", "0 < min < max")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings.MinScoutMult = min
	a.settings.MaxScoutMult = max
	return nil
}

// Recommend пересчитывает оба параметра по свежей истории. Детерминирован:
// одинаковый Input всегда даёт одинаковые рекомендации.
func (a *Adapter) Recommend(ctx context.Context, in Input) (scoutMult, trendW models.AIParameter) {
	a.mu.RLock()
	s := a.settings
	a.mu.RUnlock()

	now := a.now()
	scoutMult = models.AIParameter{
		Name:      models.ParamScoutMultiplier,
		Current:   in.CurrentScoutMult,
		Min:       s.MinScoutMult,
		Max:       s.MaxScoutMult,
		UpdatedAt: now,
	}
	trendW = models.AIParameter{
		Name:      models.ParamTrendWeight,
		Current:   in.CurrentTrendW,
		Min:       s.MinTrendW,
		Max:       s.MaxTrendW,
		UpdatedAt: now,
	}

	// мало истории — дефолты с нулевой уверенностью
	if len(in.Outcomes) < s.MinOutcomes {
		scoutMult.Recommended = in.CurrentScoutMult
		trendW.Recommended = in.CurrentTrendW
		scoutMult.Clamp()
		trendW.Clamp()
		a.persist(ctx, &scoutMult, &trendW)
		return scoutMult, trendW
	}

	vol := 0.0
	if len(in.Returns) > 1 {
		vol = stat.StdDev(in.Returns, nil)
	}

	// высокая волатильность -> порог выше (реже, но надёжнее прыгаем)
	volFrac := math.Min(vol/s.VolRef, 1)
	rawMult := s.MinScoutMult + (s.MaxScoutMult-s.MinScoutMult)*volFrac

	// полоса проигрышей в хвосте — консервативное смещение вверх
	tail := in.Outcomes
	if len(tail) > s.PatternN {
		tail = tail[len(tail)-s.PatternN:]
	}
	tailNet := 0.0
	for _, o := range tail {
		tailNet += o
	}
	if tailNet < 0 {
		rawMult += s.MaxStep
	}

	scoutMult.Recommended = stepToward(in.CurrentScoutMult, rawMult, s.MaxStep)
	if scoutMult.Clamp() {
		logger.Info("ai: scout_multiplier clamped to [%.2f, %.2f]", s.MinScoutMult, s.MaxScoutMult)
	}

	// проигрышная история обесценивает трендовый сигнал, выигрышная — укрепляет
	meanOutcome := stat.Mean(in.Outcomes, nil)
	rawW := in.CurrentTrendW
	switch {
	case meanOutcome < 0:
		rawW -= s.MaxStep
	case meanOutcome > 0:
		rawW += s.MaxStep / 2
	}
	trendW.Recommended = stepToward(in.CurrentTrendW, rawW, s.MaxStep)
	if trendW.Clamp() {
		logger.Info("ai: trend_weight clamped to [%.2f, %.2f]", s.MinTrendW, s.MaxTrendW)
	}

	conf := confidence(in.Outcomes, s.MinOutcomes)
	scoutMult.Confidence = conf
	trendW.Confidence = conf

	a.persist(ctx, &scoutMult, &trendW)
	return scoutMult, trendW
}

// stepToward двигает current к target, но не дальше maxStep за раз.
func stepToward(current, target, maxStep float64) float64 {
	delta := target - current
	if delta > maxStep {
		delta = maxStep
	}
	if delta < -maxStep {
		delta = -maxStep
	}
	return current + delta
}

// confidence растёт с числом исходов и падает с их разбросом.
func confidence(outcomes []float64, minOutcomes int) float64 {
	sample := math.Min(float64(len(outcomes))/float64(2*minOutcomes), 1)
	spread := stat.StdDev(outcomes, nil)
	c := sample / (1 + spread)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func (a *Adapter) persist(ctx context.Context, params ...*models.AIParameter) {
	if a.store == nil {
		return
	}
	for _, p := range params {
		if err := a.store.Save(ctx, p); err != nil {
			logger.Error("ai persist %s: %v", p.Name, err)
		}
	}
}
