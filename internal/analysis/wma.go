package analysis

import (
	"fmt"
	"math"

	"scout_bot/internal/models"
)

// wmaAt — WMA(n) на индексе i: последняя цена с весом n, дальше линейно вниз до 1.
func wmaAt(prices []float64, i, n int) float64 {
	var sum, wsum float64
	for k := 0; k < n; k++ {
		w := float64(n - k)
		sum += prices[i-k] * w
		wsum += w
	}
	return sum / wsum
}

// ComputeSignal — чистая функция: одна и та же история всегда даёт один и тот же сигнал.
// Меньше longN точек — models.ErrInsufficientData, вызывающий деградирует до Neutral/0.
// Не-конечные цены — models.ErrCalculation, пара пропускается на цикл.
func ComputeSignal(history []models.PriceSample, shortN, longN int) (models.TrendSignal, error) {
	if shortN <= 0 || longN <= 0 || shortN >= longN {
		return models.TrendSignal{}, fmt.Errorf("wma periods short=%d long=%d: %w",
			shortN, longN, models.ErrCalculation)
	}
	if len(history) < longN {
		return models.TrendSignal{}, fmt.Errorf("%d of %d samples: %w",
			len(history), longN, models.ErrInsufficientData)
	}

	prices := make([]float64, len(history))
	for i, s := range history {
		if math.IsNaN(s.Price) || math.IsInf(s.Price, 0) || s.Price <= 0 {
			return models.TrendSignal{}, fmt.Errorf("bad price %v at %d: %w",
				s.Price, i, models.ErrCalculation)
		}
		prices[i] = s.Price
	}

	last := len(prices) - 1
	short := wmaAt(prices, last, shortN)
	long := wmaAt(prices, last, longN)
	if long == 0 {
		return models.TrendSignal{}, fmt.Errorf("zero long wma: %w", models.ErrCalculation)
	}

	sig := models.TrendSignal{
		Pair:     history[last].Pair,
		Time:     history[last].Time,
		WMAShort: short,
		WMALong:  long,
	}

	switch {
	case short > long:
		sig.Direction = models.DirBullish
	case short < long:
		sig.Direction = models.DirBearish
	default:
		sig.Direction = models.DirNeutral
	}

	sig.Strength = math.Abs(short-long) / long
	if sig.Strength > 1 {
		sig.Strength = 1
	}

	// кросс детектим по предыдущему индексу, если истории хватает
	if last >= longN {
		prevShort := wmaAt(prices, last-1, shortN)
		prevLong := wmaAt(prices, last-1, longN)
		if prevShort <= prevLong && short > long {
			sig.Crossover = models.CrossGolden
		} else if prevShort >= prevLong && short < long {
			sig.Crossover = models.CrossDeath
		}
	}

	return sig, nil
}

// CrossIndex возвращает индекс первого golden cross в истории, -1 если его нет.
// Используется в офлайн-реплее для сверки детерминизма.
func CrossIndex(history []models.PriceSample, shortN, longN int) int {
	for i := longN; i < len(history); i++ {
		sig, err := ComputeSignal(history[:i+1], shortN, longN)
		if err != nil {
			continue
		}
		if sig.Crossover == models.CrossGolden {
			return i
		}
	}
	return -1
}
