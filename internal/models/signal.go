package models

import "time"

type Direction string

const (
	DirBullish Direction = "bullish"
	DirBearish Direction = "bearish"
	DirNeutral Direction = "neutral"
)

type Crossover string

const (
	CrossNone   Crossover = ""
	CrossGolden Crossover = "golden_cross"
	CrossDeath  Crossover = "death_cross"
)

// TrendSignal — результат WMA-анализа пары. Живёт один цикл, пересчитывается с нуля,
// источником истины не является (только кэш).
type TrendSignal struct {
	Pair      string
	Time      time.Time
	WMAShort  float64
	WMALong   float64
	Direction Direction
	Strength  float64 // [0,1]
	Crossover Crossover
}

// Contribution — подписанный вклад тренда в composite score:
// плюс для bullish, минус для bearish, бонус за свежий кросс, зажат в [-1,1].
func (s TrendSignal) Contribution() float64 {
	score := 0.0
	switch s.Direction {
	case DirBullish:
		score = s.Strength
		if s.Crossover == CrossGolden {
			score += 0.3
		}
	case DirBearish:
		score = -s.Strength
		if s.Crossover == CrossDeath {
			score -= 0.3
		}
	}
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}

// NeutralSignal — деградация при нехватке данных или ошибке расчёта.
func NeutralSignal(pair string, at time.Time) TrendSignal {
	return TrendSignal{Pair: pair, Time: at, Direction: DirNeutral, Strength: 0}
}
