package models

import "time"

// Имена параметров, которыми управляет AI-адаптер.
const (
	ParamScoutMultiplier = "scout_multiplier" // множитель порога отбора кандидата
	ParamTrendWeight     = "trend_weight"     // вес вклада тренда в composite score
)

// AIParameter — рекомендация адаптера по одному параметру.
// Инвариант: Recommended всегда внутри [Min,Max] — зажимается перед возвратом,
// наружу значение вне границ не утекает.
type AIParameter struct {
	Name        string    `json:"name"`
	Current     float64   `json:"current_value"`
	Recommended float64   `json:"recommended_value"`
	Confidence  float64   `json:"confidence"` // [0,1]
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	UpdatedAt   time.Time `json:"last_updated"`
}

// Clamp зажимает Recommended в границы. Возвращает true, если пришлось резать.
func (p *AIParameter) Clamp() bool {
	if p.Recommended < p.Min {
		p.Recommended = p.Min
		return true
	}
	if p.Recommended > p.Max {
		p.Recommended = p.Max
		return true
	}
	return false
}
