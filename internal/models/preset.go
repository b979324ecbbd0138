package models

// Limits — настройки риска и отбора, которые меняются пресетами и командами.
type Limits struct {
	MaxDailyLossPct float64
	ScoutThreshold  float64
	MinScoutMult    float64
	MaxScoutMult    float64
	AIMaxStep       float64
}

type Preset struct {
	Name        string
	Description string
	Apply       func(l *Limits)
}

var Presets = map[string]Preset{
	"safe": {
		Name:        "🟢 Консервативный",
		Description: "Минимальный дневной риск, узкие границы AI",
		Apply: func(l *Limits) {
			l.MaxDailyLossPct = 3.0
			l.ScoutThreshold = 0.002
			l.MinScoutMult = 0.8
			l.MaxScoutMult = 1.5
			l.AIMaxStep = 0.05
		},
	},
	"mid": {
		Name:        "🟡 Средний",
		Description: "Баланс риска и частоты прыжков",
		Apply: func(l *Limits) {
			l.MaxDailyLossPct = 5.0
			l.ScoutThreshold = 0.001
			l.MinScoutMult = 0.5
			l.MaxScoutMult = 2.0
			l.AIMaxStep = 0.1
		},
	},
	"aggr": {
		Name:        "🔴 Агрессивный",
		Description: "Высокий дневной лимит, широкие границы AI",
		Apply: func(l *Limits) {
			l.MaxDailyLossPct = 8.0
			l.ScoutThreshold = 0.0005
			l.MinScoutMult = 0.5
			l.MaxScoutMult = 2.5
			l.AIMaxStep = 0.2
		},
	},
}
