package models

import "time"

type RiskStatus string

const (
	RiskActive RiskStatus = "ACTIVE"
	RiskHalted RiskStatus = "HALTED"
)

// RiskState — единственный живой экземпляр, мутирует только риск-менеджер.
// Инвариант: Status=HALTED снимается только явной командой confirm-resume,
// полуночный сброс счётчиков статус НЕ трогает.
type RiskState struct {
	DayDate        string     `json:"day_date"` // локальная дата YYYY-MM-DD, которой принадлежит baseline
	DayStartValue  float64    `json:"day_start_value"`
	CurrentValue   float64    `json:"current_value"`
	CurrentLossPct float64    `json:"current_loss_pct"`
	Status         RiskStatus `json:"status"`
	HaltReason     string     `json:"halt_reason,omitempty"`
	HaltedAt       time.Time  `json:"halted_at,omitempty"`

	TradesToday int `json:"trades_today"`
	WinsToday   int `json:"wins_today"`
	LossesToday int `json:"losses_today"`
}

// RiskDecision — ответ CheckAndUpdate: можно ли торговать в этом цикле.
type RiskDecision struct {
	Allowed bool
	LossPct float64
	Status  RiskStatus
	Reason  string
}

type RiskEventType string

const (
	RiskEventHalt              RiskEventType = "halt"
	RiskEventResume            RiskEventType = "resume"
	RiskEventDailyReset        RiskEventType = "daily_reset"
	RiskEventThresholdChange   RiskEventType = "threshold_change"
	RiskEventEmergencyShutdown RiskEventType = "emergency_shutdown"
)

// RiskEvent — append-only журнал переходов риск-менеджера.
type RiskEvent struct {
	Type           RiskEventType `json:"event_type"`
	Description    string        `json:"description"`
	PortfolioValue float64       `json:"portfolio_value"`
	LossPct        float64       `json:"loss_pct"`
	Time           time.Time     `json:"time"`
	Action         string        `json:"action_taken"`
}
