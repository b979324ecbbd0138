package models

import (
	"fmt"
	"time"
)

// TradeDecision — оценка одного кандидата за цикл. Chosen=true — исполненный прыжок.
type TradeDecision struct {
	Pair              string    `json:"pair"`
	BaseRatio         float64   `json:"base_ratio"`
	TrendContribution float64   `json:"trend_contribution"`
	AIAdjustment      float64   `json:"ai_adjustment"`
	CompositeScore    float64   `json:"composite_score"`
	RiskGatePassed    bool      `json:"risk_gate_passed"`
	Chosen            bool      `json:"chosen"`
	Time              time.Time `json:"time"`

	// Исход (заполняется после исполнения; для нулевых сделок остаётся 0).
	PnLPct float64 `json:"pnl_pct"`
	Failed bool    `json:"failed"`
	Error  string  `json:"error,omitempty"`
}

// AuditRecord — TradeDecision плюс человекочитаемое обоснование для трассировки
// и для будущей истории AI-адаптера.
type AuditRecord struct {
	Decision  TradeDecision `json:"decision"`
	Reasoning string        `json:"reasoning"`
}

// NewAuditRecord собирает обоснование из разбивки скора.
func NewAuditRecord(d TradeDecision) AuditRecord {
	return AuditRecord{
		Decision: d,
		Reasoning: fmt.Sprintf(
			"pair=%s base=%.6f trend=%+.4f ai=%.4f composite=%.6f risk_gate=%v chosen=%v",
			d.Pair, d.BaseRatio, d.TrendContribution, d.AIAdjustment,
			d.CompositeScore, d.RiskGatePassed, d.Chosen,
		),
	}
}
