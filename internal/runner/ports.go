package runner

import (
	"context"

	"scout_bot/internal/models"
	ai "scout_bot/internal/modules/ai/service"
)

// MarketData — что цикл хочет от биржи по данным.
type MarketData interface {
	CoinHistory(ctx context.Context, coin string, limit int) ([]models.PriceSample, error)
	PairHistory(ctx context.Context, pair models.Pair, limit int) ([]models.PriceSample, error)
	Price(ctx context.Context, coin string) (float64, error)
	Portfolio(ctx context.Context) (models.PortfolioSnapshot, error)
	BootstrapPairs(ctx context.Context, known []models.Pair) ([]models.Pair, error)
}

// Executor — исполнение рыночных ордеров. Ошибка — без ретраев внутри цикла.
type Executor interface {
	Execute(ctx context.Context, coin string, side models.Side, amount float64) (models.Fill, error)
}

// RiskGate — единственная точка входа торговли: не прошёл — цикл дальше не идёт.
type RiskGate interface {
	CheckAndUpdate(ctx context.Context, portfolioValue float64) (models.RiskDecision, error)
	RecordTradeResult(ctx context.Context, pnlPct float64)
}

// Advisor — рекомендатель параметров отбора. Restored отдаёт значения,
// пережившие рестарт, цикл применяет их при старте.
type Advisor interface {
	Enabled() bool
	Restored() (scoutMult, trendW float64, ok bool)
	Recommend(ctx context.Context, in ai.Input) (scoutMult, trendW models.AIParameter)
}

// AuditStore — журнал решений и источник исходов для Advisor.
type AuditStore interface {
	Append(ctx context.Context, rec models.AuditRecord) error
	RecentOutcomes(ctx context.Context, n int) ([]float64, error)
}

// PairStore — персист порогов пар.
type PairStore interface {
	Save(ctx context.Context, pair models.Pair) error
	LoadAll(ctx context.Context) ([]models.Pair, error)
}

// Notifier — уведомления оператору; отправка не должна блокировать цикл.
type Notifier interface {
	Send(ctx context.Context, format string, args ...any)
}
