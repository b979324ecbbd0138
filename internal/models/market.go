package models

import "time"

// PriceSample — одна точка истории цены по паре. После записи не меняется.
type PriceSample struct {
	Pair  string    `json:"pair"`
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// Pair — торгуемая пара: прыжок FromCoin -> ToCoin через бридж (USDT).
// Ratio — порог обмена, инициализируется при старте и обновляется после прыжка.
type Pair struct {
	ID       string  `json:"id"` // например "BTC->ETH"
	FromCoin string  `json:"from_coin"`
	ToCoin   string  `json:"to_coin"`
	Ratio    float64 `json:"ratio"`
}

func (p Pair) Key() string { return p.FromCoin + "->" + p.ToCoin }

// PortfolioSnapshot — суммарная стоимость портфеля на момент цикла.
type PortfolioSnapshot struct {
	Time     time.Time          `json:"time"`
	TotalUSD float64            `json:"total_usd"`
	Holdings map[string]float64 `json:"holdings"`
}

// Fill — подтверждение исполнения от биржи.
type Fill struct {
	OrderID string    `json:"order_id"`
	Pair    string    `json:"pair"`
	Side    Side      `json:"side"`
	Price   float64   `json:"price"`
	Amount  float64   `json:"amount"`
	Time    time.Time `json:"time"`
}

type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)
