package service

import (
	"context"
	"fmt"

	"scout_bot/internal/models"
)

// BootstrapPairs строит полный граф прыжков между монетами и инициализирует
// порог каждой пары текущим соотношением цен. Уже сохранённые пороги не трогаем:
// они дороже свежего снимка, в них сидит история прыжков.
func (c *Client) BootstrapPairs(ctx context.Context, known []models.Pair) ([]models.Pair, error) {
	knownSet := make(map[string]models.Pair, len(known))
	for _, p := range known {
		knownSet[p.ID] = p
	}

	prices := make(map[string]float64, len(c.cfg.Coins))
	for _, coin := range c.cfg.Coins {
		px, err := c.Price(ctx, coin)
		if err != nil {
			return nil, fmt.Errorf("bootstrap price %s: %w", coin, err)
		}
		prices[coin] = px
	}

	var out []models.Pair
	for _, from := range c.cfg.Coins {
		for _, to := range c.cfg.Coins {
			if from == to {
				continue
			}
			id := from + "->" + to
			if p, ok := knownSet[id]; ok {
				out = append(out, p)
				continue
			}
			out = append(out, models.Pair{
				ID:       id,
				FromCoin: from,
				ToCoin:   to,
				Ratio:    prices[from] / prices[to],
			})
		}
	}
	return out, nil
}
