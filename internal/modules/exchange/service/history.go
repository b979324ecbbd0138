package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"scout_bot/internal/models"
)

// CoinHistory — закрытые минутные свечи coin/bridge, старые первыми.
func (c *Client) CoinHistory(ctx context.Context, coin string, limit int) ([]models.PriceSample, error) {
	q := url.Values{}
	q.Set("symbol", c.symbol(coin))
	q.Set("interval", "1m")
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.cfg.Exchange.BaseURL+"/api/v3/klines?"+q.Encode(),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("http 429: %w", models.ErrRateLimited)
	}
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}

	// kline = [openTime, open, high, low, close, volume, closeTime, ...]
	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make([]models.PriceSample, 0, len(raw))
	for i, k := range raw {
		if len(k) < 7 {
			return nil, fmt.Errorf("kline %d: short row", i)
		}
		var closeStr string
		if err := json.Unmarshal(k[4], &closeStr); err != nil {
			return nil, fmt.Errorf("kline %d close: %w", i, err)
		}
		px, err := strconv.ParseFloat(closeStr, 64)
		if err != nil || px <= 0 {
			return nil, fmt.Errorf("kline %d close parse: %v (%q): %w", i, err, closeStr, models.ErrCalculation)
		}
		var closeMs int64
		if err := json.Unmarshal(k[6], &closeMs); err != nil {
			return nil, fmt.Errorf("kline %d closeTime: %w", i, err)
		}
		out = append(out, models.PriceSample{
			Pair:  c.symbol(coin),
			Time:  time.UnixMilli(closeMs),
			Price: px,
		})
	}
	return out, nil
}

// PairHistory — серия ratio from/to, построенная поэлементно из двух свечных серий.
// Серии выравниваем по хвосту: биржа может отдать разное число свечей.
func (c *Client) PairHistory(ctx context.Context, pair models.Pair, limit int) ([]models.PriceSample, error) {
	from, err := c.CoinHistory(ctx, pair.FromCoin, limit)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", pair.FromCoin, err)
	}
	to, err := c.CoinHistory(ctx, pair.ToCoin, limit)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", pair.ToCoin, err)
	}

	n := len(from)
	if len(to) < n {
		n = len(to)
	}
	if n == 0 {
		return nil, models.ErrInsufficientData
	}
	from = from[len(from)-n:]
	to = to[len(to)-n:]

	out := make([]models.PriceSample, n)
	for i := 0; i < n; i++ {
		if to[i].Price <= 0 {
			return nil, fmt.Errorf("zero price %s at %d: %w", pair.ToCoin, i, models.ErrCalculation)
		}
		out[i] = models.PriceSample{
			Pair:  pair.ID,
			Time:  from[i].Time,
			Price: from[i].Price / to[i].Price,
		}
	}
	return out, nil
}

// Price — текущая цена coin/bridge. Сначала WS-кэш, при протухании — REST-тикер.
func (c *Client) Price(ctx context.Context, coin string) (float64, error) {
	if coin == c.cfg.Bridge {
		return 1, nil
	}

	c.mu.RLock()
	lp, ok := c.last[coin]
	c.mu.RUnlock()
	if ok && time.Since(lp.at) < 2*c.cfg.PollInterval {
		return lp.price, nil
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.cfg.Exchange.BaseURL+"/api/v3/ticker/price?symbol="+url.QueryEscape(c.symbol(coin)),
		nil,
	)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, models.ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}

	var payload struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	px, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil || px <= 0 {
		return 0, fmt.Errorf("price parse: %v (%q)", err, payload.Price)
	}
	return px, nil
}
