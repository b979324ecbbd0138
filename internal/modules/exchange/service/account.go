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

// Portfolio — балансы аккаунта, свёрнутые в стоимость в бридж-валюте.
// Пылевые остатки (< 1e-8) не учитываем.
func (c *Client) Portfolio(ctx context.Context) (models.PortfolioSnapshot, error) {
	q := url.Values{}
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := q.Encode()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.cfg.Exchange.BaseURL+"/api/v3/account?"+query+"&signature="+c.sign(query),
		nil,
	)
	if err != nil {
		return models.PortfolioSnapshot{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.PortfolioSnapshot{}, fmt.Errorf("%v: %w", err, models.ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.PortfolioSnapshot{}, fmt.Errorf("http 429: %w", models.ErrRateLimited)
	}
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return models.PortfolioSnapshot{}, fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}

	var payload struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.PortfolioSnapshot{}, fmt.Errorf("decode: %w", err)
	}

	snap := models.PortfolioSnapshot{
		Time:     time.Now(),
		Holdings: make(map[string]float64),
	}
	for _, b := range payload.Balances {
		amount, err := strconv.ParseFloat(b.Free, 64)
		if err != nil || amount < 1e-8 {
			continue
		}
		px, err := c.Price(ctx, b.Asset)
		if err != nil {
			// монета вне нашего watch-листа, пропускаем
			continue
		}
		snap.Holdings[b.Asset] = amount
		snap.TotalUSD += amount * px
	}
	return snap, nil
}
