package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"scout_bot/internal/models"
)

// Execute — рыночный ордер coin/bridge. Amount — количество базовой монеты.
// Ошибка исполнения отдаётся наверх как есть: ретраев внутри цикла нет,
// следующая попытка возможна только на следующем цикле.
func (c *Client) Execute(ctx context.Context, coin string, side models.Side, amount float64) (models.Fill, error) {
	if side != models.SideBuy && side != models.SideSell {
		return models.Fill{}, fmt.Errorf("bad side %q", side)
	}
	if amount <= 0 {
		return models.Fill{}, fmt.Errorf("bad amount %v", amount)
	}

	q := url.Values{}
	q.Set("symbol", c.symbol(coin))
	q.Set("side", string(side))
	q.Set("type", "MARKET")
	q.Set("quantity", strconv.FormatFloat(amount, 'f', 8, 64))
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := q.Encode()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.cfg.Exchange.BaseURL+"/api/v3/order",
		strings.NewReader(query+"&signature="+c.sign(query)),
	)
	if err != nil {
		return models.Fill{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.Fill{}, fmt.Errorf("%v: %w", err, models.ErrNetwork)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Fill{}, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.Fill{}, fmt.Errorf("http 429: %w", models.ErrRateLimited)
	}
	if resp.StatusCode/100 != 2 {
		return models.Fill{}, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		OrderID     int64  `json:"orderId"`
		ExecutedQty string `json:"executedQty"`
		Fills       []struct {
			Price string `json:"price"`
			Qty   string `json:"qty"`
		} `json:"fills"`
	}
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return models.Fill{}, fmt.Errorf("decode: %w", err)
	}

	executed, _ := strconv.ParseFloat(payload.ExecutedQty, 64)
	if executed <= 0 {
		return models.Fill{}, fmt.Errorf("order %d: nothing executed", payload.OrderID)
	}

	// средневзвешенная цена исполнения по филам
	var notional, qty float64
	for _, f := range payload.Fills {
		px, _ := strconv.ParseFloat(f.Price, 64)
		fq, _ := strconv.ParseFloat(f.Qty, 64)
		notional += px * fq
		qty += fq
	}
	avg := 0.0
	if qty > 0 {
		avg = notional / qty
	}

	return models.Fill{
		OrderID: strconv.FormatInt(payload.OrderID, 10),
		Pair:    c.symbol(coin),
		Side:    side,
		Price:   avg,
		Amount:  executed,
		Time:    time.Now(),
	}, nil
}
