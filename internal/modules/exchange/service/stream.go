package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"scout_bot/pkg/logger"
)

// Start держит WS-подписку на mini-тикеры всех монет из конфига и
// обновляет кэш последних цен. Реконнект с экспоненциальной паузой,
// сбрасывается после стабильного соединения.
func (c *Client) Start(ctx context.Context) {
	streams := make([]string, 0, len(c.cfg.Coins))
	for _, coin := range c.cfg.Coins {
		streams = append(streams, strings.ToLower(c.symbol(coin))+"@miniTicker")
	}
	wsURL := c.cfg.Exchange.WSURL + "/stream?streams=" + strings.Join(streams, "/")

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.runConn(ctx, wsURL); err != nil {
			logger.Error("ws: %v, reconnect in %s", err, backoff)
		}

		c.mu.Lock()
		c.wsLive = false
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}

func (c *Client) runConn(ctx context.Context, wsURL string) error {
	conn, _, err := c.wsDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	logger.Info("ws connected: %d streams", len(c.cfg.Coins))
	c.mu.Lock()
	c.wsLive = true
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg struct {
			Data struct {
				Symbol string `json:"s"`
				Close  string `json:"c"`
			} `json:"data"`
		}
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			logger.Error("ws decode: %v", err)
			continue
		}
		if msg.Data.Symbol == "" {
			continue
		}

		px, err := strconv.ParseFloat(msg.Data.Close, 64)
		if err != nil || px <= 0 {
			continue
		}

		coin := strings.TrimSuffix(msg.Data.Symbol, c.cfg.Bridge)
		c.mu.Lock()
		c.last[coin] = lastPrice{price: px, at: time.Now()}
		c.mu.Unlock()
	}
}
