package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scout_bot/internal/modules/config"
)

// Client — REST + WebSocket клиент биржи. REST-часть тянет свечи, балансы
// и исполняет ордера; WS-часть держит свежую цену по каждой монете в кэше.
type Client struct {
	cfg *config.Config

	httpc    *http.Client
	wsDialer *websocket.Dialer

	apiKey    string
	apiSecret string

	mu     sync.RWMutex
	last   map[string]lastPrice // coin -> последняя цена из WS
	wsLive bool
}

type lastPrice struct {
	price float64
	at    time.Time
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:       cfg,
		httpc:     &http.Client{Timeout: cfg.RequestTimeout},
		wsDialer:  &websocket.Dialer{},
		apiKey:    cfg.Exchange.APIKey,
		apiSecret: cfg.Exchange.APISecret,
		last:      make(map[string]lastPrice),
	}
}

// Healthy — true, когда WS-стример жив и кэш не протух.
func (c *Client) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wsLive
}

func (c *Client) symbol(coin string) string {
	return coin + c.cfg.Bridge
}

func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
