package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	exchangeKeyENV    = "EXCHANGE_API_KEY"
	exchangeSecretENV = "EXCHANGE_API_SECRET"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB     string `yaml:"db_dsn"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	Exchange struct {
		BaseURL   string `yaml:"base_url"`
		WSURL     string `yaml:"ws_url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"exchange"`

	// Бридж и монеты: пары строим как прыжки coin -> coin через бридж.
	Bridge string   `yaml:"bridge"`
	Coins  []string `yaml:"coins"`

	// Цикл оркестратора
	PollInterval   time.Duration `yaml:"poll_interval"`
	Lookback       int           `yaml:"lookback"`        // сколько свечей тянем для WMA
	RequestTimeout time.Duration `yaml:"request_timeout"` // таймаут на сетевые вызовы цикла

	// WMA
	WMAShortPeriod int     `yaml:"wma_short_period"`
	WMALongPeriod  int     `yaml:"wma_long_period"`
	TrendWeight    float64 `yaml:"trend_weight"` // вес сигнала в composite score

	// Scout
	ScoutThreshold float64 `yaml:"scout_threshold"` // базовый порог отбора кандидата
	ScoutFee       float64 `yaml:"scout_fee"`       // комиссия одной ноги, например 0.001

	// Риск
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`

	// AI-адаптер
	AIEnabled     bool    `yaml:"ai_enabled"`
	AIMinOutcomes int     `yaml:"ai_min_outcomes"`
	AIWindow      int     `yaml:"ai_window"`
	AIPatternN    int     `yaml:"ai_pattern_n"` // хвост исходов для win/loss-паттерна
	AIMaxStep     float64 `yaml:"ai_max_step"`  // макс. сдвиг рекомендации за апдейт
	AIVolRef      float64 `yaml:"ai_vol_ref"`   // stddev доходностей, считающийся "высокой" волатильностью
	MinScoutMult  float64 `yaml:"min_scout_mult"`
	MaxScoutMult  float64 `yaml:"max_scout_mult"`
	MinTrendW     float64 `yaml:"min_trend_weight"`
	MaxTrendW     float64 `yaml:"max_trend_weight"`
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		Bridge: getenvDefault("BRIDGE_COIN", "USDT"),
		Coins:  splitEnv("COINS", []string{"BTC", "ETH", "SOL", "XRP"}),

		PollInterval:   durationFromEnv("POLL_INTERVAL", "1m"),
		Lookback:       intFromEnv("LOOKBACK", 50),
		RequestTimeout: durationFromEnv("REQUEST_TIMEOUT", "10s"),

		WMAShortPeriod: intFromEnv("WMA_SHORT_PERIOD", 7),
		WMALongPeriod:  intFromEnv("WMA_LONG_PERIOD", 21),
		TrendWeight:    floatFromEnv("TREND_WEIGHT", 0.3),

		ScoutThreshold: floatFromEnv("SCOUT_THRESHOLD", 0.001),
		ScoutFee:       floatFromEnv("SCOUT_FEE", 0.001),

		MaxDailyLossPct: floatFromEnv("MAX_DAILY_LOSS_PCT", 5.0),

		AIEnabled:     boolFromEnv("AI_ENABLED", true),
		AIMinOutcomes: intFromEnv("AI_MIN_OUTCOMES", 20),
		AIWindow:      intFromEnv("AI_WINDOW", 50),
		AIPatternN:    intFromEnv("AI_PATTERN_N", 10),
		AIMaxStep:     floatFromEnv("AI_MAX_STEP", 0.1),
		AIVolRef:      floatFromEnv("AI_VOL_REF", 0.05),
		MinScoutMult:  floatFromEnv("MIN_SCOUT_MULT", 0.5),
		MaxScoutMult:  floatFromEnv("MAX_SCOUT_MULT", 2.0),
		MinTrendW:     floatFromEnv("MIN_TREND_WEIGHT", 0.1),
		MaxTrendW:     floatFromEnv("MAX_TREND_WEIGHT", 0.6),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}
	if k := os.Getenv(exchangeKeyENV); k != "" {
		config.Exchange.APIKey = k
	}
	if s := os.Getenv(exchangeSecretENV); s != "" {
		config.Exchange.APISecret = s
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.WMAShortPeriod <= 0 || c.WMALongPeriod <= 0 || c.WMAShortPeriod >= c.WMALongPeriod {
		return fmt.Errorf("wma periods: need 0 < short(%d) < long(%d)", c.WMAShortPeriod, c.WMALongPeriod)
	}
	if c.MaxDailyLossPct <= 0 || c.MaxDailyLossPct > 100 {
		return fmt.Errorf("max_daily_loss_pct %.2f out of (0,100]", c.MaxDailyLossPct)
	}
	if c.Lookback < c.WMALongPeriod+1 {
		c.Lookback = c.WMALongPeriod + 10
	}
	if c.MinScoutMult >= c.MaxScoutMult {
		return fmt.Errorf("scout mult bounds: min %.2f >= max %.2f", c.MinScoutMult, c.MaxScoutMult)
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitEnv(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, strings.ToUpper(p))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
