package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	"scout_bot/internal/models"
	exchservice "scout_bot/internal/modules/exchange/service"
	riskservice "scout_bot/internal/modules/risk/service"
	"scout_bot/internal/runner"
)

type Config struct {
	Addr string // например ":8080"
}

func NewConfig() Config {
	return Config{Addr: ":8080"}
}

func NewMux(trader *runner.Trader, risk *riskservice.Manager, exch *exchservice.Client) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// readiness: был хотя бы один цикл и WS-стример жив
		st := trader.Status()
		if st.LastCycle.IsZero() || !exch.Healthy() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// полезный JSON для отладки
		st := trader.Status()
		rs := risk.Snapshot()
		resp := map[string]any{
			"riskStatus":  rs.Status,
			"halted":      rs.Status == models.RiskHalted,
			"dayLossPct":  rs.CurrentLossPct,
			"tradesToday": rs.TradesToday,
			"paused":      st.Paused,
			"currentCoin": st.CurrentCoin,
			"wsConnected": exch.Healthy(),
			"lastCycleUnix": func() int64 {
				if st.LastCycle.IsZero() {
					return 0
				}
				return st.LastCycle.Unix()
			}(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			NewConfig,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
