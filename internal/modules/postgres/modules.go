package postgres

import (
	"context"
	"fmt"
	"scout_bot/internal/modules/config"
	"scout_bot/internal/storage/pg"
	"scout_bot/pkg/db"

	"go.uber.org/fx"
)

// Module поднимает пул соединений, tx-менеджер и репозитории.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster), nil
			},
			func(m *db.PgTxManager) db.TxManager { return m },
			pg.NewRiskStateRepo,
			pg.NewRiskEventsRepo,
			pg.NewAIParamsRepo,
			pg.NewAuditRepo,
			pg.NewPairsRepo,
		),
	)
}
