package pg

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"scout_bot/internal/models"
	"scout_bot/pkg/db"
)

// RiskStateRepo хранит единственную строку (id=1) с состоянием риск-менеджера.
// Состояние пишем одним JSON-блобом: схема состояния меняется чаще, чем колонки.
type RiskStateRepo struct {
	db db.TxManager
}

func NewRiskStateRepo(txm db.TxManager) *RiskStateRepo {
	return &RiskStateRepo{db: txm}
}

// Save upsert-ит снапшот состояния.
func (r *RiskStateRepo) Save(ctx context.Context, state *models.RiskState) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.RiskState.Save: %w", err)
		}
	}()

	blob, err := sonic.Marshal(state)
	if err != nil {
		return err
	}

	return r.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO risk_state (id, state, updated_at)
			VALUES (1, $1, now())
			ON CONFLICT (id) DO UPDATE SET state = $1, updated_at = now()`,
			blob)
		return err
	})
}

// Load читает состояние; если строки нет — (nil, nil), вызывающий стартует с чистого листа.
func (r *RiskStateRepo) Load(ctx context.Context) (state *models.RiskState, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.RiskState.Load: %w", err)
		}
	}()

	var blob []byte
	err = r.db.Conn().QueryRow(ctx, `SELECT state FROM risk_state WHERE id = 1`).Scan(&blob)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state = &models.RiskState{}
	if err = sonic.Unmarshal(blob, state); err != nil {
		return nil, err
	}
	return state, nil
}
