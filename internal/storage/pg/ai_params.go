package pg

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"scout_bot/internal/models"
	"scout_bot/pkg/db"
)

// AIParamsRepo хранит последнюю рекомендацию по каждому параметру адаптера.
type AIParamsRepo struct {
	db db.TxManager
}

func NewAIParamsRepo(txm db.TxManager) *AIParamsRepo {
	return &AIParamsRepo{db: txm}
}

func (r *AIParamsRepo) Save(ctx context.Context, param *models.AIParameter) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.AIParams.Save: %w", err)
		}
	}()

	blob, err := sonic.Marshal(param)
	if err != nil {
		return err
	}

	return r.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO ai_params (name, param, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (name) DO UPDATE SET param = $2, updated_at = now()`,
			param.Name, blob)
		return err
	})
}

func (r *AIParamsRepo) Load(ctx context.Context, name string) (param *models.AIParameter, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.AIParams.Load: %w", err)
		}
	}()

	var blob []byte
	err = r.db.Conn().QueryRow(ctx, `SELECT param FROM ai_params WHERE name = $1`, name).Scan(&blob)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	param = &models.AIParameter{}
	if err = sonic.Unmarshal(blob, param); err != nil {
		return nil, err
	}
	return param, nil
}
